package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/wardlang/wci/internal/config"
	"github.com/wardlang/wci/internal/version"
)

func main() {
	app := &cli.App{
		Name:                   "wci",
		Usage:                  "Ward contract indexing for editors and AI assistants",
		Version:                version.Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Workspace root directory (defaults to the current directory)",
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "Include files matching glob patterns (e.g., --include '**/*.ward')",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Exclude files matching glob patterns (e.g., --exclude 'vendor/**')",
			},
			&cli.BoolFlag{
				Name:  "no-cache",
				Usage: "Disable the on-disk snapshot cache for this run",
			},
		},
		Commands: []*cli.Command{
			{
				Name:    "mcp",
				Aliases: []string{"serve"},
				Usage:   "Start the MCP (Model Context Protocol) server with stdio transport",
				Action:  mcpCommand,
			},
			{
				Name:   "index",
				Usage:  "Index the workspace once and persist the snapshot cache",
				Action: indexCommand,
			},
			{
				Name:    "definition",
				Aliases: []string{"def"},
				Usage:   "Resolve a contract name to its definition",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Aliases: []string{"j"}, Usage: "Output as JSON"},
				},
				Action: definitionCommand,
			},
			{
				Name:    "references",
				Aliases: []string{"refs"},
				Usage:   "List every invocation site of a contract",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Aliases: []string{"j"}, Usage: "Output as JSON"},
				},
				Action: referencesCommand,
			},
			{
				Name:    "query",
				Aliases: []string{"q"},
				Usage:   "Structural search over invocations, e.g. wci query 'transfer(?from, ?to, 100)'",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Aliases: []string{"j"}, Usage: "Output as JSON"},
					&cli.IntFlag{Name: "max", Aliases: []string{"m"}, Usage: "Maximum matches", Value: 100},
				},
				Action: queryCommand,
			},
			{
				Name:    "status",
				Aliases: []string{"st"},
				Usage:   "Show index and cache status for the workspace",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Aliases: []string{"j"}, Usage: "Output as JSON"},
				},
				Action: statusCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "wci: %v\n", err)
		os.Exit(1)
	}
}

// loadConfigWithOverrides loads the workspace configuration and applies
// CLI flag overrides on top.
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	root := c.String("root")
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		root = wd
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path %q: %w", root, err)
	}

	cfg, err := config.Load(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to load config for %s: %w", absRoot, err)
	}

	if includeFlags := c.StringSlice("include"); len(includeFlags) > 0 {
		cfg.Include = includeFlags
	}
	if excludeFlags := c.StringSlice("exclude"); len(excludeFlags) > 0 {
		cfg.Exclude = append(cfg.Exclude, excludeFlags...)
	}
	if c.Bool("no-cache") {
		cfg.Cache.Enabled = false
	}
	return cfg, nil
}
