package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/wardlang/wci/internal/debug"
	"github.com/wardlang/wci/internal/mcp"
	"github.com/wardlang/wci/internal/server"
	"github.com/wardlang/wci/internal/types"
	"github.com/wardlang/wci/pkg/pathutil"
)

// shutdownTimeout bounds the best-effort cache save at exit.
const shutdownTimeout = 10 * time.Second

// withSession runs fn against a fully warmed one-shot session and tears
// it down afterwards, persisting the cache.
func withSession(c *cli.Context, fn func(s *server.Session) error) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}

	s := server.NewSession(cfg)
	if err := s.Initialize(cfg.Project.Root); err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.Shutdown(ctx)
	}()

	if err := s.WaitReady(c.Context); err != nil {
		return err
	}
	return fn(s)
}

func mcpCommand(c *cli.Context) error {
	// Nothing but protocol frames may reach stdout in MCP mode.
	debug.SetMCPMode(true)

	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}

	session := server.NewSession(cfg)
	if err := session.Initialize(cfg.Project.Root); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- mcp.NewServer(session).Run(ctx)
	}()

	var runErr error
	select {
	case runErr = <-errChan:
	case <-sigChan:
		cancel()
		<-errChan
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	session.Shutdown(shutdownCtx)

	if runErr != nil && ctx.Err() == nil {
		return fmt.Errorf("MCP server error: %w", runErr)
	}
	return nil
}

func indexCommand(c *cli.Context) error {
	return withSession(c, func(s *server.Session) error {
		st := s.Status()
		fmt.Printf("Indexed %d files (%d fragments) in %s\n", st.Files, st.Fragments, st.Root)
		return nil
	})
}

func definitionCommand(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("usage: wci definition <name>")
	}
	return withSession(c, func(s *server.Session) error {
		loc, ok := s.Index().FindDefinition(types.CanonicalName(name))
		if !ok {
			suggestions := s.Index().SuggestNames(types.CanonicalName(name), 5)
			if len(suggestions) > 0 {
				return fmt.Errorf("no definition for %q (did you mean %s?)", name, suggestions[0])
			}
			return fmt.Errorf("no definition for %q", name)
		}
		if c.Bool("json") {
			return printJSON(map[string]interface{}{"name": name, "location": loc})
		}
		fmt.Printf("%s:%d:%d\n", pathutil.ToPath(loc.URI), loc.Line, loc.Column)
		return nil
	})
}

func referencesCommand(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("usage: wci references <name>")
	}
	return withSession(c, func(s *server.Session) error {
		refs := s.Index().FindReferences(types.CanonicalName(name))
		if c.Bool("json") {
			return printJSON(map[string]interface{}{"name": name, "count": len(refs), "references": refs})
		}
		for _, loc := range refs {
			fmt.Printf("%s:%d:%d\n", pathutil.ToPath(loc.URI), loc.Line, loc.Column)
		}
		return nil
	})
}

func queryCommand(c *cli.Context) error {
	pattern := c.Args().First()
	if pattern == "" {
		return fmt.Errorf("usage: wci query '<pattern>'")
	}
	return withSession(c, func(s *server.Session) error {
		matches, err := s.Index().FindInvocations(pattern)
		if err != nil {
			return err
		}
		max := c.Int("max")
		if max > 0 && len(matches) > max {
			matches = matches[:max]
		}
		if c.Bool("json") {
			out := make([]map[string]interface{}, 0, len(matches))
			for _, m := range matches {
				bindings := make(map[string]string)
				for _, n := range m.Bindings.Names() {
					if v, ok := m.Bindings.Get(n); ok {
						bindings[n] = v
					}
				}
				out = append(out, map[string]interface{}{"location": m.Payload, "bindings": bindings})
			}
			return printJSON(map[string]interface{}{"pattern": pattern, "count": len(out), "matches": out})
		}
		for _, m := range matches {
			fmt.Printf("%s:%d:%d", pathutil.ToPath(m.Payload.URI), m.Payload.Line, m.Payload.Column)
			for _, n := range m.Bindings.Names() {
				if v, ok := m.Bindings.Get(n); ok {
					fmt.Printf("  ?%s=%s", n, v)
				}
			}
			fmt.Println()
		}
		return nil
	})
}

func statusCommand(c *cli.Context) error {
	return withSession(c, func(s *server.Session) error {
		st := s.Status()
		if c.Bool("json") {
			return printJSON(map[string]interface{}{
				"root":          st.Root,
				"files":         st.Files,
				"fragments":     st.Fragments,
				"cache_load":    st.CacheLoad,
				"cache_dir":     st.CacheDir,
				"cache_on_disk": st.CacheOnDisk,
			})
		}
		fmt.Printf("Workspace:  %s\n", st.Root)
		fmt.Printf("Files:      %d\n", st.Files)
		fmt.Printf("Fragments:  %d\n", st.Fragments)
		fmt.Printf("Cache load: %s\n", st.CacheLoad)
		fmt.Printf("Cache dir:  %s (present: %v)\n", st.CacheDir, st.CacheOnDisk)
		return nil
	})
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
