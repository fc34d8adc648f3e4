package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/wardlang/wci/internal/types"
)

type Config struct {
	Version     int
	Project     Project
	Cache       Cache
	Index       Index
	Performance Performance
	Include     []string
	Exclude     []string
}

type Project struct {
	Root string
	Name string
}

// Cache controls the on-disk snapshot cache.
type Cache struct {
	Dir        string // Base directory; per-workspace subdirectories are keyed by root hash
	Enabled    bool   // Disable to force cold rebuilds (useful in CI)
	VerifyHash bool   // Recompute content hashes during validation even when timestamps agree
	// VerifyHash guards against files restored to older content with an
	// older timestamp, which the timestamp check alone cannot detect.
	// It costs a full read of every cached file on load, so it is off
	// by default.
	LockWaitMs int // Bounded wait for the per-directory write lock before skipping a save
}

type Index struct {
	MaxFileSize     int64
	WatchMode       bool // Watch the workspace for out-of-editor changes
	WatchDebounceMs int  // Debounce time for file change events
}

type Performance struct {
	LoadWorkers int // Parallel validation workers during cache load (0 = NumCPU)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Cache: Cache{
			Enabled:    true,
			VerifyHash: false,
			LockWaitMs: types.DefaultLockWaitMs,
		},
		Index: Index{
			MaxFileSize:     types.DefaultMaxFileSize,
			WatchMode:       false,
			WatchDebounceMs: types.DefaultWatchDebounceMs,
		},
		Performance: Performance{
			LoadWorkers: 0,
		},
		Include: []string{"**/*.ward"},
		Exclude: []string{},
	}
}

// Load reads configuration for a workspace root: defaults overlaid with
// .wci.kdl from the root directory when present.
func Load(root string) (*Config, error) {
	cfg := Default()

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root %q: %w", root, err)
	}
	cfg.Project.Root = absRoot
	if cfg.Project.Name == "" {
		cfg.Project.Name = filepath.Base(absRoot)
	}

	kdlCfg, err := LoadKDL(absRoot)
	if err != nil {
		return nil, err
	}
	if kdlCfg != nil {
		cfg = kdlCfg
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration values are usable.
func (c *Config) Validate() error {
	if c.Project.Root == "" {
		return fmt.Errorf("project root must not be empty")
	}
	if c.Index.MaxFileSize <= 0 {
		return fmt.Errorf("index max_file_size must be positive, got %d", c.Index.MaxFileSize)
	}
	if c.Cache.LockWaitMs < 0 {
		return fmt.Errorf("cache lock_wait_ms must not be negative, got %d", c.Cache.LockWaitMs)
	}
	if c.Performance.LoadWorkers < 0 {
		return fmt.Errorf("performance load_workers must not be negative, got %d", c.Performance.LoadWorkers)
	}
	return nil
}

// LoadWorkers resolves the configured worker count, defaulting to NumCPU.
func (c *Config) LoadWorkerCount() int {
	if c.Performance.LoadWorkers > 0 {
		return c.Performance.LoadWorkers
	}
	return runtime.NumCPU()
}

// CacheBaseDir resolves the base cache directory, defaulting to the user
// cache directory so workspace trees stay free of generated state.
func (c *Config) CacheBaseDir() (string, error) {
	if c.Cache.Dir != "" {
		return c.Cache.Dir, nil
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user cache dir: %w", err)
	}
	return filepath.Join(base, "wci"), nil
}
