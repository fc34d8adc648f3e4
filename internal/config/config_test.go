package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.True(t, cfg.Cache.Enabled)
	assert.False(t, cfg.Cache.VerifyHash)
	assert.Equal(t, 250, cfg.Cache.LockWaitMs)
	assert.Equal(t, []string{"**/*.ward"}, cfg.Include)
}

func TestLoad_NoConfigFile(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.Project.Root)
	assert.Equal(t, filepath.Base(dir), cfg.Project.Name)
	assert.True(t, cfg.Cache.Enabled)
}

func TestLoadKDL_FullConfig(t *testing.T) {
	dir := t.TempDir()
	kdl := `
project {
    name "billing-contracts"
}
cache {
    enabled true
    verify_hash true
    lock_wait_ms 500
}
index {
    max_file_size 1048576
    watch_mode true
    watch_debounce_ms 50
}
performance {
    load_workers 2
}
include "src/**/*.ward" "lib/**/*.ward"
exclude "**/generated/**"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".wci.kdl"), []byte(kdl), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "billing-contracts", cfg.Project.Name)
	assert.True(t, cfg.Cache.VerifyHash)
	assert.Equal(t, 500, cfg.Cache.LockWaitMs)
	assert.Equal(t, int64(1048576), cfg.Index.MaxFileSize)
	assert.True(t, cfg.Index.WatchMode)
	assert.Equal(t, 50, cfg.Index.WatchDebounceMs)
	assert.Equal(t, 2, cfg.Performance.LoadWorkers)
	assert.Equal(t, []string{"src/**/*.ward", "lib/**/*.ward"}, cfg.Include)
	assert.Equal(t, []string{"**/generated/**"}, cfg.Exclude)
}

func TestLoadKDL_RelativeRootResolvedAgainstConfigDir(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "contracts")
	require.NoError(t, os.Mkdir(sub, 0755))
	kdl := `
project {
    root "contracts"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".wci.kdl"), []byte(kdl), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, sub, cfg.Project.Root)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty root", func(c *Config) { c.Project.Root = "" }},
		{"zero max file size", func(c *Config) { c.Index.MaxFileSize = 0 }},
		{"negative lock wait", func(c *Config) { c.Cache.LockWaitMs = -1 }},
		{"negative workers", func(c *Config) { c.Performance.LoadWorkers = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Project.Root = "/tmp"
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadKDL_ParseError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".wci.kdl"), []byte(`project { "unterminated`), 0644))

	_, err := Load(dir)
	assert.Error(t, err)
}
