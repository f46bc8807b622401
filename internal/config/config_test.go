package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "default", cfg.ProjectName)
	assert.Equal(t, EmbeddingProviderLocal, cfg.EmbeddingProvider)
	assert.Equal(t, 5, cfg.MaxResults)
	assert.Equal(t, 0.5, cfg.MinScore)
	assert.Equal(t, 0.90, cfg.ConsolidationThreshold)
	assert.Equal(t, "local", cfg.SyncBackend)
	require.NoError(t, cfg.Validate())
}

func TestConfig_DerivedPaths(t *testing.T) {
	cfg := Default()
	cfg.StoragePath = "/tmp/mf-test"

	assert.Equal(t, filepath.Join("/tmp/mf-test", "sqlite", "memoryforge.db"), cfg.SQLitePath())
	assert.Equal(t, filepath.Join("/tmp/mf-test", "qdrant"), cfg.QdrantPath())
	assert.Equal(t, filepath.Join("/tmp/mf-test", "logs"), cfg.LogsPath())
	assert.Equal(t, filepath.Join("/tmp/mf-test", "config.yaml"), cfg.ConfigFilePath())
}

func TestConfig_EnsureDirectories(t *testing.T) {
	cfg := Default()
	cfg.StoragePath = t.TempDir()

	require.NoError(t, cfg.EnsureDirectories())

	for _, dir := range []string{cfg.StoragePath, filepath.Dir(cfg.SQLitePath()), cfg.QdrantPath(), cfg.LogsPath()} {
		assert.DirExists(t, dir)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults ok", func(c *Config) {}, false},
		{"max_results zero", func(c *Config) { c.MaxResults = 0 }, true},
		{"max_results too high", func(c *Config) { c.MaxResults = 21 }, true},
		{"min_score negative", func(c *Config) { c.MinScore = -0.01 }, true},
		{"min_score above one", func(c *Config) { c.MinScore = 1.01 }, true},
		{"unknown embedding provider", func(c *Config) { c.EmbeddingProvider = "remote-ish" }, true},
		{"storage path traversal", func(c *Config) { c.StoragePath = "/tmp/../etc" }, true},
		{"empty storage path", func(c *Config) { c.StoragePath = "" }, true},
		{
			"consolidation_threshold out of documented range is not rejected here",
			func(c *Config) { c.ConsolidationThreshold = 0.5 },
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
