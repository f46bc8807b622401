// Package config provides configuration loading for memoryforge.
//
// Configuration is loaded from a YAML file with environment variable
// overrides and sensible defaults, following the precedence chain:
// defaults < YAML file < environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EmbeddingProvider identifies which embedding backend generates vectors.
type EmbeddingProvider string

const (
	EmbeddingProviderLocal  EmbeddingProvider = "local"
	EmbeddingProviderRemote EmbeddingProvider = "remote"
)

// Config holds the complete memoryforge configuration, matching the
// persisted config.yaml key set.
type Config struct {
	ProjectName string `koanf:"project_name"`
	ProjectRoot string `koanf:"project_root"`

	StoragePath string `koanf:"storage_path"`

	EmbeddingProvider     EmbeddingProvider `koanf:"embedding_provider"`
	RemoteAPIKey          Secret            `koanf:"remote_api_key"`
	RemoteEmbeddingModel  string            `koanf:"remote_embedding_model"`
	LocalEmbeddingModel   string            `koanf:"local_embedding_model"`

	MaxResults int     `koanf:"max_results"`
	MinScore   float64 `koanf:"min_score"`

	ActiveProjectID string `koanf:"active_project_id"`

	EnableCommitIntegration bool `koanf:"enable_commit_integration"`

	ConsolidationThreshold float64 `koanf:"consolidation_threshold"`

	SyncKey     Secret `koanf:"sync_key"`
	SyncPath    string `koanf:"sync_path"`
	SyncBackend string `koanf:"sync_backend"`
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	storagePath := defaultStoragePath()
	return &Config{
		ProjectName:            "default",
		ProjectRoot:            ".",
		StoragePath:            storagePath,
		EmbeddingProvider:      EmbeddingProviderLocal,
		RemoteEmbeddingModel:   "text-embedding-3-small",
		LocalEmbeddingModel:    "BAAI/bge-small-en-v1.5",
		MaxResults:             5,
		MinScore:               0.5,
		EnableCommitIntegration: false,
		ConsolidationThreshold: 0.90,
		SyncBackend:            "local",
	}
}

// defaultStoragePath returns ~/.memoryforge, matching the on-disk layout.
func defaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".memoryforge"
	}
	return filepath.Join(home, ".memoryforge")
}

// SQLitePath returns the path to the relational store file.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.StoragePath, "sqlite", "memoryforge.db")
}

// QdrantPath returns the vector index's on-disk directory.
func (c *Config) QdrantPath() string {
	return filepath.Join(c.StoragePath, "qdrant")
}

// LogsPath returns the operational logs directory.
func (c *Config) LogsPath() string {
	return filepath.Join(c.StoragePath, "logs")
}

// ConfigFilePath returns the path of the persisted config.yaml.
func (c *Config) ConfigFilePath() string {
	return filepath.Join(c.StoragePath, "config.yaml")
}

// EnsureDirectories creates all directories the engine needs at StoragePath.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.StoragePath,
		filepath.Dir(c.SQLitePath()),
		c.QdrantPath(),
		c.LogsPath(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Validate checks configuration invariants named in the spec (§6).
func (c *Config) Validate() error {
	if c.MaxResults < 1 || c.MaxResults > 20 {
		return fmt.Errorf("max_results must be in [1,20], got %d", c.MaxResults)
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return fmt.Errorf("min_score must be in [0,1], got %f", c.MinScore)
	}
	switch c.EmbeddingProvider {
	case EmbeddingProviderLocal, EmbeddingProviderRemote:
	default:
		return fmt.Errorf("embedding_provider must be 'local' or 'remote', got %q", c.EmbeddingProvider)
	}
	// consolidation_threshold outside [0.7, 0.99] is accepted here; the
	// Consolidator clamps it and logs a warning (see DESIGN.md).
	if err := validatePath(c.StoragePath); err != nil {
		return fmt.Errorf("invalid storage_path: %w", err)
	}
	return nil
}

// validatePath rejects path traversal sequences in user-controlled paths.
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path must not be empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("path contains traversal sequence: %s", path)
		}
	}
	return nil
}
