package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Precedence (highest to lowest):
//  1. Environment variables (MEMORYFORGE_STORAGE_PATH, MEMORYFORGE_MAX_RESULTS, ...)
//  2. YAML config file (default: ~/.memoryforge/config.yaml)
//  3. Hardcoded defaults
//
// An empty configPath resolves to defaultStoragePath()/config.yaml.
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		configPath = filepath.Join(defaultStoragePath(), "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	// MEMORYFORGE_MAX_RESULTS -> max_results, MEMORYFORGE_SYNC_KEY -> sync_key
	if err := k.Load(env.Provider("MEMORYFORGE_", ".", func(s string) string {
		trimmed := strings.TrimPrefix(s, "MEMORYFORGE_")
		return strings.ToLower(trimmed)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Save persists the configuration as YAML at its ConfigFilePath, creating
// parent directories with 0700 and the file itself with 0600.
//
// active_project_id is config-only runtime state (§4.13, §9): it is written
// here and nowhere else is it treated as durable.
func (c *Config) Save() error {
	if err := c.EnsureDirectories(); err != nil {
		return err
	}

	data, err := yamlv3.Marshal(map[string]any{
		"project_name":              c.ProjectName,
		"project_root":              c.ProjectRoot,
		"storage_path":              c.StoragePath,
		"embedding_provider":        string(c.EmbeddingProvider),
		"remote_api_key":            c.RemoteAPIKey.Value(),
		"remote_embedding_model":    c.RemoteEmbeddingModel,
		"local_embedding_model":     c.LocalEmbeddingModel,
		"max_results":               c.MaxResults,
		"min_score":                 c.MinScore,
		"active_project_id":         c.ActiveProjectID,
		"enable_commit_integration": c.EnableCommitIntegration,
		"consolidation_threshold":   c.ConsolidationThreshold,
		"sync_key":                  c.SyncKey.Value(),
		"sync_path":                 c.SyncPath,
		"sync_backend":              c.SyncBackend,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.ConfigFilePath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// EnsureConfigDir creates the memoryforge storage directory if absent.
func EnsureConfigDir(storagePath string) error {
	if storagePath == "" {
		storagePath = defaultStoragePath()
	}
	if err := os.MkdirAll(storagePath, 0700); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", storagePath, err)
	}
	return nil
}

// validateConfigPath rejects path traversal sequences in a caller-supplied
// config path. Unlike storage_path (validatePath in config.go, which
// confines engine-managed data under one directory the process itself
// creates), a config path is typically handed in explicitly via --config or
// a test fixture, so it is not confined to a fixed directory — only
// traversal is rejected, even if the file does not yet exist.
func validateConfigPath(path string) error {
	if _, err := filepath.Abs(path); err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path contains traversal sequence: %s", path)
		}
	}
	return nil
}

// validateConfigFileProperties checks permissions and size of an existing
// config file, using an already-opened file descriptor's FileInfo to avoid
// a TOCTOU race between stat and read.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}
