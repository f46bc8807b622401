package config

import (
	"path/filepath"
	"testing"
)

func TestValidateConfigPath_RejectsPathTraversal(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"leading escape", "../../../etc/passwd"},
		{"embedded escape", "/home/user/.memoryforge/../../../etc/passwd"},
		{"relative embedded escape", "configs/../../secrets/config.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validateConfigPath(tt.path); err == nil {
				t.Errorf("expected error for path traversal attempt: %s", tt.path)
			}
		})
	}
}

func TestValidateConfigPath_AllowsArbitraryWellFormedPaths(t *testing.T) {
	// A config path is typically supplied explicitly via --config or a test
	// fixture, so it is not confined to a single directory the way
	// storage_path is (see validatePath in config.go).
	validPaths := []string{
		"/etc/memoryforge/config.yaml",
		"/etc/memoryforge/production/config.yaml",
		filepath.Join(t.TempDir(), "config.yaml"),
		filepath.Join(t.TempDir(), "nested", "config.yaml"),
		"config.yaml",
	}

	for _, path := range validPaths {
		t.Run(path, func(t *testing.T) {
			if err := validateConfigPath(path); err != nil {
				t.Errorf("valid path rejected: %s, error: %v", path, err)
			}
		})
	}
}

func TestValidateConfigPath_HandlesNonExistentFiles(t *testing.T) {
	nonExistent := filepath.Join(t.TempDir(), "nonexistent.yaml")
	if err := validateConfigPath(nonExistent); err != nil {
		t.Errorf("non-existent file should pass path validation: %v", err)
	}
}
