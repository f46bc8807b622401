package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithFile_DefaultsOnly(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadWithFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, Default().ProjectName, cfg.ProjectName)
	assert.Equal(t, Default().MaxResults, cfg.MaxResults)
}

func TestLoadWithFile_YAMLOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := "project_name: my-project\nmax_results: 10\nembedding_provider: remote\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, "my-project", cfg.ProjectName)
	assert.Equal(t, 10, cfg.MaxResults)
	assert.Equal(t, EmbeddingProviderRemote, cfg.EmbeddingProvider)
}

func TestLoadWithFile_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_results: 10\n"), 0600))

	t.Setenv("MEMORYFORGE_MAX_RESULTS", "3")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.MaxResults)
}

func TestLoadWithFile_RejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_results: 99\n"), 0600))

	_, err := LoadWithFile(path)
	assert.Error(t, err)
}

func TestLoadWithFile_RejectsOversizedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	padding := make([]byte, maxConfigFileSize+1)
	for i := range padding {
		padding[i] = '#'
	}
	require.NoError(t, os.WriteFile(path, padding, 0600))

	_, err := LoadWithFile(path)
	assert.Error(t, err)
}

func TestLoadWithFile_RejectsPathTraversal(t *testing.T) {
	_, err := LoadWithFile("/var/tmp/../../etc/config.yaml")
	assert.Error(t, err)
}

func TestConfig_SaveAndReload(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.StoragePath = dir
	cfg.ProjectName = "roundtrip"
	cfg.MaxResults = 7

	require.NoError(t, cfg.Save())
	assert.FileExists(t, cfg.ConfigFilePath())

	reloaded, err := LoadWithFile(cfg.ConfigFilePath())
	require.NoError(t, err)

	assert.Equal(t, "roundtrip", reloaded.ProjectName)
	assert.Equal(t, 7, reloaded.MaxResults)
}

func TestEnsureConfigDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "memoryforge")
	require.NoError(t, EnsureConfigDir(dir))
	assert.DirExists(t, dir)
}
