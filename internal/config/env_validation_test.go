package config

import "testing"

func TestConfig_ValidatesStoragePath(t *testing.T) {
	invalidPaths := []string{
		"../../../etc/passwd",
		"/data/../../../etc/passwd",
	}

	for _, path := range invalidPaths {
		t.Run(path, func(t *testing.T) {
			cfg := Default()
			cfg.StoragePath = path

			if err := cfg.Validate(); err == nil {
				t.Errorf("expected validation error for path traversal: %s", path)
			}
		})
	}
}

func TestConfig_ValidatesEmbeddingProvider(t *testing.T) {
	cfg := Default()
	cfg.EmbeddingProvider = "bogus"

	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for unknown embedding provider")
	}
}

func TestConfig_ValidatesMaxResultsRange(t *testing.T) {
	for _, v := range []int{0, -1, 21} {
		cfg := Default()
		cfg.MaxResults = v
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected validation error for max_results=%d", v)
		}
	}
}

func TestConfig_ValidatesMinScoreRange(t *testing.T) {
	for _, v := range []float64{-0.1, 1.1} {
		cfg := Default()
		cfg.MinScore = v
		if err := cfg.Validate(); err == nil {
			t.Errorf("expected validation error for min_score=%f", v)
		}
	}
}

func TestConfig_AllowsDefaults(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default configuration rejected: %v", err)
	}
}
