// Package embedding implements the Embedding Provider (E, §4.3): a small
// factory over local (on-device) and remote (HTTP) embedding backends.
// Only the remote backend's requests are retried; the local backend makes
// no network calls and has no retry policy.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmptyInput indicates empty or nil input text.
var ErrEmptyInput = errors.New("embedding: empty input")

// ErrInvalidConfig indicates an unusable provider configuration.
var ErrInvalidConfig = errors.New("embedding: invalid configuration")

// Provider is the contract every embedding backend implements (§4.3).
// Dimension is stable for the lifetime of a Provider instance.
type Provider interface {
	// Dimension returns the embedding length for the current model.
	Dimension() int

	// Generate embeds a single piece of text.
	Generate(ctx context.Context, text string) ([]float32, error)

	// GenerateBatch embeds multiple texts. Implementations may fall back to
	// one-at-a-time generation if the backend has no native batch call.
	GenerateBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Kind selects which backend Config builds.
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// nominal dimensions for the two known model families (§4.3).
const (
	LocalDimension  = 384
	RemoteDimension = 1536
)

// Config configures the provider factory. It is a pure value: New does not
// touch the network or the filesystem beyond what constructing the chosen
// backend requires.
type Config struct {
	Kind Kind

	// LocalModel selects the local fastembed model. Defaults to
	// "BAAI/bge-small-en-v1.5".
	LocalModel string
	// CacheDir is where the local model's weights are cached.
	CacheDir string

	// RemoteBaseURL is the embedding HTTP endpoint's base URL.
	RemoteBaseURL string
	// RemoteModel is the model name sent to (or implied by) the remote
	// endpoint.
	RemoteModel string
	// RemoteAPIKey authenticates against the remote endpoint, if required.
	RemoteAPIKey string
}

// New builds the configured Provider. It is the selector described in
// §4.3: a pure factory that never dials out.
func New(cfg Config) (Provider, error) {
	switch cfg.Kind {
	case KindLocal, "":
		return newLocalProvider(cfg)
	case KindRemote:
		return newRemoteProvider(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown provider kind %q", ErrInvalidConfig, cfg.Kind)
	}
}

// detectDimension guesses a dimension from a model name when the caller
// hasn't told us explicitly, mirroring the heuristic contextd's factory
// uses for models it doesn't have an exact mapping for.
func detectDimension(model string, fallback int) int {
	switch {
	case containsFold(model, "large"):
		return 1536
	case containsFold(model, "base"):
		return 768
	case containsFold(model, "small"), containsFold(model, "mini"):
		return 384
	default:
		return fallback
	}
}

func containsFold(s, substr string) bool {
	ls, lsub := toLower(s), toLower(substr)
	if len(lsub) == 0 || len(ls) < len(lsub) {
		return false
	}
	for i := 0; i <= len(ls)-len(lsub); i++ {
		if ls[i:i+len(lsub)] == lsub {
			return true
		}
	}
	return false
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
