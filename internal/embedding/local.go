package embedding

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// localModels maps friendly model names to fastembed's constants, the same
// mapping the teacher's FastEmbed provider uses.
var localModels = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-small-en":                      fastembed.BGESmallEN,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"BAAI/bge-base-en":                       fastembed.BGEBaseEN,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

var localDimensions = map[fastembed.EmbeddingModel]int{
	fastembed.BGESmallENV15: 384,
	fastembed.BGESmallEN:    384,
	fastembed.BGEBaseENV15:  768,
	fastembed.BGEBaseEN:     768,
	fastembed.AllMiniLML6V2: 384,
}

// localProvider runs embeddings on-device via fastembed-go's bundled ONNX
// runtime. No network calls, so it never hits the retry wrapper.
type localProvider struct {
	mu    sync.RWMutex
	model *fastembed.FlagEmbedding
	dim   int
}

func newLocalProvider(cfg Config) (Provider, error) {
	modelName := cfg.LocalModel
	if modelName == "" {
		modelName = "BAAI/bge-small-en-v1.5"
	}

	model, ok := localModels[modelName]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported local model %q", ErrInvalidConfig, modelName)
	}

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(".", "memoryforge_models")
	}

	showProgress := false
	flagEmbed, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cacheDir,
		MaxLength:            512,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing local embedding model: %w", err)
	}

	return &localProvider{model: flagEmbed, dim: localDimensions[model]}, nil
}

func (p *localProvider) Dimension() int { return p.dim }

// Generate embeds a single piece of text with the "query: " prefix fastembed
// expects for retrieval queries.
func (p *localProvider) Generate(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	vec, err := p.model.QueryEmbed(text)
	if err != nil {
		return nil, fmt.Errorf("local embedding generation: %w", err)
	}
	return vec, nil
}

// GenerateBatch embeds multiple texts with the "passage: " prefix fastembed
// expects for stored documents.
func (p *localProvider) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	vectors, err := p.model.PassageEmbed(texts, 256)
	if err != nil {
		return nil, fmt.Errorf("local batch embedding generation: %w", err)
	}
	return vectors, nil
}

func (p *localProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model != nil {
		return p.model.Destroy()
	}
	return nil
}
