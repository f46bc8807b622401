package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// remoteProvider talks to an HTTP embedding endpoint (e.g. a hosted or
// self-run TEI-compatible service), mirroring the teacher's Service type.
type remoteProvider struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
	dim     int
}

func newRemoteProvider(cfg Config) (Provider, error) {
	if cfg.RemoteBaseURL == "" {
		return nil, fmt.Errorf("%w: remote base URL required", ErrInvalidConfig)
	}
	model := cfg.RemoteModel
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &remoteProvider{
		baseURL: cfg.RemoteBaseURL,
		model:   model,
		apiKey:  cfg.RemoteAPIKey,
		client:  &http.Client{Timeout: 30 * time.Second},
		dim:     detectDimension(model, RemoteDimension),
	}, nil
}

func (p *remoteProvider) Dimension() int { return p.dim }

func (p *remoteProvider) Generate(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	vectors, err := p.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedding: empty response from remote provider")
	}
	return vectors[0], nil
}

// GenerateBatch embeds texts in one request; if that request fails for any
// reason (including exhausted retries) it falls back to embedding them one
// at a time (§4.3).
func (p *remoteProvider) GenerateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	vectors, err := p.embed(ctx, texts)
	if err == nil {
		return vectors, nil
	}

	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, genErr := p.Generate(ctx, t)
		if genErr != nil {
			return nil, genErr
		}
		out = append(out, v)
	}
	return out, nil
}

func (p *remoteProvider) Close() error { return nil }

type embedRequest struct {
	Inputs   []string `json:"inputs"`
	Truncate bool     `json:"truncate"`
}

// embed issues the HTTP request under the §4.3 retry policy: 3 attempts,
// exponential backoff base 1s factor 2, transient failures only.
func (p *remoteProvider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	var result [][]float32
	err := withRetry(ctx, func() error {
		vectors, err := p.doEmbed(ctx, texts)
		if err != nil {
			return err
		}
		result = vectors
		return nil
	})
	return result, err
}

func (p *remoteProvider) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Inputs: texts, Truncate: true})
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("marshaling embedding request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("creating embedding request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		// network-level failures (timeouts, connection refused) are transient.
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("remote embedding transient status %d: %s", resp.StatusCode, string(respBody))
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, backoff.Permanent(fmt.Errorf("remote embedding status %d: %s", resp.StatusCode, string(respBody)))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decoding embedding response: %w", err))
	}
	return vectors, nil
}

// withRetry implements §4.3's transport retry policy: up to 3 attempts,
// exponential backoff starting at 1s doubling each time; callers mark
// non-retryable (client) errors with backoff.Permanent.
func withRetry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(
		&backoff.ExponentialBackOff{
			InitialInterval:     time.Second,
			Multiplier:          2,
			RandomizationFactor: 0,
			MaxInterval:         4 * time.Second,
			MaxElapsedTime:      0,
			Clock:               backoff.SystemClock,
		}, 2), ctx)

	return backoff.Retry(op, policy)
}
