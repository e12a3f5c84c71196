// Package embedding provides the Embedding Adapter (spec.md §4.9): batched
// vector embedding of text fragments at a fixed, configured dimension.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hsn0918/filingtree/internal/config"
	"github.com/hsn0918/filingtree/internal/httpclient"
)

const (
	serviceName    = "embedding"
	defaultTimeout = 120 * time.Second
	maxRetries     = 3
)

// Escalation-tier sentinel errors (spec.md §4.9, §7).
var (
	// ErrTransient marks a network failure exhausted after retry.
	ErrTransient = errors.New("embedding: transient failure")
	// ErrDimensionMismatch marks a response whose vectors don't match the
	// configured dimension. Fatal: never retried.
	ErrDimensionMismatch = errors.New("embedding: dimension mismatch")
)

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// embeddingCache is the subset of cache.Cache the Embedding Adapter needs,
// kept as an interface here so this package doesn't import internal/cache
// (internal/app wires the concrete *cache.Cache in).
type embeddingCache interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, bool, error)
	PutEmbedding(ctx context.Context, text string, vec []float32) error
}

// Adapter embeds batches of text fragments via the configured HTTP
// embedding service.
type Adapter struct {
	client *httpclient.Client
	model  string
	dim    int
	cache  embeddingCache
}

// New constructs an Adapter from embedding configuration.
func New(cfg config.EmbeddingConfig) *Adapter {
	return &Adapter{
		client: httpclient.New(serviceName, cfg.URL, "", defaultTimeout),
		model:  cfg.Model,
		dim:    cfg.Dim,
	}
}

// WithCache attaches an embedding cache, checked before every network call
// and populated after (spec.md SPEC_FULL.md §9, generalizing the teacher's
// RagServer.generateEmbedding two-tier cache lookup).
func (a *Adapter) WithCache(c embeddingCache) *Adapter {
	a.cache = c
	return a
}

// Dim returns the fixed output dimension declared at configuration time.
func (a *Adapter) Dim() int {
	return a.dim
}

// Embed embeds a batch of text fragments, returning one D-dimensional
// vector per input in order. An empty batch returns an empty result
// without a network call. Cache hits are resolved per-input; only the
// misses are sent to the embedding service.
func (a *Adapter) Embed(ctx context.Context, batch []string) ([][]float32, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	if a.cache == nil {
		return a.embedBatch(ctx, batch)
	}

	out := make([][]float32, len(batch))
	var missIdx []int
	var missText []string
	for i, text := range batch {
		vec, found, err := a.cache.GetEmbedding(ctx, text)
		if err == nil && found {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missText = append(missText, text)
	}

	if len(missText) > 0 {
		vecs, err := a.embedBatch(ctx, missText)
		if err != nil {
			return nil, err
		}
		for i, vec := range vecs {
			out[missIdx[i]] = vec
			_ = a.cache.PutEmbedding(ctx, missText[i], vec)
		}
	}

	return out, nil
}

func (a *Adapter) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	req := embedRequest{Model: a.model, Input: batch}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var resp embedResponse
		statusCode, err := a.client.Post("/api/embed", req, &resp)
		if err != nil {
			if httpclient.IsRetryableStatus(statusCode) {
				lastErr = fmt.Errorf("%w: %v", ErrTransient, err)
				if attempt < maxRetries {
					continue
				}
				return nil, lastErr
			}
			return nil, err
		}

		if len(resp.Embeddings) != len(batch) {
			return nil, fmt.Errorf("%w: requested %d embeddings, got %d", ErrDimensionMismatch, len(batch), len(resp.Embeddings))
		}
		for i, vec := range resp.Embeddings {
			if len(vec) != a.dim {
				return nil, fmt.Errorf("%w: vector %d has dimension %d, want %d", ErrDimensionMismatch, i, len(vec), a.dim)
			}
		}

		return resp.Embeddings, nil
	}

	return nil, lastErr
}
