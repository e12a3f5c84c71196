// Package llm provides the LLM Adapter (spec.md §4.9): single-prompt
// execution with bounded retries, JSON-shape validation, and structured
// error surfacing across three escalation tiers. Each call sends one
// prompt; the adapter has no call that sends several prompts at once.
package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/bytedance/sonic"

	"github.com/hsn0918/filingtree/internal/config"
	"github.com/hsn0918/filingtree/internal/httpclient"
	"github.com/hsn0918/filingtree/internal/logger"
	"go.uber.org/zap"
)

const (
	serviceName       = "llm"
	defaultTimeout    = 120 * time.Second
	shapeRetryLimit   = 3
	backoffBase       = 500 * time.Millisecond
	backoffMax        = 30 * time.Second
)

// Escalation-tier sentinel errors (spec.md §7).
var (
	// ErrTransient marks a network/deadline failure exhausted after retry.
	ErrTransient = errors.New("llm: transient failure")
	// ErrShapeInvalid marks a response that never parsed to the requested
	// shape after shapeRetryLimit attempts. Callers decide whether to
	// degrade or fail depending on whether the calling phase is critical.
	ErrShapeInvalid = errors.New("llm: response did not match requested shape")
	// ErrCapacity marks a rate-limited (429) response.
	ErrCapacity = errors.New("llm: capacity exceeded")
)

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completeRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type completeResponse struct {
	Text string `json:"text"`
}

// shapeCache caches structured-output results so an identical rendered
// prompt under a given namespace never re-calls the LLM.
type shapeCache interface {
	GetLLMShape(ctx context.Context, namespace, prompt string, dest any) (bool, error)
	PutLLMShape(ctx context.Context, namespace, prompt string, value any) error
}

// Adapter executes chat-completion prompts against the configured LLM
// service, retrying transient and capacity failures with backoff.
type Adapter struct {
	client  *httpclient.Client
	model   string
	retries int
	cache   shapeCache
}

// New constructs an Adapter from LLM configuration.
func New(cfg config.LLMConfig) *Adapter {
	return &Adapter{
		client:  httpclient.New(serviceName, cfg.BaseURL, cfg.APIKey, defaultTimeout),
		model:   cfg.Model,
		retries: cfg.Retries,
	}
}

// WithCache attaches a shape-result cache to the adapter and returns it for
// chaining, matching embedding.Adapter's WithCache.
func (a *Adapter) WithCache(c shapeCache) *Adapter {
	a.cache = c
	return a
}

// Complete runs a single prompt and returns the raw text response. It
// retries transient and capacity errors up to the configured retry bound
// with exponential backoff and jitter.
func (a *Adapter) Complete(ctx context.Context, messages []Message) (string, error) {
	req := completeRequest{Model: a.model, Messages: messages}

	var lastErr error
	for attempt := 0; attempt <= a.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		var resp completeResponse
		statusCode, err := a.client.Post("/chat/completions", req, &resp)
		if err == nil {
			return resp.Text, nil
		}

		switch {
		case httpclient.IsCapacityStatus(statusCode):
			lastErr = fmt.Errorf("%w: %v", ErrCapacity, err)
		case httpclient.IsRetryableStatus(statusCode):
			lastErr = fmt.Errorf("%w: %v", ErrTransient, err)
		default:
			return "", err
		}

		if attempt == a.retries {
			break
		}
		logger.Get().Warn("llm: retrying after failure",
			zap.Int("attempt", attempt+1),
			zap.Int("status_code", statusCode),
			zap.Error(err))
		sleepWithBackoff(ctx, attempt)
	}

	return "", lastErr
}

// CompleteShape runs a prompt expecting a JSON response matching target's
// shape. namespace scopes the cache (typically the caller's prompt type) so
// identical rendered text under different contracts doesn't collide. On
// parse failure it re-prompts, making at most shapeRetryLimit attempts in
// all before returning ErrShapeInvalid.
func (a *Adapter) CompleteShape(ctx context.Context, namespace string, messages []Message, target any) error {
	cacheKey := lastUserContent(messages)
	if a.cache != nil && cacheKey != "" {
		found, err := a.cache.GetLLMShape(ctx, namespace, cacheKey, target)
		if err != nil {
			logger.Get().Warn("llm: shape cache read failed", zap.String("namespace", namespace), zap.Error(err))
		} else if found {
			return nil
		}
	}

	var lastErr error
	for attempt := 0; attempt < shapeRetryLimit; attempt++ {
		text, err := a.Complete(ctx, messages)
		if err != nil {
			return err
		}

		if err := sonic.UnmarshalString(text, target); err != nil {
			lastErr = err
			logger.Get().Warn("llm: shape validation failed, retrying",
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}

		if a.cache != nil && cacheKey != "" {
			if err := a.cache.PutLLMShape(ctx, namespace, cacheKey, target); err != nil {
				logger.Get().Warn("llm: shape cache write failed", zap.String("namespace", namespace), zap.Error(err))
			}
		}
		return nil
	}

	return fmt.Errorf("%w: %v", ErrShapeInvalid, lastErr)
}

// lastUserContent returns the final user message's content, the rendered
// variable part of the prompt and so the right granularity for a cache key.
func lastUserContent(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

// sleepWithBackoff blocks for an exponentially growing, jittered duration,
// or returns early if ctx is cancelled.
func sleepWithBackoff(ctx context.Context, attempt int) {
	wait := backoffBase * time.Duration(1<<uint(attempt))
	if wait > backoffMax {
		wait = backoffMax
	}
	jitter := time.Duration(rand.Int63n(int64(wait) / 2))
	wait += jitter

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
