// Package cache provides the rueidis-backed cache layer (spec.md §9
// Configuration; generalized from the teacher's internal/redis.CacheService):
// an embedding cache keyed by content hash, an LLM shape-result cache keyed
// by prompt hash, and a per-(sub-question, document) hybrid search-result
// cache, each with its own TTL.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"

	"github.com/hsn0918/filingtree/internal/config"
)

const (
	embeddingTTL    = 24 * time.Hour
	llmShapeTTL     = 6 * time.Hour
	searchResultTTL = 30 * time.Minute
)

// Cache wraps a rueidis client with the three cache surfaces the filing-tree
// pipeline needs.
type Cache struct {
	client rueidis.Client
}

// New opens a rueidis connection to the configured Redis instance.
func New(cfg config.RedisConfig) (*Cache, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: create client: %w", err)
	}
	return &Cache{client: client}, nil
}

// Close releases the underlying connection.
func (c *Cache) Close() {
	c.client.Close()
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) setJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: marshal: %w", err)
	}
	cmd := c.client.B().Set().Key(key).Value(string(data)).ExSeconds(int64(ttl.Seconds())).Build()
	return c.client.Do(ctx, cmd).Error()
}

// getJSON reports found=false without error on a cache miss.
func (c *Cache) getJSON(ctx context.Context, key string, dest any) (found bool, err error) {
	cmd := c.client.B().Get().Key(key).Build()
	result := c.client.Do(ctx, cmd)
	if result.Error() != nil {
		if rueidis.IsRedisNil(result.Error()) {
			return false, nil
		}
		return false, result.Error()
	}
	data, err := result.ToString()
	if err != nil {
		return false, err
	}
	if err := sonic.Unmarshal([]byte(data), dest); err != nil {
		return false, fmt.Errorf("cache: unmarshal: %w", err)
	}
	return true, nil
}

// GetEmbedding returns a cached embedding vector for exact text content.
func (c *Cache) GetEmbedding(ctx context.Context, text string) ([]float32, bool, error) {
	var vec []float32
	found, err := c.getJSON(ctx, "embedding:"+hashText(text), &vec)
	return vec, found, err
}

// PutEmbedding caches an embedding vector for exact text content.
func (c *Cache) PutEmbedding(ctx context.Context, text string, vec []float32) error {
	return c.setJSON(ctx, "embedding:"+hashText(text), vec, embeddingTTL)
}

// GetLLMShape returns a cached structured-output result for a rendered
// prompt, keyed by the prompt text plus a caller-chosen namespace (e.g.
// the prompt type) so identical text under different contracts doesn't
// collide.
func (c *Cache) GetLLMShape(ctx context.Context, namespace, prompt string, dest any) (bool, error) {
	return c.getJSON(ctx, fmt.Sprintf("llmshape:%s:%s", namespace, hashText(prompt)), dest)
}

// PutLLMShape caches a structured-output result.
func (c *Cache) PutLLMShape(ctx context.Context, namespace, prompt string, value any) error {
	return c.setJSON(ctx, fmt.Sprintf("llmshape:%s:%s", namespace, hashText(prompt)), value, llmShapeTTL)
}

// GetSearchResult returns a cached hybrid search result for one
// (sub-question, document) pair (spec.md §4.5 step 3).
func (c *Cache) GetSearchResult(ctx context.Context, subQuestion, docID string, dest any) (bool, error) {
	return c.getJSON(ctx, fmt.Sprintf("search:%s:%s", docID, hashText(subQuestion)), dest)
}

// PutSearchResult caches a hybrid search result for one
// (sub-question, document) pair.
func (c *Cache) PutSearchResult(ctx context.Context, subQuestion, docID string, value any) error {
	return c.setJSON(ctx, fmt.Sprintf("search:%s:%s", docID, hashText(subQuestion)), value, searchResultTTL)
}
