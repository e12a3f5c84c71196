package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsn0918/filingtree/internal/config"
	"github.com/hsn0918/filingtree/internal/embedding"
	"github.com/hsn0918/filingtree/internal/tree"
)

func newTestEmbedder(t *testing.T, dim int) *embedding.Adapter {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		vectors := make([][]float32, len(req.Input))
		for i := range vectors {
			v := make([]float32, dim)
			for j := range v {
				v[j] = float32(i)
			}
			vectors[i] = v
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": vectors})
	}))
	t.Cleanup(srv.Close)

	return embedding.New(config.EmbeddingConfig{Model: "test-embed", URL: srv.URL, Dim: dim, BatchSize: 2})
}

func TestOrchestrator_EmbedChunksBatchesAndAttachesVectors(t *testing.T) {
	embedder := newTestEmbedder(t, 4)
	o := &Orchestrator{embedder: embedder, batchSize: 2}

	results := []tree.ChunkResult{
		{NodeID: "0001", ChunkIndex: 0, Content: "alpha", TokenCount: 3, StartPage: 1, EndPage: 1},
		{NodeID: "0001", ChunkIndex: 1, Content: "beta", TokenCount: 4, StartPage: 1, EndPage: 2},
		{NodeID: "0002", ChunkIndex: 0, Content: "gamma", TokenCount: 5, StartPage: 2, EndPage: 2},
	}

	chunks, totalTokens, err := o.embedChunks(context.Background(), "doc-1", results)
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	assert.Equal(t, 12, totalTokens)
	for _, c := range chunks {
		assert.Equal(t, "doc-1", c.DocID)
		require.Len(t, c.Embedding, 4)
	}
}
