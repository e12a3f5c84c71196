package retrieval_test

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
	"github.com/hsn0918/filingtree/internal/retrieval"
	"github.com/hsn0918/filingtree/internal/store"
)

type fakeChunkLoader struct {
	chunksByDoc map[string][]store.Chunk
}

func (f *fakeChunkLoader) LoadChunkEmbeddings(ctx context.Context, docID string, dim int) ([]store.Chunk, error) {
	return f.chunksByDoc[docID], nil
}

// embedVector maps a word to a one-hot-ish vector over a fixed vocabulary,
// so cosine similarity is 1 for an exact word match and 0 otherwise.
func embedVector(dim int, hotIndex int) []float32 {
	v := make([]float32, dim)
	if hotIndex >= 0 && hotIndex < dim {
		v[hotIndex] = 1
	}
	return v
}

func newTestEmbeddingServerForValueSearch(t *testing.T, dim int, vocab map[string]int) *embedding.Adapter {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		vectors := make([][]float32, len(req.Input))
		for i, text := range req.Input {
			vectors[i] = embedVector(dim, vocab[text])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": vectors})
	}))
	t.Cleanup(srv.Close)

	return embedding.New(config.EmbeddingConfig{Model: "test", URL: srv.URL, Dim: dim, BatchSize: 8})
}

// TestValueSearch_MonotonicityForExactMatch covers the universal invariant
// (spec.md §8): for a query exactly matching one chunk's content verbatim,
// that chunk's node MUST appear in top-K.
func TestValueSearch_MonotonicityForExactMatch(t *testing.T) {
	const dim = 4
	vocab := map[string]int{"revenue": 0, "unrelated filler text": 1, "other filler": 2}

	loader := &fakeChunkLoader{chunksByDoc: map[string][]store.Chunk{
		"doc-1": {
			{NodeID: "0001", Embedding: embedVector(dim, 0)},
			{NodeID: "0002", Embedding: embedVector(dim, 1)},
			{NodeID: "0003", Embedding: embedVector(dim, 2)},
		},
	}}

	embedder := newTestEmbeddingServerForValueSearch(t, dim, vocab)
	vs := retrieval.NewValueSearch(embedder, loader, 2)

	results, err := vs.Search(context.Background(), "revenue", "doc-1")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "0001", results[0].NodeID)
}

// TestValueSearch_CrossYearDocumentIsolation covers spec.md §8 scenario 4:
// each document's "revenue" chunk ranks #1 for its own document,
// independent of the other documents in the corpus.
func TestValueSearch_CrossYearDocumentIsolation(t *testing.T) {
	const dim = 4
	vocab := map[string]int{"revenue": 0, "filler": 1}

	loader := &fakeChunkLoader{chunksByDoc: map[string][]store.Chunk{
		"AAPL-2021": {{NodeID: "n-2021", Embedding: embedVector(dim, 0)}, {NodeID: "n-2021-b", Embedding: embedVector(dim, 1)}},
		"AAPL-2022": {{NodeID: "n-2022", Embedding: embedVector(dim, 0)}, {NodeID: "n-2022-b", Embedding: embedVector(dim, 1)}},
		"AAPL-2023": {{NodeID: "n-2023", Embedding: embedVector(dim, 0)}, {NodeID: "n-2023-b", Embedding: embedVector(dim, 1)}},
	}}

	embedder := newTestEmbeddingServerForValueSearch(t, dim, vocab)
	vs := retrieval.NewValueSearch(embedder, loader, 1)

	for docID, expectedTop := range map[string]string{
		"AAPL-2021": "n-2021",
		"AAPL-2022": "n-2022",
		"AAPL-2023": "n-2023",
	} {
		results, err := vs.Search(context.Background(), "revenue", docID)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, expectedTop, results[0].NodeID)
	}
}
