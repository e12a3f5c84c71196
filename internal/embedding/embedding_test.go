package embedding_test

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
)

func newTestAdapter(t *testing.T, dim int, handler http.HandlerFunc) (*embedding.Adapter, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	cfg := config.EmbeddingConfig{
		Model:     "test-model",
		URL:       srv.URL,
		Dim:       dim,
		BatchSize: 32,
	}
	return embedding.New(cfg), srv
}

func TestAdapter_Embed_Success(t *testing.T) {
	adapter, srv := newTestAdapter(t, 3, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string][][]float32{
			"embeddings": {{0.1, 0.2, 0.3}, {0.4, 0.5, 0.6}},
		})
	})
	defer srv.Close()

	vecs, err := adapter.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vecs[0])
}

func TestAdapter_Embed_EmptyBatch(t *testing.T) {
	adapter, srv := newTestAdapter(t, 3, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not call service for empty batch")
	})
	defer srv.Close()

	vecs, err := adapter.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestAdapter_Embed_DimensionMismatch(t *testing.T) {
	adapter, srv := newTestAdapter(t, 3, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string][][]float32{
			"embeddings": {{0.1, 0.2}},
		})
	})
	defer srv.Close()

	_, err := adapter.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, embedding.ErrDimensionMismatch)
}

func TestAdapter_Embed_TransientFails(t *testing.T) {
	adapter, srv := newTestAdapter(t, 3, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	defer srv.Close()

	_, err := adapter.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, embedding.ErrTransient)
}
