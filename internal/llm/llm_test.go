package llm_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsn0918/filingtree/internal/config"
	"github.com/hsn0918/filingtree/internal/llm"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) (*llm.Adapter, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	cfg := config.LLMConfig{
		Model:   "test-model",
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Retries: 1,
	}
	return llm.New(cfg), srv
}

func TestAdapter_Complete_Success(t *testing.T) {
	adapter, srv := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "hello"})
	})
	defer srv.Close()

	text, err := adapter.Complete(context.Background(), []llm.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestAdapter_Complete_TransientThenSuccess(t *testing.T) {
	attempts := 0
	adapter, srv := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "recovered"})
	})
	defer srv.Close()

	text, err := adapter.Complete(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, 2, attempts)
}

func TestAdapter_Complete_TransientExhausted(t *testing.T) {
	adapter, srv := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer srv.Close()

	_, err := adapter.Complete(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrTransient)
}

func TestAdapter_Complete_Capacity(t *testing.T) {
	adapter, srv := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	defer srv.Close()

	_, err := adapter.Complete(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrCapacity)
}

func TestAdapter_CompleteShape_Success(t *testing.T) {
	adapter, srv := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"text": `{"has_toc":true}`})
	})
	defer srv.Close()

	var shape struct {
		HasTOC bool `json:"has_toc"`
	}
	err := adapter.CompleteShape(context.Background(), "toc_detection", nil, &shape)
	require.NoError(t, err)
	assert.True(t, shape.HasTOC)
}

func TestAdapter_CompleteShape_InvalidAfterRetries(t *testing.T) {
	attempts := 0
	adapter, srv := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "not json"})
	})
	defer srv.Close()

	var shape struct {
		HasTOC bool `json:"has_toc"`
	}
	err := adapter.CompleteShape(context.Background(), "toc_detection", nil, &shape)
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrShapeInvalid)
	assert.Equal(t, 3, attempts)
}
