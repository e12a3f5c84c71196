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
	"github.com/hsn0918/filingtree/internal/llm"
	"github.com/hsn0918/filingtree/internal/prompts"
	"github.com/hsn0918/filingtree/internal/retrieval"
)

func newTestDecomposer(t *testing.T, responseText string) *retrieval.Decomposer {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"text": responseText})
	}))
	t.Cleanup(srv.Close)

	cfg := config.LLMConfig{Model: "test-model", BaseURL: srv.URL, APIKey: "key", Retries: 1}
	return retrieval.NewDecomposer(llm.New(cfg), prompts.NewManager())
}

func TestDecompose_SplitsIntoTaggedSubQuestions(t *testing.T) {
	d := newTestDecomposer(t, `{"sub_questions": [
		{"text": "What was AAPL revenue in 2022?", "target_company": "AAPL", "target_year": 2022},
		{"text": "What are the main risk factors?"}
	]}`)

	subs := d.Decompose(context.Background(), "Compare AAPL 2022 revenue to its risk factors")

	require.Len(t, subs, 2)
	assert.Equal(t, "AAPL", subs[0].TargetCompany)
	assert.Equal(t, 2022, subs[0].TargetYear)
	assert.Empty(t, subs[1].TargetCompany)
}

func TestDecompose_ShapeFailureDegradesToSingleAtomicSubQuestion(t *testing.T) {
	d := newTestDecomposer(t, "not valid json")

	subs := d.Decompose(context.Background(), "original query text")

	require.Len(t, subs, 1)
	assert.Equal(t, "original query text", subs[0].Text)
}
