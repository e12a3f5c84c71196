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
	"github.com/hsn0918/filingtree/internal/tokenizer"
)

func newTestGenerator(t *testing.T, answerText string) *retrieval.Generator {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"text": answerText})
	}))
	t.Cleanup(srv.Close)

	cfg := config.LLMConfig{Model: "test-model", BaseURL: srv.URL, APIKey: "key", Retries: 1}
	adapter := llm.New(cfg)
	pm := prompts.NewManager()
	tok, err := tokenizer.New()
	require.NoError(t, err)

	return retrieval.NewGenerator(adapter, pm, tok, 50000)
}

// TestGenerate_ConfidenceMediumLabel covers spec.md §8 scenario 6: 4
// sub-questions, answer citing 5 distinct nodes across 3 sub-questions ->
// confidence MEDIUM, answered_by_facts=3, answered_by_chunks=5, unanswered=1.
func TestGenerate_ConfidenceMediumLabel(t *testing.T) {
	answerText := `Revenue grew [AAPL, 2023, p10]. Expenses rose [AAPL, 2023, p20].

{"citations": [
  {"company": "AAPL", "ticker": "AAPL", "fiscal_year": 2023, "node_id": "0001", "section_path": "Revenue", "page": 10, "content_preview": "..."},
  {"company": "AAPL", "ticker": "AAPL", "fiscal_year": 2023, "node_id": "0002", "section_path": "Expenses", "page": 20, "content_preview": "..."},
  {"company": "AAPL", "ticker": "AAPL", "fiscal_year": 2023, "node_id": "0003", "section_path": "Risks", "page": 30, "content_preview": "..."},
  {"company": "AAPL", "ticker": "AAPL", "fiscal_year": 2023, "node_id": "0004", "section_path": "Outlook", "page": 40, "content_preview": "..."},
  {"company": "AAPL", "ticker": "AAPL", "fiscal_year": 2023, "node_id": "0005", "section_path": "Liquidity", "page": 50, "content_preview": "..."}
], "answered_sub_questions": [1, 2, 3]}`

	gen := newTestGenerator(t, answerText)
	subQuestions := []retrieval.SubQuestion{
		{Text: "What was revenue?"},
		{Text: "What were expenses?"},
		{Text: "What are the key risks?"},
		{Text: "What is the dividend policy?"},
	}
	blocks := []retrieval.ContextBlock{
		{Company: "AAPL", Ticker: "AAPL", FiscalYear: 2023, NodeID: "0001", Title: "Revenue", StartIndex: 10, EndIndex: 10, Text: "revenue discussion"},
	}

	answer, err := gen.Generate(context.Background(), "How did AAPL perform?", subQuestions, blocks)
	require.NoError(t, err)

	assert.Equal(t, retrieval.ConfidenceMedium, answer.Confidence.Label)
	assert.Equal(t, 3, answer.Confidence.AnsweredByFacts)
	assert.Equal(t, 5, answer.Confidence.AnsweredByChunks)
	assert.Equal(t, 1, answer.Confidence.Unanswered)
	require.Len(t, answer.UnansweredSubQuestions, 1)
	assert.Equal(t, "What is the dividend policy?", answer.UnansweredSubQuestions[0])
}

func TestGenerate_EmptyContextYieldsLowConfidenceInsufficientAnswer(t *testing.T) {
	gen := newTestGenerator(t, "unused")
	subQuestions := []retrieval.SubQuestion{{Text: "anything"}}

	answer, err := gen.Generate(context.Background(), "query", subQuestions, nil)
	require.NoError(t, err)

	assert.Equal(t, retrieval.ConfidenceLow, answer.Confidence.Label)
	assert.Contains(t, answer.Text, "Insufficient context")
	assert.Equal(t, []string{"anything"}, answer.UnansweredSubQuestions)
}
