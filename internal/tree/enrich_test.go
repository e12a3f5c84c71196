package tree_test

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
	"github.com/hsn0918/filingtree/internal/tree"
)

func newTestEnricher(t *testing.T, responses func(callIndex int) string) *tree.Enricher {
	t.Helper()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		text := responses(calls)
		calls++
		_ = json.NewEncoder(w).Encode(map[string]string{"text": text})
	}))
	t.Cleanup(srv.Close)

	cfg := config.LLMConfig{Model: "test-model", BaseURL: srv.URL, APIKey: "key", Retries: 1}
	adapter := llm.New(cfg)
	pm := prompts.NewManager()
	treeCfg := config.TreeConfig{GenerateDocumentDescription: true}

	return tree.NewEnricher(adapter, pm, treeCfg)
}

func TestEnricher_SummarizesLeafAndInternalNodes(t *testing.T) {
	responseText := "Revenue increased significantly across all reportable operating segments this fiscal year."
	enricher := newTestEnricher(t, func(int) string { return responseText })

	root := &tree.Node{
		NodeID: "0000", Title: "Financial Results", StartIndex: 1, EndIndex: 10,
		Nodes: []*tree.Node{
			{NodeID: "0001", Title: "Revenue", StartIndex: 1, EndIndex: 5, Text: "detailed revenue discussion text here"},
			{NodeID: "0002", Title: "Expenses", StartIndex: 6, EndIndex: 10, Text: "detailed expense discussion text here"},
		},
	}

	enricher.Enrich(context.Background(), []*tree.Node{root})

	assert.Equal(t, responseText, root.Nodes[0].Summary)
	assert.Equal(t, responseText, root.Nodes[1].Summary)
	assert.Equal(t, responseText, root.Summary)
}

func TestEnricher_DegradesToTitleOnPersistentBoilerplate(t *testing.T) {
	enricher := newTestEnricher(t, func(int) string { return "" })

	n := &tree.Node{NodeID: "0001", Title: "Risk Factors", StartIndex: 1, EndIndex: 2, Text: "some risk discussion"}
	enricher.Enrich(context.Background(), []*tree.Node{n})

	assert.Equal(t, "Risk Factors", n.Summary)
}

func TestEnricher_SanitizesMarkdownArtifacts(t *testing.T) {
	enricher := newTestEnricher(t, func(int) string {
		return "**Revenue** grew due to [strong demand](https://example.com) across segments, a clear positive signal."
	})

	n := &tree.Node{NodeID: "0001", Title: "Revenue", StartIndex: 1, EndIndex: 2, Text: "revenue discussion text"}
	enricher.Enrich(context.Background(), []*tree.Node{n})

	require.NotContains(t, n.Summary, "**")
	require.NotContains(t, n.Summary, "[")
	assert.Contains(t, n.Summary, "Revenue grew due to strong demand")
}

func TestEnricher_GenerateDocumentDescription(t *testing.T) {
	descriptionText := "This filing covers a diversified technology company's full fiscal year results."
	enricher := newTestEnricher(t, func(int) string { return descriptionText })

	root := &tree.Node{NodeID: "0000", Title: "Overview", Summary: "Strong overall performance."}
	got := enricher.GenerateDocumentDescription(context.Background(), []*tree.Node{root})

	assert.Equal(t, descriptionText, got)
}

func TestEnricher_GenerateDocumentDescription_DisabledReturnsEmpty(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "should not be called"})
	}))
	t.Cleanup(srv.Close)

	cfg := config.LLMConfig{Model: "test-model", BaseURL: srv.URL, APIKey: "key", Retries: 1}
	adapter := llm.New(cfg)
	pm := prompts.NewManager()
	enricher := tree.NewEnricher(adapter, pm, config.TreeConfig{GenerateDocumentDescription: false})

	root := &tree.Node{NodeID: "0000", Title: "Overview", Summary: "Strong overall performance."}
	got := enricher.GenerateDocumentDescription(context.Background(), []*tree.Node{root})

	assert.Equal(t, "", got)
	assert.Equal(t, 0, calls)
}
