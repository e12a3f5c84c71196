package tree_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsn0918/filingtree/internal/config"
	"github.com/hsn0918/filingtree/internal/llm"
	"github.com/hsn0918/filingtree/internal/prompts"
	"github.com/hsn0918/filingtree/internal/tokenizer"
	"github.com/hsn0918/filingtree/internal/tree"
)

type chatRequest struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func userContent(req chatRequest) string {
	for _, m := range req.Messages {
		if m.Role == "user" {
			return m.Content
		}
	}
	return ""
}

func newTestBuilder(t *testing.T, handler func(req chatRequest) string) *tree.Builder {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		text := handler(req)
		_ = json.NewEncoder(w).Encode(map[string]string{"text": text})
	}))
	t.Cleanup(srv.Close)

	cfg := config.LLMConfig{Model: "test-model", BaseURL: srv.URL, APIKey: "key", Retries: 1}
	adapter := llm.New(cfg)

	tok, err := tokenizer.New()
	require.NoError(t, err)

	pm := prompts.NewManager()

	treeCfg := config.TreeConfig{
		TOCCheckPages:     20,
		MaxPagesPerNode:   10,
		MaxTokensPerNode:  20000,
		AccuracyThreshold: 0.6,
	}

	return tree.NewBuilder(adapter, tok, pm, treeCfg)
}

func syntheticPages(n int) []tree.Page {
	pages := make([]tree.Page, n)
	for i := 0; i < n; i++ {
		pages[i] = tree.Page{Number: i + 1, Text: fmt.Sprintf("This is the body text of page %d discussing routine filing content.", i+1)}
	}
	return pages
}

func TestBuilder_HappyPathThreeRootSections(t *testing.T) {
	builder := newTestBuilder(t, func(req chatRequest) string {
		content := userContent(req)
		switch {
		case strings.Contains(content, "table of contents"):
			return `{"has_toc": false}`
		case strings.Contains(content, "Identify section starts"):
			return `{"sections": [
				{"title": "Part 1", "start_page": 1},
				{"title": "Part 2", "start_page": 11},
				{"title": "Part 3", "start_page": 21}
			]}`
		case strings.Contains(content, "Assign hierarchy levels"):
			return `{"levels": [
				{"title": "Part 1", "start_page": 1, "level": 1},
				{"title": "Part 2", "start_page": 11, "level": 1},
				{"title": "Part 3", "start_page": 21, "level": 1}
			]}`
		default:
			t.Fatalf("unexpected LLM call: %s", content)
			return ""
		}
	})

	roots, warnings, err := builder.Build(context.Background(), syntheticPages(30))
	require.NoError(t, err)
	assert.Empty(t, warnings)

	require.Len(t, roots, 3)
	assert.Equal(t, [2]int{1, 10}, [2]int{roots[0].StartIndex, roots[0].EndIndex})
	assert.Equal(t, [2]int{11, 20}, [2]int{roots[1].StartIndex, roots[1].EndIndex})
	assert.Equal(t, [2]int{21, 30}, [2]int{roots[2].StartIndex, roots[2].EndIndex})

	assert.Equal(t, "0000", roots[0].NodeID)
	assert.Equal(t, "0001", roots[1].NodeID)
	assert.Equal(t, "0002", roots[2].NodeID)
}

func TestBuilder_OversizedLeafDegradesOnRepeatedShapeFailure(t *testing.T) {
	subdivideAttempts := 0
	builder := newTestBuilder(t, func(req chatRequest) string {
		content := userContent(req)
		switch {
		case strings.Contains(content, "table of contents"):
			return `{"has_toc": false}`
		case strings.Contains(content, "Identify section starts"):
			return `{"sections": [{"title": "Big Section", "start_page": 1}]}`
		case strings.Contains(content, "Assign hierarchy levels"):
			return `{"levels": [{"title": "Big Section", "start_page": 1, "level": 1}]}`
		case strings.Contains(content, "Propose child sections"):
			subdivideAttempts++
			return "not valid json"
		default:
			t.Fatalf("unexpected LLM call: %s", content)
			return ""
		}
	})

	roots, warnings, err := builder.Build(context.Background(), syntheticPages(40))
	require.NoError(t, err)

	require.Len(t, roots, 1)
	assert.True(t, roots[0].IsLeaf())
	assert.NotEmpty(t, roots[0].Warnings)
	assert.NotEmpty(t, warnings)
	assert.Greater(t, subdivideAttempts, 0)
}
