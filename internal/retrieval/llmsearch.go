package retrieval

import (
	"context"

	"go.uber.org/zap"

	"github.com/hsn0918/filingtree/internal/llm"
	"github.com/hsn0918/filingtree/internal/logger"
	"github.com/hsn0918/filingtree/internal/prompts"
	"github.com/hsn0918/filingtree/internal/tree"
)

type llmSearchResult struct {
	Thinking string   `json:"thinking"`
	NodeList []string `json:"node_list"`
}

// LLMSearch reasons over a document's text-stripped tree to return an
// ordered node-ID list (spec.md §4.7).
type LLMSearch struct {
	llm     *llm.Adapter
	prompts *prompts.Manager
}

// NewLLMSearch constructs an LLMSearch engine.
func NewLLMSearch(llmAdapter *llm.Adapter, pm *prompts.Manager) *LLMSearch {
	return &LLMSearch{llm: llmAdapter, prompts: pm}
}

// Search asks the LLM which sections of treeNoText likely answer
// subQuestion. Unknown node IDs are dropped with a warning; duplicates are
// deduplicated preserving order. On persistent shape failure, returns an
// empty list rather than failing the query (value search alone still
// runs for this document).
func (s *LLMSearch) Search(ctx context.Context, subQuestion string, roots []*tree.Node, nodeMap map[string]*tree.Node) []string {
	rendered, err := s.prompts.RenderUser(prompts.PromptTypeLLMSearch, map[string]string{
		"sub_question": subQuestion,
		"tree":         renderTreeOutline(roots),
	})
	if err != nil {
		return nil
	}
	sys, err := s.prompts.Get(prompts.PromptTypeLLMSearch)
	if err != nil {
		return nil
	}

	var result llmSearchResult
	err = s.llm.CompleteShape(ctx, string(prompts.PromptTypeLLMSearch), []llm.Message{
		{Role: "system", Content: sys.System},
		{Role: "user", Content: rendered},
	}, &result)
	if err != nil {
		logger.Get().Warn("retrieval: llm search degraded to empty result", zap.Error(err))
		return nil
	}

	seen := make(map[string]bool, len(result.NodeList))
	out := make([]string, 0, len(result.NodeList))
	for _, id := range result.NodeList {
		if seen[id] {
			continue
		}
		if _, ok := nodeMap[id]; !ok {
			logger.Get().Warn("retrieval: llm search returned unknown node id", zap.String("node_id", id))
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// renderTreeOutline renders a tree_no_text forest as a nested, readable
// outline for the LLM-search prompt.
func renderTreeOutline(roots []*tree.Node) string {
	var sb []byte
	var walk func(n *tree.Node, depth int)
	walk = func(n *tree.Node, depth int) {
		for i := 0; i < depth; i++ {
			sb = append(sb, ' ', ' ')
		}
		sb = append(sb, []byte("- ["+n.NodeID+"] "+n.Title)...)
		if n.Summary != "" {
			sb = append(sb, []byte(": "+n.Summary)...)
		}
		sb = append(sb, '\n')
		for _, c := range n.Nodes {
			walk(c, depth+1)
		}
	}
	for _, r := range roots {
		walk(r, 0)
	}
	return string(sb)
}
