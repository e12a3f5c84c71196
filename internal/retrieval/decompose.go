// Package retrieval implements the Retrieval Orchestrator and its
// component engines (spec.md §4.5–§4.10): query decomposition, document
// selection, hybrid per-document search, merge, context packing, and
// cited-answer synthesis.
package retrieval

import (
	"context"

	"go.uber.org/zap"

	"github.com/hsn0918/filingtree/internal/llm"
	"github.com/hsn0918/filingtree/internal/logger"
	"github.com/hsn0918/filingtree/internal/prompts"
)

// SubQuestion is one atomic unit of a decomposed query (spec.md §4.5 step 1).
type SubQuestion struct {
	Text          string
	TargetCompany string
	TargetYear    int
}

type decomposeEntry struct {
	Text          string `json:"text"`
	TargetCompany string `json:"target_company"`
	TargetYear    int    `json:"target_year"`
}

type decomposeResult struct {
	SubQuestions []decomposeEntry `json:"sub_questions"`
}

// Decomposer splits a query into atomic sub-questions.
type Decomposer struct {
	llm     *llm.Adapter
	prompts *prompts.Manager
}

// NewDecomposer constructs a Decomposer.
func NewDecomposer(llmAdapter *llm.Adapter, pm *prompts.Manager) *Decomposer {
	return &Decomposer{llm: llmAdapter, prompts: pm}
}

// Decompose splits query into sub-questions. On any shape-validation
// failure the query is treated as a single atomic sub-question (spec.md
// §4.5 step 1, §7 "caller decides" for non-critical shape errors).
func (d *Decomposer) Decompose(ctx context.Context, query string) []SubQuestion {
	rendered, err := d.prompts.RenderUser(prompts.PromptTypeDecompose, map[string]string{"query": query})
	if err != nil {
		return []SubQuestion{{Text: query}}
	}
	sys, err := d.prompts.Get(prompts.PromptTypeDecompose)
	if err != nil {
		return []SubQuestion{{Text: query}}
	}

	var result decomposeResult
	err = d.llm.CompleteShape(ctx, string(prompts.PromptTypeDecompose), []llm.Message{
		{Role: "system", Content: sys.System},
		{Role: "user", Content: rendered},
	}, &result)
	if err != nil || len(result.SubQuestions) == 0 {
		logger.Get().Warn("retrieval: query decomposition degraded to single sub-question", zap.Error(err))
		return []SubQuestion{{Text: query}}
	}

	subs := make([]SubQuestion, 0, len(result.SubQuestions))
	for _, e := range result.SubQuestions {
		if e.Text == "" {
			continue
		}
		subs = append(subs, SubQuestion{Text: e.Text, TargetCompany: e.TargetCompany, TargetYear: e.TargetYear})
	}
	if len(subs) == 0 {
		return []SubQuestion{{Text: query}}
	}
	return subs
}
