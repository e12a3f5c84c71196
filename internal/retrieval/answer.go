package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/hsn0918/filingtree/internal/llm"
	"github.com/hsn0918/filingtree/internal/prompts"
	"github.com/hsn0918/filingtree/internal/store"
	"github.com/hsn0918/filingtree/internal/tokenizer"
	"github.com/hsn0918/filingtree/internal/tree"
)

// ContextBlock is one packed unit of retrieved context (spec.md §4.10
// Inputs).
type ContextBlock struct {
	Company    string
	Ticker     string
	FiscalYear int
	NodeID     string
	Title      string
	StartIndex int
	EndIndex   int
	Text       string
}

// Citation is a structured citation emitted alongside the prose answer
// (spec.md §4.10 prompt contract).
type Citation struct {
	Company        string `json:"company"`
	Ticker         string `json:"ticker"`
	FiscalYear     int    `json:"fiscal_year"`
	NodeID         string `json:"node_id"`
	SectionPath    string `json:"section_path"`
	Page           int    `json:"page"`
	ContentPreview string `json:"content_preview"`
}

// ConfidenceLabel is the Answer Generator's confidence classification
// (spec.md §4.10 "Confidence labelling").
type ConfidenceLabel string

const (
	ConfidenceHigh   ConfidenceLabel = "HIGH"
	ConfidenceMedium ConfidenceLabel = "MEDIUM"
	ConfidenceLow    ConfidenceLabel = "LOW"
)

// Confidence reports the Answer Generator's confidence in the answer it
// produced, with the raw counts that justify the label.
type Confidence struct {
	Label           ConfidenceLabel
	AnsweredByFacts int // number of sub-questions with >=1 cited claim
	AnsweredByChunks int // number of distinct cited source nodes
	Unanswered      int
}

// Answer is the fully assembled response to a query.
type Answer struct {
	Text                   string
	Confidence             Confidence
	Citations              []Citation
	UnansweredSubQuestions []string
	ConflictsDetected      []string
}

type answerCitationBlock struct {
	Citations            []Citation `json:"citations"`
	AnsweredSubQuestions []int      `json:"answered_sub_questions"`
}

// Generator packs context under a token budget and synthesizes a cited
// answer (spec.md §4.10).
type Generator struct {
	llm     *llm.Adapter
	prompts *prompts.Manager
	tok     *tokenizer.Tokenizer
	budget  int
}

// NewGenerator constructs an Answer Generator.
func NewGenerator(llmAdapter *llm.Adapter, pm *prompts.Manager, tok *tokenizer.Tokenizer, contextBudgetTokens int) *Generator {
	return &Generator{llm: llmAdapter, prompts: pm, tok: tok, budget: contextBudgetTokens}
}

// PackContext follows the merged hit order, fetching full node text from
// each document's node_map, appending whole nodes until the cumulative
// tokenized size reaches the context budget. A node is either included
// entirely or skipped — no partial-node truncation (spec.md §4.5 step 4).
func (g *Generator) PackContext(hits []MergedHit, docs map[string]store.Document, nodeMaps map[string]map[string]*tree.Node) []ContextBlock {
	var blocks []ContextBlock
	used := 0

	for _, hit := range hits {
		nodeMap, ok := nodeMaps[hit.DocID]
		if !ok {
			continue
		}
		n, ok := nodeMap[hit.NodeID]
		if !ok || n.Text == "" {
			continue
		}

		tokens := g.tok.Count(n.Text)
		if used+tokens > g.budget {
			continue
		}

		doc := docs[hit.DocID]
		blocks = append(blocks, ContextBlock{
			Company:    doc.Company,
			Ticker:     doc.Ticker,
			FiscalYear: doc.FiscalYear,
			NodeID:     n.NodeID,
			Title:      n.Title,
			StartIndex: n.StartIndex,
			EndIndex:   n.EndIndex,
			Text:       n.Text,
		})
		used += tokens
	}

	return blocks
}

// Generate synthesizes the cited answer from packed context and labels
// confidence (spec.md §4.10).
func (g *Generator) Generate(ctx context.Context, query string, subQuestions []SubQuestion, blocks []ContextBlock) (*Answer, error) {
	if len(blocks) == 0 {
		return &Answer{
			Text:       "Insufficient context was retrieved to answer this query.",
			Confidence: Confidence{Label: ConfidenceLow},
			UnansweredSubQuestions: subQuestionTexts(subQuestions),
		}, nil
	}

	rendered, err := g.prompts.RenderUser(prompts.PromptTypeAnswer, map[string]string{
		"query":         query,
		"sub_questions": renderSubQuestions(subQuestions),
		"context":       renderContextBlocks(blocks),
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: render answer prompt: %w", err)
	}
	sys, err := g.prompts.Get(prompts.PromptTypeAnswer)
	if err != nil {
		return nil, fmt.Errorf("retrieval: answer prompt: %w", err)
	}

	text, err := g.llm.Complete(ctx, []llm.Message{
		{Role: "system", Content: sys.System},
		{Role: "user", Content: rendered},
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: answer generation: %w", err)
	}

	citations, answeredIndices := extractCitations(text)

	confidence, unanswered := labelConfidence(subQuestions, answeredIndices, citations)

	return &Answer{
		Text:                   text,
		Confidence:             confidence,
		Citations:              citations,
		UnansweredSubQuestions: unanswered,
	}, nil
}

// extractCitations pulls the trailing JSON citations block out of the
// LLM's prose answer (spec.md §4.10 prompt contract), along with the
// 1-based indices of sub-questions the model reports as answered.
func extractCitations(text string) ([]Citation, []int) {
	// Walk back over '{' positions: the last one usually opens a nested
	// citation object, so keep going until a suffix parses as the block.
	for end := len(text); ; {
		start := strings.LastIndex(text[:end], "{")
		if start < 0 {
			return nil, nil
		}
		var block answerCitationBlock
		if err := sonic.UnmarshalString(text[start:], &block); err == nil &&
			(block.Citations != nil || block.AnsweredSubQuestions != nil) {
			return block.Citations, block.AnsweredSubQuestions
		}
		end = start
	}
}

// labelConfidence applies spec.md §4.10's confidence thresholds using the
// LLM-reported answered_sub_questions indices and the distinct cited
// source nodes.
func labelConfidence(subQuestions []SubQuestion, answeredIndices []int, citations []Citation) (Confidence, []string) {
	distinctNodes := make(map[string]bool, len(citations))
	for _, c := range citations {
		distinctNodes[c.NodeID] = true
	}

	answered := make(map[int]bool, len(answeredIndices))
	for _, idx := range answeredIndices {
		answered[idx] = true
	}

	var unanswered []string
	for i, sq := range subQuestions {
		if !answered[i+1] {
			unanswered = append(unanswered, sq.Text)
		}
	}
	answeredCount := len(subQuestions) - len(unanswered)

	label := ConfidenceLow
	switch {
	case len(subQuestions) > 0 && answeredCount == len(subQuestions) && len(distinctNodes) >= 3:
		label = ConfidenceHigh
	case len(subQuestions) > 0 && float64(answeredCount)/float64(len(subQuestions)) > 0.5 && len(distinctNodes) >= 1:
		label = ConfidenceMedium
	}

	return Confidence{
		Label:            label,
		AnsweredByFacts:  answeredCount,
		AnsweredByChunks: len(distinctNodes),
		Unanswered:       len(unanswered),
	}, unanswered
}

func subQuestionTexts(subs []SubQuestion) []string {
	out := make([]string, len(subs))
	for i, s := range subs {
		out[i] = s.Text
	}
	return out
}

func renderSubQuestions(subs []SubQuestion) string {
	var sb strings.Builder
	for i, s := range subs {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, s.Text)
	}
	return sb.String()
}

func renderContextBlocks(blocks []ContextBlock) string {
	var sb strings.Builder
	for _, b := range blocks {
		fmt.Fprintf(&sb, "[%s, %d, p%d-%d] %s\n%s\n\n", b.Company, b.FiscalYear, b.StartIndex, b.EndIndex, b.Title, b.Text)
	}
	return sb.String()
}
