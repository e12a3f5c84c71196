package tree

import (
	"bytes"
	"context"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/hsn0918/filingtree/internal/config"
	"github.com/hsn0918/filingtree/internal/llm"
	"github.com/hsn0918/filingtree/internal/logger"
	"github.com/hsn0918/filingtree/internal/prompts"
	"go.uber.org/zap"
)

const summaryRetryLimit = 3

// Enricher attaches summaries to a built tree whose text the Builder has
// already attached (spec.md §4.2). TreeNoText below and NodeMap in node.go
// derive the structures retrieval uses.
type Enricher struct {
	llm     *llm.Adapter
	prompts *prompts.Manager
	md      goldmark.Markdown
	cfg     config.TreeConfig
}

// NewEnricher constructs an Enricher.
func NewEnricher(llmAdapter *llm.Adapter, pm *prompts.Manager, cfg config.TreeConfig) *Enricher {
	return &Enricher{llm: llmAdapter, prompts: pm, md: goldmark.New(), cfg: cfg}
}

// Enrich walks roots depth-first, generating a summary for every node
// (leaves from their own text, internal nodes from the concatenation of
// child summaries to cap cost). Node text is left as the Builder set it,
// including the "own prefix" text of internal nodes.
func (e *Enricher) Enrich(ctx context.Context, roots []*Node) {
	for _, root := range roots {
		e.enrichNode(ctx, root)
	}
}

// enrichNode generates a summary for n and every descendant. The builder
// has already attached each node's own-prefix text (spec.md §4.1/§3); the
// enricher only adds summaries on top of it.
func (e *Enricher) enrichNode(ctx context.Context, n *Node) {
	for _, child := range n.Nodes {
		e.enrichNode(ctx, child)
	}

	source := n.Text
	if !n.IsLeaf() {
		source = concatSummaries(n.Nodes)
	}

	n.Summary = e.summarize(ctx, n.Title, source)
}

// GenerateDocumentDescription produces a whole-document description from
// the ordered root-level summaries, when enabled (spec.md §4.2). Returns
// "" when disabled or when there is nothing to summarize from.
func (e *Enricher) GenerateDocumentDescription(ctx context.Context, roots []*Node) string {
	if !e.cfg.GenerateDocumentDescription || len(roots) == 0 {
		return ""
	}

	rendered, err := e.prompts.RenderUser(prompts.PromptTypeDocumentDescription, map[string]string{
		"summaries": concatSummaries(roots),
	})
	if err != nil {
		return ""
	}
	sys, err := e.prompts.Get(prompts.PromptTypeDocumentDescription)
	if err != nil {
		return ""
	}

	text, err := e.llm.Complete(ctx, []llm.Message{
		{Role: "system", Content: sys.System},
		{Role: "user", Content: rendered},
	})
	if err != nil {
		logger.Get().Warn("tree: document description generation failed", zap.Error(err))
		return ""
	}

	return e.sanitize(text)
}

// concatSummaries joins child summaries to form the source text an
// internal node's own summary is generated from.
func concatSummaries(children []*Node) string {
	var sb strings.Builder
	for _, c := range children {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(c.Title)
		sb.WriteString(": ")
		sb.WriteString(c.Summary)
	}
	return sb.String()
}

// summarize generates a content-bearing summary, making up to 3 attempts
// while the output is empty/boilerplate before defaulting to the node title
// (spec.md §4.2).
func (e *Enricher) summarize(ctx context.Context, title, content string) string {
	if strings.TrimSpace(content) == "" {
		return title
	}

	rendered, err := e.prompts.RenderUser(prompts.PromptTypeNodeSummary, map[string]string{
		"title":   title,
		"content": content,
	})
	if err != nil {
		return title
	}
	sys, err := e.prompts.Get(prompts.PromptTypeNodeSummary)
	if err != nil {
		return title
	}

	for attempt := 0; attempt < summaryRetryLimit; attempt++ {
		text, err := e.llm.Complete(ctx, []llm.Message{
			{Role: "system", Content: sys.System},
			{Role: "user", Content: rendered},
		})
		if err != nil {
			logger.Get().Warn("tree: summary generation failed", zap.String("title", title), zap.Error(err))
			continue
		}

		sanitized := e.sanitize(text)
		if isContentBearing(sanitized) {
			return sanitized
		}
	}

	return title
}

// isContentBearing rejects empty or trivially short/boilerplate summaries.
func isContentBearing(s string) bool {
	return len(strings.TrimSpace(s)) >= 20
}

// sanitize strips markdown artifacts from LLM-generated summaries and the
// document description by parsing them as a markdown AST and walking it
// for plain text, so Node.Summary is plain text even when the LLM echoes
// markdown emphasis, links, or headings. Node titles are not passed
// through it.
func (e *Enricher) sanitize(s string) string {
	source := []byte(s)
	reader := text.NewReader(source)
	doc := e.md.Parser().Parse(reader)

	var sb strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindText:
			sb.Write(n.(*ast.Text).Segment.Value(source))
		case ast.KindString:
			sb.Write(n.(*ast.String).Value)
		case ast.KindCodeSpan, ast.KindFencedCodeBlock, ast.KindCodeBlock:
			sb.WriteString(extractRawText(n, source))
		case ast.KindParagraph, ast.KindHeading:
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(whitespaceRegexp.ReplaceAllString(sb.String(), " "))
}

func extractRawText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	if lines := n.Lines(); lines != nil {
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(source))
		}
	}
	return buf.String()
}

// TreeNoText returns the derived "tree_no_text" structure: identical
// topology with Text, StartIndex, and EndIndex stripped (spec.md §3).
func TreeNoText(roots []*Node) []*Node {
	stripped := make([]*Node, 0, len(roots))
	for _, r := range roots {
		stripped = append(stripped, StripText(r))
	}
	return stripped
}
