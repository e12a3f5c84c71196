package tree

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/hsn0918/filingtree/internal/config"
	"github.com/hsn0918/filingtree/internal/llm"
	"github.com/hsn0918/filingtree/internal/logger"
	"github.com/hsn0918/filingtree/internal/prompts"
	"github.com/hsn0918/filingtree/internal/tokenizer"
	"go.uber.org/zap"
)

// ErrOutliningFailed marks an unrecoverable failure in the critical
// initial-outlining phase (spec.md §4.1, Failure semantics): the document
// must fail with status=failed.
var ErrOutliningFailed = errors.New("tree: initial outlining failed")

// Page is one page of extracted document text, 1-based.
type Page struct {
	Number int
	Text   string
}

// outlineEntry is a flat (title, start_page) pair prior to hierarchy
// assignment (spec.md §4.1.3/4.1.4).
type outlineEntry struct {
	Title      string
	StartPage  int
	Level      int
}

// Builder turns a per-page text array into a validated Node tree
// (spec.md §4.1).
type Builder struct {
	llm     *llm.Adapter
	tok     *tokenizer.Tokenizer
	prompts *prompts.Manager
	cfg     config.TreeConfig
}

// NewBuilder constructs a Builder.
func NewBuilder(llmAdapter *llm.Adapter, tok *tokenizer.Tokenizer, pm *prompts.Manager, cfg config.TreeConfig) *Builder {
	return &Builder{llm: llmAdapter, tok: tok, prompts: pm, cfg: cfg}
}

// Build runs the full Tree Builder pipeline (phases 4.1.1 through 4.1.6)
// over pages and returns the resulting root-level nodes plus any
// non-fatal warnings collected during ToC verification and subdivision.
func (b *Builder) Build(ctx context.Context, pages []Page) ([]*Node, []string, error) {
	var warnings []string

	entries, err := b.outline(ctx, pages, &warnings)
	if err != nil {
		return nil, warnings, err
	}
	if len(entries) == 0 {
		return nil, warnings, fmt.Errorf("%w: no sections identified", ErrOutliningFailed)
	}

	roots := b.flatOutlineToTree(entries, len(pages))

	pageText := make(map[int]string, len(pages))
	for _, p := range pages {
		pageText[p.Number] = p.Text
	}

	for _, root := range roots {
		b.subdivide(ctx, root, pageText, &warnings)
	}

	for _, root := range roots {
		attachPrefixText(root, pageText)
	}

	assignNodeIDs(roots)

	return roots, warnings, nil
}

// attachPrefixText populates a non-leaf node's "own prefix" text: pages
// from the node's own start up to just before its first child's start
// (spec.md §3, §4.2). Child pages are never duplicated into the parent's
// text. Leaves keep the full-range text subdivide already attached.
func attachPrefixText(n *Node, pageText map[int]string) {
	if n.IsLeaf() {
		return
	}
	firstChildStart := n.Nodes[0].StartIndex
	if firstChildStart > n.StartIndex {
		n.Text = concatPages(pageText, n.StartIndex, firstChildStart-1)
	} else {
		n.Text = ""
	}
	for _, child := range n.Nodes {
		attachPrefixText(child, pageText)
	}
}

// outline runs ToC detection/verification (4.1.1/4.1.2), falling back to
// ToC-less sliding-window outlining (4.1.3) when no reliable ToC survives.
func (b *Builder) outline(ctx context.Context, pages []Page, warnings *[]string) ([]outlineEntry, error) {
	checkPages := pages
	if len(checkPages) > b.cfg.TOCCheckPages {
		checkPages = checkPages[:b.cfg.TOCCheckPages]
	}

	toc, err := b.detectTOC(ctx, checkPages)
	if err != nil {
		logger.Get().Warn("tree: toc detection failed, falling back to outlining", zap.Error(err))
		return b.outlineWithoutTOC(ctx, pages)
	}

	if !toc.HasTOC || len(toc.Entries) == 0 {
		return b.outlineWithoutTOC(ctx, pages)
	}

	verified := b.verifyTOC(pages, toc.Entries)
	if len(verified) < (len(toc.Entries)+1)/2 {
		*warnings = append(*warnings, "table of contents rejected: fewer than half of entries verified")
		return b.outlineWithoutTOC(ctx, pages)
	}

	entries := make([]outlineEntry, 0, len(verified))
	for _, e := range verified {
		entries = append(entries, outlineEntry{Title: e.Title, StartPage: e.Page})
	}
	return b.assignLevels(ctx, entries)
}

type tocEntry struct {
	Title string `json:"title"`
	Page  int    `json:"page"`
}

type tocDetectionResult struct {
	HasTOC  bool       `json:"has_toc"`
	Entries []tocEntry `json:"entries"`
}

// detectTOC implements spec.md §4.1.1.
func (b *Builder) detectTOC(ctx context.Context, pages []Page) (*tocDetectionResult, error) {
	rendered, err := b.prompts.RenderUser(prompts.PromptTypeTOCDetection, map[string]string{
		"page_count": strconv.Itoa(len(pages)),
		"pages":      renderPages(pages),
	})
	if err != nil {
		return nil, err
	}

	sys, err := b.prompts.Get(prompts.PromptTypeTOCDetection)
	if err != nil {
		return nil, err
	}

	var result tocDetectionResult
	err = b.llm.CompleteShape(ctx, string(prompts.PromptTypeTOCDetection), []llm.Message{
		{Role: "system", Content: sys.System},
		{Role: "user", Content: rendered},
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// verifyTOC cross-checks each ToC entry's declared page against the
// document text for the title string, case- and whitespace-insensitive,
// within a neighborhood of ±K pages (spec.md §4.1.2).
func (b *Builder) verifyTOC(pages []Page, entries []tocEntry) []tocEntry {
	const neighborhood = 3

	byPage := make(map[int]string, len(pages))
	for _, p := range pages {
		byPage[p.Number] = normalizeForMatch(p.Text)
	}

	var verified []tocEntry
	for _, e := range entries {
		needle := normalizeForMatch(e.Title)
		if needle == "" {
			continue
		}
		found := false
		for delta := -neighborhood; delta <= neighborhood; delta++ {
			text, ok := byPage[e.Page+delta]
			if ok && strings.Contains(text, needle) {
				found = true
				break
			}
		}
		if found {
			verified = append(verified, e)
		}
	}
	return verified
}

var whitespaceRegexp = regexp.MustCompile(`\s+`)

func normalizeForMatch(s string) string {
	return whitespaceRegexp.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), " ")
}

type outlineSection struct {
	Title     string `json:"title"`
	StartPage int    `json:"start_page"`
}

type outlineResult struct {
	Sections []outlineSection `json:"sections"`
}

// outlineWithoutTOC implements spec.md §4.1.3: a sliding window over the
// text, token-bounded by the tokenizer, emitting section starts. Results
// are concatenated in page order and de-overlapped by preferring
// earlier-declared starts.
func (b *Builder) outlineWithoutTOC(ctx context.Context, pages []Page) ([]outlineEntry, error) {
	const windowTokenBudget = 6000

	var all []outlineSection
	start := 0
	for start < len(pages) {
		end := start
		tokens := 0
		for end < len(pages) {
			t := b.tok.Count(pages[end].Text)
			if end > start && tokens+t > windowTokenBudget {
				break
			}
			tokens += t
			end++
		}

		window := pages[start:end]
		rendered, err := b.prompts.RenderUser(prompts.PromptTypeOutline, map[string]string{
			"start_page": strconv.Itoa(window[0].Number),
			"end_page":   strconv.Itoa(window[len(window)-1].Number),
			"pages":      renderPages(window),
		})
		if err != nil {
			return nil, err
		}
		sys, err := b.prompts.Get(prompts.PromptTypeOutline)
		if err != nil {
			return nil, err
		}

		var result outlineResult
		err = b.llm.CompleteShape(ctx, string(prompts.PromptTypeOutline), []llm.Message{
			{Role: "system", Content: sys.System},
			{Role: "user", Content: rendered},
		}, &result)
		if err != nil {
			if errors.Is(err, llm.ErrShapeInvalid) {
				logger.Get().Warn("tree: outline window shape-invalid, skipping window", zap.Int("start_page", window[0].Number))
			} else {
				return nil, fmt.Errorf("%w: %v", ErrOutliningFailed, err)
			}
		} else {
			all = append(all, result.Sections...)
		}

		start = end
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].StartPage < all[j].StartPage })

	deduped := make([]outlineSection, 0, len(all))
	lastPage := -1
	for _, s := range all {
		if s.StartPage == lastPage {
			continue // de-overlap: prefer the earlier-declared start
		}
		deduped = append(deduped, s)
		lastPage = s.StartPage
	}

	entries := make([]outlineEntry, 0, len(deduped))
	for _, s := range deduped {
		entries = append(entries, outlineEntry{Title: s.Title, StartPage: s.StartPage})
	}
	return b.assignLevels(ctx, entries)
}

type levelEntry struct {
	Title     string `json:"title"`
	StartPage int    `json:"start_page"`
	Level     int    `json:"level"`
}

type assignLevelsResult struct {
	Levels []levelEntry `json:"levels"`
}

// assignLevels lifts a flat (title, start_page) list to a hierarchy by
// LLM-assigned levels (spec.md §4.1.4). On shape failure every entry is
// treated as a single top-level (level 1) section — a conservative,
// structurally valid degradation rather than a critical failure.
func (b *Builder) assignLevels(ctx context.Context, entries []outlineEntry) ([]outlineEntry, error) {
	if len(entries) == 0 {
		return entries, nil
	}

	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "- \"%s\" (page %d)\n", e.Title, e.StartPage)
	}

	rendered, err := b.prompts.RenderUser(prompts.PromptTypeAssignLevels, map[string]string{"entries": sb.String()})
	if err != nil {
		return nil, err
	}
	sys, err := b.prompts.Get(prompts.PromptTypeAssignLevels)
	if err != nil {
		return nil, err
	}

	var result assignLevelsResult
	err = b.llm.CompleteShape(ctx, string(prompts.PromptTypeAssignLevels), []llm.Message{
		{Role: "system", Content: sys.System},
		{Role: "user", Content: rendered},
	}, &result)
	if err != nil || len(result.Levels) != len(entries) {
		logger.Get().Warn("tree: level assignment degraded to flat top-level list", zap.Error(err))
		for i := range entries {
			entries[i].Level = 1
		}
		return entries, nil
	}

	for i, l := range result.Levels {
		entries[i].Level = l.Level
		if entries[i].Level < 1 {
			entries[i].Level = 1
		}
	}
	return entries, nil
}

// flatOutlineToTree lifts a leveled, ordered entry list to a Node
// hierarchy. End pages derive from the next sibling's start (or parent's
// end) minus one (spec.md §4.1.4).
func (b *Builder) flatOutlineToTree(entries []outlineEntry, totalPages int) []*Node {
	type frame struct {
		node  *Node
		level int
	}

	var roots []*Node
	var stack []frame

	for i, e := range entries {
		endPage := totalPages
		for j := i + 1; j < len(entries); j++ {
			if entries[j].Level <= e.Level {
				endPage = entries[j].StartPage - 1
				break
			}
		}

		node := &Node{Title: e.Title, StartIndex: e.StartPage, EndIndex: endPage}
		if endPage < node.StartIndex {
			node.EndIndex = node.StartIndex
		}

		for len(stack) > 0 && stack[len(stack)-1].level >= e.Level {
			stack = stack[:len(stack)-1]
		}

		if len(stack) == 0 {
			roots = append(roots, node)
		} else {
			parent := stack[len(stack)-1].node
			parent.Nodes = append(parent.Nodes, node)
			if node.EndIndex > parent.EndIndex {
				parent.EndIndex = node.EndIndex
			}
		}

		stack = append(stack, frame{node: node, level: e.Level})
	}

	return roots
}

type subdivideSection struct {
	Title     string `json:"title"`
	StartPage int    `json:"start_page"`
}

type subdivideResult struct {
	Children []subdivideSection `json:"children"`
}

type accuracyResult struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// subdivide recursively splits oversized nodes (spec.md §4.1.5), guarding
// every proposed subdivision with an accuracy check. Nodes that already
// have children (from the initial outline) recurse without re-subdividing
// themselves.
func (b *Builder) subdivide(ctx context.Context, n *Node, pageText map[int]string, warnings *[]string) {
	if !n.IsLeaf() {
		for _, child := range n.Nodes {
			b.subdivide(ctx, child, pageText, warnings)
		}
		return
	}

	text := concatPages(pageText, n.StartIndex, n.EndIndex)
	pageSpan := n.EndIndex - n.StartIndex + 1
	if pageSpan <= b.cfg.MaxPagesPerNode && b.tok.Count(text) <= b.cfg.MaxTokensPerNode {
		n.Text = text
		return
	}

	rendered, err := b.prompts.RenderUser(prompts.PromptTypeSubdivide, map[string]string{
		"title":      n.Title,
		"start_page": strconv.Itoa(n.StartIndex),
		"end_page":   strconv.Itoa(n.EndIndex),
		"text":       text,
	})
	if err != nil {
		n.Text = text
		return
	}
	sys, err := b.prompts.Get(prompts.PromptTypeSubdivide)
	if err != nil {
		n.Text = text
		return
	}

	var result subdivideResult
	err = b.llm.CompleteShape(ctx, string(prompts.PromptTypeSubdivide), []llm.Message{
		{Role: "system", Content: sys.System},
		{Role: "user", Content: rendered},
	}, &result)
	if err != nil || len(result.Children) < 2 {
		*warnings = append(*warnings, fmt.Sprintf("oversized node %q could not be subdivided, kept as flat leaf", n.Title))
		n.Warnings = append(n.Warnings, "oversized: kept as flat leaf")
		n.Text = text
		return
	}

	proposed := b.buildChildren(result.Children, n)

	score := b.accuracyCheck(ctx, n, proposed, text)
	if score < b.cfg.AccuracyThreshold {
		*warnings = append(*warnings, fmt.Sprintf("subdivision of node %q rejected by accuracy check (score %.2f), kept as flat leaf", n.Title, score))
		n.Warnings = append(n.Warnings, "accuracy check rejected: kept as flat leaf")
		n.Text = text
		return
	}

	n.Nodes = proposed
	for _, child := range n.Nodes {
		b.subdivide(ctx, child, pageText, warnings)
	}
}

func (b *Builder) buildChildren(sections []subdivideSection, parent *Node) []*Node {
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].StartPage < sections[j].StartPage })

	children := make([]*Node, 0, len(sections))
	for i, s := range sections {
		end := parent.EndIndex
		if i+1 < len(sections) {
			end = sections[i+1].StartPage - 1
		}
		start := s.StartPage
		if start < parent.StartIndex {
			start = parent.StartIndex
		}
		if end < start {
			end = start
		}
		children = append(children, &Node{Title: s.Title, StartIndex: start, EndIndex: end})
	}
	return children
}

// accuracyCheck evaluates whether proposed children faithfully cover the
// parent's content (spec.md §4.1.5). Shape failure degrades to rejection
// (score 0) so the caller falls back to the flat-leaf path.
func (b *Builder) accuracyCheck(ctx context.Context, parent *Node, children []*Node, parentText string) float64 {
	var sb strings.Builder
	for _, c := range children {
		fmt.Fprintf(&sb, "- \"%s\" (pages %d-%d)\n", c.Title, c.StartIndex, c.EndIndex)
	}

	rendered, err := b.prompts.RenderUser(prompts.PromptTypeAccuracyCheck, map[string]string{
		"title":      parent.Title,
		"start_page": strconv.Itoa(parent.StartIndex),
		"end_page":   strconv.Itoa(parent.EndIndex),
		"text":       parentText,
		"children":   sb.String(),
	})
	if err != nil {
		return 0
	}
	sys, err := b.prompts.Get(prompts.PromptTypeAccuracyCheck)
	if err != nil {
		return 0
	}

	var result accuracyResult
	if err := b.llm.CompleteShape(ctx, string(prompts.PromptTypeAccuracyCheck), []llm.Message{
		{Role: "system", Content: sys.System},
		{Role: "user", Content: rendered},
	}, &result); err != nil {
		return 0
	}
	return result.Score
}

// assignNodeIDs performs spec.md §4.1.6: depth-first pre-order,
// monotonically increasing, zero-padded to a width >= ceil(log10(N+1)).
func assignNodeIDs(roots []*Node) {
	total := 0
	for _, r := range roots {
		total += r.Count()
	}
	width := len(strconv.Itoa(total))
	if width < 4 {
		width = 4
	}

	counter := 0
	var assign func(n *Node)
	assign = func(n *Node) {
		n.NodeID = fmt.Sprintf("%0*d", width, counter)
		counter++
		for _, child := range n.Nodes {
			assign(child)
		}
	}
	for _, r := range roots {
		assign(r)
	}
}

func concatPages(pageText map[int]string, start, end int) string {
	var sb strings.Builder
	for p := start; p <= end; p++ {
		if text, ok := pageText[p]; ok {
			if sb.Len() > 0 {
				sb.WriteByte('\n')
			}
			sb.WriteString(text)
		}
	}
	return sb.String()
}

func renderPages(pages []Page) string {
	var sb strings.Builder
	for _, p := range pages {
		fmt.Fprintf(&sb, "--- page %d ---\n%s\n", p.Number, p.Text)
	}
	return sb.String()
}
