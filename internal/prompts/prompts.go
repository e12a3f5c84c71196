// Package prompts manages LLM prompts and templates for the filing-tree
// RAG system.
//
// This package provides centralized prompt management with support for
// dynamic template rendering, mirroring the manager/template shape used
// throughout the rest of the system's LLM call sites.
package prompts

import (
	"fmt"
	"strings"
)

// PromptType identifies one of the system's LLM call sites.
type PromptType string

const (
	// PromptTypeTOCDetection asks whether a table of contents exists in
	// the document's opening pages (spec.md §4.1.1).
	PromptTypeTOCDetection PromptType = "toc_detection"
	// PromptTypeOutline asks the model to emit section starts with
	// titles over a sliding window of pages (spec.md §4.1.3).
	PromptTypeOutline PromptType = "outline"
	// PromptTypeAssignLevels asks the model to assign hierarchy levels
	// to a flat list of (title, start_page) entries (spec.md §4.1.4).
	PromptTypeAssignLevels PromptType = "assign_levels"
	// PromptTypeSubdivide asks the model to propose child sections for
	// an oversized node (spec.md §4.1.5).
	PromptTypeSubdivide PromptType = "subdivide"
	// PromptTypeAccuracyCheck asks the model to score whether proposed
	// children faithfully cover a parent node's content (spec.md §4.1.5).
	PromptTypeAccuracyCheck PromptType = "accuracy_check"
	// PromptTypeNodeSummary asks for a single-paragraph node summary
	// (spec.md §4.2).
	PromptTypeNodeSummary PromptType = "node_summary"
	// PromptTypeDocumentDescription asks for a whole-document
	// description from ordered root summaries (spec.md §4.2).
	PromptTypeDocumentDescription PromptType = "document_description"
	// PromptTypeDecompose asks the model to split a query into atomic
	// sub-questions (spec.md §4.5.1).
	PromptTypeDecompose PromptType = "decompose"
	// PromptTypeLLMSearch asks the model to reason over a text-stripped
	// tree and return a node-ID list (spec.md §4.7).
	PromptTypeLLMSearch PromptType = "llm_search"
	// PromptTypeAnswer asks the model to synthesize a cited answer from
	// packed context (spec.md §4.10).
	PromptTypeAnswer PromptType = "answer"
)

// Prompt is a reusable prompt template: a fixed system instruction and a
// user template with {{var}} placeholders.
type Prompt struct {
	Type         PromptType
	Name         string
	System       string
	UserTemplate string
}

// Manager holds every prompt template used by the tree builder, node
// enricher, and retrieval pipeline.
type Manager struct {
	prompts map[PromptType]*Prompt
}

// NewManager creates a Manager preloaded with the system's default prompts.
func NewManager() *Manager {
	m := &Manager{prompts: make(map[PromptType]*Prompt)}
	m.registerDefaults()
	return m
}

func (m *Manager) registerDefaults() {
	m.prompts[PromptTypeTOCDetection] = &Prompt{
		Type: PromptTypeTOCDetection,
		Name: "toc_detection_v1",
		System: `You are a document structure analyst specializing in financial filings (10-K, 20-F, annual reports). Given the text of the first pages of a filing, determine whether a table of contents is present.

Respond with ONLY a JSON object matching this shape:
{"has_toc": boolean, "entries": [{"title": string, "page": number}, ...]}

If no table of contents is present, return {"has_toc": false}. Entries must be in document order and use the page number as printed in the source text, not the physical page index.`,
		UserTemplate: `Pages 1 through {{page_count}} of the filing:

{{pages}}

Does a table of contents exist? Return the JSON shape described in the system instructions.`,
	}

	m.prompts[PromptTypeOutline] = &Prompt{
		Type: PromptTypeOutline,
		Name: "outline_v1",
		System: `You are a document structure analyst for financial filings. No reliable table of contents was found. Given a window of consecutive pages, identify where new top-level or section-level divisions begin.

Respond with ONLY a JSON object:
{"sections": [{"title": string, "start_page": number}, ...]}

Only list pages where a new section verifiably begins within this window. Use the title as printed in the source text.`,
		UserTemplate: `Pages {{start_page}} through {{end_page}}:

{{pages}}

Identify section starts within this window. Return the JSON shape described in the system instructions.`,
	}

	m.prompts[PromptTypeAssignLevels] = &Prompt{
		Type: PromptTypeAssignLevels,
		Name: "assign_levels_v1",
		System: `You are a document structure analyst. Given an ordered flat list of section titles with their starting pages, assign each one a hierarchy level (1 = top-level chapter, 2 = subsection, 3 = sub-subsection, and so on) based on the titles' apparent nesting (numbering schemes, capitalization, or topical containment).

Respond with ONLY a JSON object:
{"levels": [{"title": string, "start_page": number, "level": number}, ...]}

Preserve the input order exactly; one entry per input entry.`,
		UserTemplate: `Flat section list:

{{entries}}

Assign hierarchy levels. Return the JSON shape described in the system instructions.`,
	}

	m.prompts[PromptTypeSubdivide] = &Prompt{
		Type: PromptTypeSubdivide,
		Name: "subdivide_v1",
		System: `You are a document structure analyst. The following section of a financial filing is too large to treat as a single unit. Propose child sections that subdivide it.

Respond with ONLY a JSON object:
{"children": [{"title": string, "start_page": number}, ...]}

Children must be in page order, with start_page within the parent's page range. If the section cannot be meaningfully subdivided, return {"children": []}.`,
		UserTemplate: `Section "{{title}}", pages {{start_page}}-{{end_page}}:

{{text}}

Propose child sections. Return the JSON shape described in the system instructions.`,
	}

	m.prompts[PromptTypeAccuracyCheck] = &Prompt{
		Type: PromptTypeAccuracyCheck,
		Name: "accuracy_check_v1",
		System: `You are a verification analyst. You are given a parent section's content and a proposed list of child sections. Score, from 0.0 to 1.0, how faithfully the children cover the parent's content with no major gaps or fabricated divisions.

Respond with ONLY a JSON object:
{"score": number, "reason": string}`,
		UserTemplate: `Parent section "{{title}}", pages {{start_page}}-{{end_page}}:

{{text}}

Proposed children:
{{children}}

Score the coverage. Return the JSON shape described in the system instructions.`,
	}

	m.prompts[PromptTypeNodeSummary] = &Prompt{
		Type: PromptTypeNodeSummary,
		Name: "node_summary_v1",
		System: `You are a financial filing summarization assistant. Produce a single, content-bearing paragraph summarizing the given section. Do not use boilerplate phrasing such as "this section discusses" with no substantive content. Plain text only, no markdown formatting.`,
		UserTemplate: `Section "{{title}}":

{{content}}

Write the summary.`,
	}

	m.prompts[PromptTypeDocumentDescription] = &Prompt{
		Type: PromptTypeDocumentDescription,
		Name: "document_description_v1",
		System: `You are a financial filing summarization assistant. Given the ordered summaries of a filing's top-level sections, write a short whole-document description. Plain text only, no markdown formatting.`,
		UserTemplate: `Top-level section summaries, in order:

{{summaries}}

Write the whole-document description.`,
	}

	m.prompts[PromptTypeDecompose] = &Prompt{
		Type: PromptTypeDecompose,
		Name: "decompose_v1",
		System: `You are a query analyst for a financial filing research tool. Split the user's query into atomic sub-questions, each answerable independently. When a sub-question clearly targets one company or fiscal year, tag it.

Respond with ONLY a JSON object:
{"sub_questions": [{"text": string, "target_company": string, "target_year": number}, ...]}

Omit target_company/target_year when the sub-question doesn't name a specific company or year. If the query is already atomic, return it as the sole sub-question.`,
		UserTemplate: `Query: "{{query}}"

Decompose into sub-questions. Return the JSON shape described in the system instructions.`,
	}

	m.prompts[PromptTypeLLMSearch] = &Prompt{
		Type: PromptTypeLLMSearch,
		Name: "llm_search_v1",
		System: `You are a document navigation assistant. Given a sub-question and a document's section tree (titles and summaries only, no body text), identify which sections are likely to contain the answer.

Respond with ONLY a JSON object:
{"thinking": string, "node_list": [string, ...]}

node_list holds node_id values from the tree, ordered by how likely they are to contain the answer, most likely first.`,
		UserTemplate: `Sub-question: "{{sub_question}}"

Document tree:
{{tree}}

Identify the relevant sections. Return the JSON shape described in the system instructions.`,
	}

	m.prompts[PromptTypeAnswer] = &Prompt{
		Type: PromptTypeAnswer,
		Name: "answer_v1",
		System: `You are a financial filing research assistant. Answer the user's query using ONLY the provided context blocks. For every factual claim, include an inline citation of the form [<company>, <year>, p<start>] or [<company>, <year>, p<start>-<end>]. Do not use any outside knowledge. Do not re-rank or omit relevant context you were given. Conclude your answer with a JSON block listing structured citations and which numbered sub-questions you were able to answer with a cited claim:

{"citations": [{"company": string, "ticker": string, "fiscal_year": number, "node_id": string, "section_path": string, "page": number, "content_preview": string}, ...], "answered_sub_questions": [number, ...]}

content_preview is the first 200 characters of the cited node's text. answered_sub_questions lists the 1-based indices (matching the numbered sub-question list below) of sub-questions you answered with at least one cited claim. If the provided context is insufficient to answer, say so plainly and return empty lists for both.`,
		UserTemplate: `Original query: "{{query}}"

Sub-questions:
{{sub_questions}}

Context blocks:
{{context}}

Answer the query following the system instructions.`,
	}
}

// Get returns a prompt by type.
func (m *Manager) Get(promptType PromptType) (*Prompt, error) {
	p, ok := m.prompts[promptType]
	if !ok {
		return nil, fmt.Errorf("prompts: no prompt registered for type %q", promptType)
	}
	return p, nil
}

// RenderUser renders a prompt's user template with the given variables.
func (m *Manager) RenderUser(promptType PromptType, vars map[string]string) (string, error) {
	p, err := m.Get(promptType)
	if err != nil {
		return "", err
	}

	rendered := p.UserTemplate
	for key, value := range vars {
		rendered = strings.ReplaceAll(rendered, fmt.Sprintf("{{%s}}", key), value)
	}
	return rendered, nil
}
