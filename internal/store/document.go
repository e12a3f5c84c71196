package store

import "time"

// Status is a Document's lifecycle stage (spec.md §3 Lifecycle).
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Document is the metadata record for one ingested filing, uniquely keyed
// by (ticker, fiscal_year, doc_type).
type Document struct {
	ID               string
	Company          string
	Ticker           string
	FiscalYear       int
	DocType          string
	Filename         string
	SourceObjectKey  string
	PageCount        int
	TotalTokens      int
	NodeCount        int
	ChunkCount       int
	Status           Status
	ErrorMessage     string
	IngestTimestamp  time.Time
	// Description is the whole-document description generated from
	// ordered root-level summaries, if enabled (spec.md §4.2).
	Description string
	// Warnings accumulates non-fatal degradation notices from tree
	// building (oversized-leaf fallback, ToC rejection) so callers can
	// surface them without re-deriving from log lines.
	Warnings []string
}
