// Package ingest implements the Ingest Orchestrator (spec.md §4.4): the
// sequence that turns an uploaded PDF into a persisted document, tree, and
// set of embedded chunks.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hsn0918/filingtree/internal/embedding"
	"github.com/hsn0918/filingtree/internal/extractor"
	"github.com/hsn0918/filingtree/internal/logger"
	"github.com/hsn0918/filingtree/internal/store"
	"github.com/hsn0918/filingtree/internal/tree"
)

// Request describes one ingest call (spec.md §4.4, §6 "POST /ingest").
type Request struct {
	Company    string
	Ticker     string
	FiscalYear int
	DocType    string
	Filename   string
	PDF        io.Reader
	PDFSize    int64
	Force      bool
}

// Result is what the orchestrator returns on success.
type Result struct {
	DocID       string
	PageCount   int
	NodeCount   int
	ChunkCount  int
	Warnings    []string
	Description string
}

// Orchestrator drives save → assign doc_id → build tree → enrich → chunk →
// embed → commit (spec.md §4.4).
type Orchestrator struct {
	blobs     *store.BlobStore
	db        *store.Store
	extractor *extractor.Extractor
	builder   *tree.Builder
	enricher  *tree.Enricher
	chunker   *tree.Chunker
	embedder  *embedding.Adapter
	batchSize int
}

// New constructs an Orchestrator from already-built Tree Builder/
// Enricher/Chunker components, matching how internal/app wires
// dependencies via fx.
func New(
	blobs *store.BlobStore,
	db *store.Store,
	ext *extractor.Extractor,
	builder *tree.Builder,
	enricher *tree.Enricher,
	chunker *tree.Chunker,
	embedder *embedding.Adapter,
	batchSize int,
) *Orchestrator {
	return &Orchestrator{
		blobs:     blobs,
		db:        db,
		extractor: ext,
		builder:   builder,
		enricher:  enricher,
		chunker:   chunker,
		embedder:  embedder,
		batchSize: batchSize,
	}
}

// Ingest runs the full pipeline. On any failure after the document row is
// created, the document is marked status=failed with an error_message
// rather than left dangling (spec.md §4.4, §7).
func (o *Orchestrator) Ingest(ctx context.Context, req Request) (*Result, error) {
	existingID, err := o.db.FindDuplicate(ctx, req.Ticker, req.FiscalYear, req.DocType)
	if err != nil {
		return nil, err
	}
	if existingID != "" {
		if !req.Force {
			return nil, fmt.Errorf("%w: doc_id %s", store.ErrDuplicateDocument, existingID)
		}
		existingDoc, err := o.db.GetDocument(ctx, existingID)
		if err != nil {
			return nil, fmt.Errorf("ingest: load prior document for force re-ingest: %w", err)
		}
		if err := o.db.DeleteDocument(ctx, existingID); err != nil {
			return nil, fmt.Errorf("ingest: delete prior document for force re-ingest: %w", err)
		}
		if existingDoc.SourceObjectKey != "" {
			if err := o.blobs.Delete(ctx, existingDoc.SourceObjectKey); err != nil {
				logger.Get().Warn("ingest: failed to delete prior document's blob", zap.String("doc_id", existingID), zap.Error(err))
			}
		}
	}

	docID := uuid.NewString()

	pdfBytes, err := io.ReadAll(req.PDF)
	if err != nil {
		return nil, fmt.Errorf("ingest: read pdf: %w", err)
	}

	objectKey, err := o.blobs.Put(ctx, docID, bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return nil, fmt.Errorf("ingest: store pdf: %w", err)
	}

	doc := &store.Document{
		ID:              docID,
		Company:         req.Company,
		Ticker:          req.Ticker,
		FiscalYear:      req.FiscalYear,
		DocType:         req.DocType,
		Filename:        req.Filename,
		SourceObjectKey: objectKey,
	}
	if err := o.db.CreateProcessing(ctx, doc); err != nil {
		return nil, err
	}

	result, err := o.process(ctx, docID, pdfBytes)
	if err != nil {
		if failErr := o.db.MarkFailed(ctx, docID, err.Error()); failErr != nil {
			logger.Get().Error("ingest: failed to mark document as failed", zap.String("doc_id", docID), zap.Error(failErr))
		}
		return nil, err
	}

	return result, nil
}

func (o *Orchestrator) process(ctx context.Context, docID string, pdfBytes []byte) (*Result, error) {
	pages, err := o.extractor.Extract(ctx, pdfBytes)
	if err != nil {
		return nil, fmt.Errorf("ingest: extract text: %w", err)
	}
	if len(pages) == 0 {
		return nil, errors.New("ingest: extractor returned zero pages")
	}

	roots, warnings, err := o.builder.Build(ctx, pages)
	if err != nil {
		return nil, fmt.Errorf("ingest: build tree: %w", err)
	}

	o.enricher.Enrich(ctx, roots)
	description := o.enricher.GenerateDocumentDescription(ctx, roots)

	chunkResults := o.chunker.ChunkTree(roots)

	chunks, totalTokens, err := o.embedChunks(ctx, docID, chunkResults)
	if err != nil {
		return nil, fmt.Errorf("ingest: embed chunks: %w", err)
	}

	treeRecord, err := store.BuildTreeRecord(docID, roots)
	if err != nil {
		return nil, fmt.Errorf("ingest: build tree record: %w", err)
	}

	nodeCount := 0
	for _, r := range roots {
		nodeCount += r.Count()
	}

	commitErr := o.db.CommitIngest(ctx, &store.IngestResult{
		DocID:        docID,
		PageCount:    len(pages),
		TotalTokens:  totalTokens,
		NodeCount:    nodeCount,
		ChunkCount:   len(chunks),
		Warnings:     warnings,
		Description:  description,
		Tree:         treeRecord,
		Chunks:       chunks,
		EmbeddingDim: o.embedder.Dim(),
	})
	if commitErr != nil {
		return nil, fmt.Errorf("ingest: commit: %w", commitErr)
	}

	return &Result{
		DocID:       docID,
		PageCount:   len(pages),
		NodeCount:   nodeCount,
		ChunkCount:  len(chunks),
		Warnings:    warnings,
		Description: description,
	}, nil
}

// embedChunks embeds every chunk's text in configured batches (spec.md
// §4.4, §4.9), retrying transient failures inside the Embedding Adapter
// itself. Returns the chunks with embeddings attached and the sum of all
// chunk token counts (Document.TotalTokens).
func (o *Orchestrator) embedChunks(ctx context.Context, docID string, results []tree.ChunkResult) ([]store.Chunk, int, error) {
	chunks := make([]store.Chunk, len(results))
	totalTokens := 0

	for start := 0; start < len(results); start += o.batchSize {
		end := start + o.batchSize
		if end > len(results) {
			end = len(results)
		}
		batch := results[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}

		vectors, err := o.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, 0, err
		}

		for i, c := range batch {
			chunks[start+i] = store.Chunk{
				DocID:      docID,
				NodeID:     c.NodeID,
				ChunkIndex: c.ChunkIndex,
				Content:    c.Content,
				TokenCount: c.TokenCount,
				StartPage:  c.StartPage,
				EndPage:    c.EndPage,
				Embedding:  vectors[i],
			}
			totalTokens += c.TokenCount
		}
	}

	return chunks, totalTokens, nil
}
