package httpapi

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/hsn0918/filingtree/internal/logger"
	"github.com/hsn0918/filingtree/internal/store"
)

type corpusDocument struct {
	ID              string   `json:"id"`
	Company         string   `json:"company"`
	Ticker          string   `json:"ticker"`
	FiscalYear      int      `json:"fiscal_year"`
	DocType         string   `json:"doc_type"`
	ChunkCount      int      `json:"chunk_count"`
	NodeCount       int      `json:"node_count"`
	PageCount       int      `json:"page_count"`
	Status          string   `json:"status"`
	IngestTimestamp string   `json:"ingest_timestamp"`
	Description     string   `json:"description,omitempty"`
	Warnings        []string `json:"warnings,omitempty"`
}

type corpusResponse struct {
	Documents []corpusDocument `json:"documents"`
}

// handleListCorpus implements GET /corpus (spec.md §6).
func (s *Server) handleListCorpus(w http.ResponseWriter, r *http.Request) {
	docs, err := s.db.ListDocuments(r.Context())
	if err != nil {
		logger.Get().Error("httpapi: list corpus failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}

	out := make([]corpusDocument, len(docs))
	for i, d := range docs {
		out[i] = corpusDocument{
			ID:              d.ID,
			Company:         d.Company,
			Ticker:          d.Ticker,
			FiscalYear:      d.FiscalYear,
			DocType:         d.DocType,
			ChunkCount:      d.ChunkCount,
			NodeCount:       d.NodeCount,
			PageCount:       d.PageCount,
			Status:          string(d.Status),
			IngestTimestamp: d.IngestTimestamp.UTC().Format("2006-01-02T15:04:05Z07:00"),
			Description:     d.Description,
			Warnings:        d.Warnings,
		}
	}

	writeJSON(w, http.StatusOK, corpusResponse{Documents: out})
}

// handleCorpusTree implements GET /corpus/{doc_id}/tree, a debug endpoint
// returning the stored tree_json for a single document (SPEC_FULL.md §9).
func (s *Server) handleCorpusTree(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("doc_id")

	treeRecord, err := s.db.GetTree(r.Context(), docID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		logger.Get().Error("httpapi: get tree failed", zap.Error(err), zap.String("doc_id", docID))
		writeError(w, http.StatusInternalServerError, "failed to load tree")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(treeRecord.TreeJSON))
}

// handleCorpusSource implements GET /corpus/{doc_id}/source, streaming the
// originally uploaded PDF back from the blob store (SPEC_FULL.md §9; a
// direct proxy rather than a presigned redirect, since the MinIO endpoint
// is not assumed reachable from outside the deployment network).
func (s *Server) handleCorpusSource(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("doc_id")
	ctx := r.Context()

	doc, err := s.db.GetDocument(ctx, docID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		logger.Get().Error("httpapi: get document failed", zap.Error(err), zap.String("doc_id", docID))
		writeError(w, http.StatusInternalServerError, "failed to load document")
		return
	}

	obj, err := s.blobs.Get(ctx, doc.SourceObjectKey)
	if err != nil {
		logger.Get().Error("httpapi: get source blob failed", zap.Error(err), zap.String("doc_id", docID))
		writeError(w, http.StatusInternalServerError, "failed to load source pdf")
		return
	}
	defer obj.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+doc.Filename+"\"")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj); err != nil {
		logger.Get().Warn("httpapi: streaming source pdf failed", zap.Error(err), zap.String("doc_id", docID))
	}
}
