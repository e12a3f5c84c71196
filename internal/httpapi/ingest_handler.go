package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/hsn0918/filingtree/internal/ingest"
	"github.com/hsn0918/filingtree/internal/logger"
	"github.com/hsn0918/filingtree/internal/store"
)

type ingestResponse struct {
	DocID         string `json:"doc_id"`
	Status        string `json:"status"`
	ChunksCreated int    `json:"chunks_created"`
	NodeCount     int    `json:"node_count"`
	PageCount     int    `json:"page_count"`
	Description   string `json:"description,omitempty"`
}

// handleIngest implements POST /ingest: a multipart upload of one PDF plus
// its filing metadata (spec.md §6). Fields: file, company, ticker,
// fiscal_year, doc_type_hint (optional), force (optional).
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "malformed multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	company := r.FormValue("company")
	ticker := r.FormValue("ticker")
	if company == "" || ticker == "" {
		writeError(w, http.StatusUnprocessableEntity, "company and ticker are required")
		return
	}

	fiscalYear, err := strconv.Atoi(r.FormValue("fiscal_year"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "fiscal_year must be an integer")
		return
	}

	docType := r.FormValue("doc_type_hint")
	force := r.FormValue("force") == "true"

	req := ingest.Request{
		Company:    company,
		Ticker:     ticker,
		FiscalYear: fiscalYear,
		DocType:    docType,
		Filename:   header.Filename,
		PDF:        file,
		PDFSize:    header.Size,
		Force:      force,
	}

	result, err := s.ingest.Ingest(r.Context(), req)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateDocument) {
			writeError(w, http.StatusConflict, "document already exists for this ticker/fiscal_year/doc_type; retry with force=true to replace it")
			return
		}
		logger.Get().Error("httpapi: ingest failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "ingest failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		DocID:         result.DocID,
		Status:        string(store.StatusCompleted),
		ChunksCreated: result.ChunkCount,
		NodeCount:     result.NodeCount,
		PageCount:     result.PageCount,
		Description:   result.Description,
	})
}
