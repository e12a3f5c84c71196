package httpapi

import (
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/hsn0918/filingtree/internal/logger"
	"github.com/hsn0918/filingtree/internal/retrieval"
)

type queryRequest struct {
	Query     string   `json:"query"`
	Companies []string `json:"companies"`
	Years     []int    `json:"years"`
}

type queryResponse struct {
	Answer                 string               `json:"answer"`
	RetrievalConfidence    confidenceResponse   `json:"retrieval_confidence"`
	ResolvedCitations      []retrieval.Citation `json:"resolved_citations"`
	UnansweredSubQuestions []string             `json:"unanswerable_sub_questions"`
	ConflictsDetected      []string             `json:"conflicts_detected"`
}

type confidenceResponse struct {
	Label            string `json:"label"`
	AnsweredByFacts  int    `json:"answered_by_facts"`
	AnsweredByChunks int    `json:"answered_by_chunks"`
	Unanswered       int    `json:"unanswered"`
}

// handleQuery implements POST /query (spec.md §6).
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req queryRequest
	if err := sonic.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed json body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusUnprocessableEntity, "query is required")
		return
	}

	answer, err := s.retrieval.Run(r.Context(), retrieval.Query{
		Text:      req.Query,
		Companies: req.Companies,
		Years:     req.Years,
	})
	if err != nil {
		logger.Get().Error("httpapi: query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Answer: answer.Text,
		RetrievalConfidence: confidenceResponse{
			Label:            string(answer.Confidence.Label),
			AnsweredByFacts:  answer.Confidence.AnsweredByFacts,
			AnsweredByChunks: answer.Confidence.AnsweredByChunks,
			Unanswered:       answer.Confidence.Unanswered,
		},
		ResolvedCitations:      answer.Citations,
		UnansweredSubQuestions: answer.UnansweredSubQuestions,
		ConflictsDetected:      answer.ConflictsDetected,
	})
}
