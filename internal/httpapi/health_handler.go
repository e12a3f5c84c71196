package httpapi

import "net/http"

type healthResponse struct {
	Status    string `json:"status"`
	Embedding string `json:"embedding"`
	LLM       string `json:"llm"`
	Documents int    `json:"documents"`
}

// handleHealth implements GET /health (spec.md §6). The embedding and LLM
// adapters have no cheap reachability probe of their own (a real call would
// spend a request against a paid API just to answer a health check), so
// their fields report "configured" once wired; overall status reflects
// whether the database, the one dependency worth pinging, is reachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if err := s.db.Ping(r.Context()); err != nil {
		status = "degraded"
	}

	docCount := 0
	if docs, err := s.db.ListDocuments(r.Context()); err == nil {
		docCount = len(docs)
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:    status,
		Embedding: "configured",
		LLM:       "configured",
		Documents: docCount,
	})
}
