// Package httpapi implements the external HTTP surface of the filing-tree
// RAG system: POST /ingest, POST /query, GET /corpus, GET /corpus/{id}/tree,
// GET /corpus/{id}/source, and GET /health (spec.md §6, SPEC_FULL.md §6/§9).
// It is a plain net/http + h2c transport rather than the teacher's
// connect-rpc/protobuf one (see DESIGN.md), using sonic for JSON
// encode/decode throughout.
package httpapi

import (
	"net/http"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/hsn0918/filingtree/internal/ingest"
	"github.com/hsn0918/filingtree/internal/retrieval"
	"github.com/hsn0918/filingtree/internal/store"
)

// Server holds the handlers' shared dependencies.
type Server struct {
	ingest    *ingest.Orchestrator
	retrieval *retrieval.Orchestrator
	db        *store.Store
	blobs     *store.BlobStore
}

// New constructs the httpapi Server.
func New(ing *ingest.Orchestrator, ret *retrieval.Orchestrator, db *store.Store, blobs *store.BlobStore) *Server {
	return &Server{ingest: ing, retrieval: ret, db: db, blobs: blobs}
}

// Handler builds the h2c-wrapped http.Handler serving every route.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ingest", s.handleIngest)
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("GET /corpus", s.handleListCorpus)
	mux.HandleFunc("GET /corpus/{doc_id}/tree", s.handleCorpusTree)
	mux.HandleFunc("GET /corpus/{doc_id}/source", s.handleCorpusSource)
	mux.HandleFunc("GET /health", s.handleHealth)

	return withLogging(h2c.NewHandler(mux, &http2.Server{}))
}

// NewHTTPServer assembles the *http.Server ready for ListenAndServe,
// matching the teacher's modules.go NewHTTPHandler shape.
func NewHTTPServer(addr string, s *Server) *http.Server {
	return &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
}
