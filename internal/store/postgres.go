package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hsn0918/filingtree/internal/config"
)

// ErrDuplicateDocument marks an attempt to ingest a (ticker, fiscal_year,
// doc_type) that already has a row, without force (spec.md §4.4, §7).
var ErrDuplicateDocument = errors.New("store: document already exists")

// ErrNotFound marks a lookup for a document that doesn't exist.
var ErrNotFound = errors.New("store: document not found")

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id UUID PRIMARY KEY,
	company TEXT NOT NULL,
	ticker TEXT NOT NULL,
	fiscal_year INTEGER NOT NULL,
	doc_type TEXT NOT NULL,
	filename TEXT NOT NULL,
	source_object_key TEXT NOT NULL DEFAULT '',
	page_count INTEGER NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0,
	node_count INTEGER NOT NULL DEFAULT 0,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	warnings TEXT[] NOT NULL DEFAULT '{}',
	description TEXT NOT NULL DEFAULT '',
	ingest_timestamp TIMESTAMPTZ NOT NULL,
	UNIQUE(ticker, fiscal_year, doc_type)
);

CREATE TABLE IF NOT EXISTS trees (
	doc_id UUID PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
	tree_json TEXT NOT NULL,
	tree_no_text TEXT NOT NULL,
	node_map_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id BIGSERIAL PRIMARY KEY,
	doc_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	node_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	token_count INTEGER NOT NULL,
	start_page INTEGER NOT NULL,
	end_page INTEGER NOT NULL,
	embedding BYTEA NOT NULL,
	UNIQUE(doc_id, node_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_chunks_doc_id ON chunks(doc_id);
CREATE INDEX IF NOT EXISTS idx_chunks_doc_node ON chunks(doc_id, node_id);
`

// Store is the Postgres-backed document/tree/chunk repository
// (spec.md §6 "Persisted state").
type Store struct {
	pool *pgxpool.Pool
}

// New connects to Postgres and ensures the schema exists.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("store: migrate schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping reports whether the database connection pool is reachable, for use
// by GET /health.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateProcessing inserts a new document row with status=processing.
// Returns ErrDuplicateDocument if (ticker, fiscal_year, doc_type) already
// exists.
func (s *Store) CreateProcessing(ctx context.Context, doc *Document) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, company, ticker, fiscal_year, doc_type, filename, source_object_key, status, ingest_timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		doc.ID, doc.Company, doc.Ticker, doc.FiscalYear, doc.DocType, doc.Filename, doc.SourceObjectKey, StatusProcessing, time.Now())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: (%s, %d, %s)", ErrDuplicateDocument, doc.Ticker, doc.FiscalYear, doc.DocType)
		}
		return fmt.Errorf("store: create document: %w", err)
	}
	return nil
}

// FindDuplicate returns the existing doc_id for (ticker, fiscal_year,
// doc_type), if any.
func (s *Store) FindDuplicate(ctx context.Context, ticker string, fiscalYear int, docType string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM documents WHERE ticker=$1 AND fiscal_year=$2 AND doc_type=$3`,
		ticker, fiscalYear, docType).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: find duplicate: %w", err)
	}
	return id, nil
}

// DeleteDocument cascade-deletes a document, its tree, and its chunks —
// used on force re-ingest (spec.md §4.4) and explicit deletion.
func (s *Store) DeleteDocument(ctx context.Context, docID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id=$1`, docID)
	if err != nil {
		return fmt.Errorf("store: delete document: %w", err)
	}
	return nil
}

// MarkFailed sets status=failed with an error message, preserving prior
// state otherwise (spec.md §7 "Fatal storage error").
func (s *Store) MarkFailed(ctx context.Context, docID, message string) error {
	_, err := s.pool.Exec(ctx, `UPDATE documents SET status=$1, error_message=$2 WHERE id=$3`, StatusFailed, message, docID)
	if err != nil {
		return fmt.Errorf("store: mark failed: %w", err)
	}
	return nil
}

// IngestResult bundles everything produced by a successful ingest run, for
// a single atomic write (spec.md §4.4).
type IngestResult struct {
	DocID        string
	PageCount    int
	TotalTokens  int
	NodeCount    int
	ChunkCount   int
	Warnings     []string
	Description  string
	Tree         *TreeRecord
	Chunks       []Chunk
	EmbeddingDim int
}

// CommitIngest writes the document update, tree, and chunks in a single
// logical transaction and flips status to completed (spec.md §4.4). Any
// failure rolls back, leaving the document's prior state untouched.
func (s *Store) CommitIngest(ctx context.Context, r *IngestResult) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin ingest tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE documents SET page_count=$1, total_tokens=$2, node_count=$3, chunk_count=$4, status=$5, warnings=$6, description=$7
		 WHERE id=$8`,
		r.PageCount, r.TotalTokens, r.NodeCount, r.ChunkCount, StatusCompleted, r.Warnings, r.Description, r.DocID)
	if err != nil {
		return fmt.Errorf("store: update document: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO trees (doc_id, tree_json, tree_no_text, node_map_json) VALUES ($1, $2, $3, $4)`,
		r.DocID, r.Tree.TreeJSON, r.Tree.TreeNoText, r.Tree.NodeMapJSON)
	if err != nil {
		return fmt.Errorf("store: insert tree: %w", err)
	}

	batch := &pgx.Batch{}
	for _, c := range r.Chunks {
		batch.Queue(
			`INSERT INTO chunks (doc_id, node_id, chunk_index, content, token_count, start_page, end_page, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			r.DocID, c.NodeID, c.ChunkIndex, c.Content, c.TokenCount, c.StartPage, c.EndPage, EncodeEmbedding(c.Embedding))
	}
	br := tx.SendBatch(ctx, batch)
	for range r.Chunks {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("store: insert chunk: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("store: close chunk batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit ingest tx: %w", err)
	}
	return nil
}

// GetDocument fetches a document by ID.
func (s *Store) GetDocument(ctx context.Context, docID string) (*Document, error) {
	var d Document
	var fiscalYear int
	err := s.pool.QueryRow(ctx,
		`SELECT id, company, ticker, fiscal_year, doc_type, filename, source_object_key,
		        page_count, total_tokens, node_count, chunk_count, status, error_message, warnings, description, ingest_timestamp
		 FROM documents WHERE id=$1`, docID).
		Scan(&d.ID, &d.Company, &d.Ticker, &fiscalYear, &d.DocType, &d.Filename, &d.SourceObjectKey,
			&d.PageCount, &d.TotalTokens, &d.NodeCount, &d.ChunkCount, &d.Status, &d.ErrorMessage, &d.Warnings, &d.Description, &d.IngestTimestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get document: %w", err)
	}
	d.FiscalYear = fiscalYear
	return &d, nil
}

// ListDocuments returns every document (spec.md §6 "GET /corpus").
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, company, ticker, fiscal_year, doc_type, filename, source_object_key,
		        page_count, total_tokens, node_count, chunk_count, status, error_message, warnings, description, ingest_timestamp
		 FROM documents ORDER BY ingest_timestamp DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Company, &d.Ticker, &d.FiscalYear, &d.DocType, &d.Filename, &d.SourceObjectKey,
			&d.PageCount, &d.TotalTokens, &d.NodeCount, &d.ChunkCount, &d.Status, &d.ErrorMessage, &d.Warnings, &d.Description, &d.IngestTimestamp); err != nil {
			return nil, fmt.Errorf("store: scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// SelectCandidates returns completed documents matching the given
// company/year metadata filters (spec.md §4.5.2). Empty filters match all
// completed documents.
func (s *Store) SelectCandidates(ctx context.Context, companies []string, years []int) ([]Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, company, ticker, fiscal_year, doc_type, filename, source_object_key,
		        page_count, total_tokens, node_count, chunk_count, status, error_message, warnings, ingest_timestamp
		 FROM documents
		 WHERE status = $1
		   AND ($2::text[] IS NULL OR ticker = ANY($2) OR company = ANY($2))
		   AND ($3::int[] IS NULL OR fiscal_year = ANY($3))`,
		StatusCompleted, nullableStrings(companies), nullableInts(years))
	if err != nil {
		return nil, fmt.Errorf("store: select candidates: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Company, &d.Ticker, &d.FiscalYear, &d.DocType, &d.Filename, &d.SourceObjectKey,
			&d.PageCount, &d.TotalTokens, &d.NodeCount, &d.ChunkCount, &d.Status, &d.ErrorMessage, &d.Warnings, &d.IngestTimestamp); err != nil {
			return nil, fmt.Errorf("store: scan candidate: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func nullableStrings(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func nullableInts(n []int) []int {
	if len(n) == 0 {
		return nil
	}
	return n
}

// GetTree fetches the derived tree structures for a document.
func (s *Store) GetTree(ctx context.Context, docID string) (*TreeRecord, error) {
	var r TreeRecord
	r.DocID = docID
	err := s.pool.QueryRow(ctx,
		`SELECT tree_json, tree_no_text, node_map_json FROM trees WHERE doc_id=$1`, docID).
		Scan(&r.TreeJSON, &r.TreeNoText, &r.NodeMapJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get tree: %w", err)
	}
	return &r, nil
}

// LoadChunkEmbeddings loads every chunk's embedding for a document into
// memory (spec.md §4.6 step 2; §5 "immutable after ingest, shared across
// concurrent readers").
func (s *Store) LoadChunkEmbeddings(ctx context.Context, docID string, dim int) ([]Chunk, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT node_id, chunk_index, content, token_count, start_page, end_page, embedding
		 FROM chunks WHERE doc_id=$1`, docID)
	if err != nil {
		return nil, fmt.Errorf("store: load chunk embeddings: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var blob []byte
		if err := rows.Scan(&c.NodeID, &c.ChunkIndex, &c.Content, &c.TokenCount, &c.StartPage, &c.EndPage, &blob); err != nil {
			return nil, fmt.Errorf("store: scan chunk: %w", err)
		}
		c.DocID = docID
		vec, err := DecodeEmbedding(blob, dim)
		if err != nil {
			return nil, err
		}
		c.Embedding = vec
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
