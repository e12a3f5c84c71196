package retrieval

import (
	"context"
	"math"
	"sort"

	"github.com/hsn0918/filingtree/internal/embedding"
	"github.com/hsn0918/filingtree/internal/store"
)

// ScoredNode is one node-ID result with its aggregated similarity score.
type ScoredNode struct {
	NodeID     string
	Score      float64
	StartIndex int
}

// ChunkLoader loads a document's chunk embeddings into memory. Satisfied
// by *store.Store; abstracted so ValueSearch can be tested without a live
// database.
type ChunkLoader interface {
	LoadChunkEmbeddings(ctx context.Context, docID string, dim int) ([]store.Chunk, error)
}

// ValueSearch scores a document's chunks by embedding-cosine similarity to
// a sub-question and aggregates them to nodes (spec.md §4.6).
type ValueSearch struct {
	embedder *embedding.Adapter
	chunks   ChunkLoader
	topK     int
}

// NewValueSearch constructs a ValueSearch engine.
func NewValueSearch(embedder *embedding.Adapter, chunks ChunkLoader, topK int) *ValueSearch {
	return &ValueSearch{embedder: embedder, chunks: chunks, topK: topK}
}

// Search embeds the sub-question, loads the document's chunk embeddings,
// scores every chunk by cosine similarity, aggregates to nodes via
// NodeScore(n) = (1/√(N_n+1))·Σs, and returns the top-K nodes in
// descending score order, ties broken by lower start_index.
func (v *ValueSearch) Search(ctx context.Context, subQuestion, docID string) ([]ScoredNode, error) {
	vectors, err := v.embedder.Embed(ctx, []string{subQuestion})
	if err != nil {
		return nil, err
	}
	query := vectors[0]

	chunks, err := v.chunks.LoadChunkEmbeddings(ctx, docID, v.embedder.Dim())
	if err != nil {
		return nil, err
	}

	type nodeAgg struct {
		sum        float64
		count      int
		startIndex int
	}
	aggs := make(map[string]*nodeAgg)

	for _, c := range chunks {
		s := cosineSimilarity(query, c.Embedding)
		a, ok := aggs[c.NodeID]
		if !ok {
			a = &nodeAgg{startIndex: c.StartPage}
			aggs[c.NodeID] = a
		}
		a.sum += s
		a.count++
		if c.StartPage < a.startIndex {
			a.startIndex = c.StartPage
		}
	}

	scored := make([]ScoredNode, 0, len(aggs))
	for nodeID, a := range aggs {
		score := a.sum / math.Sqrt(float64(a.count)+1)
		scored = append(scored, ScoredNode{NodeID: nodeID, Score: score, StartIndex: a.startIndex})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].StartIndex < scored[j].StartIndex
	})

	if len(scored) > v.topK {
		scored = scored[:v.topK]
	}
	return scored, nil
}

// cosineSimilarity computes the cosine similarity of two equal-length
// vectors. Returns 0 for a zero-magnitude vector.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
