package retrieval_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hsn0918/filingtree/internal/retrieval"
)

// TestMergeDocument_HybridPrecedence covers spec.md §8 scenario 5: LLM
// search returns ["0007","0012"], value search returns
// [("0012", 0.9), ("0005", 0.7)]; merged order must be ["0007","0012","0005"].
func TestMergeDocument_HybridPrecedence(t *testing.T) {
	llmResults := []string{"0007", "0012"}
	valueResults := []retrieval.ScoredNode{
		{NodeID: "0012", Score: 0.9},
		{NodeID: "0005", Score: 0.7},
	}

	merged := retrieval.MergeDocument(llmResults, valueResults)

	assert.Equal(t, []string{"0007", "0012", "0005"}, merged)
}

func TestMergeDocument_NoDuplicates(t *testing.T) {
	llmResults := []string{"0001", "0002", "0001"}
	valueResults := []retrieval.ScoredNode{{NodeID: "0002"}, {NodeID: "0003"}}

	merged := retrieval.MergeDocument(llmResults, valueResults)

	seen := make(map[string]bool)
	for _, id := range merged {
		assert.False(t, seen[id], "duplicate node id %s", id)
		seen[id] = true
	}
	assert.Equal(t, []string{"0001", "0002", "0003"}, merged)
}

func TestMergeAll_ConcatenatesInSubQuestionAndDocumentOrderWithGlobalDedup(t *testing.T) {
	perPair := [][]retrieval.MergedHit{
		{{DocID: "docA", NodeID: "0001"}, {DocID: "docB", NodeID: "0001"}},
		{{DocID: "docA", NodeID: "0001"}, {DocID: "docA", NodeID: "0002"}},
	}

	merged := retrieval.MergeAll(perPair)

	assert.Equal(t, []retrieval.MergedHit{
		{DocID: "docA", NodeID: "0001"},
		{DocID: "docB", NodeID: "0001"},
		{DocID: "docA", NodeID: "0002"},
	}, merged)
}
