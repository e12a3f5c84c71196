package tree_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsn0918/filingtree/internal/config"
	"github.com/hsn0918/filingtree/internal/tokenizer"
	"github.com/hsn0918/filingtree/internal/tree"
)

func newTestChunker(t *testing.T) *tree.Chunker {
	t.Helper()
	tok, err := tokenizer.New()
	require.NoError(t, err)
	cfg := config.ChunkingConfig{MaxTokens: 32, OverlapTokens: 8, MinTokens: 4}
	return tree.NewChunker(tok, cfg)
}

func TestChunker_Idempotence(t *testing.T) {
	c := newTestChunker(t)
	n := &tree.Node{
		NodeID:     "0005",
		StartIndex: 3,
		EndIndex:   4,
		Text:       strings.Repeat("revenue grew year over year across all reportable segments. ", 20),
	}

	first := c.ChunkNode(n)
	second := c.ChunkNode(n)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Content, second[i].Content)
		assert.Equal(t, first[i].TokenCount, second[i].TokenCount)
		assert.Equal(t, i, first[i].ChunkIndex)
	}
}

func TestChunker_DiscardsUndersizedTrailingChunk(t *testing.T) {
	c := newTestChunker(t)
	n := &tree.Node{NodeID: "0001", StartIndex: 1, EndIndex: 1, Text: "short text"}

	chunks := c.ChunkNode(n)
	for _, ch := range chunks {
		assert.GreaterOrEqual(t, ch.TokenCount, 4)
	}
}

func TestChunker_EmptyText(t *testing.T) {
	c := newTestChunker(t)
	n := &tree.Node{NodeID: "0001", Text: ""}
	assert.Empty(t, c.ChunkNode(n))
}

func TestChunker_PageRangeInheritedFromNode(t *testing.T) {
	c := newTestChunker(t)
	n := &tree.Node{
		NodeID:     "0002",
		StartIndex: 7,
		EndIndex:   9,
		Text:       strings.Repeat("quarterly results reflect strong demand in all regions. ", 10),
	}

	chunks := c.ChunkNode(n)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.Equal(t, 7, ch.StartPage)
		assert.Equal(t, 9, ch.EndPage)
	}
}
