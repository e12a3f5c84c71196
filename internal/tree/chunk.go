package tree

import (
	"github.com/hsn0918/filingtree/internal/config"
	"github.com/hsn0918/filingtree/internal/tokenizer"
)

// ChunkResult is one token-bounded, overlapping text fragment split from a
// node's own text (spec.md §4.3).
type ChunkResult struct {
	NodeID     string
	ChunkIndex int
	Content    string
	TokenCount int
	StartPage  int
	EndPage    int
}

// Chunker splits each node's own text into overlapping token-bounded
// chunks, ruled entirely by the tokenizer adapter.
type Chunker struct {
	tok *tokenizer.Tokenizer
	cfg config.ChunkingConfig
}

// NewChunker constructs a Chunker.
func NewChunker(tok *tokenizer.Tokenizer, cfg config.ChunkingConfig) *Chunker {
	return &Chunker{tok: tok, cfg: cfg}
}

// ChunkTree splits every node's own text in the forest rooted at roots,
// returning chunks across all nodes in depth-first pre-order.
func (c *Chunker) ChunkTree(roots []*Node) []ChunkResult {
	var out []ChunkResult
	for _, root := range roots {
		for _, n := range root.Flatten() {
			out = append(out, c.ChunkNode(n)...)
		}
	}
	return out
}

// ChunkNode splits a single node's text into chunks (spec.md §4.3):
// max_tokens per chunk, overlap tokens carried into the next chunk,
// chunks shorter than min_tokens discarded, chunk_index 0-based, page
// range best-effort inherited from the node.
func (c *Chunker) ChunkNode(n *Node) []ChunkResult {
	if n.Text == "" {
		return nil
	}

	tokens := c.tok.Encode(n.Text)
	if len(tokens) == 0 {
		return nil
	}

	var chunks []ChunkResult
	step := c.cfg.MaxTokens - c.cfg.OverlapTokens
	if step <= 0 {
		step = c.cfg.MaxTokens
	}

	index := 0
	for start := 0; start < len(tokens); start += step {
		end := start + c.cfg.MaxTokens
		if end > len(tokens) {
			end = len(tokens)
		}

		segment := tokens[start:end]
		if len(segment) < c.cfg.MinTokens {
			break
		}

		chunks = append(chunks, ChunkResult{
			NodeID:     n.NodeID,
			ChunkIndex: index,
			Content:    c.tok.Decode(segment),
			TokenCount: len(segment),
			StartPage:  n.StartIndex,
			EndPage:    n.EndIndex,
		})
		index++

		if end == len(tokens) {
			break
		}
	}

	return chunks
}
