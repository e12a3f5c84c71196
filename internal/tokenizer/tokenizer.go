// Package tokenizer provides the byte-pair tokenizer adapter: the sole
// ruler for every token budget in the system (spec.md §4.9).
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// defaultEncoding is the BPE encoding used for token counting across the
// tree builder, chunker, and retrieval context packing. cl100k_base is the
// encoding used by the chat-completion models this system targets.
const defaultEncoding = "cl100k_base"

// Tokenizer counts and segments text by byte-pair tokens. Deterministic:
// identical input always yields identical output.
type Tokenizer struct {
	encoding *tiktoken.Tiktoken
}

// New constructs a Tokenizer using the default BPE encoding.
func New() (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(defaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: load encoding %q: %w", defaultEncoding, err)
	}
	return &Tokenizer{encoding: enc}, nil
}

// Count returns the number of tokens text encodes to.
func (t *Tokenizer) Count(text string) int {
	return len(t.Encode(text))
}

// Encode returns text's token IDs.
func (t *Tokenizer) Encode(text string) []int {
	return t.encoding.Encode(text, nil, nil)
}

// Decode reconstitutes text from token IDs.
func (t *Tokenizer) Decode(tokens []int) string {
	return t.encoding.Decode(tokens)
}
