package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenizer_CountEncodeDecode(t *testing.T) {
	tok, err := New()
	require.NoError(t, err)

	text := "Apple Inc. reported revenue of $394.3 billion in fiscal year 2022."

	count := tok.Count(text)
	require.Greater(t, count, 0)

	tokens := tok.Encode(text)
	require.Len(t, tokens, count)

	decoded := tok.Decode(tokens)
	require.Equal(t, text, decoded)
}

func TestTokenizer_Deterministic(t *testing.T) {
	tok, err := New()
	require.NoError(t, err)

	text := "Net income attributable to shareholders increased 12% year over year."
	require.Equal(t, tok.Encode(text), tok.Encode(text))
	require.Equal(t, tok.Count(text), tok.Count(text))
}

func TestTokenizer_EmptyText(t *testing.T) {
	tok, err := New()
	require.NoError(t, err)

	require.Equal(t, 0, tok.Count(""))
	require.Empty(t, tok.Encode(""))
}
