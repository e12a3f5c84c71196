package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hsn0918/filingtree/internal/store"
)

func TestMatchesCompany_TickerOrNameCaseInsensitive(t *testing.T) {
	doc := store.Document{Ticker: "AAPL", Company: "Apple Inc."}

	assert.True(t, matchesCompany(doc, "aapl"))
	assert.True(t, matchesCompany(doc, "Apple Inc."))
	assert.False(t, matchesCompany(doc, "MSFT"))
}
