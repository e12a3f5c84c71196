package retrieval

import (
	"context"
	"strings"

	"github.com/hsn0918/filingtree/internal/store"
)

// Selector narrows the corpus to status=completed documents matching
// user-supplied and sub-question-derived metadata filters (spec.md §4.5
// step 2).
type Selector struct {
	db *store.Store
}

// NewSelector constructs a Selector.
func NewSelector(db *store.Store) *Selector {
	return &Selector{db: db}
}

// SelectForSubQuestion returns the completed documents matching the
// user-supplied companies/years (hard constraints) further narrowed by the
// sub-question's own target_company/target_year when present.
func (s *Selector) SelectForSubQuestion(ctx context.Context, sub SubQuestion, companies []string, years []int) ([]store.Document, error) {
	candidates, err := s.db.SelectCandidates(ctx, companies, years)
	if err != nil {
		return nil, err
	}

	if sub.TargetCompany == "" && sub.TargetYear == 0 {
		return candidates, nil
	}

	narrowed := make([]store.Document, 0, len(candidates))
	for _, d := range candidates {
		if sub.TargetCompany != "" && !matchesCompany(d, sub.TargetCompany) {
			continue
		}
		if sub.TargetYear != 0 && d.FiscalYear != sub.TargetYear {
			continue
		}
		narrowed = append(narrowed, d)
	}
	return narrowed, nil
}

func matchesCompany(d store.Document, target string) bool {
	target = strings.ToLower(strings.TrimSpace(target))
	return strings.ToLower(d.Ticker) == target || strings.ToLower(d.Company) == target
}
