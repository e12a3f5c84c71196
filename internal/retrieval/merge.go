package retrieval

// MergeDocument produces an ordered, deduplicated node-ID list for a
// single (sub-question, document) pair: LLM-search results first in their
// returned order, then value-search results in score order, skipping IDs
// already present (spec.md §4.8).
func MergeDocument(llmSearchIDs []string, valueSearchNodes []ScoredNode) []string {
	seen := make(map[string]bool, len(llmSearchIDs)+len(valueSearchNodes))
	out := make([]string, 0, len(llmSearchIDs)+len(valueSearchNodes))

	for _, id := range llmSearchIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	for _, n := range valueSearchNodes {
		if seen[n.NodeID] {
			continue
		}
		seen[n.NodeID] = true
		out = append(out, n.NodeID)
	}
	return out
}

// MergedHit is a node-ID result scoped to the document it came from,
// carried through to context extraction.
type MergedHit struct {
	DocID  string
	NodeID string
}

// MergeAll concatenates per-(sub-question, document) merged lists in
// (sub-question order, document order), applying the same dedup rule
// globally across the whole query (spec.md §4.8 "Across sub-questions").
func MergeAll(perPair [][]MergedHit) []MergedHit {
	seen := make(map[string]bool)
	var out []MergedHit
	for _, pair := range perPair {
		for _, hit := range pair {
			key := hit.DocID + "\x00" + hit.NodeID
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, hit)
		}
	}
	return out
}
