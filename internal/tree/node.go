// Package tree builds, enriches, and chunks the hierarchical document tree
// described in spec.md §3 and implements Tree Builder (§4.1), Node
// Enricher (§4.2), and Chunker (§4.3).
package tree

// Node is a tree entity representing a contiguous page range of the
// source document (spec.md §3).
type Node struct {
	// NodeID is a zero-padded monotonic string assigned in depth-first
	// pre-order, globally unique within a document.
	NodeID string `json:"node_id"`
	// Title is the verbatim section title as inferred from the document.
	Title string `json:"title"`
	// StartIndex and EndIndex are inclusive 1-based page numbers;
	// StartIndex <= EndIndex.
	StartIndex int `json:"start_index"`
	EndIndex   int `json:"end_index"`
	// Summary is an LLM-generated abstract of the node's content, absent
	// only if enrichment was disabled.
	Summary string `json:"summary,omitempty"`
	// Text is the concatenated text of pages [StartIndex, EndIndex],
	// pruned to the node's own prefix when it has children.
	Text string `json:"text,omitempty"`
	// Nodes is the ordered sequence of child nodes; leaves have none.
	Nodes []*Node `json:"nodes,omitempty"`
	// Warnings accumulates non-fatal degradation notices attached to this
	// node during tree building (oversized-leaf fallback, accuracy check
	// rejection). ToC rejection is reported only in the Builder's
	// document-level warnings.
	Warnings []string `json:"warnings,omitempty"`
}

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool {
	return len(n.Nodes) == 0
}

// Walk visits n and every descendant in depth-first pre-order, calling fn
// on each. Walk stops early if fn returns false.
func (n *Node) Walk(fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, child := range n.Nodes {
		if !child.Walk(fn) {
			return false
		}
	}
	return true
}

// Count returns the number of nodes in the subtree rooted at n, n included.
func (n *Node) Count() int {
	count := 0
	n.Walk(func(*Node) bool {
		count++
		return true
	})
	return count
}

// Flatten returns every node in the subtree rooted at n in depth-first
// pre-order, n included.
func (n *Node) Flatten() []*Node {
	var out []*Node
	n.Walk(func(node *Node) bool {
		out = append(out, node)
		return true
	})
	return out
}

// StripText returns a deep copy of n with Text, StartIndex, and EndIndex
// removed from every node — the "tree_no_text" derived structure
// (spec.md §3, §4.2) used to fit LLM retrieval prompts.
func StripText(n *Node) *Node {
	stripped := &Node{
		NodeID:   n.NodeID,
		Title:    n.Title,
		Summary:  n.Summary,
		Warnings: n.Warnings,
	}
	for _, child := range n.Nodes {
		stripped.Nodes = append(stripped.Nodes, StripText(child))
	}
	return stripped
}

// NodeMap flattens a tree (or forest of roots) into a node_id -> *Node
// lookup table (spec.md §3 "node_map"), for O(1) retrieval access.
func NodeMap(roots []*Node) map[string]*Node {
	m := make(map[string]*Node)
	for _, root := range roots {
		for _, n := range root.Flatten() {
			m[n.NodeID] = n
		}
	}
	return m
}
