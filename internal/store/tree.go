package store

import (
	"github.com/bytedance/sonic"

	"github.com/hsn0918/filingtree/internal/tree"
)

// TreeRecord is the persisted form of a document's derived tree structures
// (spec.md §3 "Derived structures").
type TreeRecord struct {
	DocID        string
	TreeJSON     string
	TreeNoText   string
	NodeMapJSON  string
}

// BuildTreeRecord marshals a document's root nodes into the tree_json,
// tree_no_text, and node_map_json derived structures (spec.md §3, §4.2)
// using sonic for fast JSON encoding.
func BuildTreeRecord(docID string, roots []*tree.Node) (*TreeRecord, error) {
	treeJSON, err := sonic.MarshalString(roots)
	if err != nil {
		return nil, err
	}

	noText := tree.TreeNoText(roots)
	treeNoText, err := sonic.MarshalString(noText)
	if err != nil {
		return nil, err
	}

	nodeMap := tree.NodeMap(roots)
	nodeMapJSON, err := sonic.MarshalString(nodeMap)
	if err != nil {
		return nil, err
	}

	return &TreeRecord{
		DocID:       docID,
		TreeJSON:    treeJSON,
		TreeNoText:  treeNoText,
		NodeMapJSON: nodeMapJSON,
	}, nil
}

// DecodeNodeMap unmarshals a stored node_map_json back into a
// node_id -> *Node lookup table.
func DecodeNodeMap(nodeMapJSON string) (map[string]*tree.Node, error) {
	var m map[string]*tree.Node
	if err := sonic.UnmarshalString(nodeMapJSON, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// DecodeTreeNoText unmarshals a stored tree_no_text back into root nodes.
func DecodeTreeNoText(treeNoText string) ([]*tree.Node, error) {
	var roots []*tree.Node
	if err := sonic.UnmarshalString(treeNoText, &roots); err != nil {
		return nil, err
	}
	return roots, nil
}
