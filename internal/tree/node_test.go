package tree_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsn0918/filingtree/internal/tree"
)

func buildSampleTree() []*tree.Node {
	return []*tree.Node{
		{
			NodeID: "0000", Title: "Item 1", StartIndex: 1, EndIndex: 10, Text: "prefix", Summary: "s0",
			Nodes: []*tree.Node{
				{NodeID: "0001", Title: "Item 1.1", StartIndex: 1, EndIndex: 5, Text: "leaf text", Summary: "s1"},
				{NodeID: "0002", Title: "Item 1.2", StartIndex: 6, EndIndex: 10, Text: "leaf text 2", Summary: "s2"},
			},
		},
		{NodeID: "0003", Title: "Item 2", StartIndex: 11, EndIndex: 20, Text: "another leaf", Summary: "s3"},
	}
}

func TestNode_Flatten_DepthFirstPreOrder(t *testing.T) {
	roots := buildSampleTree()

	var ids []string
	for _, r := range roots {
		for _, n := range r.Flatten() {
			ids = append(ids, n.NodeID)
		}
	}

	assert.Equal(t, []string{"0000", "0001", "0002", "0003"}, ids)
}

func TestNode_Count(t *testing.T) {
	roots := buildSampleTree()
	require.Equal(t, 3, roots[0].Count())
	require.Equal(t, 1, roots[1].Count())
}

func TestStripText_RemovesTextAndPages(t *testing.T) {
	roots := buildSampleTree()
	stripped := tree.StripText(roots[0])

	assert.Empty(t, stripped.Text)
	assert.Zero(t, stripped.StartIndex)
	assert.Zero(t, stripped.EndIndex)
	assert.Equal(t, "s0", stripped.Summary)
	require.Len(t, stripped.Nodes, 2)
	assert.Empty(t, stripped.Nodes[0].Text)
	assert.Equal(t, "s1", stripped.Nodes[0].Summary)
}

func TestNodeMap_KeyedByNodeID(t *testing.T) {
	roots := buildSampleTree()
	m := tree.NodeMap(roots)

	require.Len(t, m, 4)
	assert.Equal(t, "Item 1.1", m["0001"].Title)
	assert.Equal(t, "Item 2", m["0003"].Title)
}
