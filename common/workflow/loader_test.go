package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestNormalize_HoistsChildrenIntoSubworkflow(t *testing.T) {
	def := &Definition{
		Nodes: []Node{
			{ID: "input", NodeType: TypeInput},
			{ID: "group", NodeType: TypeSubworkflow, Config: map[string]any{"label": "inner"}},
			{ID: "child_in", NodeType: TypeInput, ParentID: strPtr("group")},
			{ID: "child_out", NodeType: TypeOutput, ParentID: strPtr("group")},
			{ID: "output", NodeType: TypeOutput},
		},
		Links: []Link{
			{SourceID: "input", TargetID: "group"},
			{SourceID: "child_in", TargetID: "child_out"},
			{SourceID: "group", TargetID: "output"},
		},
	}

	normalized, err := Normalize(def)
	require.NoError(t, err)

	for _, n := range normalized.Nodes {
		assert.Nil(t, n.ParentID, "node %s should have no parent after normalization", n.ID)
	}
	assert.Len(t, normalized.Nodes, 3)
	assert.Len(t, normalized.Links, 2)

	group, ok := normalized.Node("group")
	require.True(t, ok)
	assert.Equal(t, "inner", group.Config["label"], "existing config must be merged, not replaced")

	subMap, ok := group.Config["subworkflow"].(map[string]any)
	require.True(t, ok, "children must be folded under config.subworkflow")

	sub, err := FromMap(subMap)
	require.NoError(t, err)
	assert.Len(t, sub.Nodes, 2)
	require.Len(t, sub.Links, 1)
	assert.Equal(t, "child_in", sub.Links[0].SourceID)
	assert.Equal(t, "child_out", sub.Links[0].TargetID)
}

func TestNormalize_DropsBoundaryCrossingLinks(t *testing.T) {
	def := &Definition{
		Nodes: []Node{
			{ID: "input", NodeType: TypeInput},
			{ID: "group", NodeType: TypeSubworkflow},
			{ID: "child", NodeType: "EchoNode", ParentID: strPtr("group")},
		},
		Links: []Link{
			{SourceID: "input", TargetID: "group"},
			{SourceID: "input", TargetID: "child"}, // crosses the parent boundary
		},
	}

	normalized, err := Normalize(def)
	require.NoError(t, err)
	require.Len(t, normalized.Links, 1)
	assert.Equal(t, "group", normalized.Links[0].TargetID)
}

func TestNormalize_EveryChildLinkLandsInExactlyOneParent(t *testing.T) {
	def := &Definition{
		Nodes: []Node{
			{ID: "input", NodeType: TypeInput},
			{ID: "a", NodeType: TypeSubworkflow},
			{ID: "b", NodeType: TypeSubworkflow},
			{ID: "a1", NodeType: TypeInput, ParentID: strPtr("a")},
			{ID: "a2", NodeType: TypeOutput, ParentID: strPtr("a")},
			{ID: "b1", NodeType: TypeInput, ParentID: strPtr("b")},
			{ID: "b2", NodeType: TypeOutput, ParentID: strPtr("b")},
		},
		Links: []Link{
			{SourceID: "a1", TargetID: "a2"},
			{SourceID: "b1", TargetID: "b2"},
		},
	}

	normalized, err := Normalize(def)
	require.NoError(t, err)
	assert.Empty(t, normalized.Links)

	count := map[string]int{}
	for _, id := range []string{"a", "b"} {
		n, ok := normalized.Node(id)
		require.True(t, ok)
		subMap := n.Config["subworkflow"].(map[string]any)
		sub, err := FromMap(subMap)
		require.NoError(t, err)
		for _, l := range sub.Links {
			count[l.SourceID+"->"+l.TargetID]++
		}
	}
	assert.Equal(t, map[string]int{"a1->a2": 1, "b1->b2": 1}, count)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		def  *Definition
		want string
	}{
		{
			name: "missing link target",
			def: &Definition{
				Nodes: []Node{{ID: "input", NodeType: TypeInput}},
				Links: []Link{{SourceID: "input", TargetID: "ghost"}},
			},
			want: "does not resolve",
		},
		{
			name: "router link without handle",
			def: &Definition{
				Nodes: []Node{
					{ID: "input", NodeType: TypeInput},
					{ID: "router", NodeType: TypeRouter},
					{ID: "sink", NodeType: TypeOutput},
				},
				Links: []Link{
					{SourceID: "input", TargetID: "router"},
					{SourceID: "router", TargetID: "sink"},
				},
			},
			want: "no source_handle",
		},
		{
			name: "cycle",
			def: &Definition{
				Nodes: []Node{
					{ID: "input", NodeType: TypeInput},
					{ID: "a", NodeType: "EchoNode"},
					{ID: "b", NodeType: "EchoNode"},
				},
				Links: []Link{
					{SourceID: "input", TargetID: "a"},
					{SourceID: "a", TargetID: "b"},
					{SourceID: "b", TargetID: "a"},
				},
			},
			want: "cycle",
		},
		{
			name: "no input node",
			def: &Definition{
				Nodes: []Node{{ID: "a", NodeType: TypeOutput}},
			},
			want: "exactly one InputNode",
		},
		{
			name: "multiple input nodes",
			def: &Definition{
				Nodes: []Node{
					{ID: "a", NodeType: TypeInput},
					{ID: "b", NodeType: TypeInput},
				},
			},
			want: "exactly one InputNode",
		},
		{
			name: "duplicate node id",
			def: &Definition{
				Nodes: []Node{
					{ID: "a", NodeType: TypeInput},
					{ID: "a", NodeType: TypeOutput},
				},
			},
			want: "duplicate node id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.def)
			require.Error(t, err)
			var ig *InvalidGraphError
			require.ErrorAs(t, err, &ig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_RejectsMalformedDocuments(t *testing.T) {
	_, err := Parse([]byte(`{"nodes": [{"title": "missing id and type"}]}`))
	require.Error(t, err)
	var ig *InvalidGraphError
	assert.ErrorAs(t, err, &ig)

	_, err = Parse([]byte(`not json`))
	assert.Error(t, err)
}

func TestParse_AcceptsDocumentWithTestInputs(t *testing.T) {
	doc := []byte(`{
		"nodes": [
			{"id": "input_node", "title": "", "node_type": "InputNode", "config": {"output_schema": {"question": "string"}}},
			{"id": "output_node", "title": "", "node_type": "OutputNode", "config": {}}
		],
		"links": [{"source_id": "input_node", "target_id": "output_node"}],
		"test_inputs": [{"question": "Is altruism inherently selfish?"}]
	}`)

	def, err := Parse(doc)
	require.NoError(t, err)
	assert.Len(t, def.Nodes, 2)
	assert.Len(t, def.TestInputs, 1)
	require.NoError(t, Validate(def))
}

func TestDescendants(t *testing.T) {
	def := &Definition{
		Nodes: []Node{
			{ID: "input", NodeType: TypeInput},
			{ID: "a", NodeType: "EchoNode"},
			{ID: "b", NodeType: "EchoNode"},
			{ID: "c", NodeType: "EchoNode"},
		},
		Links: []Link{
			{SourceID: "input", TargetID: "a"},
			{SourceID: "a", TargetID: "b"},
			{SourceID: "input", TargetID: "c"},
		},
	}

	got := Descendants(def, "a")
	assert.Equal(t, map[string]struct{}{"b": {}}, got)

	got = Descendants(def, "input")
	assert.Len(t, got, 3)
}
