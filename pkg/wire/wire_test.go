package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temoto-action-engine/actionengine/pkg/diff"
	"github.com/temoto-action-engine/actionengine/pkg/umrf"
	"github.com/temoto-action-engine/actionengine/pkg/wire"
)

const validGraphJSON = `{
	"name": "linear",
	"nodes": [
		{
			"name": "root",
			"effect": "synchronous",
			"library_path": "/lib/root.so",
			"children": [{"name": "tail", "required": true}],
			"input_parameters": [{"name": "count", "type": "int", "value": "3"}]
		},
		{
			"name": "tail",
			"effect": "synchronous",
			"library_path": "/lib/tail.so",
			"parents": [{"name": "root", "required": true}]
		}
	]
}`

func TestDecodeGraphParsesAValidSubmission(t *testing.T) {
	name, nodes, err := wire.DecodeGraph([]byte(validGraphJSON))
	require.NoError(t, err)

	assert.Equal(t, "linear", name)
	require.Len(t, nodes, 2)

	root := nodes[0]
	assert.Equal(t, "root", root.Name)
	assert.Equal(t, "synchronous", root.Effect)
	assert.Equal(t, "/lib/root.so", root.LibraryPath)
	require.Len(t, root.Children, 1)
	assert.Equal(t, "tail", root.Children[0].Name)
	assert.True(t, root.Children[0].Required)

	count, ok := root.Input.Get("count")
	require.True(t, ok)
	assert.Equal(t, "3", string(count.Data))
}

func TestDecodeGraphRejectsMalformedJSON(t *testing.T) {
	_, _, err := wire.DecodeGraph([]byte(`{not json`))
	assert.Error(t, err)
}

func TestDecodeGraphRejectsMissingRequiredField(t *testing.T) {
	_, _, err := wire.DecodeGraph([]byte(`{"name": "missing-effect", "nodes": [
		{"name": "root", "library_path": "/lib/root.so"}
	]}`))
	assert.Error(t, err, "effect is required by both the schema and the struct tag")
}

func TestDecodeGraphRejectsUnknownEffect(t *testing.T) {
	_, _, err := wire.DecodeGraph([]byte(`{"name": "bad-effect", "nodes": [
		{"name": "root", "effect": "eventually", "library_path": "/lib/root.so"}
	]}`))
	assert.Error(t, err)
}

func TestDecodeGraphRejectsEmptyNodeList(t *testing.T) {
	_, _, err := wire.DecodeGraph([]byte(`{"name": "empty", "nodes": []}`))
	assert.Error(t, err)
}

func TestEncodeNodeRoundTripsThroughDecodeGraph(t *testing.T) {
	_, nodes, err := wire.DecodeGraph([]byte(validGraphJSON))
	require.NoError(t, err)

	raw, err := wire.EncodeNode(nodes[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"name":"root"`)
	assert.Contains(t, string(raw), `"library_path":"/lib/root.so"`)
}

func TestDecodeDiffsParsesEachOperationKind(t *testing.T) {
	raw := []byte(`[
		{"operation": "add_umrf", "umrf": {"name": "extra", "effect": "synchronous", "library_path": "/lib/extra.so"}},
		{"operation": "add_child", "parent_full_name": "root_0", "child": {"name": "extra", "required": false}},
		{"operation": "remove_child", "parent_full_name": "root_0", "child": {"name": "extra", "required": false}},
		{"operation": "remove_umrf", "umrf": {"name": "extra", "effect": "synchronous", "library_path": "/lib/extra.so"}}
	]`)

	diffs, err := wire.DecodeDiffs(raw)
	require.NoError(t, err)
	require.Len(t, diffs, 4)

	assert.Equal(t, diff.AddUmrf, diffs[0].Operation)
	assert.NotNil(t, diffs[0].Node)
	assert.Equal(t, diff.AddChild, diffs[1].Operation)
	assert.Equal(t, "root_0", diffs[1].ParentFullName)
	assert.Equal(t, umrf.Relation{Name: "extra", Required: false}, diffs[1].Child)
	assert.Equal(t, diff.RemoveChild, diffs[2].Operation)
	assert.Equal(t, diff.RemoveUmrf, diffs[3].Operation)
}

func TestDecodeDiffsRejectsUnknownOperation(t *testing.T) {
	_, err := wire.DecodeDiffs([]byte(`[{"operation": "teleport_umrf"}]`))
	assert.Error(t, err)
}

func TestDecodeDiffsRejectsAddChildWithoutParent(t *testing.T) {
	_, err := wire.DecodeDiffs([]byte(`[{"operation": "add_child", "child": {"name": "extra"}}]`))
	assert.Error(t, err, "add_child requires a parent_full_name")
}

func TestDecodeDiffsRejectsMalformedJSON(t *testing.T) {
	_, err := wire.DecodeDiffs([]byte(`not json`))
	assert.Error(t, err)
}
