package diff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/temoto-action-engine/actionengine/pkg/diff"
	"github.com/temoto-action-engine/actionengine/pkg/umrf"
)

func TestValidateAddUmrfRequiresANode(t *testing.T) {
	d := diff.GraphDiff{Operation: diff.AddUmrf}
	assert.Error(t, d.Validate())

	d.Node = umrf.NewUmrfNode("extra", "/lib/extra.so")
	assert.NoError(t, d.Validate())
}

func TestValidateRemoveUmrfRequiresANode(t *testing.T) {
	d := diff.GraphDiff{Operation: diff.RemoveUmrf}
	assert.Error(t, d.Validate())
}

func TestValidateAddChildRequiresParentAndChild(t *testing.T) {
	cases := []diff.GraphDiff{
		{Operation: diff.AddChild},
		{Operation: diff.AddChild, ParentFullName: "root_0"},
		{Operation: diff.AddChild, Child: umrf.Relation{Name: "extra"}},
	}

	for _, d := range cases {
		assert.Error(t, d.Validate())
	}

	valid := diff.GraphDiff{Operation: diff.AddChild, ParentFullName: "root_0", Child: umrf.Relation{Name: "extra"}}
	assert.NoError(t, valid.Validate())
}

func TestValidateRemoveChildRequiresParentAndChild(t *testing.T) {
	d := diff.GraphDiff{Operation: diff.RemoveChild, ParentFullName: "root_0"}
	assert.Error(t, d.Validate())
}

func TestValidateRejectsUnknownOperation(t *testing.T) {
	d := diff.GraphDiff{Operation: diff.Operation("teleport")}
	assert.Error(t, d.Validate())
}
