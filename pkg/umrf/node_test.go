package umrf_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temoto-action-engine/actionengine/pkg/umrf"
)

func TestUmrfNodeIsCorrect(t *testing.T) {
	n := umrf.NewUmrfNode("grasp", "/opt/actions/grasp.so")
	assert.True(t, n.IsCorrect())

	n.LibraryPath = ""
	assert.False(t, n.IsCorrect())
}

func TestRequiredParentsFinished(t *testing.T) {
	n := umrf.NewUmrfNode("move", "/opt/actions/move.so")
	n.Parents = []umrf.Relation{
		{Name: "sense", Suffix: 0, Required: true},
		{Name: "plan", Suffix: 0, Required: false},
	}

	assert.False(t, n.RequiredParentsFinished())

	ok := n.SetParentReceived(umrf.Relation{Name: "sense", Suffix: 0})
	require.True(t, ok)
	assert.True(t, n.RequiredParentsFinished())
}

func TestCopyInputParametersSatisfiesRequired(t *testing.T) {
	n := umrf.NewUmrfNode("place", "/opt/actions/place.so")
	n.Input.Set(umrf.Parameter{Name: "pose", Type: "geometry_msgs/Pose", Required: true})

	parentOut := umrf.NewParameterBag(umrf.Parameter{Name: "pose", Type: "geometry_msgs/Pose", Required: false, Data: []byte("{}")})
	assert.True(t, n.CopyInputParameters(parentOut))

	pose, ok := n.Input.Get("pose")
	require.True(t, ok)
	assert.Equal(t, []byte("{}"), pose.Data)
	assert.True(t, pose.Required, "copying a parent's output value must not overwrite the child's own Required flag")
}

func TestIsEqualStructuralNoUpdate(t *testing.T) {
	a := umrf.NewUmrfNode("grasp", "/opt/actions/grasp.so")
	a.Input.Set(umrf.Parameter{Name: "force", Type: "float", Required: true, Updatable: true})

	b := umrf.NewUmrfNode("grasp", "/opt/actions/grasp.so")
	b.Input.Set(umrf.Parameter{Name: "force", Type: "float", Required: true, Updatable: false})

	assert.True(t, a.IsEqual(b, false), "structural-no-update equality should ignore Updatable")
	assert.False(t, a.IsEqual(b, true), "update-aware equality should notice the Updatable mismatch")
}

func TestUpdateInputParamsOnlyUpdatesUpdatable(t *testing.T) {
	n := umrf.NewUmrfNode("grasp", "/opt/actions/grasp.so")
	n.Input.Set(umrf.Parameter{Name: "force", Type: "float", Updatable: true, Data: []byte("1")})
	n.Input.Set(umrf.Parameter{Name: "fixed", Type: "float", Updatable: false, Data: []byte("1")})

	incoming := umrf.NewUmrfNode("grasp", "/opt/actions/grasp.so")
	incoming.Input.Set(umrf.Parameter{Name: "force", Type: "float", Updatable: true, Data: []byte("2")})
	incoming.Input.Set(umrf.Parameter{Name: "fixed", Type: "float", Updatable: false, Data: []byte("2")})

	changed := n.UpdateInputParams(incoming)
	assert.True(t, changed)

	force, _ := n.Input.Get("force")
	fixed, _ := n.Input.Get("fixed")
	assert.Equal(t, []byte("2"), force.Data)
	assert.Equal(t, []byte("1"), fixed.Data)
}
