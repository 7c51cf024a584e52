package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temoto-action-engine/actionengine/pkg/graph"
	"github.com/temoto-action-engine/actionengine/pkg/protocol"
	"github.com/temoto-action-engine/actionengine/pkg/umrf"
)

type instantiateFailingLoader struct{}

func (instantiateFailingLoader) Instantiate(context.Context, string, *umrf.UmrfNode) (protocol.ActionInstance, error) {
	return nil, errors.New("no such library")
}

// TestRollbackPreservesTheFailedNodesErrorState guards against rollbackFn
// overwriting the ERROR state it is meant to roll back around: only the
// batch siblings that never failed should end up FINISHED.
func TestRollbackPreservesTheFailedNodesErrorState(t *testing.T) {
	a := umrf.NewUmrfNode("a", "/lib/a.so")
	a.Effect = "synchronous"
	b := umrf.NewUmrfNode("b", "/lib/b.so")
	b.Effect = "synchronous"

	exec := New(instantiateFailingLoader{})
	require.NoError(t, exec.AddUmrfGraph("batch", []*umrf.UmrfNode{a, b}))

	err := exec.ExecuteUmrfGraph(context.Background(), "batch")
	require.Error(t, err)

	exec.graphsLock.RLock()
	g := exec.graphs["batch"]
	exec.graphsLock.RUnlock()

	require.NotNil(t, g)
	assert.True(t, g.HasErrors(), "a batch where every handle failed to instantiate must still report HasErrors")
	assert.Equal(t, graph.Finished, g.CheckState(), "the graph itself still reaches a terminal state")
}
