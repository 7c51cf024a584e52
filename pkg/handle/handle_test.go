package handle_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temoto-action-engine/actionengine/pkg/handle"
	"github.com/temoto-action-engine/actionengine/pkg/protocol"
	"github.com/temoto-action-engine/actionengine/pkg/umrf"
)

type fakeInstance struct {
	run func(ctx context.Context, actionOk func() bool) error
}

func (f *fakeInstance) Execute(ctx context.Context, actionOk func() bool) error {
	return f.run(ctx, actionOk)
}

func (f *fakeInstance) OnParameterUpdate() {}

type fakeLoader struct {
	instance protocol.ActionInstance
	err      error
}

func (f *fakeLoader) Instantiate(context.Context, string, *umrf.UmrfNode) (protocol.ActionInstance, error) {
	return f.instance, f.err
}

func TestHandleHappyPath(t *testing.T) {
	node := umrf.NewUmrfNode("grasp", "/lib/grasp.so")
	node.Output.Set(umrf.Parameter{Name: "result"})

	instance := &fakeInstance{run: func(ctx context.Context, actionOk func() bool) error {
		return nil
	}}

	h, err := handle.New(node, &fakeLoader{instance: instance}, nil)
	require.NoError(t, err)
	assert.Equal(t, handle.Initialized, h.State())

	require.NoError(t, h.InstantiateAction(context.Background()))
	require.NoError(t, h.ExecuteActionThread(context.Background()))
	assert.Equal(t, handle.Running, h.State())

	require.Eventually(t, h.FutureIsReady, time.Second, time.Millisecond)
	result := h.GetFutureValue()
	assert.NoError(t, result.Err)
	assert.Equal(t, handle.Finished, h.State())
}

func TestHandleExecutionError(t *testing.T) {
	node := umrf.NewUmrfNode("grasp", "/lib/grasp.so")
	instance := &fakeInstance{run: func(ctx context.Context, actionOk func() bool) error {
		return errors.New("gripper jammed")
	}}

	h, err := handle.New(node, &fakeLoader{instance: instance}, nil)
	require.NoError(t, err)
	require.NoError(t, h.InstantiateAction(context.Background()))
	require.NoError(t, h.ExecuteActionThread(context.Background()))

	require.Eventually(t, h.FutureIsReady, time.Second, time.Millisecond)
	result := h.GetFutureValue()
	assert.Error(t, result.Err)
}

func TestHandleCooperativeStop(t *testing.T) {
	node := umrf.NewUmrfNode("loop", "/lib/loop.so")
	instance := &fakeInstance{run: func(ctx context.Context, actionOk func() bool) error {
		for actionOk() {
			time.Sleep(time.Millisecond)
		}

		return nil
	}}

	h, err := handle.New(node, &fakeLoader{instance: instance}, nil)
	require.NoError(t, err)
	require.NoError(t, h.InstantiateAction(context.Background()))
	require.NoError(t, h.ExecuteActionThread(context.Background()))

	h.StopAction(time.Second)
	assert.True(t, h.FutureIsReady())
}

func TestHandleRejectsIncorrectNode(t *testing.T) {
	node := umrf.NewUmrfNode("", "")
	_, err := handle.New(node, &fakeLoader{}, nil)
	assert.Error(t, err)
}

func TestUpdateUmrfOnlyUpdatesUpdatableParams(t *testing.T) {
	node := umrf.NewUmrfNode("grasp", "/lib/grasp.so")
	node.Input.Set(umrf.Parameter{Name: "force", Type: "float", Updatable: true, Data: []byte("1")})
	node.Input.Set(umrf.Parameter{Name: "fixed", Type: "float", Updatable: false, Data: []byte("1")})

	h, err := handle.New(node, &fakeLoader{}, nil)
	require.NoError(t, err)

	incoming := umrf.NewUmrfNode("grasp", "/lib/grasp.so")
	incoming.Input.Set(umrf.Parameter{Name: "force", Type: "float", Updatable: true, Data: []byte("2")})
	incoming.Input.Set(umrf.Parameter{Name: "fixed", Type: "float", Updatable: false, Data: []byte("2")})

	changed := h.UpdateUmrf(incoming)
	assert.True(t, changed)

	p, _ := node.Input.Get("force")
	assert.Equal(t, []byte("2"), p.Data)

	fixed, _ := node.Input.Get("fixed")
	assert.Equal(t, []byte("1"), fixed.Data)
}
