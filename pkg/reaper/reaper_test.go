package reaper_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temoto-action-engine/actionengine/pkg/reaper"
)

// countingExecutor counts ReapOnce calls so tests can assert on cadence
// without depending on pkg/executor.
type countingExecutor struct {
	mu    sync.Mutex
	calls int
}

func (c *countingExecutor) ReapOnce(context.Context) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *countingExecutor) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.calls
}

func TestStartSweepsOnScheduleAndStopHaltsIt(t *testing.T) {
	exec := &countingExecutor{}
	r := reaper.New(exec, nil)

	require.NoError(t, r.Start(context.Background()))

	assert.Eventually(t, func() bool { return exec.count() >= 1 }, 5*time.Second, 10*time.Millisecond)

	r.Stop()

	afterStop := exec.count()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, afterStop, exec.count(), "no further sweeps after Stop")
}

func TestStartIsIdempotent(t *testing.T) {
	exec := &countingExecutor{}
	r := reaper.New(exec, nil)

	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Start(context.Background()))

	assert.Eventually(t, func() bool { return exec.count() >= 1 }, 5*time.Second, 10*time.Millisecond)

	r.Stop()
}

func TestStopWithoutStartIsANoOp(t *testing.T) {
	exec := &countingExecutor{}
	r := reaper.New(exec, nil)

	assert.NotPanics(t, func() { r.Stop() })
	assert.Equal(t, 0, exec.count())
}

func TestStopAllowsRestart(t *testing.T) {
	exec := &countingExecutor{}
	r := reaper.New(exec, nil)

	require.NoError(t, r.Start(context.Background()))
	assert.Eventually(t, func() bool { return exec.count() >= 1 }, 5*time.Second, 10*time.Millisecond)
	r.Stop()

	require.NoError(t, r.Start(context.Background()))
	assert.Eventually(t, func() bool { return exec.count() >= 2 }, 5*time.Second, 10*time.Millisecond)
	r.Stop()
}
