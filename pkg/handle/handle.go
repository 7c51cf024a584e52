// Package handle implements the Action Handle: the runtime envelope around
// one instantiated action, its worker goroutine, cooperative stop signal
// and completion channel.
package handle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/temoto-action-engine/actionengine/pkg/engineerr"
	"github.com/temoto-action-engine/actionengine/pkg/protocol"
	"github.com/temoto-action-engine/actionengine/pkg/umrf"
)

// Result is what a worker posts to the completion channel: either an empty
// success message or a stack-formed error string, mirroring the original
// engine's future value.
type Result struct {
	Message string
	Err     error
}

// ActionHandle wraps one instantiated node. It owns the worker goroutine
// and is the sole authority over the node's stop flag.
type ActionHandle struct {
	mu     sync.Mutex
	state  State
	id     uint64
	node   *umrf.UmrfNode
	loader protocol.Loader
	logger *logrus.Entry

	instance protocol.ActionInstance

	stopRequested bool
	done          chan struct{}
	ready         chan struct{}
	readyOnce     sync.Once
	resultCh      chan Result

	cancel context.CancelFunc
}

// New validates that node is *correct* (name and library_path non-empty)
// and returns a handle in the INITIALIZED state, or an error if the node
// descriptor itself is invalid.
func New(node *umrf.UmrfNode, loader protocol.Loader, logger *logrus.Entry) (*ActionHandle, error) {
	if !node.IsCorrect() {
		return nil, fmt.Errorf("action handle: node %q is not correct: name and library_path must be set", node.FullName())
	}

	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &ActionHandle{
		state:    Initialized,
		id:       node.ID,
		node:     node,
		loader:   loader,
		logger:   logger.WithFields(logrus.Fields{"handle": node.FullName(), "id": node.ID}),
		done:     make(chan struct{}),
		ready:    make(chan struct{}),
		resultCh: make(chan Result, 1),
	}, nil
}

func (h *ActionHandle) HandleID() uint64 { return h.id }

func (h *ActionHandle) ActionName() string { return h.node.FullName() }

func (h *ActionHandle) Effect() string { return h.node.Effect }

func (h *ActionHandle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.state
}

func (h *ActionHandle) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// InstantiateAction asks the external loader for a living implementation.
// On failure the handle moves to ERROR.
func (h *ActionHandle) InstantiateAction(ctx context.Context) error {
	instance, err := h.loader.Instantiate(ctx, h.node.LibraryPath, h.node)
	if err != nil {
		h.setState(Error)

		return engineerr.LoadLink(err, h.node.FullName())
	}

	h.mu.Lock()
	h.instance = instance
	h.mu.Unlock()

	return nil
}

// ExecuteActionThread spawns the single worker goroutine that runs the
// action body to completion and posts a Result to the completion channel.
// It sets state RUNNING before returning.
func (h *ActionHandle) ExecuteActionThread(ctx context.Context) error {
	h.mu.Lock()
	if h.instance == nil {
		h.mu.Unlock()

		return fmt.Errorf("execute action %q: action was never instantiated", h.node.FullName())
	}

	workerCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	instance := h.instance
	h.state = Running
	h.mu.Unlock()

	go h.run(workerCtx, instance)

	return nil
}

func (h *ActionHandle) run(ctx context.Context, instance protocol.ActionInstance) {
	defer close(h.done)

	result := h.execute(ctx, instance)

	h.mu.Lock()
	if h.state != Error {
		h.state = Finished
	}
	h.mu.Unlock()

	h.resultCh <- result
	h.readyOnce.Do(func() { close(h.ready) })
}

// execute recovers from a panicking action body, mirroring
// ActionBase::executeActionWrapped's catch-all.
func (h *ActionHandle) execute(ctx context.Context, instance protocol.ActionInstance) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{Err: fmt.Errorf("action %q panicked: %v", h.node.FullName(), r)}
		}
	}()

	if err := instance.Execute(ctx, h.actionOk); err != nil {
		return Result{Err: engineerr.Execution(err, h.node.FullName())}
	}

	return Result{}
}

// actionOk is the cooperative-cancellation predicate handed to the action
// body: true means "keep going".
func (h *ActionHandle) actionOk() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return !h.stopRequested
}

// UpdateUmrf replaces updatable input parameter values only. Non-updatable
// mismatches are ignored silently. If the action is running, its
// OnParameterUpdate hook fires after the update.
func (h *ActionHandle) UpdateUmrf(incoming *umrf.UmrfNode) bool {
	changed := h.node.UpdateInputParams(incoming)

	h.mu.Lock()
	running := h.state == Running
	instance := h.instance
	h.mu.Unlock()

	if changed && running && instance != nil {
		instance.OnParameterUpdate()
	}

	return changed
}

// StopAction sets the cooperative stop flag and waits up to timeout for the
// worker to exit. If it does not exit in time, the handle is force-
// transitioned to FINISHED with an error-carrying result; the worker is
// never killed and may still be running in the background.
func (h *ActionHandle) StopAction(timeout time.Duration) {
	h.mu.Lock()
	h.stopRequested = true
	if h.cancel != nil {
		h.cancel()
	}
	alreadyDone := h.state == Finished || h.state == Error || h.state == Uninitialized || h.state == Initialized
	h.mu.Unlock()

	if alreadyDone {
		return
	}

	select {
	case <-h.done:
	case <-time.After(timeout):
		h.logger.Warn("action did not stop within timeout, forcing FINISHED")
		h.mu.Lock()
		h.state = Finished
		h.mu.Unlock()

		h.resultCh <- Result{Err: fmt.Errorf("action %q did not stop within %s", h.node.FullName(), timeout)}
		h.readyOnce.Do(func() { close(h.ready) })
	}
}

// ClearAction joins the worker and drops the loaded implementation. If the
// worker was never started (rollback before ExecuteActionThread), there is
// nothing to join.
func (h *ActionHandle) ClearAction() {
	h.mu.Lock()
	started := h.instance != nil && h.cancel != nil
	h.mu.Unlock()

	if started {
		<-h.done
	}

	h.mu.Lock()
	h.instance = nil
	h.mu.Unlock()
}

// FutureIsReady is a non-blocking check that a result is available.
func (h *ActionHandle) FutureIsReady() bool {
	select {
	case <-h.ready:
		return true
	default:
		return false
	}
}

// GetFutureValue consumes the result from the completion channel. Callers
// must check FutureIsReady first; calling this before completion blocks.
func (h *ActionHandle) GetFutureValue() Result {
	return <-h.resultCh
}

// Node exposes the underlying descriptor, e.g. for parameter propagation.
func (h *ActionHandle) Node() *umrf.UmrfNode {
	return h.node
}
