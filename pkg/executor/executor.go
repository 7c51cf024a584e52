// Package executor implements the Action Executor: the scheduler that
// owns every live graph and handle, performs transactional activation,
// reacts to worker completion via NotifyFinished, and applies live
// GraphDiff mutations. See spec §4.3.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/temoto-action-engine/actionengine/pkg/diff"
	"github.com/temoto-action-engine/actionengine/pkg/engineerr"
	"github.com/temoto-action-engine/actionengine/pkg/eventbus"
	"github.com/temoto-action-engine/actionengine/pkg/graph"
	"github.com/temoto-action-engine/actionengine/pkg/handle"
	"github.com/temoto-action-engine/actionengine/pkg/otelhelper"
	"github.com/temoto-action-engine/actionengine/pkg/protocol"
	"github.com/temoto-action-engine/actionengine/pkg/umrf"
)

// StopTimeout bounds how long StopAndCleanup and StopUmrfGraph wait for a
// worker's cooperative exit before forcing the handle to FINISHED.
const StopTimeout = 4 * time.Second

// ActionExecutor owns handles and graphs and is the sole mutator of both.
// Lock acquisition order is always handlesLock before graphsLock.
type ActionExecutor struct {
	handlesLock sync.RWMutex
	handles     map[uint64]*handle.ActionHandle

	graphsLock sync.RWMutex
	graphs     map[string]*graph.UmrfGraph

	idLock sync.Mutex
	nextID uint64

	loader protocol.Loader
	bus    eventbus.EventBus
	tracer trace.Tracer
	logger *logrus.Entry
}

// Option configures an ActionExecutor at construction.
type Option func(*ActionExecutor)

func WithEventBus(bus eventbus.EventBus) Option {
	return func(e *ActionExecutor) { e.bus = bus }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *ActionExecutor) { e.tracer = tracer }
}

func WithLogger(logger *logrus.Entry) Option {
	return func(e *ActionExecutor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New builds an executor bound to a Loader, the only required
// collaborator.
func New(loader protocol.Loader, opts ...Option) *ActionExecutor {
	e := &ActionExecutor{
		handles: make(map[uint64]*handle.ActionHandle),
		graphs:  make(map[string]*graph.UmrfGraph),
		loader:  loader,
		bus:     eventbus.NoOp{},
		logger:  logrus.NewEntry(logrus.StandardLogger()),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *ActionExecutor) createID() uint64 {
	e.idLock.Lock()
	defer e.idLock.Unlock()
	e.nextID++

	return e.nextID
}

// GetActionCount returns the live handle count.
func (e *ActionExecutor) GetActionCount() int {
	e.handlesLock.RLock()
	defer e.handlesLock.RUnlock()

	return len(e.handles)
}

// IsActive reports whether any handle is RUNNING.
func (e *ActionExecutor) IsActive() bool {
	e.handlesLock.RLock()
	defer e.handlesLock.RUnlock()

	for _, h := range e.handles {
		if h.State() == handle.Running {
			return true
		}
	}

	return false
}

func (e *ActionExecutor) graphExistsLocked(name string) bool {
	_, ok := e.graphs[name]

	return ok
}

// GraphExists reports whether a graph with the given name is currently
// held by the executor.
func (e *ActionExecutor) GraphExists(name string) bool {
	e.graphsLock.RLock()
	defer e.graphsLock.RUnlock()

	return e.graphExistsLocked(name)
}

// GraphDescriptor dumps one graph's descriptor along with whether it has
// reached FINISHED, letting a caller grab it before the reaper sweeps it
// away. ok is false if the graph is no longer held at all.
func (e *ActionExecutor) GraphDescriptor(name string) (descriptor string, finished bool, ok bool) {
	e.graphsLock.RLock()
	defer e.graphsLock.RUnlock()

	g, exists := e.graphs[name]
	if !exists {
		return "", false, false
	}

	return g.String(), g.CheckState() == graph.Finished, true
}

// AddUmrfGraph admits a new graph: rejects a duplicate name, assigns ids to
// every node, constructs the graph, and rejects it if construction did not
// reach INITIALIZED. Per DESIGN.md Open Question #3, "already exists" is
// an actual rejection, not a swallowed error.
func (e *ActionExecutor) AddUmrfGraph(name string, nodes []*umrf.UmrfNode) error {
	e.graphsLock.Lock()
	defer e.graphsLock.Unlock()

	if e.graphExistsLocked(name) {
		return engineerr.Validation("umrf graph %q is already added", name)
	}

	for _, n := range nodes {
		n.ID = e.createID()
	}

	g, err := graph.New(name, nodes, e.logger)
	if err != nil {
		return engineerr.Validation("cannot construct umrf graph %q: %v", name, err)
	}

	if g.State() != graph.Initialized {
		return engineerr.Validation("cannot add umrf graph %q because it's uninitialized", name)
	}

	e.graphs[name] = g
	e.logger.WithField("graph", name).Info("umrf graph added")
	e.bus.Publish(eventbus.Event{Kind: eventbus.GraphAdmitted, GraphName: name})

	return nil
}

// ExecuteUmrfGraph fails if the named graph does not exist or is not
// INITIALIZED; otherwise it activates every root node, requiring all of
// them to initialize successfully.
func (e *ActionExecutor) ExecuteUmrfGraph(ctx context.Context, name string) error {
	e.handlesLock.Lock()
	defer e.handlesLock.Unlock()
	e.graphsLock.Lock()
	defer e.graphsLock.Unlock()

	g, ok := e.graphs[name]
	if !ok {
		return engineerr.Validation("cannot execute umrf graph %q because it doesn't exist", name)
	}

	if g.State() != graph.Initialized {
		return engineerr.Validation("cannot execute umrf graph %q because it's not in initialized state", name)
	}

	ctx, span := e.startSpan(ctx, "execute_umrf_graph", attribute.String(otelhelper.GraphNameKey, name))
	defer span.End()

	roots := g.Roots()

	if err := e.executeByIDLocked(ctx, roots, g, true); err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	e.bus.Publish(eventbus.Event{Kind: eventbus.GraphActivated, GraphName: name})

	return nil
}

// executeByIDLocked is the single transactional activation primitive used
// for both root launch and child activation (spec §4.3.2). Callers must
// already hold handlesLock and graphsLock.
func (e *ActionExecutor) executeByIDLocked(ctx context.Context, ids []uint64, g *graph.UmrfGraph, initializedRequired bool) error {
	rollback := make([]uint64, 0, len(ids))
	buffered := make(map[uint64]*handle.ActionHandle, len(ids))

	// Phase 1: handle creation.
	for _, id := range ids {
		node, ok := g.NodeOf(id)
		if !ok {
			continue
		}

		h, err := handle.New(node, e.loader, e.logger)
		if err != nil {
			if initializedRequired {
				return engineerr.Validation("cannot execute the actions because all actions were not fully initialized: %v", err)
			}

			continue
		}

		buffered[id] = h
		rollback = append(rollback, id)
	}

	for id, h := range buffered {
		e.handles[id] = h
	}

	rollbackFn := func(cause error) error {
		e.logger.WithError(cause).Warn("rolling back activation batch")

		for _, id := range rollback {
			if h, ok := e.handles[id]; ok {
				h.ClearAction()
				delete(e.handles, id)
			}

			// The handle that actually failed was already moved to ERROR by
			// the caller; only the rest of the batch gets rolled back to
			// FINISHED. Overwriting it here would hide the failure from
			// HasErrors() and graph dumps.
			if st, ok := g.NodeState(id); !ok || st != graph.NodeError {
				g.SetNodeFinished(id)
			}
		}

		return engineerr.Wrap("activation", cause)
	}

	// Phase 2: instantiation.
	for id := range buffered {
		h := e.handles[id]

		if err := h.InstantiateAction(ctx); err != nil {
			g.SetNodeError(id)

			return rollbackFn(err)
		}
	}

	// Phase 3: execution.
	for id := range buffered {
		h := e.handles[id]

		if err := h.ExecuteActionThread(ctx); err != nil {
			g.SetNodeError(id)

			return rollbackFn(err)
		}

		g.SetNodeActive(id)
	}

	return nil
}

// NotifyFinished is invoked once per handle, concretely by the reaper once
// a worker's future is ready. It propagates parent outputs into every
// child's input bag, marks the relation received, and activates children
// whose required parents have all fired.
func (e *ActionExecutor) NotifyFinished(ctx context.Context, parentID uint64, parentOutput *umrf.ParameterBag) error {
	e.handlesLock.Lock()
	defer e.handlesLock.Unlock()
	e.graphsLock.Lock()
	defer e.graphsLock.Unlock()

	return e.notifyFinishedLocked(ctx, parentID, parentOutput)
}

// notifyFinishedLocked is NotifyFinished's body, callable by any method
// that already holds both locks (ReapOnce, in particular).
func (e *ActionExecutor) notifyFinishedLocked(ctx context.Context, parentID uint64, parentOutput *umrf.ParameterBag) error {
	for _, g := range e.graphs {
		if g.CheckState() != graph.Active || !g.PartOfGraphID(parentID) {
			continue
		}

		children := g.ChildrenOf(parentID)
		if len(children) == 0 {
			continue
		}

		parentNode, ok := g.NodeOf(parentID)
		if !ok {
			continue
		}

		parentRelation := parentNode.AsRelation()

		ready := make([]uint64, 0, len(children))

		for _, childID := range children {
			childNode, ok := g.NodeOf(childID)
			if !ok {
				continue
			}

			childNode.CopyInputParameters(parentOutput)
			childNode.SetParentReceived(parentRelation)

			if childNode.RequiredParentsFinished() {
				ready = append(ready, childID)
			}
		}

		if len(ready) == 0 {
			continue
		}

		if err := e.executeByIDLocked(ctx, ready, g, false); err != nil {
			return fmt.Errorf("notify_finished: %w", err)
		}
	}

	return nil
}

// ModifyGraph applies a sequence of GraphDiffs to a live graph. Every diff
// is validated against the graph's current contents before any is applied
// (all-or-nothing).
func (e *ActionExecutor) ModifyGraph(name string, diffs []diff.GraphDiff) error {
	e.handlesLock.Lock()
	defer e.handlesLock.Unlock()
	e.graphsLock.Lock()
	defer e.graphsLock.Unlock()

	g, ok := e.graphs[name]
	if !ok {
		return engineerr.Validation("cannot modify graph %q because it does not exist", name)
	}

	for _, d := range diffs {
		switch d.Operation {
		case diff.AddUmrf:
			if g.PartOfGraphName(d.Node.FullName()) {
				return engineerr.Validation("cannot add umrf %q, already part of graph %q", d.Node.FullName(), name)
			}
		default:
			fullName := diffTargetName(d)
			if !g.PartOfGraphName(fullName) {
				return engineerr.Validation("cannot perform operation %q because graph %q does not contain node %q", d.Operation, name, fullName)
			}
		}
	}

	for _, d := range diffs {
		e.logger.WithFields(logrus.Fields{"graph": name, "operation": d.Operation}).Info("applying graph diff")

		switch d.Operation {
		case diff.AddUmrf:
			d.Node.ID = e.createID()
			if err := g.AddNode(d.Node); err != nil {
				return engineerr.Wrap("modify_graph", err)
			}
		case diff.RemoveUmrf:
			id, err := g.RemoveNode(d.Node.AsRelation())
			if err != nil {
				return engineerr.Wrap("modify_graph", err)
			}

			e.stopActionLocked(id)
		case diff.AddChild:
			if err := g.AddChildRelation(d.ParentFullName, d.Child); err != nil {
				return engineerr.Wrap("modify_graph", err)
			}
		case diff.RemoveChild:
			if err := g.RemoveChildRelation(d.ParentFullName, d.Child); err != nil {
				return engineerr.Wrap("modify_graph", err)
			}
		default:
			return engineerr.Validation("no such operation as %q", d.Operation)
		}
	}

	e.bus.Publish(eventbus.Event{Kind: eventbus.GraphMutated, GraphName: name})

	return nil
}

func diffTargetName(d diff.GraphDiff) string {
	if d.Operation == diff.AddChild || d.Operation == diff.RemoveChild {
		return d.ParentFullName
	}

	return d.Node.FullName()
}

// UpdateUmrfGraph accepts a replacement node list only if it is
// structurally equal (under structural-no-update equality) to the
// existing graph, one-to-one, then propagates updatable parameter values
// into any handle still running.
func (e *ActionExecutor) UpdateUmrfGraph(name string, nodes []*umrf.UmrfNode) error {
	e.handlesLock.Lock()
	defer e.handlesLock.Unlock()
	e.graphsLock.Lock()
	defer e.graphsLock.Unlock()

	g, ok := e.graphs[name]
	if !ok {
		return engineerr.Validation("could not find umrf graph %q", name)
	}

	existing := g.Nodes()
	if len(nodes) != len(existing) {
		return engineerr.StructuralUpdate("could not update umrf graph %q because umrf sizes do not match", name)
	}

	for _, existingNode := range existing {
		found := false

		for _, incoming := range nodes {
			if existingNode.IsEqual(incoming, false) {
				found = true

				break
			}
		}

		if !found {
			return engineerr.StructuralUpdate("could not update umrf graph %q because incoming graph does not contain umrf %q", name, existingNode.FullName())
		}
	}

	for _, incoming := range nodes {
		id, ok := g.NodeID(incoming.FullName())
		if !ok {
			continue
		}

		h, ok := e.handles[id]
		if !ok {
			// Handle has already finished execution.
			continue
		}

		h.UpdateUmrf(incoming)
	}

	return nil
}

// StopAction clears and erases the handle if present; missing ids are
// ignored (idempotent).
func (e *ActionExecutor) StopAction(id uint64) {
	e.handlesLock.Lock()
	defer e.handlesLock.Unlock()
	e.stopActionLocked(id)
}

func (e *ActionExecutor) stopActionLocked(id uint64) {
	h, ok := e.handles[id]
	if !ok {
		return
	}

	h.ClearAction()
	delete(e.handles, id)
}

// StopUmrfGraph stops every node's handle and erases the graph.
func (e *ActionExecutor) StopUmrfGraph(name string) error {
	e.handlesLock.Lock()
	defer e.handlesLock.Unlock()
	e.graphsLock.Lock()
	defer e.graphsLock.Unlock()

	g, ok := e.graphs[name]
	if !ok {
		return engineerr.Validation("cannot stop umrf graph %q because it doesn't exist", name)
	}

	for _, n := range g.Nodes() {
		if h, ok := e.handles[n.ID]; ok {
			h.StopAction(StopTimeout)
			h.ClearAction()
			delete(e.handles, n.ID)
		}
	}

	delete(e.graphs, name)
	e.bus.Publish(eventbus.Event{Kind: eventbus.GraphFinished, GraphName: name})

	return nil
}

// NotifyAsyncFinished is the explicit completion call for handles whose
// effect is "asynchronous" (DESIGN.md Open Question #1): the reaper never
// reconciles these, so whatever out-of-band mechanism completes the action
// must call this once it has.
func (e *ActionExecutor) NotifyAsyncFinished(ctx context.Context, handleID uint64, outputs *umrf.ParameterBag) error {
	e.handlesLock.Lock()
	h, ok := e.handles[handleID]
	e.handlesLock.Unlock()

	if !ok {
		return engineerr.Validation("no such handle %d", handleID)
	}

	if h.Effect() != "asynchronous" {
		return engineerr.Validation("handle %d is not asynchronous", handleID)
	}

	e.graphsLock.Lock()
	for _, g := range e.graphs {
		if g.PartOfGraphID(handleID) {
			g.SetNodeFinished(handleID)
		}
	}
	e.graphsLock.Unlock()

	e.handlesLock.Lock()
	h.ClearAction()
	delete(e.handles, handleID)
	e.handlesLock.Unlock()

	return e.NotifyFinished(ctx, handleID, outputs)
}

// GraphDescriptors dumps every currently-held graph as a human-readable
// string, one per graph (get_graph_descriptors).
func (e *ActionExecutor) GraphDescriptors() []string {
	e.graphsLock.RLock()
	defer e.graphsLock.RUnlock()

	out := make([]string, 0, len(e.graphs))
	for _, g := range e.graphs {
		out = append(out, g.String())
	}

	return out
}

// StopAndCleanup signals every live handle with a stop timeout, polls
// IsActive until no handle is RUNNING, then lets the caller stop the
// reaper. Idempotent.
func (e *ActionExecutor) StopAndCleanup() {
	e.handlesLock.Lock()
	for _, h := range e.handles {
		e.logger.WithField("handle", h.ActionName()).Info("stopping action")

		go h.StopAction(StopTimeout)
	}
	e.handlesLock.Unlock()

	for e.IsActive() {
		time.Sleep(50 * time.Millisecond)
	}

	e.logger.Info("action executor is stopped")
}

// ReapOnce is one pass of the cleanup reaper (pkg/reaper): it first sweeps
// every graph that was already FINISHED coming into this pass, then
// reconciles every FINISHED-and-ready handle whose effect is
// "synchronous". Asynchronous handles are left untouched;
// NotifyAsyncFinished is their only exit.
//
// Sweeping before reconciling (rather than in the same pass a graph
// becomes FINISHED) gives callers polling GraphDescriptor a full reaper
// interval to observe a graph's terminal descriptor before it disappears.
//
// Unlike the original cleanup loop, a reconciled handle is actually erased
// from the handle map rather than left behind: leaving it was a known gap
// there, not a deliberate design choice, and an unbounded map here would
// never be reclaimed for long-running graphs.
func (e *ActionExecutor) ReapOnce(ctx context.Context) {
	e.handlesLock.Lock()
	defer e.handlesLock.Unlock()
	e.graphsLock.Lock()
	defer e.graphsLock.Unlock()

	for name, g := range e.graphs {
		if g.CheckState() == graph.Finished {
			e.logger.WithField("graph", name).Info("graph has finished, sweeping")
			e.bus.Publish(eventbus.Event{Kind: eventbus.GraphFinished, GraphName: name})
			delete(e.graphs, name)
		}
	}

	for id, h := range e.handles {
		if h.State() != handle.Finished || !h.FutureIsReady() || h.Effect() != "synchronous" {
			continue
		}

		result := h.GetFutureValue()

		// An execution error still leaves the handle in FINISHED (the worker
		// returned on its own, it was never killed), and the node itself is
		// marked FINISHED for scheduling purposes too (spec §7.3) — the
		// cleanup loop this is grounded on calls setNodeFinished
		// unconditionally here, never setNodeError; SetNodeError is reserved
		// for the activation-rollback path (§4.3.2/§7.2's load/link tier).
		// Children still never activate on this branch: notifyFinishedLocked
		// is skipped regardless of the per-node state we record.
		if result.Err != nil {
			e.logger.WithError(result.Err).WithField("handle", h.ActionName()).Warn("reaped handle finished with an error")
			e.bus.Publish(eventbus.Event{Kind: eventbus.HandleErrored, HandleID: id})

			for _, g := range e.graphs {
				if g.PartOfGraphID(id) {
					g.SetNodeFinished(id)
				}
			}
		} else {
			e.bus.Publish(eventbus.Event{Kind: eventbus.HandleFinished, HandleID: id})

			for _, g := range e.graphs {
				if g.PartOfGraphID(id) {
					g.SetNodeFinished(id)
				}
			}

			if err := e.notifyFinishedLocked(ctx, id, h.Node().Output); err != nil {
				e.logger.WithError(err).WithField("handle", h.ActionName()).Warn("failed to activate children after reaping")
			}
		}

		h.ClearAction()
		delete(e.handles, id)
	}
}

func (e *ActionExecutor) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if e.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	return otelhelper.StartSpan(ctx, e.tracer, name, attrs...)
}
