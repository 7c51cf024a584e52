// Package graph implements the UMRF graph: a validated collection of nodes,
// their derived adjacency, the graph-level state machine and the per-node
// runtime state that the executor advances as activation proceeds.
package graph

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/temoto-action-engine/actionengine/pkg/umrf"
)

// UmrfGraph is a named, validated set of UmrfNodes plus the bookkeeping the
// executor needs to schedule them: resolved adjacency, per-node runtime
// state, and the single authoritative graph state.
type UmrfGraph struct {
	mu sync.RWMutex

	name       string
	nodes      map[uint64]*umrf.UmrfNode
	nameToID   map[string]uint64
	nodeStates map[uint64]NodeState
	state      State

	logger *logrus.Entry
}

// New validates nodes and builds a graph. Per spec §4.1 construction never
// fails outright on a structurally bad node set — it yields a graph whose
// State() is Uninitialized, which admission (pkg/executor) is responsible
// for rejecting. Only a genuinely unusable input (nil nodes, duplicate ids)
// returns an error, since there is no sensible graph to hand back at all.
func New(name string, nodes []*umrf.UmrfNode, logger *logrus.Entry) (*UmrfGraph, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	g := &UmrfGraph{
		name:       name,
		nodes:      make(map[uint64]*umrf.UmrfNode, len(nodes)),
		nameToID:   make(map[string]uint64, len(nodes)),
		nodeStates: make(map[uint64]NodeState, len(nodes)),
		logger:     logger.WithField("graph", name),
	}

	for _, n := range nodes {
		if n == nil {
			return nil, fmt.Errorf("umrf graph %q: nil node in node set", name)
		}

		if _, exists := g.nodes[n.ID]; exists {
			return nil, fmt.Errorf("umrf graph %q: duplicate node id %d", name, n.ID)
		}

		fullName := n.FullName()
		if _, exists := g.nameToID[fullName]; exists {
			g.logger.WithField("node", fullName).Warn("duplicate full_name in graph, rejecting graph")
			g.state = Uninitialized

			return g, nil
		}

		g.nodes[n.ID] = n
		g.nameToID[fullName] = n.ID
		g.nodeStates[n.ID] = NotStarted
	}

	if g.validate() {
		g.state = Initialized
		g.logger.Debug("graph initialized")
	} else {
		g.state = Uninitialized
		g.logger.Warn("graph failed validation, left uninitialized")
	}

	return g, nil
}

// validate checks resolvable relations, rejects self-loops and cycles, and
// rejects a graph with no entry point.
func (g *UmrfGraph) validate() bool {
	for id, n := range g.nodes {
		for _, p := range n.Parents {
			pid, ok := g.nameToID[p.FullName()]
			if !ok {
				g.logger.WithField("node", n.FullName()).Warnf("unresolved parent relation %q", p.FullName())

				return false
			}

			if pid == id {
				g.logger.WithField("node", n.FullName()).Warn("self-loop in parent relation")

				return false
			}
		}

		for _, c := range n.Children {
			cid, ok := g.nameToID[c.FullName()]
			if !ok {
				g.logger.WithField("node", n.FullName()).Warnf("unresolved child relation %q", c.FullName())

				return false
			}

			if cid == id {
				g.logger.WithField("node", n.FullName()).Warn("self-loop in child relation")

				return false
			}
		}
	}

	if g.hasCycle() {
		g.logger.Warn("cycle detected in node graph")

		return false
	}

	if len(g.roots()) == 0 {
		g.logger.Warn("graph has no root nodes")

		return false
	}

	return true
}

// hasCycle performs a grey/black depth-first traversal over the
// parent -> child adjacency taken from both every node's declared Children
// and every node's Parents, matching the original engine's rejection of
// any dataflow cycle. validate has already resolved every relation.
func (g *UmrfGraph) hasCycle() bool {
	const (
		white = 0
		grey  = 1
		black = 2
	)

	adj := make(map[uint64][]uint64, len(g.nodes))
	for id, n := range g.nodes {
		for _, c := range n.Children {
			adj[id] = append(adj[id], g.nameToID[c.FullName()])
		}

		for _, p := range n.Parents {
			pid := g.nameToID[p.FullName()]
			adj[pid] = append(adj[pid], id)
		}
	}

	color := make(map[uint64]int, len(g.nodes))

	var visit func(id uint64) bool

	visit = func(id uint64) bool {
		color[id] = grey

		for _, cid := range adj[id] {
			switch color[cid] {
			case grey:
				return true
			case white:
				if visit(cid) {
					return true
				}
			}
		}

		color[id] = black

		return false
	}

	for id := range g.nodes {
		if color[id] == white {
			if visit(id) {
				return true
			}
		}
	}

	return false
}

// Name returns the graph's name.
func (g *UmrfGraph) Name() string {
	return g.name
}

// State returns the last computed graph state. Use CheckState to
// recompute it from node states first.
func (g *UmrfGraph) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.state
}

// CheckState is the sole authoritative graph-state read: it recomputes
// state from aggregated node states and is idempotent.
func (g *UmrfGraph) CheckState() State {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == Uninitialized {
		return g.state
	}

	allFinished := true

	for _, st := range g.nodeStates {
		if st != NodeFinished && st != NodeError {
			allFinished = false

			break
		}
	}

	// Per DESIGN.md Open Question #2: a graph where every node reached a
	// terminal state goes FINISHED even if some of those terminal states
	// are ERROR; HasErrors distinguishes the two for callers that care.
	if allFinished && len(g.nodeStates) > 0 {
		g.state = Finished
	}

	return g.state
}

// HasErrors reports whether any node reached NodeError, letting a caller
// distinguish a clean FINISHED run from one with rolled-back branches
// without a new terminal graph state (see DESIGN.md Open Question #2).
func (g *UmrfGraph) HasErrors() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, st := range g.nodeStates {
		if st == NodeError {
			return true
		}
	}

	return false
}

// Roots returns ids with no parents, in ascending id order for determinism.
func (g *UmrfGraph) Roots() []uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.roots()
}

func (g *UmrfGraph) roots() []uint64 {
	var roots []uint64

	for id, n := range g.nodes {
		if len(n.Parents) == 0 {
			roots = append(roots, id)
		}
	}

	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })

	return roots
}

// ChildrenOf returns the ids of nodes whose parent list references id's
// full_name, in ascending id order (a deterministic activation order).
func (g *UmrfGraph) ChildrenOf(id uint64) []uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	parent, ok := g.nodes[id]
	if !ok {
		return nil
	}

	fullName := parent.FullName()

	var children []uint64

	for cid, n := range g.nodes {
		for _, p := range n.Parents {
			if p.FullName() == fullName {
				children = append(children, cid)

				break
			}
		}
	}

	sort.Slice(children, func(i, j int) bool { return children[i] < children[j] })

	return children
}

// PartOfGraphID reports whether id names a node in this graph.
func (g *UmrfGraph) PartOfGraphID(id uint64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]

	return ok
}

// PartOfGraphName reports whether fullName names a node in this graph.
func (g *UmrfGraph) PartOfGraphName(fullName string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nameToID[fullName]

	return ok
}

// NodeID resolves a full_name to its id.
func (g *UmrfGraph) NodeID(fullName string) (uint64, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.nameToID[fullName]

	return id, ok
}

// NodeOf returns the node with the given id.
func (g *UmrfGraph) NodeOf(id uint64) (*umrf.UmrfNode, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]

	return n, ok
}

// Nodes returns every node in the graph, in ascending id order.
func (g *UmrfGraph) Nodes() []*umrf.UmrfNode {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]uint64, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]*umrf.UmrfNode, 0, len(ids))
	for _, id := range ids {
		out = append(out, g.nodes[id])
	}

	return out
}

// NodeIDs returns every node id held by the graph.
func (g *UmrfGraph) NodeIDs() []uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]uint64, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

// AddNode inserts a node the executor has already assigned an id to. It
// fails if the node's full_name is already present.
func (g *UmrfGraph) AddNode(n *umrf.UmrfNode) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	fullName := n.FullName()
	if _, exists := g.nameToID[fullName]; exists {
		return fmt.Errorf("umrf graph %q: node %q already part of graph", g.name, fullName)
	}

	g.nodes[n.ID] = n
	g.nameToID[fullName] = n.ID
	g.nodeStates[n.ID] = NotStarted

	g.logger.WithField("node", fullName).Debug("node added to graph")

	return nil
}

// RemoveNode removes the node identified by relation, pruning dangling
// parent/child references in its neighbours, and returns its id.
func (g *UmrfGraph) RemoveNode(relation umrf.Relation) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	fullName := relation.FullName()

	id, ok := g.nameToID[fullName]
	if !ok {
		return 0, fmt.Errorf("umrf graph %q: node %q not part of graph", g.name, fullName)
	}

	delete(g.nodes, id)
	delete(g.nameToID, fullName)
	delete(g.nodeStates, id)

	for _, n := range g.nodes {
		n.Parents = pruneRelation(n.Parents, fullName)
		n.Children = pruneRelation(n.Children, fullName)
	}

	g.logger.WithField("node", fullName).Debug("node removed from graph")

	return id, nil
}

func pruneRelation(rels []umrf.Relation, fullName string) []umrf.Relation {
	kept := rels[:0]

	for _, r := range rels {
		if r.FullName() != fullName {
			kept = append(kept, r)
		}
	}

	return kept
}

// AddChildRelation splices a new parent->child edge between two existing
// nodes, keeping both sides consistent: the parent gains a Children entry
// and the child gains a matching Parents entry.
func (g *UmrfGraph) AddChildRelation(parentFullName string, child umrf.Relation) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	pid, ok := g.nameToID[parentFullName]
	if !ok {
		return fmt.Errorf("umrf graph %q: parent %q not part of graph", g.name, parentFullName)
	}

	cid, ok := g.nameToID[child.FullName()]
	if !ok {
		return fmt.Errorf("umrf graph %q: child %q not part of graph", g.name, child.FullName())
	}

	parent := g.nodes[pid]
	childNode := g.nodes[cid]

	parent.AddChild(child)
	childNode.AddParent(umrf.Relation{Name: parent.Name, Suffix: parent.Suffix, Required: child.Required})

	return nil
}

// RemoveChildRelation removes a parent->child edge between two existing
// nodes, on both sides.
func (g *UmrfGraph) RemoveChildRelation(parentFullName string, child umrf.Relation) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	pid, ok := g.nameToID[parentFullName]
	if !ok {
		return fmt.Errorf("umrf graph %q: parent %q not part of graph", g.name, parentFullName)
	}

	cid, ok := g.nameToID[child.FullName()]
	if !ok {
		return fmt.Errorf("umrf graph %q: child %q not part of graph", g.name, child.FullName())
	}

	parent := g.nodes[pid]
	childNode := g.nodes[cid]

	parent.RemoveChild(child)
	childNode.Parents = pruneRelation(childNode.Parents, parentFullName)

	return nil
}

// SetNodeActive moves a node from NOT_STARTED to ACTIVE and the graph into
// ACTIVE if it was merely INITIALIZED.
func (g *UmrfGraph) SetNodeActive(id uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodeStates[id] = NodeActive
	if g.state == Initialized {
		g.state = Active
	}
}

// SetNodeFinished moves a node to FINISHED and recomputes graph state.
func (g *UmrfGraph) SetNodeFinished(id uint64) {
	g.mu.Lock()
	g.nodeStates[id] = NodeFinished
	g.mu.Unlock()
	g.CheckState()
}

// SetNodeError moves a node to ERROR. Its children must not be activated by
// the caller; the graph itself may continue progressing other branches.
func (g *UmrfGraph) SetNodeError(id uint64) {
	g.mu.Lock()
	g.nodeStates[id] = NodeError
	g.mu.Unlock()
	g.CheckState()
}

// NodeState returns the runtime state of a node.
func (g *UmrfGraph) NodeState(id uint64) (NodeState, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st, ok := g.nodeStates[id]

	return st, ok
}

// String renders every node's descriptor, used by graph dump / logging.
func (g *UmrfGraph) String() string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := fmt.Sprintf("graph: %s (state=%s)\n", g.name, g.state)
	for _, n := range g.Nodes() {
		out += n.String()
	}

	return out
}
