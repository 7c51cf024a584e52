package umrf

import (
	"fmt"
	"strings"
)

// UmrfNode is a single declarative action descriptor: what it's named,
// which shared library implements it, who its graph neighbors are and what
// parameters it exchanges with them. It has no notion of runtime state —
// that is tracked per-graph by pkg/graph, not here.
type UmrfNode struct {
	ID          uint64
	Name        string
	Suffix      uint
	Description string
	PackageName string
	Notation    string
	Effect      string
	LibraryPath string

	Parents  []Relation
	Children []Relation

	Input  *ParameterBag
	Output *ParameterBag
}

// NewUmrfNode builds a node with initialized, empty parameter bags.
func NewUmrfNode(name, libraryPath string) *UmrfNode {
	return &UmrfNode{
		Name:        name,
		LibraryPath: libraryPath,
		Input:       NewParameterBag(),
		Output:      NewParameterBag(),
	}
}

// FullName mirrors Umrf::getFullName: "name_suffix".
func (n *UmrfNode) FullName() string {
	return fmt.Sprintf("%s_%d", n.Name, n.Suffix)
}

// AsRelation mirrors Umrf::asRelation: how this node is referred to from a
// neighbor's parent/child list.
func (n *UmrfNode) AsRelation() Relation {
	return Relation{Name: n.Name, Suffix: n.Suffix}
}

// IsCorrect mirrors Umrf::isUmrfCorrect: the two fields without which a
// node descriptor is meaningless.
func (n *UmrfNode) IsCorrect() bool {
	return n.Name != "" && n.LibraryPath != ""
}

// AddParent appends a parent relation, ignoring an empty one.
func (n *UmrfNode) AddParent(r Relation) bool {
	if r.Empty() {
		return false
	}

	n.Parents = append(n.Parents, r)

	return true
}

// AddChild appends a child relation, ignoring an empty one.
func (n *UmrfNode) AddChild(r Relation) bool {
	if r.Empty() {
		return false
	}

	n.Children = append(n.Children, r)

	return true
}

// RemoveChild removes the first child relation matching name/suffix.
func (n *UmrfNode) RemoveChild(r Relation) bool {
	for i, c := range n.Children {
		if c.sameEdge(r) {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)

			return true
		}
	}

	return false
}

// RequiredParentsFinished mirrors Umrf::requiredParentsFinished: false if
// any required parent relation has not yet been marked received.
func (n *UmrfNode) RequiredParentsFinished() bool {
	for _, p := range n.Parents {
		if p.Required && !p.Received {
			return false
		}
	}

	return true
}

// SetParentReceived flips the received flag on the matching parent
// relation, mirroring Umrf::setParentReceived. Returns false if no such
// parent relation exists (the original throws; the caller here decides
// whether that is fatal).
func (n *UmrfNode) SetParentReceived(parent Relation) bool {
	for i, p := range n.Parents {
		if p.sameEdge(parent) {
			n.Parents[i].Received = true

			return true
		}
	}

	return false
}

// CopyInputParameters transfers a parent's output parameters into this
// node's input bag and reports whether every required input is now
// satisfied, mirroring Umrf::copyInputParameters.
func (n *UmrfNode) CopyInputParameters(parentOutput *ParameterBag) bool {
	n.Input.CopyFrom(parentOutput)

	return n.Input.ReceivedAllRequired()
}

// UpdateInputParams applies updatable-only input parameter changes from an
// incoming node descriptor, mirroring Umrf::updateInputParams.
func (n *UmrfNode) UpdateInputParams(incoming *UmrfNode) bool {
	return n.Input.UpdateFrom(incoming.Input)
}

// IsEqual mirrors Umrf::isEqual: structural comparison of name, suffix,
// notation, effect, graph connections and parameter shape. checkUpdatable
// selects whether parameter comparison is update-aware (IsEqualNoData) or
// update-blind (IsEqualNoDataNoUpdate); graph update admission uses the
// update-blind form ("structural-no-update equality").
func (n *UmrfNode) IsEqual(other *UmrfNode, checkUpdatable bool) bool {
	if n.Name != other.Name || n.Suffix != other.Suffix ||
		n.Notation != other.Notation || n.Effect != other.Effect {
		return false
	}

	if len(n.Children) != len(other.Children) || len(n.Parents) != len(other.Parents) {
		return false
	}

	for _, p := range other.Parents {
		if !containsEdge(n.Parents, p) {
			return false
		}
	}

	for _, c := range other.Children {
		if !containsEdge(n.Children, c) {
			return false
		}
	}

	return n.Input.equal(other.Input, checkUpdatable) && n.Output.equal(other.Output, checkUpdatable)
}

func containsEdge(rels []Relation, r Relation) bool {
	for _, x := range rels {
		if x.sameEdge(r) {
			return true
		}
	}

	return false
}

// String renders a human-readable dump in the same shape as the original
// Umrf's operator<<, used for logging and graph descriptor dumps, never as
// a wire format.
func (n *UmrfNode) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "  name: %s\n", n.Name)
	fmt.Fprintf(&b, "  suffix: %d\n", n.Suffix)
	fmt.Fprintf(&b, "  full_name: %s\n", n.FullName())
	fmt.Fprintf(&b, "  effect: %s\n", n.Effect)
	fmt.Fprintf(&b, "  lib path: %s\n", n.LibraryPath)

	if len(n.Parents) > 0 {
		b.WriteString("  parents:\n")

		for _, p := range n.Parents {
			fmt.Fprintf(&b, "   - %s\n", p.FullName())
		}
	}

	if len(n.Children) > 0 {
		b.WriteString("  children:\n")

		for _, c := range n.Children {
			fmt.Fprintf(&b, "   - %s\n", c.FullName())
		}
	}

	if n.Input.Len() > 0 {
		b.WriteString("  input_parameters:\n")
		b.WriteString(n.Input.String())
	}

	if n.Output.Len() > 0 {
		b.WriteString("  output_parameters:\n")
		b.WriteString(n.Output.String())
	}

	return b.String()
}
