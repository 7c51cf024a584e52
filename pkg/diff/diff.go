// Package diff implements the live graph mutation protocol: a sequence of
// add/remove-node and add/remove-child operations applied validate-first,
// all-or-nothing.
package diff

import (
	"fmt"

	"github.com/temoto-action-engine/actionengine/pkg/umrf"
)

// Operation is one of the four mutation kinds a GraphDiff entry may carry.
type Operation string

const (
	AddUmrf     Operation = "add_umrf"
	RemoveUmrf  Operation = "remove_umrf"
	AddChild    Operation = "add_child"
	RemoveChild Operation = "remove_child"
)

// GraphDiff is one entry in a mutation request. For AddUmrf/RemoveUmrf,
// Node carries the full (or identifying) node descriptor. For
// AddChild/RemoveChild, ParentFullName names the existing node gaining or
// losing a child edge and Child carries the relation to splice in or out.
type GraphDiff struct {
	Operation      Operation
	Node           *umrf.UmrfNode
	ParentFullName string
	Child          umrf.Relation
}

// Validate checks that a diff is internally well-formed, independent of
// any particular graph's current contents.
func (d GraphDiff) Validate() error {
	switch d.Operation {
	case AddUmrf, RemoveUmrf:
		if d.Node == nil {
			return fmt.Errorf("%s diff requires a node", d.Operation)
		}
	case AddChild, RemoveChild:
		if d.ParentFullName == "" || d.Child.Empty() {
			return fmt.Errorf("%s diff requires a parent full_name and a child relation", d.Operation)
		}
	default:
		return fmt.Errorf("no such operation as %q", d.Operation)
	}

	return nil
}
