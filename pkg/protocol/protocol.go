// Package protocol names the external collaborators the engine consumes
// but never implements: the dynamic loader that turns a library_path into
// a running action, and the match finder that resolves a partial UMRF to a
// concrete node descriptor. Concrete implementations (an on-disk indexer,
// a plugin-based loader, a network-backed match finder) live outside this
// module's hard core.
package protocol

import (
	"context"

	"github.com/temoto-action-engine/actionengine/pkg/umrf"
)

// ActionInstance is what a Loader hands back: a living action bound to one
// node's parameter bags. Execute is called exactly once by the owning
// handle's worker. actionOk is polled by the action body as its sole
// cooperative-cancellation signal.
type ActionInstance interface {
	Execute(ctx context.Context, actionOk func() bool) error
	// OnParameterUpdate is invoked after a running action's updatable input
	// parameters change. Actions that don't care about live updates may
	// implement it as a no-op.
	OnParameterUpdate()
}

// Loader instantiates a running action from a node's library_path. It is
// the sole boundary between this engine and however actions are actually
// packaged and loaded (shared libraries, plugins, subprocesses, ...).
type Loader interface {
	Instantiate(ctx context.Context, libraryPath string, node *umrf.UmrfNode) (ActionInstance, error)
}

// MatchFinder resolves a partially specified UMRF node (name and notation
// only) to a fully qualified descriptor including library_path. Nothing in
// this module calls it: admission (ActionExecutor.AddUmrfGraph) takes each
// node's library_path as submitted and performs no name-match resolution.
type MatchFinder interface {
	Find(ctx context.Context, name, notation string) (*umrf.UmrfNode, error)
}
