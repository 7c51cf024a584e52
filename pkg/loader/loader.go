// Package loader provides the default Loader implementation: a thin
// wrapper around Go's plugin package that opens the .so named by a node's
// library_path and looks up its exported Action symbol, the same
// plugin.Open/Lookup idiom the teacher's action registry uses to load
// action and trigger plugins.
package loader

import (
	"context"
	"fmt"
	"plugin"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/temoto-action-engine/actionengine/pkg/protocol"
	"github.com/temoto-action-engine/actionengine/pkg/umrf"
)

// SymbolName is the exported plugin symbol every action .so must provide,
// mirroring the teacher's convention of exporting a factory variable named
// after its kind ("Action", "Trigger").
const SymbolName = "Action"

// Factory builds one ActionInstance bound to a specific node, exported by
// an action plugin as `var Action loader.Factory = ...`.
type Factory interface {
	New(node *umrf.UmrfNode) (protocol.ActionInstance, error)
}

// PluginLoader implements protocol.Loader over Go's plugin package,
// caching opened plugins by library path since plugin.Open is not
// idempotent-cheap and the same library is typically reused across many
// nodes in a graph.
type PluginLoader struct {
	mu     sync.Mutex
	opened map[string]Factory
	logger *logrus.Entry
}

func New(logger *logrus.Entry) *PluginLoader {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &PluginLoader{
		opened: make(map[string]Factory),
		logger: logger.WithField("component", "loader"),
	}
}

func (l *PluginLoader) Instantiate(_ context.Context, libraryPath string, node *umrf.UmrfNode) (protocol.ActionInstance, error) {
	factory, err := l.factoryFor(libraryPath)
	if err != nil {
		return nil, fmt.Errorf("loading action %q from %q: %w", node.FullName(), libraryPath, err)
	}

	instance, err := factory.New(node)
	if err != nil {
		return nil, fmt.Errorf("instantiating action %q from %q: %w", node.FullName(), libraryPath, err)
	}

	return instance, nil
}

func (l *PluginLoader) factoryFor(libraryPath string) (Factory, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if factory, ok := l.opened[libraryPath]; ok {
		return factory, nil
	}

	plg, err := plugin.Open(libraryPath)
	if err != nil {
		return nil, fmt.Errorf("plugin.Open: %w", err)
	}

	sym, err := plg.Lookup(SymbolName)
	if err != nil {
		return nil, fmt.Errorf("looking up symbol %q: %w", SymbolName, err)
	}

	factory, ok := sym.(Factory)
	if !ok {
		return nil, fmt.Errorf("symbol %q in %q does not implement loader.Factory", SymbolName, libraryPath)
	}

	l.opened[libraryPath] = factory
	l.logger.WithField("library_path", libraryPath).Info("loaded action plugin")

	return factory, nil
}
