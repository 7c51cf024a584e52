// Package eventbus carries lifecycle notifications for graphs and handles
// out of the executor: admission, activation, mutation, completion and
// errors. It is ambient observability, not part of the executor's own
// correctness — a nil or no-op bus must never change scheduling behavior.
package eventbus

import "context"

// Kind enumerates the lifecycle events the executor publishes.
type Kind string

const (
	GraphAdmitted  Kind = "graph_admitted"
	GraphActivated Kind = "graph_activated"
	GraphMutated   Kind = "graph_mutated"
	GraphFinished  Kind = "graph_finished"
	HandleFinished Kind = "handle_finished"
	HandleErrored  Kind = "handle_errored"
)

// Event is one lifecycle notification. GraphName is set for graph-scoped
// events; HandleID is set for handle-scoped events, which the executor
// publishes without a GraphName.
type Event struct {
	Kind      Kind
	GraphName string
	HandleID  uint64
}

// EventBus is the publish side the executor depends on. Subscription is a
// transport concern left to concrete implementations.
type EventBus interface {
	Publish(event Event)
	Close() error
}

// NoOp discards every event, used when no bus is configured.
type NoOp struct{}

func (NoOp) Publish(Event) {}
func (NoOp) Close() error  { return nil }

// Handler processes one published event.
type Handler func(ctx context.Context, event Event) error
