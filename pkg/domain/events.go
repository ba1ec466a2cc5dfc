package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventChainRegistered   EventType = "chain_registered"
	EventChainDeregistered EventType = "chain_deregistered"
	EventRoute             EventType = "route"
	EventStateChange       EventType = "state_change"
	EventNodeStatus        EventType = "node_status"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
}

// NewEventBase stamps an event of the given type with the current time.
func NewEventBase(t EventType) EventBase {
	return EventBase{Timestamp: time.Now(), Type: t}
}

// ChainEvent represents a registry change.
type ChainEvent struct {
	EventBase
	ChainID string `json:"chain_id"`

	// Replaced is set when a registration overwrote an existing chain.
	Replaced bool `json:"replaced,omitempty"`
}

// RouteEvent represents one completed delivery.
type RouteEvent struct {
	EventBase
	Source        Address       `json:"source"`
	ChainID       string        `json:"chain_id"`
	MessageType   string        `json:"message_type"`
	CorrelationID string        `json:"correlation_id,omitempty"`
	Hops          int           `json:"hops"`
	Success       bool          `json:"success"`
	Err           error         `json:"-"`
	Duration      time.Duration `json:"duration"`
}

// StateOp names the mutation that produced a state event.
type StateOp string

const (
	StateOpSet    StateOp = "set"
	StateOpUpdate StateOp = "update"
	StateOpDelete StateOp = "delete"
)

// StateEvent represents a shared state mutation.
type StateEvent struct {
	EventBase
	Key         string  `json:"key"`
	Op          StateOp `json:"op"`
	Subscribers int     `json:"subscribers"`
}

// NodeStatus is the lifecycle position of a cross-chain node.
type NodeStatus string

const (
	NodeCreated  NodeStatus = "created"
	NodeAttached NodeStatus = "attached"
	NodeActive   NodeStatus = "active"
)

// NodeEvent represents a node lifecycle transition.
type NodeEvent struct {
	EventBase
	Address Address    `json:"address"`
	From    NodeStatus `json:"from"`
	To      NodeStatus `json:"to"`
}

// LifecycleHooks defines callbacks for observability.
// Every field is optional; hooks run synchronously on the caller's goroutine.
type LifecycleHooks struct {
	OnChainRegistered   func(context.Context, *ChainEvent)
	OnChainDeregistered func(context.Context, *ChainEvent)
	OnRoute             func(context.Context, *RouteEvent)
	OnStateChange       func(context.Context, *StateEvent)
	OnNodeStatus        func(context.Context, *NodeEvent)
}

// Merge returns hooks that call h first and then other, for every callback set in either.
func (h LifecycleHooks) Merge(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnChainRegistered:   joinHooks(h.OnChainRegistered, other.OnChainRegistered),
		OnChainDeregistered: joinHooks(h.OnChainDeregistered, other.OnChainDeregistered),
		OnRoute:             joinHooks(h.OnRoute, other.OnRoute),
		OnStateChange:       joinHooks(h.OnStateChange, other.OnStateChange),
		OnNodeStatus:        joinHooks(h.OnNodeStatus, other.OnNodeStatus),
	}
}

func joinHooks[E any](a, b func(context.Context, *E)) func(context.Context, *E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e *E) {
		a(ctx, e)
		b(ctx, e)
	}
}
