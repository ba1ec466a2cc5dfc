// Package node provides addressable participants of a chain.
//
// A Node runs local logic for its chain and talks to other chains through the
// router. It must be attached (and bound to a router) before it can do either.
package node

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/crosschain/internal/logging"
	"github.com/aretw0/crosschain/pkg/domain"
	"github.com/aretw0/crosschain/pkg/ports"
	"github.com/aretw0/crosschain/pkg/router"
	"github.com/aretw0/crosschain/pkg/state"
)

// Func is the local logic of a node.
type Func func(ctx context.Context, input any) (any, error)

// Node is a (chain ID, node ID) participant with local logic.
// The router, resolver and shared state are borrowed, never owned.
type Node struct {
	addr domain.Address
	fn   Func

	router   *router.Router
	resolver ports.ChainResolver
	shared   *state.Manager
	hooks    domain.LifecycleHooks
	logger   *slog.Logger

	mu     sync.RWMutex
	status domain.NodeStatus
}

// Option configures a Node.
type Option func(*Node)

// WithRouter binds the router used for remote calls.
// When no resolver is set, the router's resolver is used for Attach.
func WithRouter(r *router.Router) Option {
	return func(n *Node) {
		n.router = r
	}
}

// WithResolver sets the resolver Attach checks the chain against.
func WithResolver(res ports.ChainResolver) Option {
	return func(n *Node) {
		n.resolver = res
	}
}

// WithSharedState gives the node access to the mesh-wide state.
func WithSharedState(m *state.Manager) Option {
	return func(n *Node) {
		n.shared = m
	}
}

// WithHooks registers lifecycle hooks. OnNodeStatus fires on every transition.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(n *Node) {
		n.hooks = hooks
	}
}

// WithLogger configures a logger for the Node.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) {
		n.logger = logger
	}
}

// New creates a node in the Created status.
func New(chainID, nodeID string, fn Func, opts ...Option) *Node {
	n := &Node{
		addr:   domain.Address{ChainID: chainID, NodeID: nodeID},
		fn:     fn,
		status: domain.NodeCreated,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.resolver == nil && n.router != nil {
		n.resolver = n.router.Resolver()
	}
	n.logger = n.logger.With("chain_id", chainID, "node_id", nodeID)
	return n
}

// Address returns the node's (chain ID, node ID) pair.
func (n *Node) Address() domain.Address {
	return n.addr
}

// Status returns the current lifecycle status.
// A node whose chain has been deregistered reports Created.
func (n *Node) Status() domain.NodeStatus {
	n.mu.RLock()
	s := n.status
	n.mu.RUnlock()

	if s != domain.NodeCreated && !n.chainRegistered() {
		return domain.NodeCreated
	}
	return s
}

func (n *Node) chainRegistered() bool {
	return n.resolver != nil && n.resolver.Contains(n.addr.ChainID)
}

// Shared returns the shared state manager, or nil when none was configured.
func (n *Node) Shared() *state.Manager {
	return n.shared
}

// Attach checks that the node's chain is registered and activates the node.
// Without a router the node stays Attached and cannot run operations.
func (n *Node) Attach(ctx context.Context) error {
	if n.fn == nil {
		return fmt.Errorf("%w: %s has no local logic", domain.ErrNoHandler, n.addr)
	}
	if n.resolver == nil {
		return fmt.Errorf("%w: no resolver for %s", domain.ErrUnknownChain, n.addr)
	}
	if !n.resolver.Contains(n.addr.ChainID) {
		return fmt.Errorf("%w: %s", domain.ErrUnknownChain, n.addr.ChainID)
	}

	n.setStatus(ctx, domain.NodeAttached)
	if n.router != nil {
		n.setStatus(ctx, domain.NodeActive)
	}
	return nil
}

// Detach returns the node to the Created status.
func (n *Node) Detach(ctx context.Context) {
	n.setStatus(ctx, domain.NodeCreated)
}

func (n *Node) setStatus(ctx context.Context, to domain.NodeStatus) {
	n.mu.Lock()
	from := n.status
	n.status = to
	n.mu.Unlock()

	if from == to {
		return
	}
	n.logger.Debug("node status changed", "from", from, "to", to)
	if n.hooks.OnNodeStatus != nil {
		n.hooks.OnNodeStatus(ctx, &domain.NodeEvent{
			EventBase: domain.NewEventBase(domain.EventNodeStatus),
			Address:   n.addr,
			From:      from,
			To:        to,
		})
	}
}

// ensureActive fails unless the node is Active and its chain is still
// registered. A node that lost its chain drops back to Created.
func (n *Node) ensureActive(ctx context.Context) error {
	n.mu.RLock()
	s := n.status
	n.mu.RUnlock()

	if s != domain.NodeActive {
		return fmt.Errorf("%w: %s is %s", domain.ErrNodeNotAttached, n.addr, s)
	}
	if !n.chainRegistered() {
		n.setStatus(ctx, domain.NodeCreated)
		return fmt.Errorf("%w: chain %s is no longer registered", domain.ErrNodeNotAttached, n.addr.ChainID)
	}
	return nil
}

// ExecuteLocal runs the node's own logic. Errors from the logic are returned unchanged.
func (n *Node) ExecuteLocal(ctx context.Context, input any) (any, error) {
	if err := n.ensureActive(ctx); err != nil {
		return nil, err
	}
	return n.fn(ctx, input)
}

// CallRemote routes msg to targetChainID with this node as the source.
// The call is synchronous and is not retried.
func (n *Node) CallRemote(ctx context.Context, targetChainID string, msg domain.Message) domain.RouteResult {
	if err := n.ensureActive(ctx); err != nil {
		return domain.Failed(targetChainID, err)
	}
	msg.Source = n.addr
	msg.Destination = targetChainID
	return n.router.Route(ctx, msg)
}

// Broadcast routes msg to every target with this node as the source.
// When the node is not active every target reports domain.ErrNodeNotAttached.
func (n *Node) Broadcast(ctx context.Context, msg domain.Message, targets []string) map[string]domain.RouteResult {
	if err := n.ensureActive(ctx); err != nil {
		results := make(map[string]domain.RouteResult, len(targets))
		for _, id := range targets {
			results[id] = domain.Failed(id, err)
		}
		return results
	}
	msg.Source = n.addr
	return n.router.Broadcast(ctx, msg, targets)
}

// Send queues msg for targetChainID without waiting for a handler.
func (n *Node) Send(ctx context.Context, targetChainID string, msg domain.Message) error {
	if err := n.ensureActive(ctx); err != nil {
		return err
	}
	msg.Source = n.addr
	msg.Destination = targetChainID
	return n.router.Send(ctx, msg)
}

// Inbox drains the messages of the given type queued for this node's chain.
func (n *Node) Inbox(messageType string) ([]domain.Message, error) {
	if err := n.ensureActive(context.Background()); err != nil {
		return nil, err
	}
	return n.router.MessagesFor(n.addr.ChainID, messageType), nil
}
