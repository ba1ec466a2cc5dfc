package crosschain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/crosschain/internal/logging"
	"github.com/aretw0/crosschain/pkg/domain"
	"github.com/aretw0/crosschain/pkg/health"
	"github.com/aretw0/crosschain/pkg/node"
	"github.com/aretw0/crosschain/pkg/observability"
	"github.com/aretw0/crosschain/pkg/ports"
	"github.com/aretw0/crosschain/pkg/registry"
	"github.com/aretw0/crosschain/pkg/router"
	"github.com/aretw0/crosschain/pkg/state"
	"github.com/prometheus/client_golang/prometheus"
)

// Mesh wires the registry, shared state, router and health tracking of one process.
// It owns all of them; nodes created through it only borrow.
type Mesh struct {
	registry *registry.Registry
	state    *state.Manager
	router   *router.Router
	health   *health.Service
	metrics  *observability.Metrics

	backend     ports.StateBackend
	locker      ports.DistributedLocker
	lockTTL     time.Duration
	maxHops     int
	concurrency int
	pingEvery   time.Duration
	promReg     prometheus.Registerer
	probers     func(chainID string) health.Prober
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
}

// Option defines a functional option for configuring the Mesh.
type Option func(*Mesh)

// WithLogger sets a custom structured logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Mesh) {
		m.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks on every component.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(m *Mesh) {
		m.hooks = m.hooks.Merge(hooks)
	}
}

// WithStateBackend stores shared state in backend instead of process memory.
// If the backend implements io.Closer, Close releases it.
func WithStateBackend(backend ports.StateBackend) Option {
	return func(m *Mesh) {
		m.backend = backend
	}
}

// WithLocker serializes writes to a key across processes.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(m *Mesh) {
		m.locker = locker
		m.lockTTL = ttl
	}
}

// WithMaxHops bounds recursive call chains (default domain.DefaultMaxHops).
func WithMaxHops(n int) Option {
	return func(m *Mesh) {
		m.maxHops = n
	}
}

// WithBroadcastConcurrency delivers broadcasts to up to n chains in parallel.
func WithBroadcastConcurrency(n int) Option {
	return func(m *Mesh) {
		m.concurrency = n
	}
}

// WithDefaultPingInterval sets the heartbeat window of chains registered without one.
func WithDefaultPingInterval(d time.Duration) Option {
	return func(m *Mesh) {
		m.pingEvery = d
	}
}

// WithMetrics exports Prometheus metrics on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(m *Mesh) {
		m.promReg = reg
	}
}

// WithHealthProbers gives chain monitors a Prober.
func WithHealthProbers(fn func(chainID string) health.Prober) Option {
	return func(m *Mesh) {
		m.probers = fn
	}
}

// New builds a Mesh. Without options everything is in memory.
func New(opts ...Option) (*Mesh, error) {
	m := &Mesh{
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.promReg != nil {
		metrics, err := observability.NewMetrics(m.promReg)
		if err != nil {
			return nil, err
		}
		m.metrics = metrics
		m.hooks = m.hooks.Merge(metrics.Hooks())
	}

	m.registry = registry.NewRegistry(
		registry.WithLogger(m.logger),
		registry.WithHooks(m.hooks),
	)

	stateOpts := []state.Option{
		state.WithLogger(m.logger),
		state.WithHooks(m.hooks),
	}
	if m.backend != nil {
		stateOpts = append(stateOpts, state.WithBackend(m.backend))
	}
	if m.locker != nil {
		stateOpts = append(stateOpts, state.WithLocker(m.locker, m.lockTTL))
	}
	m.state = state.NewManager(stateOpts...)

	m.router = router.New(m.registry,
		router.WithMaxHops(m.maxHops),
		router.WithBroadcastConcurrency(m.concurrency),
		router.WithHooks(m.hooks),
		router.WithLogger(m.logger),
	)

	healthOpts := []health.Option{health.WithLogger(m.logger)}
	if m.probers != nil {
		healthOpts = append(healthOpts, health.WithProbers(m.probers))
	}
	if m.metrics != nil {
		healthOpts = append(healthOpts, health.WithCheckObserver(m.metrics.RecordHealth))
	}
	m.health = health.NewService(health.NewHeartbeatManager(m.pingEvery, health.WithLogger(m.logger)), healthOpts...)

	return m, nil
}

type chainConfig struct {
	pingInterval time.Duration
	replace      bool
}

// ChainOption tweaks a single RegisterChain call.
type ChainOption func(*chainConfig)

// PingEvery sets the heartbeat window of the chain.
func PingEvery(d time.Duration) ChainOption {
	return func(c *chainConfig) {
		c.pingInterval = d
	}
}

// Replace overwrites an already registered chain instead of failing.
func Replace() ChainOption {
	return func(c *chainConfig) {
		c.replace = true
	}
}

// RegisterChain registers chain under chainID and starts tracking its heartbeat.
func (m *Mesh) RegisterChain(chainID string, chain domain.Chain, opts ...ChainOption) error {
	var cfg chainConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	var regOpts []registry.RegisterOption
	if cfg.replace {
		regOpts = append(regOpts, registry.WithOverwrite())
	}
	if err := m.registry.Register(chainID, chain, regOpts...); err != nil {
		return err
	}

	m.health.Heartbeats().Register(chainID, cfg.pingInterval)
	m.health.Monitor(chainID)
	return nil
}

// DeregisterChain removes chainID and stops its health tracking.
// Handlers registered for the chain are kept; they are unreachable until it is registered again.
func (m *Mesh) DeregisterChain(chainID string) error {
	if err := m.registry.Deregister(chainID); err != nil {
		return err
	}
	m.health.Remove(chainID)
	return nil
}

// Handle binds handler to (chainID, messageType).
func (m *Mesh) Handle(chainID, messageType string, handler router.Handler) {
	m.router.RegisterHandler(chainID, messageType, handler)
}

// NewNode creates a node on chainID bound to the mesh's router and shared state, and attaches it.
func (m *Mesh) NewNode(ctx context.Context, chainID, nodeID string, fn node.Func) (*node.Node, error) {
	n := node.New(chainID, nodeID, fn,
		node.WithRouter(m.router),
		node.WithSharedState(m.state),
		node.WithHooks(m.hooks),
		node.WithLogger(m.logger),
	)
	if err := n.Attach(ctx); err != nil {
		return nil, err
	}
	return n, nil
}

// Route delivers msg and reports the outcome.
func (m *Mesh) Route(ctx context.Context, msg domain.Message) domain.RouteResult {
	return m.router.Route(ctx, msg)
}

// Broadcast routes a copy of msg to every chain in chainIDs.
func (m *Mesh) Broadcast(ctx context.Context, msg domain.Message, chainIDs []string) map[string]domain.RouteResult {
	return m.router.Broadcast(ctx, msg, chainIDs)
}

// Probe routes a ping to chainID. A chain without a ping handler answers as long as it is registered.
func (m *Mesh) Probe(ctx context.Context, chainID string) bool {
	res := m.router.Route(ctx, domain.Message{Type: domain.MessageTypePing, Destination: chainID})
	return res.Success || errors.Is(res.Err, domain.ErrNoHandler)
}

// RunHeartbeats probes every registered chain each period until ctx is done.
// A non-positive period uses health.DefaultProbePeriod.
func (m *Mesh) RunHeartbeats(ctx context.Context, every time.Duration) error {
	return m.health.Heartbeats().Run(ctx, every, m.Probe)
}

// Registry returns the chain registry.
func (m *Mesh) Registry() *registry.Registry { return m.registry }

// State returns the shared state manager.
func (m *Mesh) State() *state.Manager { return m.state }

// Router returns the message router.
func (m *Mesh) Router() *router.Router { return m.router }

// Health returns the health service.
func (m *Mesh) Health() *health.Service { return m.health }

// Close releases the state backend when it holds resources.
func (m *Mesh) Close() error {
	if c, ok := m.state.Backend().(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("failed to close state backend: %w", err)
		}
	}
	return nil
}
