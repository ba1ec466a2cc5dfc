package router

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/crosschain/internal/logging"
	"github.com/aretw0/crosschain/pkg/domain"
	"github.com/aretw0/crosschain/pkg/ports"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Handler processes one message type on one chain.
// The returned value becomes RouteResult.Value; an error marks the route as failed.
type Handler func(ctx context.Context, msg domain.Message) (any, error)

// Router dispatches messages to the handlers of registered chains.
type Router struct {
	resolver ports.ChainResolver

	mu       sync.RWMutex
	handlers map[string]map[string]Handler // chainID -> message type -> handler

	mailbox     *mailbox
	maxHops     int
	concurrency int
	hooks       domain.LifecycleHooks
	logger      *slog.Logger
}

// Option configures the Router.
type Option func(*Router)

// WithMaxHops bounds the length of a call chain (default domain.DefaultMaxHops).
func WithMaxHops(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.maxHops = n
		}
	}
}

// WithBroadcastConcurrency delivers broadcasts to up to n chains in parallel.
// With n <= 1 (the default) deliveries run sequentially in argument order.
func WithBroadcastConcurrency(n int) Option {
	return func(r *Router) {
		r.concurrency = n
	}
}

// WithHooks registers lifecycle hooks. OnRoute fires after every route.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Router) {
		r.hooks = hooks
	}
}

// WithLogger configures a logger for the Router.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// New creates a Router resolving destinations through resolver.
func New(resolver ports.ChainResolver, opts ...Option) *Router {
	r := &Router{
		resolver: resolver,
		handlers: make(map[string]map[string]Handler),
		mailbox:  newMailbox(),
		maxHops:  domain.DefaultMaxHops,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolver returns the resolver used to look up destinations.
func (r *Router) Resolver() ports.ChainResolver {
	return r.resolver
}

// MaxHops returns the configured call chain bound.
func (r *Router) MaxHops() int {
	return r.maxHops
}

// RegisterHandler binds handler to (chainID, messageType), replacing any previous one.
// The chain does not need to be registered yet; resolution happens at route time.
func (r *Router) RegisterHandler(chainID, messageType string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byType, ok := r.handlers[chainID]
	if !ok {
		byType = make(map[string]Handler)
		r.handlers[chainID] = byType
	}
	if _, exists := byType[messageType]; exists {
		r.logger.Debug("replacing handler", "chain_id", chainID, "type", messageType)
	}
	byType[messageType] = handler
}

// Handlers lists the message types handled by chainID, sorted.
func (r *Router) Handlers(chainID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers[chainID]))
	for t := range r.handlers[chainID] {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

func (r *Router) handler(chainID, messageType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[chainID][messageType]
	return h, ok
}

// Route delivers msg to msg.Destination and reports the outcome.
// Unknown chains, missing handlers, handler errors, handler panics and
// exhausted hop budgets are all reported through the result.
func (r *Router) Route(ctx context.Context, msg domain.Message) domain.RouteResult {
	start := time.Now()

	if msg.CorrelationID == "" {
		msg.CorrelationID = uuid.NewString()
	}
	// Messages built inside a handler continue the caller's call chain.
	if hops := HopsFromContext(ctx); hops > msg.Hops {
		msg.Hops = hops
		msg.Trail = TrailFromContext(ctx)
	}

	res := r.deliver(ctx, msg)
	res.ChainID = msg.Destination
	res.CorrelationID = msg.CorrelationID
	res.Duration = time.Since(start)

	r.emit(ctx, msg, res)
	return res
}

func (r *Router) deliver(ctx context.Context, msg domain.Message) domain.RouteResult {
	dest := msg.Destination

	hops := msg.Hops + 1
	trail := append(slices.Clone(msg.Trail), dest)
	if hops > r.maxHops {
		return domain.Failed(dest, fmt.Errorf("%w: %d hops exceed limit %d (%s)",
			domain.ErrCycleDetected, hops, r.maxHops, strings.Join(trail, " -> ")))
	}

	if _, err := r.resolver.Get(dest); err != nil {
		return domain.Failed(dest, err)
	}

	h, ok := r.handler(dest, msg.Type)
	if !ok {
		return domain.Failed(dest, fmt.Errorf("%w: chain %s has no handler for %q", domain.ErrNoHandler, dest, msg.Type))
	}

	msg.Hops = hops
	msg.Trail = trail
	msg.Metadata = maps.Clone(msg.Metadata)
	if msg.Metadata == nil {
		msg.Metadata = make(map[string]string, 1)
	}
	origin, ok := msg.Metadata[domain.KeyOrigin]
	if !ok {
		origin = firstNonEmpty(originFromContext(ctx), msg.Source.ChainID, trail[0])
		msg.Metadata[domain.KeyOrigin] = origin
	}

	value, err := invoke(withHops(ctx, hopState{hops: hops, trail: trail, origin: origin}), h, msg)
	if err != nil {
		return domain.Failed(dest, err)
	}
	return domain.RouteResult{ChainID: dest, Success: true, Value: value}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func invoke(ctx context.Context, h Handler, msg domain.Message) (value any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", domain.ErrHandlerPanic, rec)
		}
	}()
	return h(ctx, msg)
}

func (r *Router) emit(ctx context.Context, msg domain.Message, res domain.RouteResult) {
	if res.Success {
		r.logger.Debug("message routed",
			"chain_id", res.ChainID,
			"type", msg.Type,
			"correlation_id", res.CorrelationID,
			"duration", res.Duration,
		)
	} else {
		r.logger.Warn("route failed",
			"chain_id", res.ChainID,
			"type", msg.Type,
			"correlation_id", res.CorrelationID,
			"err", res.Err,
		)
	}

	if r.hooks.OnRoute != nil {
		r.hooks.OnRoute(ctx, &domain.RouteEvent{
			EventBase:     domain.NewEventBase(domain.EventRoute),
			Source:        msg.Source,
			ChainID:       res.ChainID,
			MessageType:   msg.Type,
			CorrelationID: res.CorrelationID,
			Hops:          msg.Hops + 1,
			Success:       res.Success,
			Err:           res.Err,
			Duration:      res.Duration,
		})
	}
}

// Broadcast routes an independent copy of tmpl to every chain in chainIDs.
// A failure on one target does not affect the others. Duplicate IDs are routed once.
// All copies share one correlation ID.
func (r *Router) Broadcast(ctx context.Context, tmpl domain.Message, chainIDs []string) map[string]domain.RouteResult {
	targets := dedupe(chainIDs)
	results := make(map[string]domain.RouteResult, len(targets))
	if tmpl.CorrelationID == "" {
		tmpl.CorrelationID = uuid.NewString()
	}

	if r.concurrency <= 1 || len(targets) < 2 {
		for _, id := range targets {
			msg := tmpl.Clone()
			msg.Destination = id
			results[id] = r.Route(ctx, msg)
		}
		return results
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(r.concurrency)
	for _, id := range targets {
		msg := tmpl.Clone()
		msg.Destination = id
		g.Go(func() error {
			res := r.Route(ctx, msg)
			mu.Lock()
			results[id] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // deliveries never fail the group
	return results
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Send queues msg for msg.Destination without invoking any handler.
// The destination must be registered. Receivers drain their queue with MessagesFor.
func (r *Router) Send(ctx context.Context, msg domain.Message) error {
	if !r.resolver.Contains(msg.Destination) {
		return fmt.Errorf("%w: %s", domain.ErrUnknownChain, msg.Destination)
	}
	if msg.CorrelationID == "" {
		msg.CorrelationID = uuid.NewString()
	}
	r.mailbox.push(msg.Clone())
	r.logger.Debug("message queued",
		"chain_id", msg.Destination,
		"type", msg.Type,
		"correlation_id", msg.CorrelationID,
	)
	return nil
}

// MessagesFor drains the queued messages of the given type for chainID, oldest first.
func (r *Router) MessagesFor(chainID, messageType string) []domain.Message {
	return r.mailbox.drain(chainID, messageType)
}

// Pending reports how many messages of the given type wait for chainID.
func (r *Router) Pending(chainID, messageType string) int {
	return r.mailbox.len(chainID, messageType)
}
