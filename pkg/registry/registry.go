// Package registry holds the set of chains known to a process.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/crosschain/internal/logging"
	"github.com/aretw0/crosschain/pkg/domain"
)

// Registry maps chain IDs to chain instances. It is the source of truth for
// which chains exist. Listing preserves registration order.
type Registry struct {
	mu     sync.RWMutex
	chains map[string]domain.Chain
	order  []string

	hooks  domain.LifecycleHooks
	logger *slog.Logger
}

// Option configures the Registry.
type Option func(*Registry)

// WithLogger configures a logger for registry events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// WithHooks registers lifecycle hooks fired on registration changes.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(r *Registry) {
		r.hooks = hooks
	}
}

// NewRegistry creates a new empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		chains: make(map[string]domain.Chain),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type registerConfig struct {
	overwrite bool
}

// RegisterOption tweaks a single Register call.
type RegisterOption func(*registerConfig)

// WithOverwrite replaces an existing chain instead of failing.
// The chain keeps its original position in List.
func WithOverwrite() RegisterOption {
	return func(c *registerConfig) {
		c.overwrite = true
	}
}

// Register adds a chain to the registry.
// Returns domain.ErrDuplicateChain if chainID is taken and WithOverwrite was not given.
func (r *Registry) Register(chainID string, chain domain.Chain, opts ...RegisterOption) error {
	if chainID == "" {
		return fmt.Errorf("%w: empty chain id", domain.ErrInvalidChain)
	}
	if chain == nil {
		return fmt.Errorf("%w: nil chain for %q", domain.ErrInvalidChain, chainID)
	}

	var cfg registerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	r.mu.Lock()
	_, exists := r.chains[chainID]
	if exists && !cfg.overwrite {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrDuplicateChain, chainID)
	}
	r.chains[chainID] = chain
	if !exists {
		r.order = append(r.order, chainID)
	}
	r.mu.Unlock()

	r.logger.Debug("chain registered", "chain_id", chainID, "overwrite", exists)
	if r.hooks.OnChainRegistered != nil {
		r.hooks.OnChainRegistered(context.Background(), &domain.ChainEvent{
			EventBase: domain.NewEventBase(domain.EventChainRegistered),
			ChainID:   chainID,
			Replaced:  exists,
		})
	}
	return nil
}

// Get looks up a chain by ID.
// Returns domain.ErrUnknownChain if the chain is not registered.
func (r *Registry) Get(chainID string) (domain.Chain, error) {
	r.mu.RLock()
	chain, ok := r.chains[chainID]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownChain, chainID)
	}
	return chain, nil
}

// Contains reports whether chainID is registered.
func (r *Registry) Contains(chainID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.chains[chainID]
	return ok
}

// List returns the registered chain IDs in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered chains.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Deregister removes a chain.
// It is strict: removing an unknown (or already removed) chain returns domain.ErrUnknownChain.
func (r *Registry) Deregister(chainID string) error {
	r.mu.Lock()
	if _, ok := r.chains[chainID]; !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrUnknownChain, chainID)
	}
	delete(r.chains, chainID)
	for i, id := range r.order {
		if id == chainID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.logger.Debug("chain deregistered", "chain_id", chainID)
	if r.hooks.OnChainDeregistered != nil {
		r.hooks.OnChainDeregistered(context.Background(), &domain.ChainEvent{
			EventBase: domain.NewEventBase(domain.EventChainDeregistered),
			ChainID:   chainID,
		})
	}
	return nil
}
