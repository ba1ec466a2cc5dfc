package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/crosschain/internal/logging"
	"github.com/aretw0/crosschain/pkg/adapters/memory"
	"github.com/aretw0/crosschain/pkg/domain"
	"github.com/aretw0/crosschain/pkg/ports"
)

// ErrNotMap is returned by Update when the stored value cannot be merged.
var ErrNotMap = errors.New("value is not a map")

// pending is a recorded change waiting for delivery. subs is the subscriber
// list as it was when the mutation happened.
type pending struct {
	op     domain.StateOp
	change Change
	subs   []subscriber
}

// dispatchQueue orders deliveries for one key. Only one goroutine drains it
// at a time; writes made while it drains are appended and delivered by that
// goroutine.
type dispatchQueue struct {
	items    []pending
	draining bool
}

// lockEntry holds the per-key mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager is the shared state manager.
// It uses reference counting to garbage collect unused key locks.
type Manager struct {
	backend ports.StateBackend

	mu    sync.Mutex            // Global lock for the locks map
	locks map[string]*lockEntry // Map of active key locks

	subMu  sync.RWMutex
	subs   map[string][]subscriber
	nextID atomic.Uint64

	queueMu sync.Mutex
	queues  map[string]*dispatchQueue

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	hooks   domain.LifecycleHooks
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithBackend sets the storage backend (default: in-memory).
func WithBackend(backend ports.StateBackend) Option {
	return func(m *Manager) {
		m.backend = backend
	}
}

// WithLocker enables distributed locking of keys during mutations.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(m *Manager) {
		m.locker = locker
		m.lockTTL = ttl
	}
}

// WithHooks registers lifecycle hooks fired after each mutation.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(m *Manager) {
		m.hooks = hooks
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a shared state manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		locks:   make(map[string]*lockEntry),
		subs:    make(map[string][]subscriber),
		queues:  make(map[string]*dispatchQueue),
		lockTTL: 30 * time.Second,
		logger:  logging.NewNop(), // Default to no-op
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.backend == nil {
		m.backend = memory.NewStore()
	}
	return m
}

// Backend returns the underlying storage backend.
func (m *Manager) Backend() ports.StateBackend {
	return m.backend
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(key) after unlocking.
func (m *Manager) acquire(key string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		entry = &lockEntry{}
		m.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, key)
	}
}

// withKey executes fn while holding the write lock for key, then delivers
// the changes fn recorded. Delivery happens after the lock is released so a
// subscriber may write back to any key, including the one it observes.
func (m *Manager) withKey(ctx context.Context, key string, fn func(context.Context) error) error {
	err := m.locked(ctx, key, fn)
	m.drain(ctx, key)
	return err
}

func (m *Manager) locked(ctx context.Context, key string, fn func(context.Context) error) error {
	entry := m.acquire(key)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(key)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, key, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock for %q: %w", key, err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"key", key,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// lookup loads key, mapping domain.ErrUnknownKey to ok == false.
func (m *Manager) lookup(ctx context.Context, key string) (any, bool, error) {
	v, err := m.backend.Load(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownKey) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load %q: %w", key, err)
	}
	return v, true, nil
}

// Get returns the value stored under key. ok is false when the key is absent.
// The error is reserved for backend failures.
func (m *Manager) Get(ctx context.Context, key string) (value any, ok bool, err error) {
	return m.lookup(ctx, key)
}

// Set stores value under key and notifies the key's subscribers.
func (m *Manager) Set(ctx context.Context, key string, value any) error {
	return m.withKey(ctx, key, func(ctx context.Context) error {
		old, present, err := m.lookup(ctx, key)
		if err != nil {
			return err
		}
		if err := m.backend.Store(ctx, key, value); err != nil {
			return fmt.Errorf("failed to store %q: %w", key, err)
		}
		m.record(domain.StateOpSet, Change{
			Key:        key,
			Old:        old,
			OldPresent: present,
			New:        value,
			NewPresent: true,
		})
		return nil
	})
}

// Update merges patch into the map stored under key (shallow merge) and notifies subscribers.
// Returns domain.ErrUnknownKey when the key is absent and ErrNotMap when the value is not a map.
func (m *Manager) Update(ctx context.Context, key string, patch map[string]any) error {
	return m.withKey(ctx, key, func(ctx context.Context) error {
		old, present, err := m.lookup(ctx, key)
		if err != nil {
			return err
		}
		if !present {
			return fmt.Errorf("%w: %s", domain.ErrUnknownKey, key)
		}
		current, ok := old.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: %s holds %T", ErrNotMap, key, old)
		}

		merged := maps.Clone(current)
		if merged == nil {
			merged = make(map[string]any, len(patch))
		}
		maps.Copy(merged, patch)

		if err := m.backend.Store(ctx, key, merged); err != nil {
			return fmt.Errorf("failed to store %q: %w", key, err)
		}
		m.record(domain.StateOpUpdate, Change{
			Key:        key,
			Old:        old,
			OldPresent: true,
			New:        merged,
			NewPresent: true,
		})
		return nil
	})
}

// Delete removes key and its subscriber registrations.
// The subscribers registered at the time of the delete are notified
// (with NewPresent == false); later writes to key start with none.
// Returns domain.ErrUnknownKey if the key is absent.
func (m *Manager) Delete(ctx context.Context, key string) error {
	return m.withKey(ctx, key, func(ctx context.Context) error {
		old, present, err := m.lookup(ctx, key)
		if err != nil {
			return err
		}
		if !present {
			return fmt.Errorf("%w: %s", domain.ErrUnknownKey, key)
		}
		if err := m.backend.Remove(ctx, key); err != nil {
			return fmt.Errorf("failed to remove %q: %w", key, err)
		}
		m.record(domain.StateOpDelete, Change{
			Key:        key,
			Old:        old,
			OldPresent: true,
		})

		m.subMu.Lock()
		delete(m.subs, key)
		m.subMu.Unlock()
		return nil
	})
}

// Keys lists the stored keys in ascending order.
func (m *Manager) Keys(ctx context.Context) ([]string, error) {
	keys, err := m.backend.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}

// Snapshot returns a copy of the whole table.
func (m *Manager) Snapshot(ctx context.Context) (map[string]any, error) {
	keys, err := m.Keys(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		v, ok, err := m.lookup(ctx, k)
		if err != nil {
			return nil, err
		}
		if ok { // may have been deleted since Keys
			out[k] = v
		}
	}
	return out, nil
}

// Clear deletes every key, notifying each key's subscribers.
func (m *Manager) Clear(ctx context.Context) error {
	keys, err := m.Keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := m.Delete(ctx, k); err != nil && !errors.Is(err, domain.ErrUnknownKey) {
			return err
		}
	}
	return nil
}

// Subscribe registers fn for every subsequent mutation of key.
func (m *Manager) Subscribe(key string, fn Callback) Subscription {
	sub := Subscription{key: key, id: m.nextID.Add(1)}

	m.subMu.Lock()
	m.subs[key] = append(m.subs[key], subscriber{id: sub.id, fn: fn})
	m.subMu.Unlock()
	return sub
}

// Unsubscribe removes a subscription. It is a no-op if already removed.
func (m *Manager) Unsubscribe(sub Subscription) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	list := m.subs[sub.key]
	for i, s := range list {
		if s.id == sub.id {
			m.subs[sub.key] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(m.subs[sub.key]) == 0 {
		delete(m.subs, sub.key)
	}
}

// Subscribers returns the number of live subscriptions for key.
func (m *Manager) Subscribers(key string) int {
	m.subMu.RLock()
	defer m.subMu.RUnlock()
	return len(m.subs[key])
}

// record queues c for delivery to the subscribers key has right now.
// Callers hold the key lock, so queue order matches store order.
func (m *Manager) record(op domain.StateOp, c Change) {
	m.subMu.RLock()
	list := append([]subscriber(nil), m.subs[c.Key]...)
	m.subMu.RUnlock()

	m.queueMu.Lock()
	q, ok := m.queues[c.Key]
	if !ok {
		q = &dispatchQueue{}
		m.queues[c.Key] = q
	}
	q.items = append(q.items, pending{op: op, change: c, subs: list})
	m.queueMu.Unlock()
}

// drain delivers the queued changes for key unless another call is already
// draining it, in which case that call picks up whatever was appended.
func (m *Manager) drain(ctx context.Context, key string) {
	m.queueMu.Lock()
	q, ok := m.queues[key]
	if !ok || q.draining {
		m.queueMu.Unlock()
		return
	}
	q.draining = true
	m.queueMu.Unlock()

	finished := false
	defer func() {
		if finished {
			return
		}
		// A subscriber panicked; let the next writer resume delivery.
		m.queueMu.Lock()
		q.draining = false
		m.queueMu.Unlock()
	}()

	for {
		m.queueMu.Lock()
		if len(q.items) == 0 {
			q.draining = false
			if m.queues[key] == q {
				delete(m.queues, key)
			}
			m.queueMu.Unlock()
			finished = true
			return
		}
		p := q.items[0]
		q.items[0] = pending{}
		q.items = q.items[1:]
		m.queueMu.Unlock()

		m.notify(ctx, p)
	}
}

// notify calls the recorded subscribers in order.
func (m *Manager) notify(ctx context.Context, p pending) {
	for _, s := range p.subs {
		s.fn(p.change)
	}

	m.logger.Debug("state changed", "key", p.change.Key, "op", p.op, "subscribers", len(p.subs))
	if m.hooks.OnStateChange != nil {
		m.hooks.OnStateChange(ctx, &domain.StateEvent{
			EventBase:   domain.NewEventBase(domain.EventStateChange),
			Key:         p.change.Key,
			Op:          p.op,
			Subscribers: len(p.subs),
		})
	}
}
