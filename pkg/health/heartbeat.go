package health

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aretw0/crosschain/pkg/domain"
)

// ProbeFunc reports whether a chain answered a liveness probe.
type ProbeFunc func(ctx context.Context, chainID string) bool

// HeartbeatManager tracks the last time each chain was seen.
type HeartbeatManager struct {
	mu        sync.RWMutex
	lastSeen  map[string]time.Time
	intervals map[string]time.Duration

	defaultInterval time.Duration
	now             func() time.Time
	logger          *slog.Logger
}

// NewHeartbeatManager creates a manager. A non-positive defaultInterval
// falls back to domain.DefaultPingInterval.
func NewHeartbeatManager(defaultInterval time.Duration, opts ...Option) *HeartbeatManager {
	o := buildOptions(opts)
	if defaultInterval <= 0 {
		defaultInterval = domain.DefaultPingInterval
	}
	return &HeartbeatManager{
		lastSeen:        make(map[string]time.Time),
		intervals:       make(map[string]time.Duration),
		defaultInterval: defaultInterval,
		now:             o.now,
		logger:          o.logger,
	}
}

// Register starts tracking chainID, counting registration as the first sighting.
// A non-positive interval uses the default. Registering twice is a no-op and returns false.
func (h *HeartbeatManager) Register(chainID string, interval time.Duration) bool {
	if interval <= 0 {
		interval = h.defaultInterval
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.lastSeen[chainID]; ok {
		h.logger.Debug("heartbeat already registered", "chain_id", chainID)
		return false
	}
	h.lastSeen[chainID] = h.now()
	h.intervals[chainID] = interval
	h.logger.Debug("heartbeat registered", "chain_id", chainID, "interval", interval)
	return true
}

// Unregister stops tracking chainID. It reports whether the chain was tracked.
func (h *HeartbeatManager) Unregister(chainID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.lastSeen[chainID]; !ok {
		return false
	}
	delete(h.lastSeen, chainID)
	delete(h.intervals, chainID)
	return true
}

// Ping records a sighting of chainID. It returns false for untracked chains.
func (h *HeartbeatManager) Ping(chainID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.lastSeen[chainID]; !ok {
		h.logger.Debug("ping for unregistered chain", "chain_id", chainID)
		return false
	}
	h.lastSeen[chainID] = h.now()
	return true
}

// LastSeen returns the last sighting of chainID.
func (h *HeartbeatManager) LastSeen(chainID string) (time.Time, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t, ok := h.lastSeen[chainID]
	return t, ok
}

// Interval returns the ping interval of chainID.
func (h *HeartbeatManager) Interval(chainID string) (time.Duration, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	d, ok := h.intervals[chainID]
	return d, ok
}

// IsAlive reports whether chainID was seen within its ping interval.
// Untracked chains are never alive.
func (h *HeartbeatManager) IsAlive(chainID string) bool {
	h.mu.RLock()
	last, ok := h.lastSeen[chainID]
	interval := h.intervals[chainID]
	h.mu.RUnlock()

	if !ok {
		return false
	}
	return h.now().Sub(last) <= interval
}

// Chains lists the tracked chain IDs, sorted.
func (h *HeartbeatManager) Chains() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.lastSeen))
	for id := range h.lastSeen {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// DefaultProbePeriod is the Run period used when a non-positive one is given.
const DefaultProbePeriod = 2 * time.Second

// Run probes every tracked chain each period and pings the ones that answer.
// A nil probe treats every tracked chain as answering. A non-positive period
// falls back to DefaultProbePeriod. Run blocks until ctx is done.
func (h *HeartbeatManager) Run(ctx context.Context, every time.Duration, probe ProbeFunc) error {
	if every <= 0 {
		every = DefaultProbePeriod
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, id := range h.Chains() {
				if probe == nil || probe(ctx, id) {
					h.Ping(id)
				} else {
					h.logger.Warn("chain missed heartbeat probe", "chain_id", id)
				}
			}
		}
	}
}
