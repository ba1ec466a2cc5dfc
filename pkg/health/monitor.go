package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/crosschain/pkg/domain"
)

// ProbeStatus is what a Prober reports about a chain beyond plain liveness.
type ProbeStatus struct {
	ResponseTimeMs float64
	ErrorRate      float64
	Metadata       map[string]any
}

// Prober queries a chain directly.
type Prober interface {
	// Ping returns false when the chain answers but reports a problem.
	Ping(ctx context.Context) (bool, error)
	Status(ctx context.Context) (ProbeStatus, error)
}

// Monitor classifies the health of one chain.
type Monitor struct {
	chainID string
	hb      *HeartbeatManager
	prober  Prober
	now     func() time.Time
	logger  *slog.Logger

	mu   sync.Mutex
	last domain.HealthMetrics
}

// NewMonitor creates a monitor for chainID. prober may be nil.
func NewMonitor(chainID string, hb *HeartbeatManager, prober Prober, opts ...Option) *Monitor {
	o := buildOptions(opts)
	now := o.now()
	return &Monitor{
		chainID: chainID,
		hb:      hb,
		prober:  prober,
		now:     o.now,
		logger:  o.logger,
		last:    domain.HealthMetrics{Timestamp: now, LastChecked: now},
	}
}

// ChainID returns the monitored chain.
func (m *Monitor) ChainID() string {
	return m.chainID
}

// Check classifies the chain. A stale heartbeat or a failing probe is unhealthy,
// a probe answering false is degraded, anything else is healthy.
func (m *Monitor) Check(ctx context.Context) domain.HealthStatus {
	if !m.hb.IsAlive(m.chainID) {
		return domain.HealthUnhealthy
	}
	if m.prober == nil {
		return domain.HealthHealthy
	}

	ok, err := m.prober.Ping(ctx)
	switch {
	case err != nil:
		m.logger.Warn("health probe failed", "chain_id", m.chainID, "err", err)
		return domain.HealthUnhealthy
	case !ok:
		return domain.HealthDegraded
	}
	return domain.HealthHealthy
}

// Metrics refreshes and returns the chain's measurements.
// A failing Status call is reported as response time -1 and error rate 1.
func (m *Monitor) Metrics(ctx context.Context) domain.HealthMetrics {
	alive := m.hb.IsAlive(m.chainID)

	var status ProbeStatus
	if m.prober != nil {
		var err error
		status, err = m.prober.Status(ctx)
		if err != nil {
			m.logger.Warn("health status failed", "chain_id", m.chainID, "err", err)
			status = ProbeStatus{ResponseTimeMs: -1, ErrorRate: 1}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.last.IsAlive = alive
	m.last.LastChecked = m.now()
	m.last.ResponseTimeMs = status.ResponseTimeMs
	m.last.ErrorRate = status.ErrorRate
	m.last.Metadata = status.Metadata
	m.last.Availability = 0
	if alive {
		m.last.Availability = 1 - status.ErrorRate
	}
	return m.last
}
