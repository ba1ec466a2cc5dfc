package health

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/aretw0/crosschain/pkg/domain"
	"golang.org/x/sync/errgroup"
)

// ChainReport is the health of one chain at check time.
type ChainReport struct {
	ChainID string               `json:"chain_id"`
	Status  domain.HealthStatus  `json:"status"`
	Metrics domain.HealthMetrics `json:"metrics"`
}

// Dashboard aggregates the reports of every monitored chain.
type Dashboard struct {
	OverallStatus   domain.HealthStatus    `json:"overall_status"`
	TotalChains     int                    `json:"total_chains"`
	UnhealthyChains int                    `json:"unhealthy_chains"`
	DegradedChains  int                    `json:"degraded_chains"`
	Chains          map[string]ChainReport `json:"chains"`
}

// Service owns one Monitor per chain.
type Service struct {
	hb   *HeartbeatManager
	opts options

	mu       sync.Mutex
	monitors map[string]*Monitor
}

// NewService creates a service on top of hb.
func NewService(hb *HeartbeatManager, opts ...Option) *Service {
	return &Service{
		hb:       hb,
		opts:     buildOptions(opts),
		monitors: make(map[string]*Monitor),
	}
}

// Heartbeats returns the underlying heartbeat manager.
func (s *Service) Heartbeats() *HeartbeatManager {
	return s.hb
}

// Monitor returns the monitor of chainID, creating it (and its heartbeat) on first use.
func (s *Service) Monitor(chainID string) *Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.monitors[chainID]; ok {
		return m
	}
	s.hb.Register(chainID, 0)

	var prober Prober
	if s.opts.proberFor != nil {
		prober = s.opts.proberFor(chainID)
	}
	m := NewMonitor(chainID, s.hb, prober, WithClock(s.opts.now), WithLogger(s.opts.logger))
	s.monitors[chainID] = m
	return m
}

// Lookup returns the monitor of chainID without creating one.
func (s *Service) Lookup(chainID string) (*Monitor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.monitors[chainID]
	return m, ok
}

// Remove drops the monitor and heartbeat of chainID.
func (s *Service) Remove(chainID string) {
	s.mu.Lock()
	delete(s.monitors, chainID)
	s.mu.Unlock()
	s.hb.Unregister(chainID)
}

// Monitored lists the chains with a monitor, sorted.
func (s *Service) Monitored() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.monitors))
	for id := range s.monitors {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Check reports the health of a monitored chain. It never creates a monitor:
// an unmonitored chain (never registered, or removed) yields domain.ErrUnknownChain.
func (s *Service) Check(ctx context.Context, chainID string) (ChainReport, error) {
	m, ok := s.Lookup(chainID)
	if !ok {
		return ChainReport{}, fmt.Errorf("%w: %s is not monitored", domain.ErrUnknownChain, chainID)
	}
	report := ChainReport{
		ChainID: chainID,
		Status:  m.Check(ctx),
		Metrics: m.Metrics(ctx),
	}
	if s.opts.onCheck != nil {
		s.opts.onCheck(chainID, report.Status)
	}
	s.opts.logger.Debug("chain checked", slog.String("chain_id", chainID), slog.String("status", string(report.Status)))
	return report, nil
}

// Dashboard checks every monitored chain concurrently.
// Chains removed while the dashboard is built are left out.
// The overall status is unhealthy if any chain is, else degraded if any chain is, else healthy.
func (s *Service) Dashboard(ctx context.Context) Dashboard {
	ids := s.Monitored()
	reports := make([]ChainReport, len(ids))
	found := make([]bool, len(ids))

	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			r, err := s.Check(ctx, id)
			reports[i], found[i] = r, err == nil
			return nil
		})
	}
	_ = g.Wait()

	d := Dashboard{
		OverallStatus: domain.HealthHealthy,
		Chains:        make(map[string]ChainReport, len(ids)),
	}
	for i, r := range reports {
		if !found[i] {
			continue
		}
		d.TotalChains++
		d.Chains[r.ChainID] = r
		switch r.Status {
		case domain.HealthUnhealthy:
			d.UnhealthyChains++
		case domain.HealthDegraded:
			d.DegradedChains++
		}
	}
	switch {
	case d.UnhealthyChains > 0:
		d.OverallStatus = domain.HealthUnhealthy
	case d.DegradedChains > 0:
		d.OverallStatus = domain.HealthDegraded
	}
	return d
}
