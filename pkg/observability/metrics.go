package observability

import (
	"context"
	"fmt"

	"github.com/aretw0/crosschain/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "crosschain"

// Route outcomes used as the "outcome" label.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the collectors for one mesh.
type Metrics struct {
	routes        *prometheus.CounterVec
	routeDuration *prometheus.HistogramVec
	stateChanges  *prometheus.CounterVec
	chains        prometheus.Gauge
	chainHealthy  *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		routes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "routes_total",
				Help:      "Total routed messages.",
			},
			[]string{"chain", "type", "outcome"},
		),
		routeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "route_duration_seconds",
				Help:      "Route duration in seconds, handler time included.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"chain", "type"},
		),
		stateChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "state_changes_total",
				Help:      "Shared state mutations.",
			},
			[]string{"op"},
		),
		chains: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "chains_registered",
				Help:      "Chains currently registered.",
			},
		),
		chainHealthy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "chain_healthy",
				Help:      "1 when the last health check of the chain was healthy, 0 otherwise.",
			},
			[]string{"chain"},
		),
	}

	for _, c := range []prometheus.Collector{m.routes, m.routeDuration, m.stateChanges, m.chains, m.chainHealthy} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return m, nil
}

// RecordRoute counts one route.
func (m *Metrics) RecordRoute(e *domain.RouteEvent) {
	outcome := OutcomeSuccess
	if !e.Success {
		outcome = OutcomeFailure
	}
	m.routes.WithLabelValues(e.ChainID, e.MessageType, outcome).Inc()
	m.routeDuration.WithLabelValues(e.ChainID, e.MessageType).Observe(e.Duration.Seconds())
}

// RecordHealth publishes the outcome of a health check.
func (m *Metrics) RecordHealth(chainID string, status domain.HealthStatus) {
	v := 0.0
	if status == domain.HealthHealthy {
		v = 1
	}
	m.chainHealthy.WithLabelValues(chainID).Set(v)
}

// Hooks returns lifecycle hooks that feed the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnChainRegistered: func(ctx context.Context, e *domain.ChainEvent) {
			if !e.Replaced {
				m.chains.Inc()
			}
		},
		OnChainDeregistered: func(ctx context.Context, e *domain.ChainEvent) {
			m.chains.Dec()
			m.chainHealthy.DeleteLabelValues(e.ChainID)
		},
		OnRoute: func(ctx context.Context, e *domain.RouteEvent) {
			m.RecordRoute(e)
		},
		OnStateChange: func(ctx context.Context, e *domain.StateEvent) {
			m.stateChanges.WithLabelValues(string(e.Op)).Inc()
		},
	}
}
