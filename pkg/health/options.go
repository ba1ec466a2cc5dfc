package health

import (
	"log/slog"
	"time"

	"github.com/aretw0/crosschain/internal/logging"
	"github.com/aretw0/crosschain/pkg/domain"
)

type options struct {
	now       func() time.Time
	logger    *slog.Logger
	proberFor func(chainID string) Prober
	onCheck   func(chainID string, status domain.HealthStatus)
}

// Option configures a HeartbeatManager or a Service.
type Option func(*options)

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithProbers sets the factory used by a Service to give new monitors a Prober.
// The factory may return nil for chains without one.
func WithProbers(fn func(chainID string) Prober) Option {
	return func(o *options) {
		o.proberFor = fn
	}
}

// WithCheckObserver is called by a Service after every chain check.
func WithCheckObserver(fn func(chainID string, status domain.HealthStatus)) Option {
	return func(o *options) {
		o.onCheck = fn
	}
}

func buildOptions(opts []Option) options {
	o := options{
		now:    time.Now,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
