// Package cli builds a Mesh the way the crosschain commands expect it.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/crosschain"
	"github.com/aretw0/crosschain/internal/config"
	"github.com/aretw0/crosschain/pkg/adapters/file"
	"github.com/aretw0/crosschain/pkg/adapters/memory"
	"github.com/aretw0/crosschain/pkg/adapters/process"
	redisAdapter "github.com/aretw0/crosschain/pkg/adapters/redis"
	"github.com/aretw0/crosschain/pkg/adapters/sqlite"
	"github.com/aretw0/crosschain/pkg/domain"
	"github.com/aretw0/crosschain/pkg/health"
	"github.com/aretw0/crosschain/pkg/persistence/middleware"
	"github.com/aretw0/crosschain/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// MessageTypeInfo returns a configured chain's ID and metadata.
const MessageTypeInfo = "info"

// Runtime is a Mesh plus the metrics registry it reports to.
type Runtime struct {
	Mesh    *crosschain.Mesh
	Metrics *prometheus.Registry
}

// NewRuntime builds a Mesh from cfg and registers the configured chains.
// Every configured chain answers "ping" with "pong" and "info" with its metadata.
func NewRuntime(cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opts := []crosschain.Option{
		crosschain.WithLogger(logger),
		crosschain.WithLifecycleHooks(createDebugHooks(logger)),
		crosschain.WithMetrics(promReg),
		crosschain.WithMaxHops(cfg.Router.MaxHops),
		crosschain.WithBroadcastConcurrency(cfg.Router.BroadcastConcurrency),
		crosschain.WithDefaultPingInterval(cfg.Health.DefaultPingInterval.Std()),
	}

	stateOpts, err := stateOptions(cfg.State, logger)
	if err != nil {
		return nil, err
	}
	opts = append(opts, stateOpts...)

	mesh, err := crosschain.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing mesh: %w", err)
	}

	runner := process.NewRunner(process.WithLogger(logger))
	for _, ch := range cfg.Chains {
		if err := registerConfigured(mesh, runner, ch); err != nil {
			_ = mesh.Close()
			return nil, err
		}
	}
	return &Runtime{Mesh: mesh, Metrics: promReg}, nil
}

// stateOptions selects the backend and wraps it with the configured at-rest middleware.
func stateOptions(cfg config.StateConfig, logger *slog.Logger) ([]crosschain.Option, error) {
	var (
		backend ports.StateBackend
		opts    []crosschain.Option
	)

	switch cfg.Backend {
	case config.BackendRedis:
		rc := cfg.Redis
		var storeOpts []redisAdapter.Option
		if rc.Prefix != "" {
			storeOpts = append(storeOpts, redisAdapter.WithPrefix(rc.Prefix+"state:"))
		}
		if rc.TTL > 0 {
			storeOpts = append(storeOpts, redisAdapter.WithTTL(rc.TTL.Std()))
		}
		store := redisAdapter.New(rc.Addr, rc.Password, rc.DB, storeOpts...)
		backend = store
		opts = append(opts, crosschain.WithLocker(redisAdapter.NewLocker(store.Client(), rc.Prefix), rc.LockTTL.Std()))
		logger.Info("using redis state backend", "addr", rc.Addr, "db", rc.DB)
	case config.BackendFile:
		backend = file.New(cfg.File.Dir)
		logger.Info("using file state backend", "dir", cfg.File.Dir)
	case config.BackendSQLite:
		store, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		backend = store
		logger.Info("using sqlite state backend", "path", store.Path())
	default:
		backend = memory.NewStore()
	}

	var mws []middleware.Middleware
	if len(cfg.PIIPatterns) > 0 {
		mw, err := middleware.NewPIIMiddleware(cfg.PIIPatterns)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	active, fallback, ok, err := cfg.Keys()
	if err != nil {
		return nil, err
	}
	if ok {
		mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: active, FallbackKeys: fallback})
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
		logger.Info("state encryption enabled", "fallback_keys", len(fallback))
	}

	return append(opts, crosschain.WithStateBackend(middleware.Chain(backend, mws...))), nil
}

func registerConfigured(mesh *crosschain.Mesh, runner *process.Runner, ch config.ChainConfig) error {
	info := map[string]any{"id": ch.ID, "metadata": ch.Metadata}

	chain := domain.ChainFunc(func(ctx context.Context, input any) (any, error) {
		return info, nil
	})
	if err := mesh.RegisterChain(ch.ID, chain, crosschain.PingEvery(ch.PingInterval.Std())); err != nil {
		return fmt.Errorf("failed to register chain %q: %w", ch.ID, err)
	}

	mesh.Handle(ch.ID, domain.MessageTypePing, func(ctx context.Context, msg domain.Message) (any, error) {
		return "pong", nil
	})
	mesh.Handle(ch.ID, MessageTypeInfo, func(ctx context.Context, msg domain.Message) (any, error) {
		return chain.Invoke(ctx, msg.Payload)
	})

	// Configured commands may override the built-ins.
	for _, h := range ch.Handlers {
		name := ch.ID + "/" + h.Type
		runner.Register(name, process.Command{Command: h.Command, Args: h.Args, Env: h.Env})
		mesh.Handle(ch.ID, h.Type, runner.Handler(name))
	}
	return nil
}

// createDebugHooks logs every lifecycle event at debug level.
func createDebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnChainRegistered: func(ctx context.Context, e *domain.ChainEvent) {
			logger.Debug("Chain Registered", "chain_id", e.ChainID, "replaced", e.Replaced)
		},
		OnChainDeregistered: func(ctx context.Context, e *domain.ChainEvent) {
			logger.Debug("Chain Deregistered", "chain_id", e.ChainID)
		},
		OnRoute: func(ctx context.Context, e *domain.RouteEvent) {
			if e.Success {
				logger.Debug("Route (Success)", "chain_id", e.ChainID, "type", e.MessageType, "hops", e.Hops)
			} else {
				logger.Debug("Route (Error)", "chain_id", e.ChainID, "type", e.MessageType, "err", e.Err)
			}
		},
		OnStateChange: func(ctx context.Context, e *domain.StateEvent) {
			logger.Debug("State Change", "key", e.Key, "op", e.Op, "subscribers", e.Subscribers)
		},
		OnNodeStatus: func(ctx context.Context, e *domain.NodeEvent) {
			logger.Debug("Node Status", "node", e.Address.String(), "from", e.From, "to", e.To)
		},
	}
}

// PingerInterval returns how often serve probes chains, never zero.
func PingerInterval(cfg config.Config) time.Duration {
	if d := cfg.Health.PingerInterval.Std(); d > 0 {
		return d
	}
	return health.DefaultProbePeriod
}
