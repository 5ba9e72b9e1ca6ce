package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/internal/config"
	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/adapters/agent"
	"github.com/aretw0/weft/pkg/adapters/file"
	"github.com/aretw0/weft/pkg/adapters/memory"
	"github.com/aretw0/weft/pkg/adapters/process"
	"github.com/aretw0/weft/pkg/adapters/redis"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/metrics"
	"github.com/aretw0/weft/pkg/observability"
	"github.com/aretw0/weft/pkg/persistence/middleware"
	"github.com/aretw0/weft/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

// logCapacity bounds per-run logs in the memory and redis log stores.
const logCapacity = 1000

// Engine is a weft.Engine wired from configuration, plus the collectors
// the serve command exposes.
type Engine struct {
	*weft.Engine
	Config   *config.Config
	Logger   *slog.Logger
	Stats    *metrics.Collector
	Registry *prometheus.Registry

	closers []func() error
}

// EngineOptions tweaks NewEngine beyond what the configuration says.
type EngineOptions struct {
	// Debug logs every lifecycle event at debug level.
	Debug bool
	// Extra options are applied after the configured ones.
	Extra []weft.Option
}

// NewEngine builds an engine for cfg: store driver and middleware, log
// store, locker, agent, shell runner, metrics and tracing hooks.
func NewEngine(cfg *config.Config, logger *slog.Logger, opts EngineOptions) (*Engine, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	e := &Engine{
		Config:   cfg,
		Logger:   logger,
		Stats:    metrics.NewCollector(),
		Registry: prometheus.NewRegistry(),
	}

	store, logs, locker, err := e.openStore(cfg)
	if err != nil {
		return nil, err
	}
	store, err = wrapStore(store, cfg.Store)
	if err != nil {
		_ = e.close()
		return nil, err
	}

	prom, err := metrics.NewPrometheusCollector(e.Registry)
	if err != nil {
		_ = e.close()
		return nil, err
	}
	hooks := []domain.LifecycleHooks{
		e.Stats.Hooks(),
		prom.Hooks(),
		observability.TracingHooks(otel.Tracer("github.com/aretw0/weft")),
	}
	if opts.Debug {
		hooks = append(hooks, debugHooks(logger))
	}

	shell := process.NewRunner(
		process.WithGracePeriod(cfg.Executor.ShellGrace),
		process.WithBaseDir(cfg.Dir),
		process.WithLogger(logger),
	)

	engineOpts := []weft.Option{
		weft.WithStore(store),
		weft.WithLogStore(logs),
		weft.WithShell(shell),
		weft.WithAgent(newAgent(cfg.Agent, shell, logger)),
		weft.WithLifecycleHooks(observability.Compose(hooks...)),
		weft.WithLogger(logger),
		weft.WithMaxDepth(cfg.Executor.MaxDepth),
		weft.WithActionTimeout(cfg.Executor.ActionTimeout),
	}
	if locker != nil {
		engineOpts = append(engineOpts, weft.WithLocker(locker))
	}
	engineOpts = append(engineOpts, opts.Extra...)

	eng, err := weft.New(cfg.Dir, engineOpts...)
	if err != nil {
		_ = e.close()
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	e.Engine = eng
	return e, nil
}

// Close shuts the engine down and releases backend clients.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error
	if e.Engine != nil {
		errs = append(errs, e.Engine.Shutdown(ctx))
	}
	errs = append(errs, e.close())
	return errors.Join(errs...)
}

func (e *Engine) close() error {
	var errs []error
	for _, c := range e.closers {
		errs = append(errs, c())
	}
	e.closers = nil
	return errors.Join(errs...)
}

func (e *Engine) openStore(cfg *config.Config) (ports.RunStore, ports.LogStore, ports.DistributedLocker, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return memory.NewStore(), memory.NewLogStore(logCapacity), nil, nil
	case config.DriverFile:
		base := cfg.StorePath()
		return file.New(base), file.NewLogStore(base), nil, nil
	case config.DriverRedis:
		rc := cfg.Store.Redis
		store := redis.New(rc.Addr, rc.Password, rc.DB, redis.WithPrefix(rc.Prefix+"run:"), redis.WithTTL(rc.TTL))
		e.closers = append(e.closers, store.Close)
		logs := redis.NewLogStore(store.Client(), rc.Prefix+"logs:", logCapacity, rc.TTL)
		locker := redis.NewLocker(store.Client(), rc.Prefix)
		return store, logs, locker, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// wrapStore applies PII masking before encryption, so masked values are
// what gets encrypted.
func wrapStore(store ports.RunStore, cfg config.StoreConfig) (ports.RunStore, error) {
	var mws []middleware.Middleware
	if len(cfg.MaskKeys) > 0 {
		pii, err := middleware.NewPIIMiddleware(cfg.MaskKeys)
		if err != nil {
			return nil, fmt.Errorf("store.mask_keys: %w", err)
		}
		mws = append(mws, pii)
	}
	if cfg.EncryptionKey != "" {
		key, err := middleware.ParseKey(cfg.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("store.encryption_key: %w", err)
		}
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			return nil, err
		}
		mws = append(mws, enc)
	}
	return middleware.Chain(store, mws...), nil
}

func newAgent(cfg config.AgentConfig, shell ports.ShellRunner, logger *slog.Logger) ports.AgentExecutor {
	if cfg.Command == "" {
		return agent.Echo{}
	}
	return agent.NewCommand(cfg.Command, cfg.Args,
		agent.WithRunner(shell),
		agent.WithTimeout(cfg.Timeout),
		agent.WithMaxRetries(cfg.MaxRetries),
		agent.WithRatePerMinute(cfg.RatePerMinute),
		agent.WithLogger(logger),
	)
}

func debugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateEnter: func(ctx context.Context, e *domain.StateEvent) {
			logger.Debug("Enter State", "run_id", e.RunID, "state", e.State)
		},
		OnStateLeave: func(ctx context.Context, e *domain.StateEvent) {
			logger.Debug("Leave State", "run_id", e.RunID, "state", e.State, "outcome", e.Outcome, "next", e.Next)
		},
		OnActionStart: func(ctx context.Context, e *domain.ActionEvent) {
			logger.Debug("Action Start", "run_id", e.RunID, "kind", e.Kind)
		},
		OnActionFinish: func(ctx context.Context, e *domain.ActionEvent) {
			if e.Error != "" {
				logger.Debug("Action Finish (Error)", "run_id", e.RunID, "kind", e.Kind, "err", e.Error)
			} else {
				logger.Debug("Action Finish (Success)", "run_id", e.RunID, "kind", e.Kind)
			}
		},
	}
}
