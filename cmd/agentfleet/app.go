package main

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentfleet/api/handlers"
	"github.com/BaSui01/agentfleet/config"
	"github.com/BaSui01/agentfleet/hierarchy"
	"github.com/BaSui01/agentfleet/internal/cache"
	"github.com/BaSui01/agentfleet/internal/database"
	"github.com/BaSui01/agentfleet/internal/fleet"
	"github.com/BaSui01/agentfleet/internal/metrics"
	"github.com/BaSui01/agentfleet/internal/telemetry"
)

// =============================================================================
// 🧱 组件装配
// =============================================================================

// App holds the wired hierarchy components shared by serve, graph and mcp.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	collector *metrics.Collector
	telemetry *telemetry.Providers
	pool      *database.PoolManager
	store     *fleet.AgentStore
	cache     *cache.Manager
	service   *fleet.Service
	watcher   *fleet.Watcher
}

// appOptions selects the optional parts a command needs.
type appOptions struct {
	metrics bool
	watch   bool
}

// newApp connects the optional backends and builds the hierarchy service.
// Unreachable optional backends are logged and skipped: the hierarchy is
// still served from the remaining sources.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts appOptions) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	a.telemetry = providers

	if opts.metrics {
		a.collector = metrics.NewCollector("agentfleet", logger)
	}

	if cfg.Database.Enabled {
		pool, err := database.Open(cfg.Database, logger)
		if err != nil {
			logger.Warn("database not available, persisted agents disabled", zap.Error(err))
		} else {
			a.pool = pool
			a.store = fleet.NewAgentStore(pool, a.collector, logger)
			if cfg.Database.AutoMigrate {
				if err := a.store.Migrate(ctx); err != nil {
					logger.Error("agent table migration failed", zap.Error(err))
				}
			}
		}
	}

	if cfg.Cache.Enabled {
		mgr, err := cache.NewManager(cacheConfig(cfg.Cache), logger)
		if err != nil {
			logger.Warn("cache not available, using in-process cache only", zap.Error(err))
		} else {
			a.cache = mgr
		}
	}

	loaderOpts := []fleet.LoaderOption{
		fleet.WithBuildOptions(hierarchy.Options{
			ReportsToPrecedence: hierarchy.ReportsToPrecedence(cfg.Hierarchy.ReportsToPrecedence),
		}),
		fleet.WithLoaderMetrics(a.collector),
	}
	if a.store != nil {
		loaderOpts = append(loaderOpts, fleet.WithAgentLister(a.store))
	}
	loader := fleet.NewSourceLoader(cfg.Sources, logger, loaderOpts...)

	serviceOpts := []fleet.ServiceOption{fleet.WithServiceMetrics(a.collector)}
	if a.cache != nil {
		serviceOpts = append(serviceOpts, fleet.WithCache(a.cache))
	}
	// cache.ttl 同时作用于进程内缓存，未启用 Redis 时也生效
	a.service = fleet.NewService(loader, fleet.ServiceConfig{
		CacheTTL:     cfg.Cache.TTL,
		BuildTimeout: cfg.Hierarchy.BuildTimeout,
	}, logger, serviceOpts...)

	if opts.watch && cfg.Sources.Watch {
		w, err := fleet.NewWatcher(cfg.Sources, a.service, logger)
		if err != nil {
			logger.Warn("source watcher disabled", zap.Error(err))
		} else {
			a.watcher = w
			w.Start(ctx)
		}
	}

	return a, nil
}

func cacheConfig(c config.CacheConfig) cache.Config {
	cc := cache.DefaultConfig()
	cc.Addr = c.Addr
	cc.Password = c.Password
	cc.DB = c.DB
	if c.KeyPrefix != "" {
		cc.KeyPrefix = c.KeyPrefix
	}
	if c.TTL > 0 {
		cc.DefaultTTL = c.TTL
	}
	if c.PoolSize > 0 {
		cc.PoolSize = c.PoolSize
	}
	return cc
}

// HealthChecks returns readiness probes for the connected backends.
func (a *App) HealthChecks() []handlers.HealthCheck {
	var checks []handlers.HealthCheck
	if a.pool != nil {
		checks = append(checks, handlers.NewPingCheck("database", a.pool.Ping).
			WithDetails(func(context.Context) any { return a.pool.GetStats() }))
	}
	if a.cache != nil {
		checks = append(checks, handlers.NewPingCheck("cache", a.cache.Ping).
			WithDetails(a.cacheDetails))
	}
	return checks
}

// cacheDetails reports Redis hit counts and how long the cached graph stays fresh.
func (a *App) cacheDetails(ctx context.Context) any {
	details := cacheStatus{Stats: a.cache.GetStats()}
	if ttl, err := a.cache.TTL(ctx, fleet.GraphCacheKey); err == nil && ttl > 0 {
		details.GraphTTL = ttl.Round(time.Second).String()
	}
	return details
}

type cacheStatus struct {
	cache.Stats
	GraphTTL string `json:"graph_ttl,omitempty"`
}

// Close releases every backend in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.watcher != nil {
		errs = append(errs, a.watcher.Stop())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.pool != nil {
		errs = append(errs, a.pool.Close())
	}
	if a.telemetry != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		errs = append(errs, a.telemetry.Shutdown(shutdownCtx))
		cancel()
	}
	return errors.Join(errs...)
}
