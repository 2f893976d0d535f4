package fleet

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/agentfleet/hierarchy"
	"github.com/BaSui01/agentfleet/internal/cache"
	"github.com/BaSui01/agentfleet/internal/metrics"
	"github.com/BaSui01/agentfleet/internal/telemetry"
	"github.com/BaSui01/agentfleet/types"
)

// GraphCacheKey is the cache key of the reconciled graph.
const GraphCacheKey = "hierarchy:graph"

const cacheName = "hierarchy"

// =============================================================================
// 🧩 依赖接口
// =============================================================================

// InputLoader produces builder input. *SourceLoader implements it.
type InputLoader interface {
	Load(ctx context.Context) (hierarchy.Input, error)
}

// GraphCache stores the encoded graph with a TTL. *cache.Manager implements it.
type GraphCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// ServiceConfig tunes caching and build limits.
type ServiceConfig struct {
	// CacheTTL <= 0 disables caching.
	CacheTTL     time.Duration
	BuildTimeout time.Duration
}

// =============================================================================
// 🕸️ 层级服务
// =============================================================================

// Service serves the agent hierarchy: cached graph when fresh, otherwise a
// single shared rebuild from the sources.
type Service struct {
	loader  InputLoader
	cache   GraphCache
	cfg     ServiceConfig
	metrics *metrics.Collector
	logger  *zap.Logger

	group singleflight.Group

	mu         sync.RWMutex
	generation uint64
	memo       *hierarchy.Graph
	memoAt     time.Time
	now        func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCache stores graphs in a shared cache in addition to process memory.
func WithCache(c GraphCache) ServiceOption {
	return func(s *Service) { s.cache = c }
}

// WithServiceMetrics records builds and cache hits.
func WithServiceMetrics(c *metrics.Collector) ServiceOption {
	return func(s *Service) { s.metrics = c }
}

// NewService creates a hierarchy service.
func NewService(loader InputLoader, cfg ServiceConfig, logger *zap.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		loader: loader,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "hierarchy_service")),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Graph returns the reconciled hierarchy. refresh bypasses every cache.
// Concurrent rebuilds are collapsed into one.
func (s *Service) Graph(ctx context.Context, refresh bool) (g hierarchy.Graph, err error) {
	ctx, span := telemetry.StartSpan(ctx, "fleet.Graph", attribute.Bool("refresh", refresh))
	defer func() { telemetry.EndSpan(span, err) }()

	if !refresh {
		if cached, ok := s.cached(ctx); ok {
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return cached, nil
		}
	}

	ch := s.group.DoChan(GraphCacheKey, func() (interface{}, error) {
		// 共享构建不随单个调用方取消
		buildCtx := context.WithoutCancel(ctx)
		if s.cfg.BuildTimeout > 0 {
			var cancel context.CancelFunc
			buildCtx, cancel = context.WithTimeout(buildCtx, s.cfg.BuildTimeout)
			defer cancel()
		}
		return s.rebuild(buildCtx)
	})

	select {
	case <-ctx.Done():
		return hierarchy.Graph{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return hierarchy.Graph{}, res.Err
		}
		span.SetAttributes(attribute.Bool("shared", res.Shared))
		return res.Val.(hierarchy.Graph), nil
	}
}

// Invalidate drops cached graphs. Builds already running are not stored.
func (s *Service) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	s.generation++
	s.memo = nil
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.Delete(ctx, GraphCacheKey); err != nil {
			s.logger.Warn("cache invalidation failed", zap.Error(err))
			return types.NewError(types.ErrCacheUnavailable, "failed to invalidate hierarchy cache").
				WithCause(err).
				WithRetryable(true)
		}
	}
	s.logger.Debug("hierarchy cache invalidated")
	return nil
}

func (s *Service) cached(ctx context.Context) (hierarchy.Graph, bool) {
	if s.cfg.CacheTTL <= 0 {
		return hierarchy.Graph{}, false
	}

	s.mu.RLock()
	memo, at := s.memo, s.memoAt
	s.mu.RUnlock()
	if memo != nil && s.now().Sub(at) < s.cfg.CacheTTL {
		s.recordCache(true)
		return *memo, true
	}

	if s.cache == nil {
		s.recordCache(false)
		return hierarchy.Graph{}, false
	}

	var g hierarchy.Graph
	err := s.cache.GetJSON(ctx, GraphCacheKey, &g)
	switch {
	case err == nil:
		s.recordCache(true)
		return g, true
	case cache.IsCacheMiss(err):
	default:
		s.logger.Warn("cache read failed, rebuilding", zap.Error(err))
	}
	s.recordCache(false)
	return hierarchy.Graph{}, false
}

func (s *Service) rebuild(ctx context.Context) (hierarchy.Graph, error) {
	s.mu.RLock()
	gen := s.generation
	s.mu.RUnlock()

	start := time.Now()
	in, err := s.loader.Load(ctx)
	if err != nil {
		s.recordBuild(hierarchy.Graph{}, time.Since(start), err)
		code := types.ErrHierarchyBuildFailed
		if errors.Is(err, context.DeadlineExceeded) {
			code = types.ErrTimeout
		}
		s.logger.Error("hierarchy sources could not be loaded", zap.Error(err))
		return hierarchy.Graph{}, types.NewError(code, "failed to load hierarchy sources").
			WithCause(err).
			WithRetryable(true)
	}

	_, span := telemetry.StartSpan(ctx, "hierarchy.Build")
	g := hierarchy.Build(in)
	span.SetAttributes(
		attribute.Int("nodes", len(g.Nodes)),
		attribute.Int("edges", len(g.Edges)),
		attribute.Int("warnings", len(g.Meta.Warnings)),
	)
	telemetry.EndSpan(span, nil)

	elapsed := time.Since(start)
	s.recordBuild(g, elapsed, nil)
	s.logger.Info("hierarchy built",
		zap.Int("nodes", len(g.Nodes)),
		zap.Int("edges", len(g.Edges)),
		zap.Int("warnings", len(g.Meta.Warnings)),
		zap.Bool("runtime_available", g.Meta.Sources.Runtime.Available),
		zap.Bool("fallback_used", g.Meta.Sources.Fallback.Used),
		zap.Duration("duration", elapsed),
	)

	s.store(ctx, gen, g)
	return g, nil
}

func (s *Service) store(ctx context.Context, gen uint64, g hierarchy.Graph) {
	if s.cfg.CacheTTL <= 0 {
		return
	}

	s.mu.Lock()
	stale := gen != s.generation
	if !stale {
		s.memo = &g
		s.memoAt = s.now()
	}
	s.mu.Unlock()
	if stale || s.cache == nil {
		return
	}

	if err := s.cache.SetJSON(ctx, GraphCacheKey, g, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("cache write failed", zap.Error(err))
	}
}

func (s *Service) recordBuild(g hierarchy.Graph, d time.Duration, err error) {
	if s.metrics != nil {
		s.metrics.RecordBuild(g, d, err)
	}
}

func (s *Service) recordCache(hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.RecordCacheHit(cacheName)
	} else {
		s.metrics.RecordCacheMiss(cacheName)
	}
}
