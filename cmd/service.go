package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/CodeTease/custom404/pkg/cache"
	"github.com/CodeTease/custom404/pkg/catalog"
	"github.com/CodeTease/custom404/pkg/config"
	"github.com/CodeTease/custom404/pkg/handlers"
	"github.com/CodeTease/custom404/pkg/loader"
	"github.com/CodeTease/custom404/pkg/logger"
	"github.com/CodeTease/custom404/pkg/ratelimit"
	"github.com/CodeTease/custom404/pkg/session"
	"github.com/CodeTease/custom404/pkg/storage"
	"github.com/CodeTease/custom404/pkg/watermark"
)

// service is the wired application shared by serve and render.
type service struct {
	config   *config.Manager
	factory  *session.Factory
	sessions *session.Store
	limiter  ratelimit.Limiter
	closers  []func() error
}

func newService(ctx context.Context) (*service, error) {
	m, err := config.NewManager()
	if err != nil {
		return nil, err
	}
	cfg := m.Get()
	logger.Init(cfg.Debug, cfg.LogFormat)

	font, err := watermark.LoadFont(cfg.WatermarkFontPath, cfg.WatermarkFontSize)
	if err != nil {
		return nil, err
	}

	var loaderOpts []loader.Option
	if cfg.S3Enabled() {
		s3Client, err := storage.NewS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		loaderOpts = append(loaderOpts, loader.WithS3(s3Client))
	}

	pipeline, err := watermark.NewPipeline(loader.New(cfg, loaderOpts...),
		watermark.WithFont(font),
		watermark.WithPlaceholder(cfg.Blurhash),
		watermark.WithFailureHook(func(fe *watermark.FailureError) {
			slog.Debug("Watermark dropped", "src", fe.Source, "state", fe.State, "error", fe.Err)
		}),
	)
	if err != nil {
		return nil, err
	}

	ids := catalog.Numbered(cfg.CatalogBaseURL, cfg.CatalogSize)
	if len(ids) == 0 {
		return nil, fmt.Errorf("CATALOG_SIZE must be positive, got %d: %w", cfg.CatalogSize, catalog.ErrInvalidCatalog)
	}

	s := &service{config: m}

	memoryCache := cache.NewMemoryCache(cfg.MemoryCacheSize, cfg.MemoryCacheLimitBytes, cfg.CacheTTL)
	s.closers = append(s.closers, func() error { memoryCache.Close(); return nil })

	var l2 cache.CacheProvider
	if addrs := cfg.RedisAddrs(); len(addrs) > 0 {
		rdb := cache.NewRedisClient(addrs, cfg.RedisPassword, cfg.RedisDB)
		s.closers = append(s.closers, rdb.Close)
		redisCache := cache.NewRedisCache(rdb)
		if err := redisCache.Health(ctx); err != nil {
			slog.Warn("Redis unreachable, continuing with memory cache", "error", err)
		}
		l2 = redisCache
		s.limiter = ratelimit.NewRedisLimiter(rdb, cfg.RateLimit)
	} else {
		s.limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit, 10000, time.Hour)
	}

	s.factory = &session.Factory{
		Pipeline: pipeline,
		Catalog:  ids,
		Cache:    cache.NewTieredCache(memoryCache, l2),
		CacheTTL: cfg.CacheTTL,
	}
	s.sessions = session.NewStore(cfg.SessionCacheSize, cfg.SessionTTL)
	return s, nil
}

func (s *service) handler() *handlers.Handler {
	return &handlers.Handler{
		ConfigManager: s.config,
		Factory:       s.factory,
		Sessions:      s.sessions,
		Limiter:       s.limiter,
	}
}

func (s *service) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			slog.Warn("Close failed", "error", err)
		}
	}
}
