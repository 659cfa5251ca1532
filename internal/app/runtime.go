package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/guilleojeda/community-content-tracker-sub003/internal/audit"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/cli"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/config"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/content"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/db"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/embedding"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/logging"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/observability"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/search"
	"github.com/guilleojeda/community-content-tracker-sub003/internal/visibility"
)

// runtime holds the wired services a command needs. Optional backends
// (Redis, Meilisearch, the embedding provider) are nil when unconfigured.
type runtime struct {
	cfg      *config.Config
	logger   zerolog.Logger
	pool     *db.Pool
	redis    *redis.Client
	index    *search.Meili
	registry *prometheus.Registry
	metrics  *observability.Metrics
	badges   *visibility.CachedBadgeLookup
	content  *content.Service
	search   *search.Service
}

func loadConfig(envLoader *cli.EnvLoader) (*config.Config, zerolog.Logger, error) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

// openRuntime connects the database and every configured backend and wires
// the content and search services over them.
func openRuntime(ctx context.Context, envLoader *cli.EnvLoader) (*runtime, error) {
	cfg, logger, err := loadConfig(envLoader)
	if err != nil {
		return nil, err
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("connect to database failed")
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	rt := &runtime{
		cfg:      cfg,
		logger:   logger,
		pool:     pool,
		registry: prometheus.NewRegistry(),
	}
	rt.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rt.metrics = observability.NewMetrics(rt.registry)

	if strings.TrimSpace(cfg.RedisURL) != "" {
		client, err := connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, badge cache and notifications disabled")
		} else {
			rt.redis = client
		}
	}
	rt.badges = visibility.NewCachedBadgeLookup(rt.redis, pool, cfg.BadgeCacheTTL)

	if strings.TrimSpace(cfg.MeiliURL) != "" {
		rt.index = search.NewMeili(cfg.MeiliURL, cfg.MeiliAPIKey, cfg.MeiliIndex, logger)
	}

	searchOpts := search.Options{Metrics: rt.metrics}
	if rt.index != nil {
		searchOpts.Index = rt.index
	}
	contentOpts := content.Options{
		UndoWindow: cfg.MergeUndoWindow,
		Metrics:    rt.metrics,
	}
	if strings.TrimSpace(cfg.EmbeddingEndpoint) != "" {
		client := embedding.NewClient(embedding.Options{
			Endpoint:       cfg.EmbeddingEndpoint,
			RequestTimeout: cfg.EmbeddingTimeout,
		})
		searchOpts.Embedder = client
		contentOpts.Embedder = client
	}

	sinks := []audit.Sink{audit.NewLogSink(logger)}
	if rt.redis != nil {
		sinks = append(sinks, audit.NewRedisSink(rt.redis, cfg.NotifyChannel))
	}
	contentOpts.Audit = audit.NewFanout(logger, sinks...)

	rt.search = search.NewService(pool, logger, searchOpts)
	contentOpts.Index = rt.search
	rt.content = content.NewService(pool, logger, contentOpts)
	return rt, nil
}

func connectRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Close waits for queued index updates before releasing connections.
func (r *runtime) Close() {
	if r == nil {
		return
	}
	if r.search != nil {
		r.search.Wait()
	}
	if r.index != nil {
		r.index.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	if r.pool != nil {
		_ = r.pool.Close()
	}
}

// operator is the viewer CLI mutations run as: an admin acting under the
// given id so audit events name who ran the command.
func operator(actor string) visibility.Viewer {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = "cli"
	}
	return visibility.Viewer{UserID: actor, IsAdmin: true}
}

// reportError prints a service error with its details so scripts can act on
// missing ids or deadlines.
func reportError(action string, err error) {
	if typed, ok := content.AsError(err); ok {
		fmt.Fprintf(os.Stderr, "Failed to %s: %s (%s)\n", action, typed.Message, typed.Kind)
		for key, value := range typed.Details {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", key, value)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "Failed to %s: %v\n", action, err)
}
