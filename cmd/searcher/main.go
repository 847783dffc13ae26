// Command searcher serves plain ranked search and causal feedback expansion
// over the shard directories written by the indexer.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/searcher/collection"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/tracing"
)

const (
	reloadDebounce   = 500 * time.Millisecond
	snapshotInterval = time.Minute
	analyticsBatch   = 100
	analyticsFlush   = 2 * time.Second
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to config file (defaults and SP_* environment when empty)")
	noAnalytics := pflag.Bool("no-analytics", false, "do not publish or consume analytics events")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg, !*noAnalytics); err != nil {
		slog.Error("search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

func run(cfg *config.Config, withAnalytics bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	slog.Info("starting search service", "port", cfg.Server.Port, "num_shards", cfg.Indexer.NumShards)
	router, err := shard.NewRouter(cfg.Indexer, cfg.Indexer.NumShards)
	if err != nil {
		return fmt.Errorf("creating shard router: %w", err)
	}
	defer router.Close()
	go func() {
		if err := router.Watch(ctx, reloadDebounce); err != nil {
			slog.Error("segment watcher stopped", "error", err)
		}
	}()

	sim, err := ranker.NewSimilarity(cfg.Search.Similarity.Name, cfg.Search.Similarity.Param1, cfg.Search.Similarity.Param2)
	if err != nil {
		return err
	}
	params, err := feedback.ParamsFromConfig(cfg.Feedback)
	if err != nil {
		return err
	}
	exec := executor.NewSharded(router.Engines(), sim)
	coll := collection.FromRouter(router)
	pipeline := feedback.NewPipeline(exec, coll, coll, tokenizer.Terms, params, m)
	slog.Info("feedback pipeline ready",
		"similarity", sim.String(),
		"run_name", cfg.Feedback.RunName(sim.String()),
	)

	checker := health.NewChecker()
	checker.Register("index_engine", func(ctx context.Context) health.ComponentHealth {
		if router.NumShards() > 0 {
			return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d shards active", router.NumShards())}
		}
		return health.ComponentHealth{Status: health.StatusDown, Message: "no shards"}
	})

	var caches handler.Caches
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, result caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		caches.Search = cache.New[*executor.SearchResult](redisClient, "search", cfg.Redis.CacheTTL, m)
		caches.Expand = cache.New[*handler.ExpandResponse](redisClient, "expand", cfg.Redis.CacheTTL, m)
		checker.Register("redis", health.PingCheck(redisClient.Ping, true))
		slog.Info("result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	agg := analytics.NewAggregator()
	var tracker analytics.Tracker = agg
	if withAnalytics {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		batch := collector.NewBatchCollector(producer, analyticsBatch, analyticsFlush)
		batch.Start(ctx)
		defer batch.Close()
		tracker = batch

		analyticsConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(agg))
		go func() {
			if err := analyticsConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("analytics consumer stopped", "error", err)
			}
		}()
		slog.Info("analytics pipeline started", "topic", cfg.Kafka.Topics.AnalyticsEvents)
	}

	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer db.Close()
		checker.Register("postgres", health.PingCheck(db.Ping, true))
		store, err := aggregator.NewStore(ctx, db)
		if err != nil {
			return err
		}
		store.StartPeriodicSave(ctx, agg, snapshotInterval)
	}

	h := handler.New(exec, pipeline, caches, tracker, cfg.Search.DefaultLimit, cfg.Search.MaxResults)
	analyticsH := analytics.NewHandler(agg)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analyticsH.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.Server.RateLimit > 0 {
		limiter := middleware.NewLimiter(cfg.Server.RateLimit, time.Minute)
		limiter.StartSweeper(ctx, 5*time.Minute)
		chain = middleware.RateLimit(limiter, "/api/v1/expand")(chain)
	}
	chain = middleware.Tracing(tracing.NewTracer(cfg.Tracing.Enabled, cfg.Tracing.SampleRate))(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}
