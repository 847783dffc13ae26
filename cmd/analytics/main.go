// Command analytics aggregates search and expansion events from every
// searcher and from published evaluation runs into one dashboard view.
//
// It reads the analytics topic under its own consumer group, so it sees
// every event regardless of how many searchers embed an aggregator, and
// serves GET /api/v1/analytics. With Postgres enabled it also snapshots the
// aggregate periodically and serves the last persisted one at
// GET /api/v1/analytics/snapshot.
//
// Usage:
//
//	analytics [-c config.yaml] [--group feedback-analytics]
package main

import (
	"context"
	"encoding/json"
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
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/postgres"
)

const snapshotInterval = time.Minute

func main() {
	configPath := pflag.StringP("config", "c", "", "path to config file (defaults and SP_* environment when empty)")
	group := pflag.String("group", "", "consumer group (defaults to <kafka.consumerGroup>-analytics)")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if *group == "" {
		*group = cfg.Kafka.ConsumerGroup + "-analytics"
	}
	if err := run(cfg, *group); err != nil {
		slog.Error("analytics service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("analytics service stopped")
}

func run(cfg *config.Config, group string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	agg := analytics.NewAggregator()
	kafkaCfg := cfg.Kafka
	kafkaCfg.ConsumerGroup = group
	consumer := kafka.NewConsumer(kafkaCfg, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(agg))
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("analytics consumer stopped", "error", err)
		}
	}()
	slog.Info("analytics consumer started", "topic", cfg.Kafka.Topics.AnalyticsEvents, "group", group)

	checker := health.NewChecker()
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: "consumer active"}
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", analytics.NewHandler(agg).Stats)

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
		mux.HandleFunc("GET /api/v1/analytics/snapshot", snapshotHandler(store))
	}

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
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

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

func snapshotHandler(store *aggregator.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		stats, err := store.LatestSnapshot(r.Context())
		if err != nil {
			slog.Error("loading snapshot failed", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "snapshot unavailable"})
			return
		}
		if stats == nil {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "no snapshot yet"})
			return
		}
		json.NewEncoder(w).Encode(stats)
	}
}
