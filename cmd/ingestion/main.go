// Command ingestion accepts documents over HTTP and publishes them to the
// document-ingest topic for the indexer.
//
// Usage:
//
//	go run ./cmd/ingestion [--config path/to/config.yaml]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/middleware"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to config file (defaults and SP_* environment when empty)")
	pflag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting ingestion service", "port", cfg.Server.Port)

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
	defer producer.Close()
	slog.Info("kafka producer initialized", "topic", cfg.Kafka.Topics.DocumentIngest)
	h := handler.New(publisher.New(producer))

	checker := health.NewChecker()
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d brokers configured", len(cfg.Kafka.Brokers))}
	})

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()
	slog.Info("ingestion service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}
