// Command indexer consumes document events from Kafka and writes them into
// the shard directories the searcher reads.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/metrics"
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
	slog.Info("starting indexer service", "num_shards", cfg.Indexer.NumShards)
	router, err := shard.NewRouter(cfg.Indexer, cfg.Indexer.NumShards)
	if err != nil {
		slog.Error("failed to create shard router", "error", err)
		os.Exit(1)
	}
	defer router.Close()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	for shardID, engine := range router.Engines() {
		engine.StartFlushLoop(ctx)
		slog.Info("flush loop started", "shard_id", shardID)
	}
	kafkaConsumer := kafka.NewConsumer(
		cfg.Kafka,
		cfg.Kafka.Topics.DocumentIngest,
		consumer.HandleMessage(consumer.RouterIndexer(router), m),
	)

	indexConsumer := consumer.New(kafkaConsumer)

	slog.Info("indexer service ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.DocumentIngest,
		"group", cfg.Kafka.ConsumerGroup,
	)

	if err := indexConsumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	slog.Info("flushing all shards before shutdown")
	if err := router.FlushAll(); err != nil {
		slog.Error("final flush failed", "error", err)
	}

	slog.Info("indexer service stopped")
}
