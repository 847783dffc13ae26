package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/runlog"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/searcher/collection"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/trec"
	apperrors "github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/postgres"
)

var runOpts struct {
	topics   string
	outDir   string
	fields   []string
	parallel int
	record   bool
	publish  bool
	timeout  time.Duration
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run causal feedback retrieval for every topic and write a TREC run file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runOpts.topics == "" {
			return errors.New("--topics is required")
		}
		return runTopics(cmd.Context())
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runOpts.topics, "topics", "t", "", "TREC topic file")
	f.StringVarP(&runOpts.outDir, "out", "o", ".", "directory the run file is written to")
	f.StringSliceVar(&runOpts.fields, "fields", []string{trec.FieldTitle}, "topic fields forming the query (title, desc, narr)")
	f.IntVarP(&runOpts.parallel, "parallel", "p", 4, "number of topics processed concurrently")
	f.BoolVar(&runOpts.record, "record", false, "store the run and its expansion terms in postgres")
	f.BoolVar(&runOpts.publish, "publish", false, "publish per-topic expansion events to kafka")
	f.DurationVar(&runOpts.timeout, "db-timeout", 10*time.Second, "timeout for each postgres write")
}

// topicOutcome is the pipeline result of one topic, nil when skipped.
type topicOutcome struct {
	topic  trec.Topic
	result *feedback.Result
}

func runTopics(ctx context.Context) error {
	topics, err := trec.ReadTopics(runOpts.topics)
	if err != nil {
		return err
	}

	router, err := shard.NewRouter(cfg.Indexer, cfg.Indexer.NumShards)
	if err != nil {
		return fmt.Errorf("creating shard router: %w", err)
	}
	defer router.Close()

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
	pipeline := feedback.NewPipeline(exec, coll, coll, tokenizer.Terms, params, nil)

	runName := cfg.Feedback.RunName(sim.String())
	runID := uuid.NewString()
	log := slog.Default().With("run_id", runID, "run", runName)

	var store *runlog.Store
	if runOpts.record {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer db.Close()
		store, err = runlog.NewStore(ctx, db, runOpts.timeout)
		if err != nil {
			return err
		}
		err = store.StartRun(ctx, runlog.Run{
			ID:         runID,
			Name:       runName,
			TopicsFile: runOpts.topics,
			Params:     map[string]any{"feedback": cfg.Feedback, "similarity": cfg.Search.Similarity},
		})
		if err != nil {
			return err
		}
	}

	var tracker analytics.Tracker
	if runOpts.publish {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		batch := collector.NewBatchCollector(producer, 100, time.Second)
		batch.Start(ctx)
		defer batch.Close()
		tracker = batch
	}

	log.Info("run starting", "topics", len(topics), "fields", runOpts.fields, "parallel", runOpts.parallel)
	outcomes := make([]topicOutcome, len(topics))
	g, gctx := errgroup.WithContext(ctx)
	if runOpts.parallel > 0 {
		g.SetLimit(runOpts.parallel)
	}
	for i, topic := range topics {
		g.Go(func() error {
			start := time.Now()
			qctx := logger.WithQueryID(gctx, topic.ID)
			res, err := pipeline.Run(qctx, topic.Query(runOpts.fields...))
			if errors.Is(err, apperrors.ErrInvalidInput) {
				log.Warn("topic skipped", "query_id", topic.ID, "error", err)
				return nil
			}
			if err != nil {
				return fmt.Errorf("topic %s: %w", topic.ID, err)
			}
			outcomes[i] = topicOutcome{topic: topic, result: res}

			if store != nil {
				err := store.SaveTopic(gctx, runID, runlog.TopicResult{
					QueryID: topic.ID,
					Hits:    res.Hits,
					Topical: runTerms(res.Topical, feedback.FieldExpansionWeight),
					Causal:  runTerms(res.Causal, feedback.FieldWeight),
				})
				if err != nil {
					return err
				}
			}
			if tracker != nil {
				tracker.Track(analytics.KeyExpansion, analytics.ExpansionEvent{
					Type:         analytics.EventExpansion,
					QueryID:      topic.ID,
					Query:        topic.Query(runOpts.fields...),
					Run:          runName,
					FeedbackDocs: res.FeedbackDocs,
					TopicalTerms: eventTerms(res.Topical, feedback.FieldExpansionWeight),
					CausalTerms:  eventTerms(res.Causal, feedback.FieldWeight),
					Returned:     len(res.Hits),
					LatencyMs:    time.Since(start).Milliseconds(),
					Timestamp:    time.Now().UTC(),
				})
			}
			log.Info("topic done",
				"query_id", topic.ID,
				"feedback_docs", res.FeedbackDocs,
				"hits", len(res.Hits),
				"latency_ms", time.Since(start).Milliseconds(),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	path, lines, err := writeRunFile(runOpts.outDir, runOpts.topics, runName, outcomes)
	if err != nil {
		return err
	}
	done := 0
	for _, o := range outcomes {
		if o.result != nil {
			done++
		}
	}
	if store != nil {
		if err := store.FinishRun(ctx, runID, done); err != nil {
			return err
		}
	}
	log.Info("run complete", "topics", done, "skipped", len(topics)-done, "lines", lines, "file", path)
	return nil
}

// runFileName names the run file after the topic file and the run.
func runFileName(topicsPath, runName string) string {
	return filepath.Base(topicsPath) + "-" + runName + ".res"
}

func writeRunFile(dir, topicsPath, runName string, outcomes []topicOutcome) (string, int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("creating run directory: %w", err)
	}
	path := filepath.Join(dir, runFileName(topicsPath, runName))
	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("creating run file: %w", err)
	}
	defer f.Close()

	rw := trec.NewRunWriter(f, runName)
	for _, o := range outcomes {
		if o.result == nil {
			continue
		}
		if err := rw.WriteTopic(o.topic.ID, o.result.Hits); err != nil {
			return "", 0, err
		}
	}
	if err := rw.Flush(); err != nil {
		return "", 0, fmt.Errorf("writing run file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", 0, fmt.Errorf("closing run file: %w", err)
	}
	return path, rw.Lines(), nil
}

func runTerms(set *feedback.WeightedTermSet, field feedback.WeightField) []runlog.Term {
	entries := set.Entries()
	out := make([]runlog.Term, len(entries))
	for i, w := range entries {
		out[i] = runlog.Term{Term: w.Term, Weight: field.Of(w)}
	}
	return out
}

func eventTerms(set *feedback.WeightedTermSet, field feedback.WeightField) []analytics.TermWeight {
	entries := set.Entries()
	out := make([]analytics.TermWeight, len(entries))
	for i, w := range entries {
		out[i] = analytics.TermWeight{Term: w.Term, Weight: field.Of(w)}
	}
	return out
}
