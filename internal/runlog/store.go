// Package runlog records batch experiment runs in PostgreSQL: one row per
// run, the ranked list of every topic and the topical and causal expansion
// terms that produced it.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/resilience"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS feedback_runs (
		id          UUID PRIMARY KEY,
		name        TEXT NOT NULL,
		topics_file TEXT NOT NULL,
		params      JSONB NOT NULL,
		topics      INTEGER NOT NULL DEFAULT 0,
		started_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		finished_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS feedback_run_results (
		run_id   UUID NOT NULL REFERENCES feedback_runs(id) ON DELETE CASCADE,
		query_id TEXT NOT NULL,
		rank     INTEGER NOT NULL,
		doc_id   TEXT NOT NULL,
		score    DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (run_id, query_id, rank)
	)`,
	`CREATE TABLE IF NOT EXISTS feedback_expansion_terms (
		run_id   UUID NOT NULL REFERENCES feedback_runs(id) ON DELETE CASCADE,
		query_id TEXT NOT NULL,
		stage    TEXT NOT NULL,
		term     TEXT NOT NULL,
		weight   DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (run_id, query_id, stage, term)
	)`,
}

// Expansion stages stored in feedback_expansion_terms.stage.
const (
	StageTopical = "topical"
	StageCausal  = "causal"
)

// Run describes one batch run.
type Run struct {
	ID         string
	Name       string
	TopicsFile string
	Params     any
}

// Term is one weighted expansion term.
type Term struct {
	Term   string
	Weight float64
}

// TopicResult is everything stored for one topic of a run.
type TopicResult struct {
	QueryID string
	Hits    []ranker.ScoredDoc
	Topical []Term
	Causal  []Term
}

type resultRow struct {
	rank  int
	docID string
	score float64
}

type termRow struct {
	stage  string
	term   string
	weight float64
}

// Store writes runs. Every write is bounded by the configured timeout and
// retried on transient errors.
type Store struct {
	db      *postgres.Client
	retry   resilience.RetryConfig
	timeout time.Duration
	logger  *slog.Logger
}

// NewStore creates the run tables if needed.
func NewStore(ctx context.Context, db *postgres.Client, timeout time.Duration) (*Store, error) {
	if err := db.Migrate(ctx, schema); err != nil {
		return nil, fmt.Errorf("migrating runlog schema: %w", err)
	}
	return &Store{
		db:      db,
		retry:   resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond},
		timeout: timeout,
		logger:  slog.Default().With("component", "runlog"),
	}, nil
}

// StartRun inserts the run row. Reusing a run ID is a conflict.
func (s *Store) StartRun(ctx context.Context, run Run) error {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("marshaling run params: %w", err)
	}
	err = s.write(ctx, "runlog-start", func(ctx context.Context) error {
		_, err := s.db.DB.ExecContext(ctx,
			`INSERT INTO feedback_runs (id, name, topics_file, params, started_at) VALUES ($1, $2, $3, $4, $5)`,
			run.ID, run.Name, run.TopicsFile, params, time.Now().UTC(),
		)
		return err
	})
	if postgres.IsUniqueViolation(err) {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusConflict, "run %s already recorded", run.ID)
	}
	if err != nil {
		return fmt.Errorf("starting run %s: %w", run.ID, err)
	}
	s.logger.Info("run started", "run_id", run.ID, "name", run.Name)
	return nil
}

// SaveTopic stores the ranking and expansion terms of one topic in a single
// transaction, replacing any earlier rows for the same topic.
func (s *Store) SaveTopic(ctx context.Context, runID string, res TopicResult) error {
	results, terms := topicRows(res)
	err := s.write(ctx, "runlog-topic", func(ctx context.Context) error {
		return s.db.InTx(ctx, func(tx *sql.Tx) error {
			for _, table := range []string{"feedback_run_results", "feedback_expansion_terms"} {
				if _, err := tx.ExecContext(ctx,
					`DELETE FROM `+table+` WHERE run_id = $1 AND query_id = $2`, runID, res.QueryID,
				); err != nil {
					return fmt.Errorf("clearing %s: %w", table, err)
				}
			}
			if err := copyRows(ctx, tx, "feedback_run_results", []string{"run_id", "query_id", "rank", "doc_id", "score"}, len(results), func(i int) []any {
				r := results[i]
				return []any{runID, res.QueryID, r.rank, r.docID, r.score}
			}); err != nil {
				return err
			}
			return copyRows(ctx, tx, "feedback_expansion_terms", []string{"run_id", "query_id", "stage", "term", "weight"}, len(terms), func(i int) []any {
				t := terms[i]
				return []any{runID, res.QueryID, t.stage, t.term, t.weight}
			})
		})
	})
	if err != nil {
		return fmt.Errorf("saving topic %s of run %s: %w", res.QueryID, runID, err)
	}
	s.logger.Debug("topic saved", "run_id", runID, "query_id", res.QueryID, "hits", len(results), "terms", len(terms))
	return nil
}

// FinishRun stamps the run with its completion time and topic count.
func (s *Store) FinishRun(ctx context.Context, runID string, topics int) error {
	err := s.write(ctx, "runlog-finish", func(ctx context.Context) error {
		res, err := s.db.DB.ExecContext(ctx,
			`UPDATE feedback_runs SET finished_at = $2, topics = $3 WHERE id = $1`,
			runID, time.Now().UTC(), topics,
		)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("run %s: %w", runID, apperrors.ErrDocumentNotFound)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", runID, err)
	}
	s.logger.Info("run finished", "run_id", runID, "topics", topics)
	return nil
}

// write runs fn under the store timeout and retries transient failures.
func (s *Store) write(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return resilience.Retry(ctx, name, s.retry, func() error {
		return retryable(resilience.WithTimeout(ctx, s.timeout, name, fn))
	})
}

// retryable marks non-transient errors permanent so Retry gives up on them.
func retryable(err error) error {
	if err == nil || postgres.IsTransient(err) {
		return err
	}
	return resilience.Permanent(err)
}

func copyRows(ctx context.Context, tx *sql.Tx, table string, columns []string, n int, row func(i int) []any) error {
	if n == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, columns...))
	if err != nil {
		return fmt.Errorf("preparing copy into %s: %w", table, err)
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
			return fmt.Errorf("copying row %d into %s: %w", i, table, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("flushing copy into %s: %w", table, err)
	}
	return nil
}

// topicRows flattens a result into table rows. Ranks start at 1. A term
// repeated within a stage keeps its first weight.
func topicRows(res TopicResult) ([]resultRow, []termRow) {
	results := make([]resultRow, len(res.Hits))
	for i, h := range res.Hits {
		results[i] = resultRow{rank: i + 1, docID: h.DocID, score: h.Score}
	}
	terms := make([]termRow, 0, len(res.Topical)+len(res.Causal))
	for _, stage := range []struct {
		name  string
		terms []Term
	}{{StageTopical, res.Topical}, {StageCausal, res.Causal}} {
		seen := make(map[string]bool, len(stage.terms))
		for _, t := range stage.terms {
			if seen[t.Term] {
				continue
			}
			seen[t.Term] = true
			terms = append(terms, termRow{stage: stage.name, term: t.Term, weight: t.Weight})
		}
	}
	return results, terms
}
