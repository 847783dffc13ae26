package feedback

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/metrics"
)

func testParams() Params {
	return Params{
		NumFeedbackDocs:         10,
		NumFeedbackTermsTopical: 10,
		NumFeedbackTermsCausal:  10,
		MixingLambda:            0.5,
		QueryMix:                0.4,
		NumHits:                 100,
		FieldToSearch:           "content",
		Options:                 DefaultOptions(),
	}
}

func TestPipelineRunTokens(t *testing.T) {
	coll := workedExample()
	ret := &recordingRetriever{rounds: [][]ranker.ScoredDoc{hitsOf("D1", "D2")}}
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	p := NewPipeline(ret, coll, coll, tokenizer.Terms, testParams(), m)

	res, err := p.RunTokens(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("RunTokens: %v", err)
	}
	if len(ret.plans) != 3 {
		t.Fatalf("retrievals = %d, want 3", len(ret.plans))
	}
	if res.FeedbackDocs != [2]int{2, 2} {
		t.Errorf("FeedbackDocs = %v", res.FeedbackDocs)
	}

	initial := ret.plans[0]
	if len(initial.Terms) != 1 || initial.Terms[0] != "a" || initial.Field != "content" {
		t.Errorf("initial plan = %+v", initial)
	}

	// Round two is boosted by the topical expansion weights.
	topical := ret.plans[1]
	if topical != res.TopicalQuery {
		t.Error("second retrieval did not use the topical query")
	}
	for _, e := range res.Topical.Entries() {
		assertClose(t, "topical boost "+e.Term, topical.Boost(e.Term), e.ExpansionWeight)
	}

	// The final round is boosted by the causal weights.
	final := ret.plans[2]
	if final != res.CausalQuery {
		t.Error("final retrieval did not use the causal query")
	}
	for _, e := range res.Causal.Entries() {
		assertClose(t, "causal boost "+e.Term, final.Boost(e.Term), e.Weight)
	}
	assertClose(t, "causal sum", res.Causal.Sum(FieldWeight), 1)
	if len(res.Hits) != 2 {
		t.Errorf("hits = %d, want 2", len(res.Hits))
	}

	if got := testutil.ToFloat64(m.FeedbackQueriesTotal.WithLabelValues("ok")); got != 1 {
		t.Errorf("feedback_queries_total{ok} = %v", got)
	}
	if n := testutil.CollectAndCount(m.FeedbackStageDuration); n != 5 {
		t.Errorf("stage series = %d, want 5", n)
	}
}

func TestPipelineFallsBackToInitialQuery(t *testing.T) {
	coll := workedExample()
	ret := &recordingRetriever{rounds: [][]ranker.ScoredDoc{nil}}
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)
	p := NewPipeline(ret, coll, coll, tokenizer.Terms, testParams(), m)

	// A field-qualified token never becomes an expansion clause and there
	// are no feedback documents, so every round reuses the initial plan.
	res, err := p.RunTokens(context.Background(), []string{"title:a"})
	if err != nil {
		t.Fatalf("RunTokens: %v", err)
	}
	for i, plan := range ret.plans {
		if plan != ret.plans[0] {
			t.Errorf("round %d plan %v differs from initial", i, plan)
		}
	}
	if res.FeedbackDocs != [2]int{0, 0} {
		t.Errorf("FeedbackDocs = %v", res.FeedbackDocs)
	}
	if !res.Causal.Has("title:a") {
		t.Errorf("causal model %v lacks the query token", res.Causal.Terms())
	}
	if got := testutil.ToFloat64(m.FeedbackQueriesTotal.WithLabelValues("no_feedback")); got != 1 {
		t.Errorf("feedback_queries_total{no_feedback} = %v", got)
	}
}

func TestPipelineClauseLimit(t *testing.T) {
	coll := workedExample()
	ret := &recordingRetriever{rounds: [][]ranker.ScoredDoc{hitsOf("D1", "D2")}}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	prm := testParams()
	prm.MaxClauseCount = 1
	p := NewPipeline(ret, coll, coll, tokenizer.Terms, prm, m)

	_, err := p.RunTokens(context.Background(), []string{"a"})
	if !errors.Is(err, apperrors.ErrTooManyClauses) {
		t.Fatalf("err = %v, want ErrTooManyClauses", err)
	}
	if len(ret.plans) != 1 {
		t.Errorf("retrievals = %d, want 1", len(ret.plans))
	}
	if got := testutil.ToFloat64(m.FeedbackClauseLimitExceed); got != 1 {
		t.Errorf("clause limit counter = %v", got)
	}
	if got := testutil.ToFloat64(m.FeedbackQueriesTotal.WithLabelValues("error")); got != 1 {
		t.Errorf("feedback_queries_total{error} = %v", got)
	}
}

func TestPipelineRetrieverError(t *testing.T) {
	coll := workedExample()
	ret := &recordingRetriever{err: apperrors.ErrShardUnavailable}
	p := NewPipeline(ret, coll, coll, tokenizer.Terms, testParams(), nil)

	if _, err := p.RunTokens(context.Background(), []string{"a"}); !errors.Is(err, apperrors.ErrShardUnavailable) {
		t.Fatalf("err = %v, want ErrShardUnavailable", err)
	}
}

func TestPipelineRunEmptyQuery(t *testing.T) {
	coll := workedExample()
	p := NewPipeline(&recordingRetriever{}, coll, coll, tokenizer.Terms, testParams(), nil)

	_, err := p.Run(context.Background(), "the of and")
	if !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if apperrors.HTTPStatusCode(err) != 400 {
		t.Errorf("status = %d", apperrors.HTTPStatusCode(err))
	}
}

func TestParamsFromConfig(t *testing.T) {
	cfg := config.FeedbackConfig{
		NumFeedbackDocs:   5,
		MixingLambda:      0.7,
		CausalMatch:       config.CausalMatchFirstMatch,
		DeterministicTies: true,
	}
	prm, err := ParamsFromConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if prm.NumFeedbackDocs != 5 || prm.MixingLambda != 0.7 {
		t.Errorf("params = %+v", prm)
	}
	if prm.Options.CausalMatch != MatchFirstMatch || !prm.Options.DeterministicTies {
		t.Errorf("options = %+v", prm.Options)
	}

	cfg.CausalMatch = "best"
	if _, err := ParamsFromConfig(cfg); err == nil {
		t.Error("unknown causal match accepted")
	}
}
