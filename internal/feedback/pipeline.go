package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/tracing"
)

// Params are the per-query parameters of the three-round pipeline.
type Params struct {
	NumFeedbackDocs         int
	NumFeedbackTermsTopical int
	NumFeedbackTermsCausal  int
	MixingLambda            float64
	QueryMix                float64
	MaxClauseCount          int
	NumHits                 int
	FieldToSearch           string
	Options                 Options
}

// ParamsFromConfig converts the feedback configuration block.
func ParamsFromConfig(cfg config.FeedbackConfig) (Params, error) {
	match, err := ParseCausalMatch(cfg.CausalMatch)
	if err != nil {
		return Params{}, err
	}
	return Params{
		NumFeedbackDocs:         cfg.NumFeedbackDocs,
		NumFeedbackTermsTopical: cfg.NumFeedbackTermsTopical,
		NumFeedbackTermsCausal:  cfg.NumFeedbackTermsCausal,
		MixingLambda:            cfg.MixingLambda,
		QueryMix:                cfg.QueryMix,
		MaxClauseCount:          cfg.MaxClauseCount,
		NumHits:                 cfg.NumHits,
		FieldToSearch:           cfg.FieldToSearch,
		Options: Options{
			DeterministicTies: cfg.DeterministicTies,
			CausalMatch:       match,
		},
	}, nil
}

// Result is the outcome of one pipeline run.
type Result struct {
	QueryTokens []string `json:"query_tokens"`
	// Topical is the RM3 model of the first round; its ExpansionWeight
	// boosts the second retrieval.
	Topical *WeightedTermSet `json:"-"`
	// Causal is the reweighted model of the second round; its Weight
	// boosts the final retrieval.
	Causal       *WeightedTermSet   `json:"-"`
	TopicalQuery *parser.QueryPlan  `json:"-"`
	CausalQuery  *parser.QueryPlan  `json:"-"`
	FeedbackDocs [2]int             `json:"feedback_docs"`
	Hits         []ranker.ScoredDoc `json:"hits"`
}

// Pipeline runs retrieval, topical expansion, expanded retrieval, causal
// reweighting and final retrieval for one query at a time. It holds no
// per-query state and may be shared by concurrent callers.
type Pipeline struct {
	retriever Retriever
	builder   *Builder
	tokenize  Tokenizer
	params    Params
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewPipeline wires the collaborators. m may be nil.
func NewPipeline(retriever Retriever, stats TermStatisticsProvider, vectors DocumentVectorProvider, tokenize Tokenizer, params Params, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		retriever: retriever,
		builder:   NewBuilder(stats, vectors, params.MixingLambda),
		tokenize:  tokenize,
		params:    params,
		metrics:   m,
		logger:    slog.Default().With("component", "feedback"),
	}
}

// Params returns the parameters the pipeline was built with.
func (p *Pipeline) Params() Params { return p.params }

// Run analyzes query and runs RunTokens.
func (p *Pipeline) Run(ctx context.Context, query string) (*Result, error) {
	tokens := p.tokenize(query)
	if len(tokens) == 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "query %q has no searchable terms", query)
	}
	return p.RunTokens(ctx, tokens)
}

// RunTokens runs the pipeline for an analyzed query.
func (p *Pipeline) RunTokens(ctx context.Context, tokens []string) (*Result, error) {
	res, err := p.run(ctx, tokens)
	if p.metrics != nil {
		outcome := "ok"
		switch {
		case err != nil:
			outcome = "error"
			if errors.Is(err, apperrors.ErrTooManyClauses) {
				p.metrics.FeedbackClauseLimitExceed.Inc()
			}
		case res.FeedbackDocs[0] == 0:
			outcome = "no_feedback"
		}
		p.metrics.FeedbackQueriesTotal.WithLabelValues(outcome).Inc()
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context, tokens []string) (*Result, error) {
	log := logger.FromContext(ctx).With("component", "feedback")
	prm := p.params
	res := &Result{QueryTokens: tokens}

	initial := parser.Disjunction(tokens)
	initial.Field = prm.FieldToSearch

	hits, err := p.retrieve(ctx, metrics.StageInitialRetrieval, initial)
	if err != nil {
		return nil, err
	}

	// Round one: RM1 over the initial hits, mixed with the query.
	start := time.Now()
	ctx1, span := tracing.StartChildSpan(ctx, metrics.StageTopical)
	set1, err := p.builder.Build(ctx1, hits, tokens, prm.NumFeedbackDocs)
	if err != nil {
		span.End()
		return nil, fmt.Errorf("topical feedback set: %w", err)
	}
	rm1, err := EstimateRelevanceModel(set1, prm.NumFeedbackTermsTopical, prm.Options)
	if err != nil {
		span.End()
		return nil, fmt.Errorf("topical relevance model: %w", err)
	}
	res.Topical = InterpolateWithQuery(rm1, tokens, prm.QueryMix)
	res.FeedbackDocs[0] = len(set1.Documents)
	res.TopicalQuery, err = p.expansion(res.Topical, FieldExpansionWeight, initial)
	span.SetAttr("feedback_docs", len(set1.Documents))
	span.SetAttr("terms", res.Topical.Len())
	span.End()
	p.observeRound(metrics.StageTopical, start, len(set1.Documents), res.TopicalQuery)
	if err != nil {
		return nil, fmt.Errorf("topical expansion query: %w", err)
	}
	log.Info("topical expansion",
		"feedback_docs", len(set1.Documents),
		"terms", res.Topical.Len(),
		"clauses", res.TopicalQuery.Len(),
	)

	hits, err = p.retrieve(ctx, metrics.StageExpandedRetrieval, res.TopicalQuery)
	if err != nil {
		return nil, err
	}

	// Round two: RM1 over the expanded hits, reweighted against round one.
	start = time.Now()
	ctx2, span := tracing.StartChildSpan(ctx, metrics.StageCausal)
	set2, err := p.builder.Build(ctx2, hits, res.TopicalQuery.Tokens(), prm.NumFeedbackDocs)
	if err != nil {
		span.End()
		return nil, fmt.Errorf("causal feedback set: %w", err)
	}
	rm2, err := EstimateRelevanceModel(set2, prm.NumFeedbackTermsCausal, prm.Options)
	if err != nil {
		span.End()
		return nil, fmt.Errorf("causal relevance model: %w", err)
	}
	res.Causal = ReweightCausal(rm2, res.Topical, tokens, prm.QueryMix, prm.NumFeedbackTermsCausal, prm.Options)
	res.FeedbackDocs[1] = len(set2.Documents)
	res.CausalQuery, err = p.expansion(res.Causal, FieldWeight, initial)
	span.SetAttr("feedback_docs", len(set2.Documents))
	span.SetAttr("terms", res.Causal.Len())
	span.End()
	p.observeRound(metrics.StageCausal, start, len(set2.Documents), res.CausalQuery)
	if err != nil {
		return nil, fmt.Errorf("causal expansion query: %w", err)
	}
	log.Info("causal expansion",
		"feedback_docs", len(set2.Documents),
		"terms", res.Causal.Len(),
		"clauses", res.CausalQuery.Len(),
	)

	res.Hits, err = p.retrieve(ctx, metrics.StageFinalRetrieval, res.CausalQuery)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// expansion builds the boosted plan for set, or returns fallback when the
// set yields no clauses.
func (p *Pipeline) expansion(set *WeightedTermSet, field WeightField, fallback *parser.QueryPlan) (*parser.QueryPlan, error) {
	plan, err := BuildExpansionQuery(set, field, p.params.FieldToSearch, p.params.MaxClauseCount)
	if err != nil {
		return nil, err
	}
	if plan.Len() == 0 {
		return fallback, nil
	}
	return plan, nil
}

func (p *Pipeline) retrieve(ctx context.Context, stage string, plan *parser.QueryPlan) ([]ranker.ScoredDoc, error) {
	start := time.Now()
	ctx, span := tracing.StartChildSpan(ctx, stage)
	defer span.End()
	hits, err := p.retriever.Retrieve(ctx, plan, p.params.NumHits)
	p.metrics.ObserveStage(stage, start)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stage, err)
	}
	span.SetAttr("hits", len(hits))
	return hits, nil
}

func (p *Pipeline) observeRound(stage string, start time.Time, docs int, plan *parser.QueryPlan) {
	if p.metrics == nil {
		return
	}
	p.metrics.ObserveStage(stage, start)
	p.metrics.FeedbackDocumentsUsed.Observe(float64(docs))
	if plan != nil {
		p.metrics.FeedbackExpansionTerms.WithLabelValues(stage).Observe(float64(plan.Len()))
	}
}
