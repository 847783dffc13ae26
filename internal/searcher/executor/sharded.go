package executor

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/errors"
)

type ShardResult struct {
	ShardID     int
	Postings    map[string]index.PostingList
	TotalDocs   int64
	TotalTokens int64
	Engine      *indexer.Engine
}

// ShardedExecutor merges per-shard postings before ranking so that every
// document is scored against collection-wide statistics. A failing shard
// is logged and left out; the query fails only when every shard fails.
type ShardedExecutor struct {
	engines []*indexer.Engine
	sim     ranker.Similarity
	logger  *slog.Logger
}

func NewSharded(engines []*indexer.Engine, sim ranker.Similarity) *ShardedExecutor {
	return &ShardedExecutor{
		engines: engines,
		sim:     sim,
		logger:  slog.Default().With("component", "sharded-executor"),
	}
}

// Retrieve returns the topK best documents for plan across all shards.
func (se *ShardedExecutor) Retrieve(ctx context.Context, plan *parser.QueryPlan, topK int) ([]ranker.ScoredDoc, error) {
	res, err := se.Execute(ctx, plan, topK)
	if err != nil {
		return nil, err
	}
	return res.Results, nil
}

func (se *ShardedExecutor) Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(plan.Terms) == 0 {
		return &SearchResult{
			Query:   plan.RawQuery,
			Results: []ranker.ScoredDoc{},
		}, nil
	}
	shardResults, err := se.fanOut(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("shard fan-out: %w", err)
	}
	mergedPostings := make(map[string]index.PostingList)
	termStats := make(map[string]int)
	var globalTotalDocs int64
	var globalTotalTokens int64
	engineLookup := make(map[string]*indexer.Engine)
	for _, sr := range shardResults {
		globalTotalDocs += sr.TotalDocs
		globalTotalTokens += sr.TotalTokens
		for term, postings := range sr.Postings {
			mergedPostings[term] = append(mergedPostings[term], postings...)
			termStats[term] += len(postings)
			for _, p := range postings {
				engineLookup[p.DocID] = sr.Engine
			}
		}
	}
	var globalAvgDocLen float64
	if globalTotalDocs > 0 {
		globalAvgDocLen = float64(globalTotalTokens) / float64(globalTotalDocs)
	}
	excludeDocIDs := make(map[string]struct{})
	for _, sr := range shardResults {
		for _, term := range plan.ExcludeTerms {
			for _, p := range sr.Postings[term] {
				excludeDocIDs[p.DocID] = struct{}{}
			}
		}
	}
	searchPostings := make(map[string]index.PostingList)
	for _, term := range plan.Terms {
		if postings, ok := mergedPostings[term]; ok {
			searchPostings[term] = postings
		}
	}

	candidateDocIDs := candidates(plan, searchPostings)

	for docID := range excludeDocIDs {
		delete(candidateDocIDs, docID)
	}
	filteredPostings, stats := filterPostings(searchPostings, candidateDocIDs)
	params := ranker.RankParams{
		TotalDocs:    globalTotalDocs,
		AvgDocLength: globalAvgDocLen,
		TotalTokens:  globalTotalTokens,
	}

	getDocInfo := func(docID string) ranker.DocInfo {
		if engine, ok := engineLookup[docID]; ok {
			return ranker.DocInfo{
				DocLength: engine.GetDocLength(docID),
			}
		}
		return ranker.DocInfo{DocLength: 0}
	}
	ranked := ranker.Rank(filteredPostings, stats, plan.Boost, se.sim, params, getDocInfo, limit)
	se.logger.Debug("sharded query executed",
		"query", plan.RawQuery,
		"shards_queried", len(shardResults),
		"global_candidates", len(candidateDocIDs),
		"results", len(ranked),
	)
	return &SearchResult{
		Query:     plan.RawQuery,
		TotalHits: len(candidateDocIDs),
		Results:   ranked,
		TermStats: termStats,
	}, nil
}

func (se *ShardedExecutor) fanOut(ctx context.Context, plan *parser.QueryPlan) ([]ShardResult, error) {
	type result struct {
		sr  ShardResult
		err error
	}
	allTerms := make([]string, 0, len(plan.Terms)+len(plan.ExcludeTerms))
	allTerms = append(allTerms, plan.Terms...)
	allTerms = append(allTerms, plan.ExcludeTerms...)
	results := make([]result, len(se.engines))
	// Shard failures are collected per slot rather than returned, so one
	// bad shard does not cancel the others.
	var g errgroup.Group
	for sid, eng := range se.engines {
		g.Go(func() error {
			sr := ShardResult{
				ShardID:     sid,
				Postings:    make(map[string]index.PostingList),
				TotalDocs:   eng.GetTotalDocs(),
				TotalTokens: eng.TotalTokens(),
				Engine:      eng,
			}
			for _, term := range allTerms {
				if err := ctx.Err(); err != nil {
					results[sid] = result{err: err}
					return nil
				}
				postings, err := eng.Lookup(term)
				if err != nil {
					results[sid] = result{err: fmt.Errorf("shard %d, term %q: %w", sid, term, err)}
					return nil
				}
				if len(postings) > 0 {
					sr.Postings[term] = postings
				}
			}
			results[sid] = result{sr: sr}
			return nil
		})
	}
	g.Wait()
	shardResults := make([]ShardResult, 0, len(se.engines))
	for _, r := range results {
		if r.err != nil {
			se.logger.Error("shard query failed", "error", r.err)
			continue
		}
		shardResults = append(shardResults, r.sr)
	}
	if len(shardResults) == 0 && len(se.engines) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("all %d shards failed: %w", len(se.engines), apperrors.ErrShardUnavailable)
	}
	return shardResults, nil
}
