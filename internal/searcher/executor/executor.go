// Package executor evaluates query plans against one engine or a set of
// shard engines and ranks the matches with the configured similarity.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/searcher/ranker"
)

type SearchResult struct {
	Query     string             `json:"query"`
	TotalHits int                `json:"total_hits"`
	Results   []ranker.ScoredDoc `json:"results"`
	TermStats map[string]int     `json:"term_stats"`
}

type Executor struct {
	engine *indexer.Engine
	sim    ranker.Similarity
	logger *slog.Logger
}

func New(engine *indexer.Engine, sim ranker.Similarity) *Executor {
	return &Executor{
		engine: engine,
		sim:    sim,
		logger: slog.Default().With("component", "query-executor"),
	}
}

// Retrieve returns the topK best documents for plan.
func (e *Executor) Retrieve(ctx context.Context, plan *parser.QueryPlan, topK int) ([]ranker.ScoredDoc, error) {
	res, err := e.Execute(ctx, plan, topK)
	if err != nil {
		return nil, err
	}
	return res.Results, nil
}

// Execute evaluates plan. Plan terms are already analyzed; each term's
// contribution is multiplied by its boost.
func (e *Executor) Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(plan.Terms) == 0 {
		return &SearchResult{
			Query:   plan.RawQuery,
			Results: []ranker.ScoredDoc{},
		}, nil
	}

	postingsPerTerm := make(map[string]index.PostingList)
	termStats := make(map[string]int)
	for _, term := range plan.Terms {
		postings, err := e.engine.Lookup(term)
		if err != nil {
			return nil, fmt.Errorf("searching term %q: %w", term, err)
		}
		if len(postings) > 0 {
			postingsPerTerm[term] = postings
			termStats[term] = len(postings)
		}
	}
	excludeDocIDs := make(map[string]struct{})
	for _, term := range plan.ExcludeTerms {
		postings, err := e.engine.Lookup(term)
		if err != nil {
			e.logger.Error("searching exclude term failed", "term", term, "error", err)
			continue
		}
		for _, p := range postings {
			excludeDocIDs[p.DocID] = struct{}{}
		}
	}
	candidateDocIDs := candidates(plan, postingsPerTerm)
	for docID := range excludeDocIDs {
		delete(candidateDocIDs, docID)
	}
	filteredPostings, stats := filterPostings(postingsPerTerm, candidateDocIDs)
	params := ranker.RankParams{
		TotalDocs:    e.engine.GetTotalDocs(),
		AvgDocLength: e.engine.GetAvgDocLength(),
		TotalTokens:  e.engine.TotalTokens(),
	}
	getDocInfo := func(docID string) ranker.DocInfo {
		return ranker.DocInfo{
			DocLength: e.engine.GetDocLength(docID),
		}
	}
	ranked := ranker.Rank(filteredPostings, stats, plan.Boost, e.sim, params, getDocInfo, limit)
	e.logger.Debug("query executed",
		"query", plan.RawQuery,
		"terms", plan.Terms,
		"candidates", len(candidateDocIDs),
		"results", len(ranked),
	)
	return &SearchResult{
		Query:     plan.RawQuery,
		TotalHits: len(candidateDocIDs),
		Results:   ranked,
		TermStats: termStats,
	}, nil
}

// filterPostings keeps the postings of candidate documents. The returned
// statistics are taken from the unfiltered lists, so a document matched
// under AND or NOT is scored against the same document frequencies as
// under OR.
func filterPostings(postingsPerTerm map[string]index.PostingList, candidateDocIDs map[string]struct{}) (map[string]index.PostingList, map[string]ranker.TermStats) {
	filtered := make(map[string]index.PostingList, len(postingsPerTerm))
	stats := make(map[string]ranker.TermStats, len(postingsPerTerm))
	for term, postings := range postingsPerTerm {
		stats[term] = ranker.StatsOf(postings)
		kept := make(index.PostingList, 0, len(postings))
		for _, p := range postings {
			if _, ok := candidateDocIDs[p.DocID]; ok {
				kept = append(kept, p)
			}
		}
		if len(kept) > 0 {
			filtered[term] = kept
		}
	}
	return filtered, stats
}

// candidates applies the plan's boolean operator. A conjunction with a term
// that matches nothing has no candidates.
func candidates(plan *parser.QueryPlan, postingsPerTerm map[string]index.PostingList) map[string]struct{} {
	if plan.Type == parser.QueryOR {
		return unionPostings(postingsPerTerm)
	}
	for _, term := range plan.Terms {
		if len(postingsPerTerm[term]) == 0 {
			return make(map[string]struct{})
		}
	}
	return intersectPostings(postingsPerTerm)
}

func intersectPostings(postingsPerTerm map[string]index.PostingList) map[string]struct{} {
	if len(postingsPerTerm) == 0 {
		return make(map[string]struct{})
	}
	var shortestTerm string
	shortestLen := int(^uint(0) >> 1)
	for term, postings := range postingsPerTerm {
		if len(postings) < shortestLen {
			shortestLen = len(postings)
			shortestTerm = term
		}
	}
	candidates := make(map[string]struct{})
	for _, p := range postingsPerTerm[shortestTerm] {
		candidates[p.DocID] = struct{}{}
	}
	for term, postings := range postingsPerTerm {
		if term == shortestTerm {
			continue
		}
		docSet := make(map[string]struct{}, len(postings))
		for _, p := range postings {
			docSet[p.DocID] = struct{}{}
		}
		for docID := range candidates {
			if _, exists := docSet[docID]; !exists {
				delete(candidates, docID)
			}
		}
	}
	return candidates
}

func unionPostings(postingsPerTerm map[string]index.PostingList) map[string]struct{} {
	result := make(map[string]struct{})
	for _, postings := range postingsPerTerm {
		for _, p := range postings {
			result[p.DocID] = struct{}{}
		}
	}
	return result
}
