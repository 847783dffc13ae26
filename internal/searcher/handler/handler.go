// Package handler exposes the searcher over HTTP: plain boolean search,
// causal feedback expansion and cache administration.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/feedback"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/middleware"
)

type SearchExecutor interface {
	Execute(ctx context.Context, plan *parser.QueryPlan, limit int) (*executor.SearchResult, error)
}

// Expander runs the feedback pipeline for one query.
type Expander interface {
	Run(ctx context.Context, query string) (*feedback.Result, error)
	Params() feedback.Params
}

// ExpandResponse is the body of /api/v1/expand.
type ExpandResponse struct {
	QueryID      string                 `json:"query_id"`
	Query        string                 `json:"query"`
	QueryTokens  []string               `json:"query_tokens"`
	FeedbackDocs [2]int                 `json:"feedback_docs"`
	TopicalTerms []analytics.TermWeight `json:"topical_terms"`
	CausalTerms  []analytics.TermWeight `json:"causal_terms"`
	TopicalQuery string                 `json:"topical_query"`
	CausalQuery  string                 `json:"causal_query"`
	Results      []ranker.ScoredDoc     `json:"results"`
}

// Caches groups the optional result caches. Either may be nil.
type Caches struct {
	Search *cache.Cache[*executor.SearchResult]
	Expand *cache.Cache[*ExpandResponse]
}

type Handler struct {
	executor     SearchExecutor
	expander     Expander
	caches       Caches
	tracker      analytics.Tracker
	defaultLimit int
	maxResults   int
	logger       *slog.Logger
}

// New builds a Handler. expander and tracker may be nil; without an
// expander the expand endpoint answers 503.
func New(exec SearchExecutor, expander Expander, caches Caches, tracker analytics.Tracker, defaultLimit, maxResults int) *Handler {
	return &Handler{
		executor:     exec,
		expander:     expander,
		caches:       caches,
		tracker:      tracker,
		defaultLimit: defaultLimit,
		maxResults:   maxResults,
		logger:       slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the handler's routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/expand", h.Expand)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query, limit, ok := h.queryAndLimit(w, r)
	if !ok {
		return
	}

	plan := parser.Parse(query)
	if len(plan.Terms) == 0 {
		h.writeJSON(w, http.StatusOK, &executor.SearchResult{
			Query:   query,
			Results: []ranker.ScoredDoc{},
		})
		return
	}

	var result *executor.SearchResult
	var err error
	cacheHit := false

	if h.caches.Search != nil {
		key := h.caches.Search.Key(cache.NormalizeQuery(query), strconv.Itoa(limit))
		result, cacheHit, err = h.caches.Search.GetOrCompute(ctx, key, func(ctx context.Context) (*executor.SearchResult, error) {
			return h.executor.Execute(ctx, plan, limit)
		})
	} else {
		result, err = h.executor.Execute(ctx, plan, limit)
	}

	if err != nil {
		log.Error("search execution failed", "query", query, "error", err)
		h.writeFailure(w, err, "search failed")
		return
	}

	latencyMs := time.Since(start).Milliseconds()

	log.Info("search completed",
		"query", query,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", latencyMs,
	)
	if h.tracker != nil {
		eventType := analytics.EventSearch
		if result.TotalHits == 0 {
			eventType = analytics.EventZeroResult
		}
		h.tracker.Track(analytics.KeySearch, analytics.SearchEvent{
			Type:      eventType,
			Query:     query,
			Terms:     plan.Terms,
			TotalHits: result.TotalHits,
			Returned:  len(result.Results),
			LatencyMs: latencyMs,
			CacheHit:  cacheHit,
			Timestamp: time.Now().UTC(),
			RequestID: middleware.GetRequestID(ctx),
		})
	}

	h.writeJSON(w, http.StatusOK, result)
}

// Expand runs the topical and causal feedback rounds for q and returns the
// final ranking together with both expansion models.
func (h *Handler) Expand(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	if h.expander == nil {
		h.writeError(w, http.StatusServiceUnavailable, "feedback expansion is disabled")
		return
	}
	query, limit, ok := h.queryAndLimit(w, r)
	if !ok {
		return
	}

	queryID := uuid.NewString()
	ctx = logger.WithQueryID(ctx, queryID)
	log := logger.FromContext(ctx)

	compute := func(ctx context.Context) (*ExpandResponse, error) {
		res, err := h.expander.Run(ctx, query)
		if err != nil {
			return nil, err
		}
		return newExpandResponse(queryID, query, res), nil
	}

	var resp *ExpandResponse
	var err error
	cacheHit := false
	if h.caches.Expand != nil {
		key := h.caches.Expand.Key(strings.ToLower(strings.TrimSpace(query)), fmt.Sprintf("%+v", h.expander.Params()))
		resp, cacheHit, err = h.caches.Expand.GetOrCompute(ctx, key, compute)
	} else {
		resp, err = compute(ctx)
	}
	if err != nil {
		log.Error("expansion failed", "query", query, "error", err)
		h.writeFailure(w, err, "expansion failed")
		return
	}

	// Cached responses are shared, so trimming works on a copy.
	out := *resp
	out.QueryID = queryID
	if len(out.Results) > limit {
		out.Results = out.Results[:limit]
	}

	latencyMs := time.Since(start).Milliseconds()
	log.Info("expansion completed",
		"query", query,
		"feedback_docs", out.FeedbackDocs,
		"causal_terms", len(out.CausalTerms),
		"returned", len(out.Results),
		"cache_hit", cacheHit,
		"latency_ms", latencyMs,
	)
	if h.tracker != nil {
		h.tracker.Track(analytics.KeyExpansion, analytics.ExpansionEvent{
			Type:         analytics.EventExpansion,
			QueryID:      queryID,
			Query:        query,
			FeedbackDocs: out.FeedbackDocs,
			TopicalTerms: out.TopicalTerms,
			CausalTerms:  out.CausalTerms,
			Returned:     len(out.Results),
			LatencyMs:    latencyMs,
			CacheHit:     cacheHit,
			Timestamp:    time.Now().UTC(),
			RequestID:    middleware.GetRequestID(ctx),
		})
	}

	h.writeJSON(w, http.StatusOK, &out)
}

func newExpandResponse(queryID, query string, res *feedback.Result) *ExpandResponse {
	resp := &ExpandResponse{
		QueryID:      queryID,
		Query:        query,
		QueryTokens:  res.QueryTokens,
		FeedbackDocs: res.FeedbackDocs,
		TopicalTerms: termWeights(res.Topical, feedback.FieldExpansionWeight),
		CausalTerms:  termWeights(res.Causal, feedback.FieldWeight),
		Results:      res.Hits,
	}
	if res.TopicalQuery != nil {
		resp.TopicalQuery = res.TopicalQuery.String()
	}
	if res.CausalQuery != nil {
		resp.CausalQuery = res.CausalQuery.String()
	}
	if resp.Results == nil {
		resp.Results = []ranker.ScoredDoc{}
	}
	return resp
}

func termWeights(set *feedback.WeightedTermSet, field feedback.WeightField) []analytics.TermWeight {
	out := []analytics.TermWeight{}
	if set == nil {
		return out
	}
	for _, w := range set.Entries() {
		out = append(out, analytics.TermWeight{Term: w.Term, Weight: field.Of(w)})
	}
	return out
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.caches.Search == nil && h.caches.Expand == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	body := map[string]any{}
	if c := h.caches.Search; c != nil {
		hits, misses := c.Stats()
		body["search"] = cacheStats(r.Context(), hits, misses, c.Size, c.BreakerState().String())
	}
	if c := h.caches.Expand; c != nil {
		hits, misses := c.Stats()
		body["expand"] = cacheStats(r.Context(), hits, misses, c.Size, c.BreakerState().String())
	}
	h.writeJSON(w, http.StatusOK, body)
}

func cacheStats(ctx context.Context, hits, misses int64, size func(context.Context) (int64, error), breaker string) map[string]any {
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	stats := map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		"breaker":  breaker,
	}
	if n, err := size(ctx); err == nil {
		stats["keys"] = n
	}
	return stats
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.caches.Search == nil && h.caches.Expand == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	var deleted int64
	for _, invalidate := range []func(context.Context) (int64, error){h.invalidateSearch, h.invalidateExpand} {
		n, err := invalidate(r.Context())
		if err != nil {
			h.logger.Error("cache invalidation failed", "error", err)
			h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
			return
		}
		deleted += n
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) invalidateSearch(ctx context.Context) (int64, error) {
	if h.caches.Search == nil {
		return 0, nil
	}
	return h.caches.Search.Invalidate(ctx)
}

func (h *Handler) invalidateExpand(ctx context.Context) (int64, error) {
	if h.caches.Expand == nil {
		return 0, nil
	}
	return h.caches.Expand.Invalidate(ctx)
}

func (h *Handler) queryAndLimit(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	query := r.URL.Query().Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return "", 0, false
	}

	limit := h.defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return "", 0, false
		}
		if parsed > h.maxResults {
			parsed = h.maxResults
		}
		limit = parsed
	}
	return query, limit, true
}

// writeFailure maps err to its status. Server-side failures get the generic
// message; client errors carry err's text.
func (h *Handler) writeFailure(w http.ResponseWriter, err error, generic string) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		h.writeError(w, status, generic)
		return
	}
	h.writeError(w, status, err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
