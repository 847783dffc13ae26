package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/kafka"
)

// maxLatencies bounds the latency reservoir used for percentiles.
const maxLatencies = 10000

type AggregatedStats struct {
	TotalSearches     int64        `json:"total_searches"`
	TotalExpansions   int64        `json:"total_expansions"`
	NoFeedbackCount   int64        `json:"no_feedback_count"`
	CacheHits         int64        `json:"cache_hits"`
	CacheMisses       int64        `json:"cache_misses"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	AvgLatencyMs      float64      `json:"avg_latency_ms"`
	P50LatencyMs      int64        `json:"p50_latency_ms"`
	P95LatencyMs      int64        `json:"p95_latency_ms"`
	P99LatencyMs      int64        `json:"p99_latency_ms"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	TopExpansionTerms []QueryCount `json:"top_expansion_terms"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     atomic.Int64
	totalExpansions   atomic.Int64
	noFeedback        atomic.Int64
	cacheHits         atomic.Int64
	cacheMisses       atomic.Int64
	zeroResults       atomic.Int64
	latencies         []int64
	latencyNext       int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	expansionTerms    map[string]int64
	startTime         time.Time
	now               func() time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		expansionTerms:    make(map[string]int64),
		startTime:         time.Now(),
		now:               time.Now,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// envelope peeks at the event type before decoding the full payload.
type envelope struct {
	Type EventType `json:"type"`
}

// HandleEvent returns a Kafka handler feeding agg. Events of unknown type
// and undecodable payloads are skipped.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		env, err := kafka.DecodeJSON[envelope](value)
		if err != nil {
			return err
		}
		switch env.Type {
		case EventSearch, EventZeroResult:
			var ev SearchEvent
			if err := json.Unmarshal(value, &ev); err != nil {
				return fmt.Errorf("%w: search event: %v", kafka.ErrSkip, err)
			}
			agg.RecordSearch(ev)
		case EventExpansion:
			var ev ExpansionEvent
			if err := json.Unmarshal(value, &ev); err != nil {
				return fmt.Errorf("%w: expansion event: %v", kafka.ErrSkip, err)
			}
			agg.RecordExpansion(ev)
		default:
			return fmt.Errorf("%w: unknown analytics event type %q", kafka.ErrSkip, env.Type)
		}
		return nil
	}
}

// Track records an event directly, so the aggregator can stand in for a
// Kafka-backed tracker in a single-process deployment.
func (a *Aggregator) Track(_ string, value any) {
	switch ev := value.(type) {
	case SearchEvent:
		a.RecordSearch(ev)
	case ExpansionEvent:
		a.RecordExpansion(ev)
	default:
		a.logger.Warn("ignoring unknown analytics event", "type", fmt.Sprintf("%T", value))
	}
}

func (a *Aggregator) RecordSearch(event SearchEvent) {
	a.totalSearches.Add(1)
	a.countCache(event.CacheHit)
	if event.TotalHits == 0 {
		a.zeroResults.Add(1)
	}

	a.mu.Lock()
	a.recordLatencyLocked(event.LatencyMs)
	a.queryCounts[event.Query]++
	if event.TotalHits == 0 {
		a.zeroResultQueries[event.Query]++
	}
	a.mu.Unlock()
}

// RecordExpansion counts a pipeline run and every causal expansion term it
// selected.
func (a *Aggregator) RecordExpansion(event ExpansionEvent) {
	a.totalExpansions.Add(1)
	a.countCache(event.CacheHit)
	if event.FeedbackDocs[0] == 0 {
		a.noFeedback.Add(1)
	}
	if event.Returned == 0 {
		a.zeroResults.Add(1)
	}

	a.mu.Lock()
	a.recordLatencyLocked(event.LatencyMs)
	a.queryCounts[event.Query]++
	if event.Returned == 0 {
		a.zeroResultQueries[event.Query]++
	}
	for _, tw := range event.CausalTerms {
		a.expansionTerms[tw.Term]++
	}
	a.mu.Unlock()
}

func (a *Aggregator) countCache(hit bool) {
	if hit {
		a.cacheHits.Add(1)
	} else {
		a.cacheMisses.Add(1)
	}
}

// recordLatencyLocked keeps the most recent maxLatencies samples.
func (a *Aggregator) recordLatencyLocked(ms int64) {
	if len(a.latencies) < maxLatencies {
		a.latencies = append(a.latencies, ms)
		return
	}
	a.latencies[a.latencyNext] = ms
	a.latencyNext = (a.latencyNext + 1) % maxLatencies
}

// DefaultTop is the ranking length Stats uses for queries. Expansion terms
// get twice as many entries.
const DefaultTop = 10

func (a *Aggregator) Stats() AggregatedStats {
	return a.StatsTop(DefaultTop)
}

// StatsTop is Stats with the top-query and zero-result rankings cut at n
// and the expansion-term ranking cut at 2n.
func (a *Aggregator) StatsTop(n int) AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:   a.totalSearches.Load(),
		TotalExpansions: a.totalExpansions.Load(),
		NoFeedbackCount: a.noFeedback.Load(),
		CacheHits:       a.cacheHits.Load(),
		CacheMisses:     a.cacheMisses.Load(),
		ZeroResultCount: a.zeroResults.Load(),
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, n)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, n)
	stats.TopExpansionTerms = topN(a.expansionTerms, 2*n)
	elapsed := a.now().Sub(a.startTime).Minutes()
	if elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches+stats.TotalExpansions) / elapsed
	}

	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
