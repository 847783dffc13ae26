package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/kafka"
)

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator()
	start := agg.startTime
	agg.now = func() time.Time { return start.Add(2 * time.Minute) }

	agg.RecordSearch(SearchEvent{Type: EventSearch, Query: "flood", TotalHits: 3, LatencyMs: 10})
	agg.RecordSearch(SearchEvent{Type: EventSearch, Query: "flood", TotalHits: 3, LatencyMs: 30, CacheHit: true})
	agg.RecordExpansion(ExpansionEvent{
		Type:         EventExpansion,
		Query:        "tsunami",
		FeedbackDocs: [2]int{0, 0},
		CausalTerms:  []TermWeight{{Term: "tsunami", Weight: 1}},
		LatencyMs:    20,
	})
	agg.RecordExpansion(ExpansionEvent{
		Type:         EventExpansion,
		Query:        "flood",
		FeedbackDocs: [2]int{10, 10},
		CausalTerms:  []TermWeight{{Term: "flood", Weight: 0.6}, {Term: "levee", Weight: 0.4}},
		Returned:     5,
		LatencyMs:    40,
	})

	s := agg.Stats()
	if s.TotalSearches != 2 || s.TotalExpansions != 2 || s.NoFeedbackCount != 1 {
		t.Errorf("counts = %+v", s)
	}
	if s.CacheHits != 1 || s.CacheMisses != 3 || s.ZeroResultCount != 1 {
		t.Errorf("cache/zero = %+v", s)
	}
	if s.AvgLatencyMs != 25 || s.P50LatencyMs != 30 {
		t.Errorf("latency avg=%v p50=%v", s.AvgLatencyMs, s.P50LatencyMs)
	}
	if len(s.TopQueries) == 0 || s.TopQueries[0] != (QueryCount{Query: "flood", Count: 3}) {
		t.Errorf("top queries = %+v", s.TopQueries)
	}
	if len(s.TopExpansionTerms) != 3 || s.TopExpansionTerms[0].Query != "flood" {
		t.Errorf("top terms = %+v", s.TopExpansionTerms)
	}
	if s.QueriesPerMinute != 2 {
		t.Errorf("qpm = %v, want 2", s.QueriesPerMinute)
	}
}

func TestHandleEvent(t *testing.T) {
	agg := NewAggregator()
	h := HandleEvent(agg)
	ctx := context.Background()

	exp, _ := json.Marshal(ExpansionEvent{Type: EventExpansion, Query: "q", CausalTerms: []TermWeight{{Term: "x"}}})
	if err := h(ctx, nil, exp); err != nil {
		t.Fatal(err)
	}
	search, _ := json.Marshal(SearchEvent{Type: EventSearch, Query: "q"})
	if err := h(ctx, nil, search); err != nil {
		t.Fatal(err)
	}
	for _, bad := range []string{`{"type":"mystery"}`, `not json`} {
		if err := h(ctx, nil, []byte(bad)); !errors.Is(err, kafka.ErrSkip) {
			t.Errorf("%s: err = %v, want ErrSkip", bad, err)
		}
	}
	if s := agg.Stats(); s.TotalExpansions != 1 || s.TotalSearches != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestTrackDirect(t *testing.T) {
	agg := NewAggregator()
	var tr Tracker = agg
	tr.Track(KeyExpansion, ExpansionEvent{Type: EventExpansion, Query: "q"})
	tr.Track(KeySearch, SearchEvent{Type: EventSearch, Query: "q"})
	tr.Track(KeySearch, 42)
	if s := agg.Stats(); s.TotalExpansions != 1 || s.TotalSearches != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestStatsHandler(t *testing.T) {
	agg := NewAggregator()
	agg.RecordSearch(SearchEvent{Query: "flood", TotalHits: 1})
	rec := httptest.NewRecorder()
	NewHandler(agg).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got AggregatedStats
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.TotalSearches != 1 {
		t.Errorf("total_searches = %d", got.TotalSearches)
	}
}

func TestStatsHandlerTop(t *testing.T) {
	agg := NewAggregator()
	for _, q := range []string{"flood", "flood", "storm", "levee"} {
		agg.RecordSearch(SearchEvent{Query: q, TotalHits: 1})
	}

	rec := httptest.NewRecorder()
	NewHandler(agg).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?top=1", nil))
	var got AggregatedStats
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got.TopQueries) != 1 || got.TopQueries[0].Query != "flood" {
		t.Errorf("top_queries = %+v, want only flood", got.TopQueries)
	}

	for _, bad := range []string{"0", "101", "ten"} {
		rec := httptest.NewRecorder()
		NewHandler(agg).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?top="+bad, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("top=%s: status %d, want 400", bad, rec.Code)
		}
	}
}
