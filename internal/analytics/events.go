// Package analytics records search and relevance-feedback events, publishes
// them to Kafka and aggregates them into dashboard statistics.
package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventExpansion  EventType = "expansion"
	EventZeroResult EventType = "zero_result"
)

// Topic keys used when publishing events.
const (
	KeySearch    = "search"
	KeyExpansion = "expansion"
)

type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Terms     []string  `json:"terms"`
	TotalHits int       `json:"total_hits"`
	Returned  int       `json:"returned"`
	LatencyMs int64     `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// TermWeight is one expansion term as reported in events.
type TermWeight struct {
	Term   string  `json:"term"`
	Weight float64 `json:"weight"`
}

// ExpansionEvent describes one run of the feedback pipeline.
type ExpansionEvent struct {
	Type         EventType    `json:"type"`
	QueryID      string       `json:"query_id"`
	Query        string       `json:"query"`
	Run          string       `json:"run,omitempty"`
	FeedbackDocs [2]int       `json:"feedback_docs"`
	TopicalTerms []TermWeight `json:"topical_terms"`
	CausalTerms  []TermWeight `json:"causal_terms"`
	Returned     int          `json:"returned"`
	LatencyMs    int64        `json:"latency_ms"`
	CacheHit     bool         `json:"cache_hit"`
	Timestamp    time.Time    `json:"timestamp"`
	RequestID    string       `json:"request_id,omitempty"`
}

// Tracker accepts events for asynchronous publishing. key selects the
// Kafka partition key.
type Tracker interface {
	Track(key string, value any)
}
