package runlog

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/searcher/ranker"
)

func TestTopicRows(t *testing.T) {
	results, terms := topicRows(TopicResult{
		QueryID: "301",
		Hits:    []ranker.ScoredDoc{{DocID: "d3", Score: 2}, {DocID: "d1", Score: 1}},
		Topical: []Term{{"flood", 0.6}, {"levee", 0.4}, {"flood", 0.1}},
		Causal:  []Term{{"flood", 0.5}, {"breach", 0.5}},
	})
	if len(results) != 2 || results[0].rank != 1 || results[1].rank != 2 || results[1].docID != "d1" {
		t.Errorf("results = %+v", results)
	}
	want := []termRow{
		{StageTopical, "flood", 0.6},
		{StageTopical, "levee", 0.4},
		{StageCausal, "flood", 0.5},
		{StageCausal, "breach", 0.5},
	}
	if len(terms) != len(want) {
		t.Fatalf("terms = %+v", terms)
	}
	for i := range want {
		if terms[i] != want[i] {
			t.Errorf("terms[%d] = %+v, want %+v", i, terms[i], want[i])
		}
	}
}

func TestTopicRowsEmpty(t *testing.T) {
	results, terms := topicRows(TopicResult{QueryID: "1"})
	if len(results) != 0 || len(terms) != 0 {
		t.Errorf("empty result produced rows: %v %v", results, terms)
	}
}

func TestRetryable(t *testing.T) {
	if retryable(nil) != nil {
		t.Error("nil error changed")
	}
	transient := fmt.Errorf("insert: %w", &pq.Error{Code: "40001"})
	if got := retryable(transient); got != transient {
		t.Errorf("transient error wrapped: %v", got)
	}
	fatal := &pq.Error{Code: "23505"}
	got := retryable(fatal)
	if got == error(fatal) {
		t.Error("non-transient error not marked permanent")
	}
	var pqErr *pq.Error
	if !errors.As(got, &pqErr) {
		t.Error("permanent wrapper hides the driver error")
	}
}
