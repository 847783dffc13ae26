package feedback

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/errors"
)

const tolerance = 1e-9

type fakeCollection struct {
	cf      map[string]int64
	vocab   int64
	vectors map[string]map[string]int64
	broken  map[string]bool
	cfCalls map[string]int

	// brokenStats fails the named statistics call: "cf", "df" or "vocab".
	brokenStats map[string]bool
}

var errStatsDown = fmt.Errorf("term dictionary: %w", apperrors.ErrShardUnavailable)

// workedExample is the two-document collection used throughout the tests:
// D1 {a:3 b:1}, D2 {a:1 b:2}, CF(a)=10, CF(b)=6, V=100.
func workedExample() *fakeCollection {
	return &fakeCollection{
		cf:    map[string]int64{"a": 10, "b": 6},
		vocab: 100,
		vectors: map[string]map[string]int64{
			"D1": {"a": 3, "b": 1},
			"D2": {"a": 1, "b": 2},
		},
		cfCalls: make(map[string]int),
	}
}

func (f *fakeCollection) CollectionFrequency(_ context.Context, term string) (int64, error) {
	f.cfCalls[term]++
	if f.brokenStats["cf"] {
		return 0, errStatsDown
	}
	return f.cf[term], nil
}

func (f *fakeCollection) DocumentFrequency(_ context.Context, term string) (int64, error) {
	if f.brokenStats["df"] {
		return 0, errStatsDown
	}
	var df int64
	for _, v := range f.vectors {
		if v[term] > 0 {
			df++
		}
	}
	return df, nil
}

func (f *fakeCollection) VocabularySize(context.Context) (int64, error) {
	if f.brokenStats["vocab"] {
		return 0, errStatsDown
	}
	return f.vocab, nil
}

func (f *fakeCollection) DocumentVector(_ context.Context, docID string) (map[string]int64, int64, error) {
	if f.broken[docID] {
		return nil, 0, fmt.Errorf("segment read %s: %w", docID, apperrors.ErrShardUnavailable)
	}
	v, ok := f.vectors[docID]
	if !ok {
		return nil, 0, fmt.Errorf("vector %s: %w", docID, apperrors.ErrDocumentNotFound)
	}
	var length int64
	for _, n := range v {
		length += n
	}
	return v, length, nil
}

func hitsOf(ids ...string) []ranker.ScoredDoc {
	hits := make([]ranker.ScoredDoc, len(ids))
	for i, id := range ids {
		hits[i] = ranker.ScoredDoc{DocID: id, Score: float64(len(ids) - i)}
	}
	return hits
}

// recordingRetriever returns rounds[i] for the i-th call and keeps the plans.
type recordingRetriever struct {
	rounds [][]ranker.ScoredDoc
	plans  []*parser.QueryPlan
	err    error
}

func (r *recordingRetriever) Retrieve(_ context.Context, plan *parser.QueryPlan, topK int) ([]ranker.ScoredDoc, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.plans = append(r.plans, plan)
	i := min(len(r.plans)-1, len(r.rounds)-1)
	hits := r.rounds[i]
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func sle(tf, length, cf, vocab int64, lambda float64) float64 {
	return math.Log(1 + (lambda*float64(tf)/float64(length))/((1-lambda)*float64(cf)/float64(vocab)))
}

func assertClose(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > tolerance {
		t.Errorf("%s = %.12f, want %.12f", name, got, want)
	}
}

func mustGet(t *testing.T, s *WeightedTermSet, term string) WordWeight {
	t.Helper()
	w, ok := s.Get(term)
	if !ok {
		t.Fatalf("term %q missing from %v", term, s.Terms())
	}
	return w
}
