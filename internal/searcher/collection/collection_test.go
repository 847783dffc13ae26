package collection

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/errors"
)

type fakeEngine struct {
	stats   map[string][2]int64
	vectors map[string]index.DocVector
	tokens  int64
	err     error
}

func (f *fakeEngine) TermStats(term string) (int64, int64, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	s := f.stats[term]
	return s[0], s[1], nil
}

func (f *fakeEngine) DocumentVector(docID string) (index.DocVector, error) {
	if v, ok := f.vectors[docID]; ok {
		return v, nil
	}
	return index.DocVector{}, fmt.Errorf("%s: %w", docID, apperrors.ErrDocumentNotFound)
}

func (f *fakeEngine) TotalTokens() int64 { return f.tokens }

func TestCollectionAggregates(t *testing.T) {
	a := &fakeEngine{
		stats:   map[string][2]int64{"flood": {2, 5}},
		vectors: map[string]index.DocVector{"d1": {DocID: "d1", Length: 4, Terms: map[string]int{"flood": 3, "storm": 1}}},
		tokens:  40,
	}
	b := &fakeEngine{
		stats:   map[string][2]int64{"flood": {1, 1}},
		vectors: map[string]index.DocVector{"d2": {DocID: "d2", Length: 1, Terms: map[string]int{"flood": 1}}},
		tokens:  60,
	}
	c := New([]Engine{a, b}, nil)
	ctx := context.Background()

	if cf, _ := c.CollectionFrequency(ctx, "flood"); cf != 6 {
		t.Errorf("cf = %d, want 6", cf)
	}
	if df, _ := c.DocumentFrequency(ctx, "flood"); df != 3 {
		t.Errorf("df = %d, want 3", df)
	}
	if v, _ := c.VocabularySize(ctx); v != 100 {
		t.Errorf("vocab = %d, want 100", v)
	}
	tf, length, err := c.DocumentVector(ctx, "d2")
	if err != nil || length != 1 || tf["flood"] != 1 {
		t.Errorf("DocumentVector(d2) = %v, %d, %v", tf, length, err)
	}
	if _, _, err := c.DocumentVector(ctx, "d9"); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("err = %v, want ErrDocumentNotFound", err)
	}

	b.err = apperrors.ErrShardUnavailable
	if _, err := c.CollectionFrequency(ctx, "flood"); !errors.Is(err, apperrors.ErrShardUnavailable) {
		t.Errorf("shard error not propagated: %v", err)
	}
}

func TestCollectionLocate(t *testing.T) {
	a := &fakeEngine{vectors: map[string]index.DocVector{}}
	b := &fakeEngine{vectors: map[string]index.DocVector{"d1": {DocID: "d1", Length: 2, Terms: map[string]int{"x": 2}}}}
	c := New([]Engine{a, b}, func(string) int { return 0 })

	// The locator is trusted: a document outside its shard is not found.
	if _, _, err := c.DocumentVector(context.Background(), "d1"); !errors.Is(err, apperrors.ErrDocumentNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestFromRouter(t *testing.T) {
	r, err := shard.NewRouter(config.IndexerConfig{DataDir: t.TempDir()}, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	for _, id := range []string{"d1", "d2", "d3", "d4"} {
		_, engine := r.RouteDocument(id)
		if err := engine.IndexDocument(id, "", "storm flood"); err != nil {
			t.Fatal(err)
		}
	}

	c := FromRouter(r)
	ctx := context.Background()
	if cf, _ := c.CollectionFrequency(ctx, "flood"); cf != 4 {
		t.Errorf("cf = %d, want 4", cf)
	}
	if v, _ := c.VocabularySize(ctx); v != 8 {
		t.Errorf("vocab = %d, want 8", v)
	}
	if tf, _, err := c.DocumentVector(ctx, "d3"); err != nil || tf["storm"] != 1 {
		t.Errorf("DocumentVector(d3) = %v, %v", tf, err)
	}
}
