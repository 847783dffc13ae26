package consumer

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/metrics"
)

type fakeEngine struct {
	docs []string
	err  error
}

func (f *fakeEngine) IndexDocument(docID, title, body string) error {
	if f.err != nil {
		return f.err
	}
	f.docs = append(f.docs, docID)
	return nil
}

type fakeIndexer struct{ engine *fakeEngine }

func (f fakeIndexer) RouteDocument(string) (int, Engine) { return 0, f.engine }

func TestHandleMessage(t *testing.T) {
	engine := &fakeEngine{}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	h := HandleMessage(fakeIndexer{engine}, m)
	ctx := context.Background()

	if err := h(ctx, []byte("d1"), []byte(`{"document_id":"d1","title":"t","body":"b"}`)); err != nil {
		t.Fatalf("valid event: %v", err)
	}
	if len(engine.docs) != 1 || engine.docs[0] != "d1" {
		t.Errorf("indexed = %v", engine.docs)
	}
	if got := testutil.ToFloat64(m.DocsIndexedTotal); got != 1 {
		t.Errorf("docs_indexed_total = %v", got)
	}

	for name, value := range map[string]string{"garbage": `{not json`, "no id": `{"title":"t"}`} {
		if err := h(ctx, nil, []byte(value)); !errors.Is(err, kafka.ErrSkip) {
			t.Errorf("%s: err = %v, want ErrSkip", name, err)
		}
	}

	engine.err = errors.New("disk full")
	if err := h(ctx, nil, []byte(`{"document_id":"d2"}`)); err == nil || errors.Is(err, kafka.ErrSkip) {
		t.Errorf("indexing failure should be retried, got %v", err)
	}
}

func TestRouterIndexer(t *testing.T) {
	r, err := shard.NewRouter(config.IndexerConfig{DataDir: t.TempDir()}, 2)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	h := HandleMessage(RouterIndexer(r), nil)
	if err := h(context.Background(), nil, []byte(`{"document_id":"d1","body":"storm flood"}`)); err != nil {
		t.Fatal(err)
	}
	_, engine := r.RouteDocument("d1")
	if engine.GetDocLength("d1") != 2 {
		t.Errorf("len(d1) = %d, want 2", engine.GetDocLength("d1"))
	}
}
