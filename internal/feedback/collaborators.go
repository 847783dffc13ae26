package feedback

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/searcher/ranker"
)

// TermStatisticsProvider answers collection-level statistics for the
// feedback field. VocabularySize is the total number of term occurrences
// in the collection. Implementations must be safe for concurrent reads.
type TermStatisticsProvider interface {
	CollectionFrequency(ctx context.Context, term string) (int64, error)
	DocumentFrequency(ctx context.Context, term string) (int64, error)
	VocabularySize(ctx context.Context) (int64, error)
}

// DocumentVectorProvider returns a document's term frequencies and length.
// A document without a stored vector is reported with an error wrapping
// errors.ErrDocumentNotFound.
type DocumentVectorProvider interface {
	DocumentVector(ctx context.Context, docID string) (map[string]int64, int64, error)
}

// Retriever executes a plan and returns at most topK hits, best first.
type Retriever interface {
	Retrieve(ctx context.Context, plan *parser.QueryPlan, topK int) ([]ranker.ScoredDoc, error)
}

// Tokenizer analyzes raw query text into index terms.
type Tokenizer func(text string) []string
