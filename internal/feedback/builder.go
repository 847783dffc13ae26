package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/logger"
)

// Builder materializes feedback sets from ranked hits.
type Builder struct {
	stats   TermStatisticsProvider
	vectors DocumentVectorProvider
	lambda  float64
}

// NewBuilder returns a Builder smoothing with lambda, which must lie in (0,1).
func NewBuilder(stats TermStatisticsProvider, vectors DocumentVectorProvider, lambda float64) *Builder {
	return &Builder{stats: stats, vectors: vectors, lambda: lambda}
}

// Build takes the first min(k, len(hits)) hits as feedback documents. A hit
// whose vector is not found is skipped; any other collaborator error aborts
// the round. Query tokens may be rendered as "term^boost".
func (b *Builder) Build(ctx context.Context, hits []ranker.ScoredDoc, queryTokens []string, k int) (*Set, error) {
	if b.lambda <= 0 || b.lambda >= 1 {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "mixing lambda %v outside (0,1)", b.lambda)
	}
	vocab, err := b.stats.VocabularySize(ctx)
	if err != nil {
		return nil, fmt.Errorf("vocabulary size: %w", err)
	}
	if vocab <= 0 {
		return nil, fmt.Errorf("vocabulary size %d: %w", vocab, apperrors.ErrMissingTermStat)
	}

	n := min(k, len(hits))
	if n < 0 {
		n = 0
	}
	set := &Set{
		Documents:       make([]Document, 0, n),
		TermStats:       make(map[string]TermStat),
		QueryLikelihood: make(map[string]float64, n),
		VocabularySize:  vocab,
		Lambda:          b.lambda,
	}
	log := logger.FromContext(ctx)
	seen := make(map[string]struct{}, n)

	for _, hit := range hits[:n] {
		if _, dup := seen[hit.DocID]; dup {
			return nil, fmt.Errorf("feedback document %s listed twice: %w", hit.DocID, apperrors.ErrInternal)
		}
		seen[hit.DocID] = struct{}{}

		tf, length, err := b.vectors.DocumentVector(ctx, hit.DocID)
		if errors.Is(err, apperrors.ErrDocumentNotFound) {
			log.Debug("skipping feedback document without vector", "doc_id", hit.DocID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("document vector %s: %w", hit.DocID, err)
		}
		set.Documents = append(set.Documents, Document{ID: hit.DocID, TermFrequencies: tf, Length: length})

		for term := range tf {
			if _, ok := set.TermStats[term]; ok {
				continue
			}
			stat, err := b.termStat(ctx, term)
			if err != nil {
				return nil, err
			}
			set.TermStats[term] = stat
		}
	}

	queryTerms := stripQueryTokens(queryTokens)
	for _, doc := range set.Documents {
		l, err := set.queryLikelihood(queryTerms, doc)
		if err != nil {
			return nil, fmt.Errorf("query likelihood of %s: %w", doc.ID, err)
		}
		set.QueryLikelihood[doc.ID] = l
	}

	log.Debug("feedback set built",
		slog.Int("requested", n),
		slog.Int("documents", len(set.Documents)),
		slog.Int("terms", len(set.TermStats)),
	)
	return set, nil
}

func (b *Builder) termStat(ctx context.Context, term string) (TermStat, error) {
	cf, err := b.stats.CollectionFrequency(ctx, term)
	if err != nil {
		return TermStat{}, fmt.Errorf("collection frequency of %q: %w", term, err)
	}
	df, err := b.stats.DocumentFrequency(ctx, term)
	if err != nil {
		return TermStat{}, fmt.Errorf("document frequency of %q: %w", term, err)
	}
	return TermStat{Term: term, CollectionFrequency: cf, DocumentFrequency: df}, nil
}

func stripQueryTokens(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if term := parser.StripBoost(tok); term != "" {
			out = append(out, term)
		}
	}
	return out
}
