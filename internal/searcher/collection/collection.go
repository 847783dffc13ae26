// Package collection presents a set of shard engines as one collection to
// the relevance-feedback core: collection-wide term statistics and stored
// document vectors.
package collection

import (
	"context"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/indexer/shard"
	apperrors "github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/errors"
)

// Engine is the per-shard surface the collection reads.
type Engine interface {
	TermStats(term string) (df int64, cf int64, err error)
	DocumentVector(docID string) (index.DocVector, error)
	TotalTokens() int64
}

// Collection aggregates statistics over every shard. It holds no state of
// its own and is safe for concurrent use.
type Collection struct {
	engines []Engine
	locate  func(docID string) int
}

// New builds a collection over engines. locate, when non-nil, names the
// shard that owns a document; otherwise every shard is searched.
func New(engines []Engine, locate func(docID string) int) *Collection {
	return &Collection{engines: engines, locate: locate}
}

// FromRouter builds a collection over the router's shards, locating
// documents with the router's hash.
func FromRouter(r *shard.Router) *Collection {
	return New(Engines(r.Engines()), r.ShardFor)
}

// Engines converts concrete shard engines.
func Engines(engines []*indexer.Engine) []Engine {
	out := make([]Engine, len(engines))
	for i, e := range engines {
		out[i] = e
	}
	return out
}

func (c *Collection) termStats(term string) (df, cf int64, err error) {
	for i, e := range c.engines {
		sdf, scf, err := e.TermStats(term)
		if err != nil {
			return 0, 0, fmt.Errorf("shard %d: %w", i, err)
		}
		df += sdf
		cf += scf
	}
	return df, cf, nil
}

func (c *Collection) CollectionFrequency(_ context.Context, term string) (int64, error) {
	_, cf, err := c.termStats(term)
	return cf, err
}

func (c *Collection) DocumentFrequency(_ context.Context, term string) (int64, error) {
	df, _, err := c.termStats(term)
	return df, err
}

// VocabularySize is the total number of indexed tokens across shards.
func (c *Collection) VocabularySize(context.Context) (int64, error) {
	var total int64
	for _, e := range c.engines {
		total += e.TotalTokens()
	}
	return total, nil
}

// DocumentVector returns the stored term frequencies and length of docID.
func (c *Collection) DocumentVector(ctx context.Context, docID string) (map[string]int64, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if c.locate != nil {
		if i := c.locate(docID); i >= 0 && i < len(c.engines) {
			return convert(c.engines[i].DocumentVector(docID))
		}
	}
	for _, e := range c.engines {
		vec, err := e.DocumentVector(docID)
		if errors.Is(err, apperrors.ErrDocumentNotFound) {
			continue
		}
		return convert(vec, err)
	}
	return nil, 0, fmt.Errorf("vector for %s: %w", docID, apperrors.ErrDocumentNotFound)
}

func convert(vec index.DocVector, err error) (map[string]int64, int64, error) {
	if err != nil {
		return nil, 0, err
	}
	tf := make(map[string]int64, len(vec.Terms))
	for term, n := range vec.Terms {
		tf[term] = int64(n)
	}
	return tf, int64(vec.Length), nil
}
