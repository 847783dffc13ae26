package feedback

import (
	"fmt"
	"math"

	apperrors "github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/errors"
)

// unseenQueryTermLikelihood is the contribution of a query token that occurs
// in no feedback document: the estimator with its ratio taken as 1.
const unseenQueryTermLikelihood = math.Ln2

// SmoothedLikelihood returns ln(1 + (λ·tf/|d|) / ((1−λ)·CF/V)).
//
// This is a heuristic score, not a probability: it is zero when the term is
// absent from the document and unbounded above. The caller guarantees a
// positive collection component.
func SmoothedLikelihood(tf, docLength, collectionFrequency, vocabularySize int64, lambda float64) float64 {
	var docComponent float64
	if tf > 0 && docLength > 0 {
		docComponent = lambda * float64(tf) / float64(docLength)
	}
	colComponent := (1 - lambda) * float64(collectionFrequency) / float64(vocabularySize)
	return math.Log1p(docComponent / colComponent)
}

// Likelihood scores term against doc using the set's statistics. It fails
// with errors.ErrMissingTermStat when the term has no TermStat in this set
// or its collection component is zero.
func (s *Set) Likelihood(term string, doc Document) (float64, error) {
	stat, ok := s.TermStats[term]
	if !ok {
		return 0, fmt.Errorf("likelihood of %q: %w", term, apperrors.ErrMissingTermStat)
	}
	if stat.CollectionFrequency <= 0 || s.VocabularySize <= 0 || s.Lambda >= 1 {
		return 0, fmt.Errorf("likelihood of %q: zero collection component (cf=%d, vocab=%d): %w",
			term, stat.CollectionFrequency, s.VocabularySize, apperrors.ErrMissingTermStat)
	}
	return SmoothedLikelihood(doc.TermFrequencies[term], doc.Length, stat.CollectionFrequency, s.VocabularySize, s.Lambda), nil
}

// queryLikelihood sums the likelihood of every query term in doc.
func (s *Set) queryLikelihood(queryTerms []string, doc Document) (float64, error) {
	var total float64
	for _, term := range queryTerms {
		if _, ok := s.TermStats[term]; !ok {
			total += unseenQueryTermLikelihood
			continue
		}
		l, err := s.Likelihood(term, doc)
		if err != nil {
			return 0, err
		}
		total += l
	}
	return total, nil
}
