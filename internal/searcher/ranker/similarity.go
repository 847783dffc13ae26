package ranker

import (
	"fmt"
	"math"
)

// Similarity names accepted by NewSimilarity.
const (
	SimilarityBM25            = "bm25"
	SimilarityLMDirichlet     = "lm-dirichlet"
	SimilarityLMJelinekMercer = "lm-jelinek-mercer"
)

// TermStats are the collection statistics of one query term.
type TermStats struct {
	DocFreq        int64
	CollectionFreq int64
}

// Similarity scores one term occurrence in one document.
type Similarity interface {
	Score(tf, docLen float64, term TermStats, params RankParams) float64
	String() string
}

// NewSimilarity builds a similarity by name. Zero parameters take the
// usual defaults: bm25 k1=1.2 b=0.75, dirichlet mu=1000, jelinek-mercer
// lambda=0.1.
func NewSimilarity(name string, param1, param2 float64) (Similarity, error) {
	switch name {
	case "", SimilarityBM25:
		k1, b := param1, param2
		if k1 <= 0 {
			k1 = 1.2
		}
		if b <= 0 || b > 1 {
			b = 0.75
		}
		return BM25{K1: k1, B: b}, nil
	case SimilarityLMDirichlet:
		mu := param1
		if mu <= 0 {
			mu = 1000
		}
		return LMDirichlet{Mu: mu}, nil
	case SimilarityLMJelinekMercer:
		lambda := param1
		if lambda <= 0 || lambda >= 1 {
			lambda = 0.1
		}
		return LMJelinekMercer{Lambda: lambda}, nil
	default:
		return nil, fmt.Errorf("unknown similarity %q", name)
	}
}

// BM25 is Okapi BM25 with a non-negative idf.
type BM25 struct {
	K1 float64
	B  float64
}

func (s BM25) Score(tf, docLen float64, term TermStats, params RankParams) float64 {
	if params.AvgDocLength == 0 {
		return 0
	}
	idf := math.Log((float64(params.TotalDocs)-float64(term.DocFreq))/(float64(term.DocFreq)+0.5) + 1)
	norm := tf + s.K1*(1-s.B+s.B*docLen/params.AvgDocLength)
	return idf * tf * (s.K1 + 1) / norm
}

func (s BM25) String() string {
	return fmt.Sprintf("BM25(k1=%g,b=%g)", s.K1, s.B)
}

// LMDirichlet is the Dirichlet-smoothed query likelihood. Negative scores
// are clamped to zero so that matching never lowers a document's score.
type LMDirichlet struct {
	Mu float64
}

func (s LMDirichlet) Score(tf, docLen float64, term TermStats, params RankParams) float64 {
	pc := collectionProbability(term, params)
	score := math.Log(1+tf/(s.Mu*pc)) + math.Log(s.Mu/(docLen+s.Mu))
	return math.Max(score, 0)
}

func (s LMDirichlet) String() string {
	return fmt.Sprintf("LM Dirichlet(%g)", s.Mu)
}

// LMJelinekMercer is the linearly smoothed query likelihood; Lambda is the
// collection weight.
type LMJelinekMercer struct {
	Lambda float64
}

func (s LMJelinekMercer) Score(tf, docLen float64, term TermStats, params RankParams) float64 {
	if docLen == 0 {
		return 0
	}
	pc := collectionProbability(term, params)
	return math.Log(1 + ((1-s.Lambda)*tf/docLen)/(s.Lambda*pc))
}

func (s LMJelinekMercer) String() string {
	return fmt.Sprintf("LM Jelinek-Mercer(%g)", s.Lambda)
}

func collectionProbability(term TermStats, params RankParams) float64 {
	return (float64(term.CollectionFreq) + 1) / (float64(params.TotalTokens) + 1)
}
