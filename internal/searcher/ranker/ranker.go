// Package ranker scores posting lists with a pluggable Similarity and
// returns the top documents.
package ranker

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/indexer/index"
)

type ScoredDoc struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// RankParams are the collection-wide statistics of the searched index.
type RankParams struct {
	TotalDocs    int64
	AvgDocLength float64
	TotalTokens  int64
}

type DocInfo struct {
	DocLength int
}

// Rank sums boost(term) * similarity over every posting and returns the
// limit best documents, ordered by score then DocID. A nil boost scores
// every term with weight 1. A limit of 0 keeps all documents.
//
// stats holds each term's statistics over the whole index. Callers that
// filter postings before ranking must pass the unfiltered statistics; a
// term missing from stats falls back to StatsOf its postings.
func Rank(
	postingsPerTerm map[string]index.PostingList,
	stats map[string]TermStats,
	boost func(term string) float64,
	sim Similarity,
	params RankParams,
	getDocInfo func(docID string) DocInfo,
	limit int,
) []ScoredDoc {
	scores := make(map[string]float64)
	for term, postings := range postingsPerTerm {
		if len(postings) == 0 {
			continue
		}
		weight := 1.0
		if boost != nil {
			weight = boost(term)
		}
		ts, ok := stats[term]
		if !ok {
			ts = StatsOf(postings)
		}
		for _, posting := range postings {
			info := getDocInfo(posting.DocID)
			s := sim.Score(float64(posting.Frequency), float64(info.DocLength), ts, params)
			scores[posting.DocID] += weight * s
		}
	}
	return TopK(scores, limit)
}

// StatsOf derives document and collection frequency from a full posting
// list.
func StatsOf(postings index.PostingList) TermStats {
	return TermStats{
		DocFreq:        int64(len(postings)),
		CollectionFreq: postings.CollectionFrequency(),
	}
}

// TopK orders scores by descending value, breaking ties by DocID, and keeps
// the first limit entries.
func TopK(scores map[string]float64, limit int) []ScoredDoc {
	result := make([]ScoredDoc, 0, len(scores))
	for docID, score := range scores {
		result = append(result, ScoredDoc{DocID: docID, Score: score})
	}
	SortScored(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// SortScored sorts docs in place by descending score, then DocID.
func SortScored(docs []ScoredDoc) {
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Score != docs[j].Score {
			return docs[i].Score > docs[j].Score
		}
		return docs[i].DocID < docs[j].DocID
	})
}
