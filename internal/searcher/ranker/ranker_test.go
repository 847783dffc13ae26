package ranker

import (
	"math"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/indexer/index"
)

func docLens(lens map[string]int) func(string) DocInfo {
	return func(id string) DocInfo { return DocInfo{DocLength: lens[id]} }
}

func TestRankBM25Ordering(t *testing.T) {
	postings := map[string]index.PostingList{
		"flood": {{DocID: "d1", Frequency: 3}, {DocID: "d2", Frequency: 1}},
		"levee": {{DocID: "d2", Frequency: 2}},
	}
	params := RankParams{TotalDocs: 10, AvgDocLength: 10, TotalTokens: 100}
	sim, _ := NewSimilarity(SimilarityBM25, 0, 0)
	got := Rank(postings, nil, nil, sim, params, docLens(map[string]int{"d1": 10, "d2": 10}), 0)
	if len(got) != 2 {
		t.Fatalf("got %d results", len(got))
	}
	for _, d := range got {
		if d.Score <= 0 {
			t.Errorf("%s score %v not positive", d.DocID, d.Score)
		}
	}
	if got[0].Score < got[1].Score {
		t.Errorf("results not sorted: %+v", got)
	}
}

func TestRankBoostScalesContribution(t *testing.T) {
	postings := map[string]index.PostingList{
		"flood": {{DocID: "d1", Frequency: 1}},
		"levee": {{DocID: "d2", Frequency: 1}},
	}
	params := RankParams{TotalDocs: 4, AvgDocLength: 5, TotalTokens: 20}
	lens := docLens(map[string]int{"d1": 5, "d2": 5})
	sim := BM25{K1: 1.2, B: 0.75}

	plain := Rank(postings, nil, nil, sim, params, lens, 0)
	if plain[0].Score != plain[1].Score || plain[0].DocID != "d1" {
		t.Fatalf("equal scores should tie-break on DocID: %+v", plain)
	}

	boosted := Rank(postings, nil, func(term string) float64 {
		if term == "levee" {
			return 3
		}
		return 1
	}, sim, params, lens, 1)
	if len(boosted) != 1 || boosted[0].DocID != "d2" {
		t.Fatalf("boosted = %+v", boosted)
	}
	if math.Abs(boosted[0].Score-3*plain[1].Score) > 1e-12 {
		t.Errorf("boosted score %v, want 3x %v", boosted[0].Score, plain[1].Score)
	}
}

func TestRankUsesSuppliedStats(t *testing.T) {
	// One surviving posting of a term that occurs in 8 of 10 documents.
	filtered := map[string]index.PostingList{
		"storm": {{DocID: "d2", Frequency: 1}},
	}
	params := RankParams{TotalDocs: 10, AvgDocLength: 5, TotalTokens: 50}
	lens := docLens(map[string]int{"d2": 5})
	sim := BM25{K1: 1.2, B: 0.75}

	full := map[string]TermStats{"storm": {DocFreq: 8, CollectionFreq: 12}}
	got := Rank(filtered, full, nil, sim, params, lens, 0)
	want := sim.Score(1, 5, full["storm"], params)
	if len(got) != 1 || math.Abs(got[0].Score-want) > 1e-12 {
		t.Fatalf("Rank() = %+v, want score %v from the supplied stats", got, want)
	}

	derived := Rank(filtered, nil, nil, sim, params, lens, 0)
	if derived[0].Score <= got[0].Score {
		t.Errorf("stats from a single posting should give a rarer term and a higher score: %v vs %v",
			derived[0].Score, got[0].Score)
	}
}

func TestStatsOf(t *testing.T) {
	pl := index.PostingList{{DocID: "a", Frequency: 2}, {DocID: "b", Frequency: 5}}
	if got := StatsOf(pl); got != (TermStats{DocFreq: 2, CollectionFreq: 7}) {
		t.Errorf("StatsOf() = %+v", got)
	}
}

func TestSimilarityFormulas(t *testing.T) {
	params := RankParams{TotalDocs: 100, AvgDocLength: 50, TotalTokens: 999}
	term := TermStats{DocFreq: 10, CollectionFreq: 19}
	pc := 20.0 / 1000.0

	tests := []struct {
		sim  Similarity
		want float64
	}{
		{BM25{K1: 1.2, B: 0.75}, math.Log(90/10.5+1) * 2 * 2.2 / (2 + 1.2)},
		{LMDirichlet{Mu: 1000}, math.Log(1+2/(1000*pc)) + math.Log(1000.0/1050.0)},
		{LMJelinekMercer{Lambda: 0.1}, math.Log(1 + (0.9*2/50)/(0.1*pc))},
	}
	for _, tt := range tests {
		t.Run(tt.sim.String(), func(t *testing.T) {
			got := tt.sim.Score(2, 50, term, params)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLMDirichletClampsNegative(t *testing.T) {
	params := RankParams{TotalDocs: 2, AvgDocLength: 5000, TotalTokens: 10}
	got := LMDirichlet{Mu: 10}.Score(1, 10000, TermStats{DocFreq: 2, CollectionFreq: 9}, params)
	if got != 0 {
		t.Errorf("Score = %v, want 0", got)
	}
}

func TestNewSimilarity(t *testing.T) {
	if _, err := NewSimilarity("dfr", 0, 0); err == nil {
		t.Error("unknown similarity accepted")
	}
	s, err := NewSimilarity(SimilarityLMJelinekMercer, 0.6, 0)
	if err != nil {
		t.Fatal(err)
	}
	if jm, ok := s.(LMJelinekMercer); !ok || jm.Lambda != 0.6 {
		t.Errorf("got %#v", s)
	}
}
