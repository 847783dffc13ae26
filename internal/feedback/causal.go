package feedback

import "strings"

// ReweightCausal reweights the second-round relevance model model2 against
// the first-stage model model1 and mixes in the query tokens:
//
//  1. epsilon is the mean weight of model2.
//  2. Each term of model2 gets the ratio of its weight to the weight of a
//     matching (case-insensitive) model1 term, or to epsilon. Which ratio is
//     kept depends on opts.CausalMatch.
//  3. The ratios are normalized by the sum of every ratio computed.
//  4. A second normalizer starts at Σ (1−qmix)·weight over model2.
//  5. Each distinct query token adds qmix·mle(q) to its ratio, or is
//     inserted with that value, and to the second normalizer.
//  6. Query tokens keep their weight unnormalized and use it as expansion
//     weight; every other term is divided by the second normalizer.
//  7. The termCount heaviest terms are kept and their Weight, not their
//     ExpansionWeight, is normalized to sum to 1.
//
// The result is ordered by descending weight. Query tokens rendered as
// "term^boost" count as term.
func ReweightCausal(model2, model1 *WeightedTermSet, queryTokens []string, qmix float64, termCount int, opts Options) *WeightedTermSet {
	queryTokens = stripQueryTokens(queryTokens)
	distinct, counts := distinctTokens(queryTokens)

	var epsilon float64
	if n := model2.Len(); n > 0 {
		epsilon = model2.Sum(FieldWeight) / float64(n)
	}

	causal := NewWeightedTermSet(model2.Len() + len(distinct))
	var ratioNorm float64
	for _, w2 := range model2.Entries() {
		var ratio float64
		var stored bool
		switch opts.CausalMatch {
		case MatchFirstMatch:
			ratio = safeRatio(w2.Weight, epsilon, 0)
			for _, w1 := range model1.Entries() {
				if strings.EqualFold(w1.Term, w2.Term) {
					ratio = safeRatio(w2.Weight, w1.Weight, epsilon)
					break
				}
			}
			ratioNorm += ratio
			stored = true
		default:
			for _, w1 := range model1.Entries() {
				if strings.EqualFold(w1.Term, w2.Term) {
					ratio = safeRatio(w2.Weight, w1.Weight, epsilon)
				} else {
					ratio = safeRatio(w2.Weight, epsilon, 0)
				}
				ratioNorm += ratio
				stored = true
			}
		}
		if stored {
			causal.Put(WordWeight{Term: w2.Term, Score: w2.Score, Weight: ratio})
		}
	}
	if ratioNorm > 0 {
		for i := range causal.entries {
			causal.entries[i].Weight /= ratioNorm
		}
	}

	var mixNorm float64
	for _, w2 := range model2.Entries() {
		mixNorm += w2.Weight * (1 - qmix)
	}
	for _, q := range distinct {
		contribution := qmix * float64(counts[q]) / float64(len(queryTokens))
		mixNorm += contribution
		if e, ok := causal.Get(q); ok {
			e.Weight += contribution
			causal.Put(e)
			continue
		}
		causal.Put(WordWeight{Term: q, Weight: contribution})
	}

	for i := range causal.entries {
		e := &causal.entries[i]
		if !isQueryToken(e.Term, distinct) && mixNorm > 0 {
			e.Weight /= mixNorm
		}
		e.ExpansionWeight = e.Weight
	}

	ranked := causal.Entries()
	sortByDesc(ranked, func(w WordWeight) float64 { return w.Weight }, opts.DeterministicTies)
	n := max(0, min(termCount, len(ranked)))
	out := NewWeightedTermSet(n)
	var selectNorm float64
	for _, e := range ranked[:n] {
		selectNorm += e.Weight
		out.Put(e)
	}
	if selectNorm > 0 {
		for i := range out.entries {
			out.entries[i].Weight /= selectNorm
		}
	}
	return out
}

// safeRatio divides num by den, falling back to fallback as the divisor
// when den is zero, and returns 0 when both are zero.
func safeRatio(num, den, fallback float64) float64 {
	if den != 0 {
		return num / den
	}
	if fallback != 0 {
		return num / fallback
	}
	return 0
}

func isQueryToken(term string, queryTokens []string) bool {
	for _, q := range queryTokens {
		if strings.EqualFold(term, q) {
			return true
		}
	}
	return false
}
