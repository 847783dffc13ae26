package feedback

// EstimateRelevanceModel scores every term of the feedback set by
// Σ_d likelihood(t,d)·queryLikelihood(d), keeps the termCount best and
// normalizes them to sum to 1. Weight and ExpansionWeight are both set to
// the normalized value. An empty set, or a non-positive termCount, yields
// an empty model; a zero score total leaves the weights at zero.
func EstimateRelevanceModel(set *Set, termCount int, opts Options) (*WeightedTermSet, error) {
	if set == nil || len(set.Documents) == 0 || len(set.TermStats) == 0 || termCount <= 0 {
		return NewWeightedTermSet(0), nil
	}

	candidates := make([]WordWeight, 0, len(set.TermStats))
	for term := range set.TermStats {
		var score float64
		for _, doc := range set.Documents {
			l, err := set.Likelihood(term, doc)
			if err != nil {
				return nil, err
			}
			score += l * set.QueryLikelihood[doc.ID]
		}
		candidates = append(candidates, WordWeight{Term: term, Score: score})
	}
	sortByDesc(candidates, func(w WordWeight) float64 { return w.Score }, opts.DeterministicTies)

	n := min(termCount, len(candidates))
	model := NewWeightedTermSet(n)
	var norm float64
	for _, c := range candidates[:n] {
		norm += c.Score
		model.Put(c)
	}
	for i := range model.entries {
		e := &model.entries[i]
		if norm > 0 {
			e.Weight = e.Score / norm
		}
		e.ExpansionWeight = e.Weight
	}
	return model, nil
}
