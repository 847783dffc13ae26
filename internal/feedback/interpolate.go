package feedback

// InterpolateWithQuery mixes a relevance model with the query's maximum
// likelihood distribution: (1−qmix)·P(w|R) + qmix·count(w,Q)/|Q|, then
// renormalizes. Every distinct query token is present in the result, in
// order of first occurrence after the model's own terms. Tokens rendered as
// "term^boost" count as term. The input model is not modified.
func InterpolateWithQuery(model *WeightedTermSet, queryTokens []string, qmix float64) *WeightedTermSet {
	queryTokens = stripQueryTokens(queryTokens)
	distinct, counts := distinctTokens(queryTokens)
	out := NewWeightedTermSet(model.Len() + len(distinct))

	var norm float64
	for _, e := range model.Entries() {
		e.Weight *= 1 - qmix
		norm += e.Weight
		out.Put(e)
	}
	for _, q := range distinct {
		contribution := qmix * float64(counts[q]) / float64(len(queryTokens))
		norm += contribution
		if e, ok := out.Get(q); ok {
			e.Weight += contribution
			out.Put(e)
			continue
		}
		out.Put(WordWeight{Term: q, Weight: contribution})
	}

	for i := range out.entries {
		e := &out.entries[i]
		if norm > 0 {
			e.Weight /= norm
		}
		e.ExpansionWeight = e.Weight
	}
	return out
}
