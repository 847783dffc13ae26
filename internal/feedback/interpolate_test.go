package feedback

import "testing"

func modelOf(ws ...WordWeight) *WeightedTermSet {
	s := NewWeightedTermSet(len(ws))
	for _, w := range ws {
		if w.ExpansionWeight == 0 {
			w.ExpansionWeight = w.Weight
		}
		s.Put(w)
	}
	return s
}

func TestInterpolateWithQuery(t *testing.T) {
	model := modelOf(WordWeight{Term: "b", Weight: 0.6, Score: 3}, WordWeight{Term: "a", Weight: 0.4, Score: 2})
	out := InterpolateWithQuery(model, []string{"a", "c", "a"}, 0.5)

	if got := out.Terms(); len(got) != 3 || got[0] != "b" || got[1] != "a" || got[2] != "c" {
		t.Fatalf("terms = %v, want [b a c]", got)
	}
	assertClose(t, "weight(b)", mustGet(t, out, "b").Weight, 0.3)
	assertClose(t, "weight(a)", mustGet(t, out, "a").Weight, 0.2+0.5*2.0/3.0)
	assertClose(t, "weight(c)", mustGet(t, out, "c").Weight, 0.5/3.0)
	assertClose(t, "sum", out.Sum(FieldWeight), 1)
	for _, e := range out.Entries() {
		if e.ExpansionWeight != e.Weight {
			t.Errorf("%s: expansion %v != weight %v", e.Term, e.ExpansionWeight, e.Weight)
		}
	}
	if mustGet(t, out, "b").Score != 3 {
		t.Error("raw score not carried through")
	}

	// The input model is untouched.
	assertClose(t, "input weight(b)", mustGet(t, model, "b").Weight, 0.6)
	if model.Len() != 2 {
		t.Errorf("input model grew to %d terms", model.Len())
	}
}

func TestInterpolateWithQueryEdges(t *testing.T) {
	if out := InterpolateWithQuery(NewWeightedTermSet(0), nil, 0.4); out.Len() != 0 {
		t.Errorf("empty inputs gave %v", out.Terms())
	}

	out := InterpolateWithQuery(NewWeightedTermSet(0), []string{"flood", "levee"}, 0.4)
	assertClose(t, "weight(flood)", mustGet(t, out, "flood").Weight, 0.5)
	assertClose(t, "weight(levee)", mustGet(t, out, "levee").Weight, 0.5)

	model := modelOf(WordWeight{Term: "x", Weight: 1})
	out = InterpolateWithQuery(model, []string{"q"}, 0)
	assertClose(t, "qmix 0 weight(x)", mustGet(t, out, "x").Weight, 1)
	assertClose(t, "qmix 0 weight(q)", mustGet(t, out, "q").Weight, 0)
}

func TestInterpolateWithQueryStripsBoosts(t *testing.T) {
	model := modelOf(WordWeight{Term: "b", Weight: 0.6}, WordWeight{Term: "a", Weight: 0.4})
	plain := InterpolateWithQuery(model, []string{"a", "c", "a"}, 0.5)
	boosted := InterpolateWithQuery(model, []string{"a^0.7", "c^2", "a"}, 0.5)

	if got := boosted.Terms(); len(got) != 3 || got[2] != "c" {
		t.Fatalf("terms = %v, want [b a c]", got)
	}
	for _, term := range plain.Terms() {
		assertClose(t, "weight("+term+")", mustGet(t, boosted, term).Weight, mustGet(t, plain, term).Weight)
	}
}
