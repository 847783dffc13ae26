package feedback

import (
	"math"
	"testing"
)

// M2 {x:.5 a:.3 y:.2}, M1 {a:.6 z:.4}, Q [a], epsilon = 1/3.
func causalFixture() (*WeightedTermSet, *WeightedTermSet, []string) {
	m2 := modelOf(
		WordWeight{Term: "x", Weight: 0.5, Score: 5},
		WordWeight{Term: "a", Weight: 0.3, Score: 3},
		WordWeight{Term: "y", Weight: 0.2, Score: 2},
	)
	m1 := modelOf(
		WordWeight{Term: "a", Weight: 0.6},
		WordWeight{Term: "z", Weight: 0.4},
	)
	return m2, m1, []string{"a"}
}

func TestReweightCausalLastWrite(t *testing.T) {
	m2, m1, q := causalFixture()
	out := ReweightCausal(m2, m1, q, 0.4, 10, DefaultOptions())

	// The last M1 term (z) never matches, so every kept ratio is w/epsilon,
	// while the normalizer also counts a's matched ratio 0.3/0.6.
	eps := 1.0 / 3.0
	norm := 2*(0.5/eps) + (0.3/0.6 + 0.3/eps) + 2*(0.2/eps)
	x := (0.5 / eps) / norm
	a := (0.3/eps)/norm + 0.4
	y := (0.2 / eps) / norm

	if got := out.Terms(); len(got) != 3 || got[0] != "a" || got[1] != "x" || got[2] != "y" {
		t.Fatalf("terms = %v, want [a x y]", got)
	}
	total := x + a + y
	assertClose(t, "weight(a)", mustGet(t, out, "a").Weight, a/total)
	assertClose(t, "weight(x)", mustGet(t, out, "x").Weight, x/total)
	assertClose(t, "weight(y)", mustGet(t, out, "y").Weight, y/total)
	assertClose(t, "sum", out.Sum(FieldWeight), 1)

	// Expansion weights are fixed before the final cut and diverge from Weight.
	assertClose(t, "expansion(a)", mustGet(t, out, "a").ExpansionWeight, a)
	assertClose(t, "expansion(x)", mustGet(t, out, "x").ExpansionWeight, x)
	if mustGet(t, out, "x").Score != 5 {
		t.Error("raw score of second-round term not carried")
	}
}

func TestReweightCausalFirstMatch(t *testing.T) {
	m2, m1, q := causalFixture()
	opts := Options{DeterministicTies: true, CausalMatch: MatchFirstMatch}
	out := ReweightCausal(m2, m1, q, 0.4, 10, opts)

	eps := 1.0 / 3.0
	rx, ra, ry := 0.5/eps, 0.3/0.6, 0.2/eps
	norm := rx + ra + ry
	x, a, y := rx/norm, ra/norm+0.4, ry/norm
	total := x + a + y

	assertClose(t, "weight(a)", mustGet(t, out, "a").Weight, a/total)
	assertClose(t, "weight(x)", mustGet(t, out, "x").Weight, x/total)
	assertClose(t, "weight(y)", mustGet(t, out, "y").Weight, y/total)
}

func TestReweightCausalCutoff(t *testing.T) {
	m2, m1, q := causalFixture()
	out := ReweightCausal(m2, m1, q, 0.4, 2, DefaultOptions())
	if got := out.Terms(); len(got) != 2 || got[0] != "a" || got[1] != "x" {
		t.Fatalf("terms = %v, want [a x]", got)
	}
	assertClose(t, "sum", out.Sum(FieldWeight), 1)
}

func TestReweightCausalEmptySecondModel(t *testing.T) {
	_, m1, _ := causalFixture()
	out := ReweightCausal(NewWeightedTermSet(0), m1, []string{"a", "b"}, 0.4, 10, DefaultOptions())

	if out.Len() != 2 {
		t.Fatalf("terms = %v, want query tokens only", out.Terms())
	}
	for _, term := range []string{"a", "b"} {
		w := mustGet(t, out, term)
		assertClose(t, "weight("+term+")", w.Weight, 0.5)
		// Query tokens keep their unnormalized mixing weight as boost.
		assertClose(t, "expansion("+term+")", w.ExpansionWeight, 0.2)
	}
}

func TestReweightCausalZeroGuards(t *testing.T) {
	m2 := modelOf(WordWeight{Term: "a", Weight: 0.5}, WordWeight{Term: "b", Weight: 0.5})
	m1 := modelOf(WordWeight{Term: "a", Weight: 0})
	for _, opts := range []Options{DefaultOptions(), {DeterministicTies: true, CausalMatch: MatchFirstMatch}} {
		out := ReweightCausal(m2, m1, nil, 0.4, 10, opts)
		for _, e := range out.Entries() {
			if math.IsNaN(e.Weight) || math.IsInf(e.Weight, 0) {
				t.Fatalf("%v: %s weight %v", opts.CausalMatch, e.Term, e.Weight)
			}
		}
		assertClose(t, opts.CausalMatch.String()+" sum", out.Sum(FieldWeight), 1)
	}

	zero := modelOf(WordWeight{Term: "a", Weight: 0})
	out := ReweightCausal(zero, zero, nil, 0.4, 10, DefaultOptions())
	if w := mustGet(t, out, "a"); w.Weight != 0 {
		t.Errorf("all-zero model gave weight %v", w.Weight)
	}
}

func TestReweightCausalCaseInsensitiveMatch(t *testing.T) {
	m2 := modelOf(WordWeight{Term: "Flood", Weight: 1})
	m1 := modelOf(WordWeight{Term: "flood", Weight: 0.25})
	opts := Options{DeterministicTies: true, CausalMatch: MatchFirstMatch}
	out := ReweightCausal(m2, m1, []string{"flood"}, 0.5, 10, opts)

	// "Flood" matches M1 but the exact-match query lookup inserts "flood"
	// separately; both count as query tokens for normalization.
	if out.Len() != 2 {
		t.Fatalf("terms = %v", out.Terms())
	}
	assertClose(t, "expansion(Flood)", mustGet(t, out, "Flood").ExpansionWeight, 1)
	assertClose(t, "expansion(flood)", mustGet(t, out, "flood").ExpansionWeight, 0.5)
}

func TestReweightCausalStripsBoosts(t *testing.T) {
	m2, m1, _ := causalFixture()
	plain := ReweightCausal(m2, m1, []string{"a"}, 0.4, 10, DefaultOptions())
	boosted := ReweightCausal(m2, m1, []string{"a^0.25"}, 0.4, 10, DefaultOptions())

	if boosted.Has("a^0.25") {
		t.Fatal("boost suffix kept as a term")
	}
	for _, term := range plain.Terms() {
		got, want := mustGet(t, boosted, term), mustGet(t, plain, term)
		assertClose(t, "weight("+term+")", got.Weight, want.Weight)
		assertClose(t, "expansion("+term+")", got.ExpansionWeight, want.ExpansionWeight)
	}
}
