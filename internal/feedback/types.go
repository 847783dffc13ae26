// Package feedback implements pseudo-relevance feedback query expansion:
// a relevance model (RM1) estimated from the top documents of a first
// retrieval, interpolated with the query (RM3), and a second causal pass
// that reweights the relevance model of a second retrieval against the
// first.
//
// All functions are pure over the values passed in. Nothing is cached
// between calls, so concurrent queries need no coordination beyond what
// the collaborators provide.
package feedback

import (
	"fmt"
	"sort"
)

// TermStat holds the collection statistics of one feedback term.
type TermStat struct {
	Term                string
	CollectionFrequency int64
	DocumentFrequency   int64
}

// Document is one accepted feedback document.
type Document struct {
	ID              string
	TermFrequencies map[string]int64
	Length          int64
}

// Set is the feedback set of one retrieval round. Every TermStats key
// occurs in at least one document and every QueryLikelihood key is the ID
// of a document in Documents.
type Set struct {
	Documents       []Document
	TermStats       map[string]TermStat
	QueryLikelihood map[string]float64
	VocabularySize  int64
	Lambda          float64
}

// WordWeight is the weight record of one expansion term. Score is the raw
// relevance-model score. Weight is the normalized weight and
// ExpansionWeight the value used as a query boost; the causal pass lets
// the two differ.
type WordWeight struct {
	Term            string  `json:"term"`
	Score           float64 `json:"score"`
	Weight          float64 `json:"weight"`
	ExpansionWeight float64 `json:"expansion_weight"`
}

// WeightField selects which WordWeight field becomes the query boost.
type WeightField int

const (
	FieldWeight WeightField = iota
	FieldExpansionWeight
)

func (f WeightField) String() string {
	switch f {
	case FieldWeight:
		return "weight"
	case FieldExpansionWeight:
		return "expansionWeight"
	default:
		return fmt.Sprintf("WeightField(%d)", int(f))
	}
}

// Of returns the selected field of w.
func (f WeightField) Of(w WordWeight) float64 {
	if f == FieldExpansionWeight {
		return w.ExpansionWeight
	}
	return w.Weight
}

// CausalMatch selects how the causal pass pairs second-round terms with
// first-round terms.
type CausalMatch int

const (
	// MatchLastWrite recomputes the ratio of a second-round term against
	// every first-round term in order and keeps the last one, summing every
	// value computed into the normalizer.
	MatchLastWrite CausalMatch = iota
	// MatchFirstMatch divides by the matching first-round weight if one
	// exists and by epsilon otherwise, summing only the kept value.
	MatchFirstMatch
)

// ParseCausalMatch maps the configuration spelling to a CausalMatch.
func ParseCausalMatch(s string) (CausalMatch, error) {
	switch s {
	case "", "last-write":
		return MatchLastWrite, nil
	case "first-match":
		return MatchFirstMatch, nil
	default:
		return 0, fmt.Errorf("unknown causal match mode %q", s)
	}
}

func (m CausalMatch) String() string {
	if m == MatchFirstMatch {
		return "first-match"
	}
	return "last-write"
}

// Options tune tie handling and causal matching.
type Options struct {
	// DeterministicTies orders equal weights by term. Without it the order
	// among equal weights is unspecified.
	DeterministicTies bool
	CausalMatch       CausalMatch
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{DeterministicTies: true, CausalMatch: MatchLastWrite}
}

// WeightedTermSet maps terms to WordWeights and iterates in insertion order.
type WeightedTermSet struct {
	entries []WordWeight
	index   map[string]int
}

// NewWeightedTermSet returns an empty set sized for n terms.
func NewWeightedTermSet(n int) *WeightedTermSet {
	return &WeightedTermSet{
		entries: make([]WordWeight, 0, n),
		index:   make(map[string]int, n),
	}
}

// Len returns the number of terms. A nil set is empty.
func (s *WeightedTermSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Get returns the record for term.
func (s *WeightedTermSet) Get(term string) (WordWeight, bool) {
	if s == nil {
		return WordWeight{}, false
	}
	i, ok := s.index[term]
	if !ok {
		return WordWeight{}, false
	}
	return s.entries[i], true
}

// Has reports whether term is in the set.
func (s *WeightedTermSet) Has(term string) bool {
	_, ok := s.Get(term)
	return ok
}

// Put stores w under w.Term. An existing term keeps its position.
func (s *WeightedTermSet) Put(w WordWeight) {
	if i, ok := s.index[w.Term]; ok {
		s.entries[i] = w
		return
	}
	s.index[w.Term] = len(s.entries)
	s.entries = append(s.entries, w)
}

// Entries returns a copy of the records in iteration order.
func (s *WeightedTermSet) Entries() []WordWeight {
	if s == nil {
		return nil
	}
	return append([]WordWeight(nil), s.entries...)
}

// Terms returns the terms in iteration order.
func (s *WeightedTermSet) Terms() []string {
	if s == nil {
		return nil
	}
	terms := make([]string, len(s.entries))
	for i, e := range s.entries {
		terms[i] = e.Term
	}
	return terms
}

// Sum adds up the selected field over all terms.
func (s *WeightedTermSet) Sum(field WeightField) float64 {
	if s == nil {
		return 0
	}
	var sum float64
	for _, e := range s.entries {
		sum += field.Of(e)
	}
	return sum
}

// Clone returns an independent copy.
func (s *WeightedTermSet) Clone() *WeightedTermSet {
	out := NewWeightedTermSet(s.Len())
	for _, e := range s.Entries() {
		out.Put(e)
	}
	return out
}

// sortByDesc orders ws by descending key. With deterministic ties, equal
// keys are ordered by term.
func sortByDesc(ws []WordWeight, key func(WordWeight) float64, deterministic bool) {
	if !deterministic {
		sort.Slice(ws, func(i, j int) bool { return key(ws[i]) > key(ws[j]) })
		return
	}
	sort.Slice(ws, func(i, j int) bool {
		ki, kj := key(ws[i]), key(ws[j])
		if ki != kj {
			return ki > kj
		}
		return ws[i].Term < ws[j].Term
	})
}

// distinctTokens returns each token once, in order of first occurrence,
// with its count in tokens.
func distinctTokens(tokens []string) ([]string, map[string]int) {
	counts := make(map[string]int, len(tokens))
	order := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if counts[t] == 0 {
			order = append(order, t)
		}
		counts[t]++
	}
	return order, counts
}
