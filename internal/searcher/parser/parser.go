// Package parser turns user queries into QueryPlans and renders weighted
// disjunctive plans back into "term^boost" form.
package parser

import (
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/indexer/tokenizer"
)

type QueryType int

const (
	QueryAND QueryType = iota
	QueryOR
)

func (t QueryType) String() string {
	if t == QueryOR {
		return "OR"
	}
	return "AND"
}

// QueryPlan is an executable query. Boosts scales each term's score
// contribution; a term without an entry has boost 1.
type QueryPlan struct {
	Terms        []string
	Boosts       map[string]float64
	Type         QueryType
	ExcludeTerms []string
	Field        string
	RawQuery     string
}

// Parse builds a plan from a boolean query string. AND and OR switch the
// plan type for the whole query and NOT excludes the next word.
func Parse(query string) *QueryPlan {
	plan := &QueryPlan{
		Terms:        make([]string, 0),
		ExcludeTerms: make([]string, 0),
		Type:         QueryAND,
		RawQuery:     query,
	}
	excludeNext := false
	for _, word := range strings.Fields(query) {
		switch strings.ToUpper(word) {
		case "AND":
			plan.Type = QueryAND
			continue
		case "OR":
			plan.Type = QueryOR
			continue
		case "NOT":
			excludeNext = true
			continue
		}
		terms := tokenizer.Terms(word)
		if len(terms) == 0 {
			continue
		}
		if excludeNext {
			plan.ExcludeTerms = append(plan.ExcludeTerms, terms[0])
			excludeNext = false
		} else {
			plan.Terms = append(plan.Terms, terms...)
		}
	}
	return plan
}

// Disjunction returns an OR plan over already-analyzed terms. A term given n
// times gets boost n, matching n identical SHOULD clauses.
func Disjunction(terms []string) *QueryPlan {
	plan := &QueryPlan{
		Terms:        make([]string, 0, len(terms)),
		Type:         QueryOR,
		ExcludeTerms: make([]string, 0),
		RawQuery:     strings.Join(terms, " "),
	}
	for _, term := range terms {
		if term == "" {
			continue
		}
		if _, seen := plan.Boosts[term]; seen {
			plan.Boosts[term]++
			continue
		}
		plan.AddTerm(term, 1)
	}
	return plan
}

// AddTerm appends term with the given boost.
func (p *QueryPlan) AddTerm(term string, boost float64) {
	if p.Boosts == nil {
		p.Boosts = make(map[string]float64)
	}
	p.Terms = append(p.Terms, term)
	p.Boosts[term] = boost
}

// Boost returns the boost applied to term.
func (p *QueryPlan) Boost(term string) float64 {
	if b, ok := p.Boosts[term]; ok {
		return b
	}
	return 1
}

// Len returns the number of positive clauses.
func (p *QueryPlan) Len() int { return len(p.Terms) }

// String renders the positive clauses space-separated, with "^boost" on
// every term that carries an explicit boost.
func (p *QueryPlan) String() string {
	return strings.Join(p.Tokens(), " ")
}

// Tokens renders each positive clause as "term" or "term^boost".
func (p *QueryPlan) Tokens() []string {
	out := make([]string, len(p.Terms))
	for i, term := range p.Terms {
		if b, ok := p.Boosts[term]; ok {
			out[i] = term + "^" + strconv.FormatFloat(b, 'g', -1, 64)
		} else {
			out[i] = term
		}
	}
	return out
}

// StripBoost removes a "^weight" suffix from a rendered token.
func StripBoost(token string) string {
	if i := strings.IndexByte(token, '^'); i >= 0 {
		return token[:i]
	}
	return token
}
