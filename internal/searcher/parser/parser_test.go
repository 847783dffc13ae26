package parser

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		terms   []string
		exclude []string
		typ     QueryType
	}{
		{"and default", "flood damage", []string{"flood", "damag"}, []string{}, QueryAND},
		{"or", "flood OR hurricane", []string{"flood", "hurrican"}, []string{}, QueryOR},
		{"not", "flood NOT river", []string{"flood"}, []string{"river"}, QueryAND},
		{"stopwords only", "the of", []string{}, []string{}, QueryAND},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Parse(tt.query)
			if !reflect.DeepEqual(p.Terms, tt.terms) {
				t.Errorf("Terms = %v, want %v", p.Terms, tt.terms)
			}
			if !reflect.DeepEqual(p.ExcludeTerms, tt.exclude) {
				t.Errorf("ExcludeTerms = %v, want %v", p.ExcludeTerms, tt.exclude)
			}
			if p.Type != tt.typ {
				t.Errorf("Type = %v, want %v", p.Type, tt.typ)
			}
		})
	}
}

func TestDisjunctionMergesRepeats(t *testing.T) {
	p := Disjunction([]string{"flood", "levee", "flood", ""})
	if p.Type != QueryOR {
		t.Fatalf("Type = %v", p.Type)
	}
	if !reflect.DeepEqual(p.Terms, []string{"flood", "levee"}) {
		t.Fatalf("Terms = %v", p.Terms)
	}
	if p.Boost("flood") != 2 || p.Boost("levee") != 1 {
		t.Errorf("boosts = %v", p.Boosts)
	}
}

func TestTokensRoundTrip(t *testing.T) {
	p := &QueryPlan{Type: QueryOR}
	p.AddTerm("flood", 0.25)
	p.AddTerm("levee", 0.125)
	p.Terms = append(p.Terms, "plain")

	want := []string{"flood^0.25", "levee^0.125", "plain"}
	if got := p.Tokens(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Tokens() = %v, want %v", got, want)
	}
	if got := p.String(); got != "flood^0.25 levee^0.125 plain" {
		t.Errorf("String() = %q", got)
	}
	for i, tok := range p.Tokens() {
		if StripBoost(tok) != p.Terms[i] {
			t.Errorf("StripBoost(%q) = %q", tok, StripBoost(tok))
		}
	}
	if p.Boost("plain") != 1 {
		t.Errorf("unboosted term boost = %v", p.Boost("plain"))
	}
}
