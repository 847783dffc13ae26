package feedback

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/errors"
)

// DefaultMaxClauseCount bounds expansion queries when no limit is set.
const DefaultMaxClauseCount = 4096

// BuildExpansionQuery turns set into a disjunctive plan on fieldToSearch,
// one clause per term boosted by the selected field, in set order. Terms
// containing ':' are field-qualified and never expanded. More than
// maxClauses clauses is an error wrapping errors.ErrTooManyClauses; the
// plan is never truncated. An empty set gives a plan with no clauses.
func BuildExpansionQuery(set *WeightedTermSet, field WeightField, fieldToSearch string, maxClauses int) (*parser.QueryPlan, error) {
	if maxClauses <= 0 {
		maxClauses = DefaultMaxClauseCount
	}
	plan := &parser.QueryPlan{
		Terms:        make([]string, 0, set.Len()),
		Boosts:       make(map[string]float64, set.Len()),
		Type:         parser.QueryOR,
		ExcludeTerms: make([]string, 0),
		Field:        fieldToSearch,
	}
	for _, e := range set.Entries() {
		if strings.Contains(e.Term, ":") {
			continue
		}
		if plan.Len() == maxClauses {
			return nil, fmt.Errorf("expansion on %s with %s boosts exceeds %d clauses: %w",
				fieldToSearch, field, maxClauses, apperrors.ErrTooManyClauses)
		}
		plan.AddTerm(e.Term, field.Of(e))
	}
	plan.RawQuery = plan.String()
	return plan, nil
}
