// Package derive turns the rules matching a case into risk factors, test
// recommendations and decision options.
//
// The pipeline functions are pure: they only read the rules and the context
// and may run concurrently for independent cases. Disabled rules are skipped
// and the remaining rules are evaluated in the order given, which callers
// keep at descending priority.
package derive

import (
	"underwriting/internal/condition"
	"underwriting/internal/evalctx"
	"underwriting/internal/rule"
)

// EvaluationResult is the outcome of matching one rule against a context.
type EvaluationResult struct {
	Rule         rule.Rule
	Matched      bool
	MatchedItems []evalctx.MatchedItem
}

// Evaluate matches every enabled rule against ctx.
func Evaluate(rules []rule.Rule, ctx evalctx.Context) []EvaluationResult {
	results := make([]EvaluationResult, 0, len(rules))
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		res := condition.Evaluate(r.Conditions, ctx)
		results = append(results, EvaluationResult{Rule: r, Matched: res.Matched, MatchedItems: res.Items})
	}
	return results
}

// items returns the augmentations of a result, at least one.
func (e EvaluationResult) items() []evalctx.MatchedItem {
	if len(e.MatchedItems) == 0 {
		return []evalctx.MatchedItem{evalctx.EmptyItem()}
	}
	return e.MatchedItems
}

// primary is the context used for text rendered once per rule: the first
// augmentation bound.
func (e EvaluationResult) primary(ctx evalctx.Context) evalctx.Context {
	return ctx.With(e.items()[0])
}
