package condition

import (
	"underwriting/internal/evalctx"
)

// Result is the outcome of evaluating a condition tree against a context.
// A match without array expansion carries a single empty item; a match on an
// array path carries one item per satisfying element.
type Result struct {
	Matched bool
	Items   []evalctx.MatchedItem
}

var noMatch = Result{}

func matchedWithoutItems() Result {
	return Result{Matched: true, Items: []evalctx.MatchedItem{evalctx.EmptyItem()}}
}

// Evaluate evaluates c against ctx. It never fails: unresolvable paths are
// absent values and unknown operators do not match. Neither argument is
// modified.
func Evaluate(c Condition, ctx evalctx.Context) Result {
	switch c.Kind() {
	case KindCompound:
		return evaluateCompound(c, ctx)
	default:
		return evaluateLeaf(c, ctx)
	}
}

// Matches is Evaluate reduced to its match flag.
func Matches(c Condition, ctx evalctx.Context) bool {
	return Evaluate(c, ctx).Matched
}

func evaluateLeaf(c Condition, ctx evalctx.Context) Result {
	path, err := evalctx.ParsePath(c.Field)
	if err != nil {
		return noMatch
	}

	prefix, rest, iterate := path.SplitIterate()
	if !iterate {
		actual, present := path.Lookup(ctx)
		if Apply(c.Operator, actual, present, c.Value) {
			return matchedWithoutItems()
		}
		return noMatch
	}

	arr, found := prefix.Lookup(ctx)
	if !found {
		return noMatch
	}
	elements, ok := evalctx.Elements(arr)
	if !ok {
		return noMatch
	}

	array := prefix.String()
	var items []evalctx.MatchedItem
	for i, el := range elements {
		actual, present := el, true
		if len(rest) > 0 {
			actual, present = rest.Lookup(el)
		}
		if Apply(c.Operator, actual, present, c.Value) {
			items = append(items, evalctx.MatchedItem{Array: array, Index: i, Element: el})
		}
	}
	if len(items) == 0 {
		return noMatch
	}
	return Result{Matched: true, Items: items}
}

func evaluateCompound(c Condition, ctx evalctx.Context) Result {
	switch c.Operator {
	case Or:
		return evaluateOr(c.Conditions, ctx)
	case And, "":
		return evaluateAnd(c.Conditions, ctx)
	default:
		return noMatch
	}
}

// evaluateAnd short-circuits on the first failing branch. Items come from the
// first branch that expanded an array; other branches only gate the match.
func evaluateAnd(conditions []Condition, ctx evalctx.Context) Result {
	var items []evalctx.MatchedItem
	for _, sub := range conditions {
		r := Evaluate(sub, ctx)
		if !r.Matched {
			return noMatch
		}
		if items == nil && hasArrayItems(r.Items) {
			items = r.Items
		}
	}
	if items == nil {
		return matchedWithoutItems()
	}
	return Result{Matched: true, Items: items}
}

// evaluateOr evaluates every branch and unions the array items of the
// matching ones, de-duplicated by array and index.
func evaluateOr(conditions []Condition, ctx evalctx.Context) Result {
	matched := false
	seen := make(map[string]struct{})
	var items []evalctx.MatchedItem
	for _, sub := range conditions {
		r := Evaluate(sub, ctx)
		if !r.Matched {
			continue
		}
		matched = true
		for _, item := range r.Items {
			if item.IsEmpty() {
				continue
			}
			if _, dup := seen[item.Key()]; dup {
				continue
			}
			seen[item.Key()] = struct{}{}
			items = append(items, item)
		}
	}
	if !matched {
		return noMatch
	}
	if len(items) == 0 {
		return matchedWithoutItems()
	}
	return Result{Matched: true, Items: items}
}

func hasArrayItems(items []evalctx.MatchedItem) bool {
	for _, item := range items {
		if !item.IsEmpty() {
			return true
		}
	}
	return false
}
