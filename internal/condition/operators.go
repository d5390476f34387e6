package condition

import (
	"encoding/json"
	"reflect"
	"regexp"
	"strings"
	"time"

	"underwriting/internal/evalctx"

	"github.com/spf13/cast"
)

// Apply evaluates a leaf operator. actual is the resolved field value and
// present tells whether the path resolved at all. Values that cannot be
// compared never satisfy an operator.
func Apply(op Operator, actual any, present bool, expected any) bool {
	if !present {
		actual = nil
	}

	switch op {
	case OpExists:
		return actual != nil
	case OpNotExists:
		return actual == nil
	case OpEqual:
		return equal(actual, expected)
	case OpNotEqual:
		return !equal(actual, expected)
	case OpLess:
		cmp, ok := compare(actual, expected)
		return ok && cmp < 0
	case OpGreater:
		cmp, ok := compare(actual, expected)
		return ok && cmp > 0
	case OpLessEqual:
		cmp, ok := compare(actual, expected)
		return ok && cmp <= 0
	case OpGreaterEqual:
		cmp, ok := compare(actual, expected)
		return ok && cmp >= 0
	case OpContains:
		return contains(actual, expected)
	case OpIn:
		return in(actual, expected)
	case OpMatches:
		return matches(actual, expected)
	default:
		return false
	}
}

// equal is deep equality where numbers of any Go type compare by value.
func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if x, ok := number(a); ok {
		y, ok := number(b)
		return ok && x == y
	}

	as, aIsList := evalctx.Elements(a)
	bs, bIsList := evalctx.Elements(b)
	if aIsList || bIsList {
		if !aIsList || !bIsList || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !equal(as[i], bs[i]) {
				return false
			}
		}
		return true
	}

	am, aIsMap := object(a)
	bm, bIsMap := object(b)
	if aIsMap || bIsMap {
		if !aIsMap || !bIsMap || len(am) != len(bm) {
			return false
		}
		for k, v := range am {
			w, ok := bm[k]
			if !ok || !equal(v, w) {
				return false
			}
		}
		return true
	}

	return reflect.DeepEqual(a, b)
}

// compare orders numbers (including numeric strings) and dates.
func compare(a, b any) (int, bool) {
	if x, ok := numeric(a); ok {
		if y, ok := numeric(b); ok {
			switch {
			case x < y:
				return -1, true
			case x > y:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}

	x, okA := date(a)
	y, okB := date(b)
	if !okA || !okB {
		return 0, false
	}
	return x.Compare(y), true
}

// contains is substring search for strings and membership for arrays.
func contains(container, item any) bool {
	if s, ok := container.(string); ok {
		needle, err := cast.ToStringE(item)
		if err != nil || item == nil {
			return false
		}
		return strings.Contains(s, needle)
	}
	items, ok := evalctx.Elements(container)
	if !ok {
		return false
	}
	for _, el := range items {
		if equal(el, item) {
			return true
		}
	}
	return false
}

// in reports whether actual is an element of the expected array.
func in(actual, expected any) bool {
	if actual == nil {
		return false
	}
	items, ok := evalctx.Elements(expected)
	if !ok {
		return false
	}
	for _, el := range items {
		if equal(actual, el) {
			return true
		}
	}
	return false
}

func matches(actual, pattern any) bool {
	if actual == nil {
		return false
	}
	expr, ok := pattern.(string)
	if !ok {
		return false
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return false
	}
	return re.MatchString(evalctx.Format(actual))
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		f, err := cast.ToFloat64E(x)
		return f, err == nil
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func numeric(v any) (float64, bool) {
	if f, ok := number(v); ok {
		return f, true
	}
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return 0, false
	}
	f, err := cast.ToFloat64E(strings.TrimSpace(s))
	return f, err == nil
}

func date(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		t, err := cast.ToTimeE(x)
		if err != nil || t.IsZero() {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}

func object(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case evalctx.Context:
		return m, true
	default:
		return nil, false
	}
}
