package evalctx

import (
	"encoding/json"
	"strconv"
)

// Top-level keys of an evaluation context.
const (
	KeyCase               = "case"
	KeyApplicant          = "applicant"
	KeyMedicalDisclosures = "medicalDisclosures"
	KeyRiskFactors        = "riskFactors"
	KeyTestResults        = "testResults"

	// KeyMatchedDisclosure binds the array element that satisfied a condition.
	// It only appears in contexts produced by Context.With.
	KeyMatchedDisclosure = "matchedDisclosure"
	// KeyMatchedIndex binds the position of that element in its array.
	KeyMatchedIndex = "matchedIndex"
)

// Context is the resolved case data a condition tree is evaluated against.
// It is a nested JSON-like mapping: objects are map[string]any, arrays []any
// and numbers float64. A Context is never modified after it is built;
// augmentation always returns a copy.
type Context map[string]any

// MatchedItem is a per-element augmentation produced when a condition matches
// against an array field. The item returned by EmptyItem stands
// for a match that did not involve array expansion.
type MatchedItem struct {
	// Array is the path of the expanded array, e.g. "medicalDisclosures".
	Array string `json:"array,omitempty"`
	// Index is the element position, -1 for an empty augmentation.
	Index int `json:"index"`
	// Element is the element that satisfied the condition.
	Element any `json:"element,omitempty"`
}

// EmptyItem returns the augmentation of a match without array expansion.
func EmptyItem() MatchedItem {
	return MatchedItem{Index: -1}
}

// IsEmpty reports whether the item binds no array element.
func (m MatchedItem) IsEmpty() bool {
	return m.Index < 0
}

// Key identifies the element by array path and index, used for de-duplication.
func (m MatchedItem) Key() string {
	if m.IsEmpty() {
		return ""
	}
	return m.Array + "#" + strconv.Itoa(m.Index)
}

// With returns a shallow copy of c with the item's element bound as
// matchedDisclosure. An empty item returns c unchanged.
func (c Context) With(item MatchedItem) Context {
	if item.IsEmpty() {
		return c
	}
	out := make(Context, len(c)+2)
	for k, v := range c {
		out[k] = v
	}
	out[KeyMatchedDisclosure] = item.Element
	out[KeyMatchedIndex] = float64(item.Index)
	return out
}

// Normalize converts an arbitrary value (typically a struct with json tags)
// into its JSON-shaped form so that path resolution and comparisons see the
// same types regardless of where the data came from.
func Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
