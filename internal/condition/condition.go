package condition

// Operator is a leaf comparison operator or a logical connective.
type Operator string

// Leaf operators.
const (
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpLess         Operator = "<"
	OpGreater      Operator = ">"
	OpLessEqual    Operator = "<="
	OpGreaterEqual Operator = ">="
	OpContains     Operator = "contains"
	OpIn           Operator = "in"
	OpMatches      Operator = "matches"
	OpExists       Operator = "exists"
	OpNotExists    Operator = "notExists"
)

// Logical connectives of compound conditions.
const (
	And Operator = "AND"
	Or  Operator = "OR"
)

// LeafOperators lists every supported leaf operator.
var LeafOperators = []Operator{
	OpEqual, OpNotEqual, OpLess, OpGreater, OpLessEqual, OpGreaterEqual,
	OpContains, OpIn, OpMatches, OpExists, OpNotExists,
}

// IsLeaf reports whether o is one of the leaf operators.
func (o Operator) IsLeaf() bool {
	for _, op := range LeafOperators {
		if o == op {
			return true
		}
	}
	return false
}

// IsLogical reports whether o is AND or OR.
func (o Operator) IsLogical() bool {
	return o == And || o == Or
}

// NeedsValue reports whether a leaf with operator o must carry a value.
func (o Operator) NeedsValue() bool {
	return o != OpExists && o != OpNotExists
}

// Kind discriminates the two shapes of a condition.
type Kind int

const (
	KindLeaf Kind = iota
	KindCompound
)

// Condition is a node of a condition tree. A leaf compares the value at Field
// with Value using Operator; a compound joins Conditions with AND or OR.
type Condition struct {
	Field      string      `json:"field,omitempty" yaml:"field,omitempty"`
	Operator   Operator    `json:"operator" yaml:"operator"`
	Value      any         `json:"value,omitempty" yaml:"value,omitempty"`
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// Kind returns KindCompound for AND/OR nodes and nodes carrying
// sub-conditions, KindLeaf otherwise.
func (c Condition) Kind() Kind {
	if c.Operator.IsLogical() || c.Conditions != nil {
		return KindCompound
	}
	return KindLeaf
}

// Leaf builds a leaf condition.
func Leaf(field string, op Operator, value any) Condition {
	return Condition{Field: field, Operator: op, Value: value}
}

// All builds an AND condition.
func All(conditions ...Condition) Condition {
	return Condition{Operator: And, Conditions: conditions}
}

// Any builds an OR condition.
func Any(conditions ...Condition) Condition {
	return Condition{Operator: Or, Conditions: conditions}
}
