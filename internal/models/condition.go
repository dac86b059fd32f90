package models

// Operator identifies a condition comparison kind.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorContains    Operator = "contains"
	OperatorNotContains Operator = "not_contains"
	OperatorStartsWith  Operator = "starts_with"
	OperatorEndsWith    Operator = "ends_with"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
	OperatorIn          Operator = "in"
	OperatorNotIn       Operator = "not_in"
	OperatorExists      Operator = "exists"
	OperatorNotExists   Operator = "not_exists"
	OperatorIsEmpty     Operator = "is_empty"
	OperatorIsNotEmpty  Operator = "is_not_empty"
)

// LogicalOperator joins a condition to the one that follows it.
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// Condition is a single field comparison against a resource payload.
// Field is a dotted path into the payload and may index arrays
// (e.g. "addresses[0].city"). Logical applies between this condition
// and the next one in the list; it is ignored on the last condition.
type Condition struct {
	Field    string          `json:"field" toml:"field" validate:"required"`
	Operator Operator        `json:"operator" toml:"operator" validate:"required"`
	Value    string          `json:"value" toml:"value"`
	Logical  LogicalOperator `json:"logical,omitempty" toml:"logical"`
}

// ValidOperators lists every supported comparison kind. Handlers use it
// to reject unknown operators at create/update time rather than letting
// them silently evaluate false in the engine.
var ValidOperators = map[Operator]bool{
	OperatorEquals:      true,
	OperatorNotEquals:   true,
	OperatorContains:    true,
	OperatorNotContains: true,
	OperatorStartsWith:  true,
	OperatorEndsWith:    true,
	OperatorGreaterThan: true,
	OperatorLessThan:    true,
	OperatorIn:          true,
	OperatorNotIn:       true,
	OperatorExists:      true,
	OperatorNotExists:   true,
	OperatorIsEmpty:     true,
	OperatorIsNotEmpty:  true,
}
