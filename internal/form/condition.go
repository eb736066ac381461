package form

import "fmt"

// Operator compares a field's current value against a condition literal.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpContains    Operator = "contains"
	OpIsEmpty     Operator = "is_empty"
	OpIsNotEmpty  Operator = "is_not_empty"
)

// Valid reports whether op is one of the known operators.
func (op Operator) Valid() bool {
	switch op {
	case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpContains, OpIsEmpty, OpIsNotEmpty:
		return true
	}
	return false
}

// Condition is a visibility predicate over another field's current value.
type Condition struct {
	FieldID  string   `json:"fieldId" yaml:"fieldId"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    string   `json:"value,omitempty" yaml:"value,omitempty"`
}

func (c *Condition) validate() error {
	if c.FieldID == "" {
		return fmt.Errorf("condition: fieldId is required")
	}
	if !c.Operator.Valid() {
		return fmt.Errorf("condition on %s: unknown operator %q", c.FieldID, c.Operator)
	}
	return nil
}
