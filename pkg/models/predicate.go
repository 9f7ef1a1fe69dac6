package models

import (
	"fmt"
	"strconv"
	"strings"
)

// PredicateOperator is a comparison applied to one subscriber attribute.
type PredicateOperator string

const (
	OperatorEquals      PredicateOperator = "equals"
	OperatorNotEquals   PredicateOperator = "not_equals"
	OperatorContains    PredicateOperator = "contains"
	OperatorGreaterThan PredicateOperator = "greater_than"
	OperatorLessThan    PredicateOperator = "less_than"
)

// Predicate compares a subscriber attribute against a literal value.
// Evaluation is a pure function of the supplied attributes, so a crashed
// worker can safely re-evaluate it on retry.
type Predicate struct {
	Field    string            `json:"field"`
	Operator PredicateOperator `json:"operator"`
	Value    string            `json:"value"`
}

// Validate checks field and operator.
func (p Predicate) Validate() error {
	if p.Field == "" {
		return fmt.Errorf("predicate requires a field")
	}

	switch p.Operator {
	case OperatorEquals, OperatorNotEquals, OperatorContains, OperatorGreaterThan, OperatorLessThan:
		return nil
	default:
		return fmt.Errorf("unknown predicate operator %q", p.Operator)
	}
}

// Evaluate applies the predicate to the subscriber attributes. A missing
// attribute evaluates as the empty string.
func (p Predicate) Evaluate(attributes map[string]any) (bool, error) {
	raw, ok := attributes[p.Field]
	if !ok {
		raw = ""
	}

	value := fmt.Sprintf("%v", raw)

	switch p.Operator {
	case OperatorEquals:
		return value == p.Value, nil
	case OperatorNotEquals:
		return value != p.Value, nil
	case OperatorContains:
		return strings.Contains(value, p.Value), nil
	case OperatorGreaterThan, OperatorLessThan:
		left, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return false, fmt.Errorf("attribute %q is not numeric: %w", p.Field, err)
		}

		right, err := strconv.ParseFloat(p.Value, 64)
		if err != nil {
			return false, fmt.Errorf("predicate value %q is not numeric: %w", p.Value, err)
		}

		if p.Operator == OperatorGreaterThan {
			return left > right, nil
		}

		return left < right, nil
	default:
		return false, fmt.Errorf("unknown predicate operator %q", p.Operator)
	}
}
