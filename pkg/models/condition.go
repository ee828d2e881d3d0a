package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ConditionOperator is the comparison applied by a condition node.
type ConditionOperator string

const (
	OperatorEquals      ConditionOperator = "equals"
	OperatorNotEquals   ConditionOperator = "not_equals"
	OperatorContains    ConditionOperator = "contains"
	OperatorIsEmpty     ConditionOperator = "is_empty"
	OperatorIsNotEmpty  ConditionOperator = "is_not_empty"
	OperatorGreaterThan ConditionOperator = "greater_than"
	OperatorLessThan    ConditionOperator = "less_than"
)

func (op ConditionOperator) IsValid() bool {
	switch op {
	case OperatorEquals, OperatorNotEquals, OperatorContains,
		OperatorIsEmpty, OperatorIsNotEmpty,
		OperatorGreaterThan, OperatorLessThan:
		return true
	default:
		return false
	}
}

var (
	ErrFieldMissing   = errors.New("field not present on subject")
	ErrNotComparable  = errors.New("value cannot be coerced to a number")
	ErrBadOperator    = errors.New("unsupported condition operator")
	ErrNotContainable = errors.New("contains requires a string or string list field")
)

// Evaluate compares the subject's live field value per the condition config.
// A missing field counts as empty for the emptiness operators and is a hard
// evaluation error for every other operator; the caller fails the run on error
// rather than retrying, since re-evaluation is deterministic.
func (c *ConditionConfig) Evaluate(subject *Subject) (bool, error) {
	value, present := subject.Field(c.Field)

	switch c.Operator {
	case OperatorIsEmpty:
		return !present || isEmptyValue(value), nil
	case OperatorIsNotEmpty:
		return present && !isEmptyValue(value), nil
	}

	if !present {
		return false, fmt.Errorf("%w: %q", ErrFieldMissing, c.Field)
	}

	switch c.Operator {
	case OperatorEquals:
		return looseEquals(value, c.Value), nil
	case OperatorNotEquals:
		return !looseEquals(value, c.Value), nil
	case OperatorContains:
		return containsValue(value, c.Value)
	case OperatorGreaterThan, OperatorLessThan:
		left, err := coerceNumber(value)
		if err != nil {
			return false, fmt.Errorf("field %q: %w", c.Field, err)
		}

		right, err := coerceNumber(c.Value)
		if err != nil {
			return false, fmt.Errorf("condition value: %w", err)
		}

		if c.Operator == OperatorGreaterThan {
			return left > right, nil
		}

		return left < right, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrBadOperator, c.Operator)
	}
}

// looseEquals compares numerically when both sides are numeric, otherwise by
// exact string form.
func looseEquals(a, b any) bool {
	na, errA := coerceNumber(a)
	nb, errB := coerceNumber(b)

	if errA == nil && errB == nil {
		return na == nb
	}

	return fmt.Sprint(a) == fmt.Sprint(b)
}

// containsValue is a case-insensitive substring match for strings; for string
// lists (e.g. the tag set) it is case-insensitive membership.
func containsValue(haystack, needle any) (bool, error) {
	want := strings.ToLower(fmt.Sprint(needle))

	switch v := haystack.(type) {
	case string:
		return strings.Contains(strings.ToLower(v), want), nil
	case []string:
		for _, item := range v {
			if strings.ToLower(item) == want {
				return true, nil
			}
		}

		return false, nil
	case []any:
		for _, item := range v {
			if strings.ToLower(fmt.Sprint(item)) == want {
				return true, nil
			}
		}

		return false, nil
	default:
		return false, fmt.Errorf("%w, got %T", ErrNotContainable, haystack)
	}
}

func coerceNumber(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotComparable, v)
		}

		return parsed, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrNotComparable, value)
	}
}

func isEmptyValue(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []string:
		return len(v) == 0
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}
