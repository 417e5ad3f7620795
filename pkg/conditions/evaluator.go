// Package conditions evaluates assignment rule conditions against enquiries.
package conditions

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/models"
)

var (
	ErrUnknownField    = errors.New("unknown condition field")
	ErrUnknownOperator = errors.New("unknown condition operator")
	ErrInvalidValue    = errors.New("invalid condition value")
)

// MatchAll reports whether every condition holds. An empty list matches.
func MatchAll(e *models.Enquiry, conds []models.Condition) (bool, error) {
	for i, c := range conds {
		ok, err := Evaluate(e, c)
		if err != nil {
			return false, fmt.Errorf("condition %d: %w", i, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Evaluate tests a single condition against the enquiry.
func Evaluate(e *models.Enquiry, c models.Condition) (bool, error) {
	field, ok := Lookup(c.Field)
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownField, c.Field)
	}
	if !c.Operator.IsValid() {
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, c.Operator)
	}

	actual, present := field.Get(e)

	switch c.Operator {
	case models.OpEquals, models.OpNotEquals:
		want, err := coerce(field, c.Value)
		if err != nil {
			return false, err
		}
		eq := present && equal(field.Kind, actual, want)
		if c.Operator == models.OpEquals {
			return eq, nil
		}
		return !eq, nil

	case models.OpContains, models.OpNotContains:
		if field.Kind != KindString {
			return false, fmt.Errorf("%w: %s requires a text field, %q is %s", ErrInvalidValue, c.Operator, c.Field, field.Kind)
		}
		sub, ok := c.Value.(string)
		if !ok {
			return false, fmt.Errorf("%w: %s requires a string value", ErrInvalidValue, c.Operator)
		}
		has := present && strings.Contains(actual.(string), sub)
		if c.Operator == models.OpContains {
			return has, nil
		}
		return !has, nil

	case models.OpGreaterThan, models.OpLessThan:
		if field.Kind != KindNumber && field.Kind != KindTime {
			return false, fmt.Errorf("%w: %s requires a number or date field, %q is %s", ErrInvalidValue, c.Operator, c.Field, field.Kind)
		}
		want, err := coerce(field, c.Value)
		if err != nil {
			return false, err
		}
		if !present {
			return false, nil
		}
		cmp := compare(field.Kind, actual, want)
		if c.Operator == models.OpGreaterThan {
			return cmp > 0, nil
		}
		return cmp < 0, nil

	case models.OpIn, models.OpNotIn:
		list, err := asList(c.Value)
		if err != nil {
			return false, err
		}
		found := false
		if present {
			for _, item := range list {
				want, err := coerce(field, item)
				if err != nil {
					return false, err
				}
				if equal(field.Kind, actual, want) {
					found = true
					break
				}
			}
		}
		if c.Operator == models.OpIn {
			return found, nil
		}
		return !found, nil
	}

	return false, fmt.Errorf("%w: %q", ErrUnknownOperator, c.Operator)
}

// ValidateCondition checks a condition is well formed without an enquiry.
func ValidateCondition(c models.Condition) error {
	field, ok := Lookup(c.Field)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, c.Field)
	}
	// Evaluating against an empty enquiry exercises every type check.
	_, err := Evaluate(&models.Enquiry{}, c)
	if err != nil {
		return err
	}
	if c.Operator == models.OpIn || c.Operator == models.OpNotIn {
		list, _ := asList(c.Value)
		for _, item := range list {
			if _, err := coerce(field, item); err != nil {
				return err
			}
		}
	}
	return nil
}

func asList(v any) ([]any, error) {
	switch list := v.(type) {
	case []any:
		return list, nil
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: in/not_in requires an array value", ErrInvalidValue)
}

func coerce(field Field, v any) (any, error) {
	switch field.Kind {
	case KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindNumber:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case json.Number:
			f, err := n.Float64()
			if err == nil {
				return f, nil
			}
		}
	case KindTime:
		switch t := v.(type) {
		case time.Time:
			return t, nil
		case string:
			for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
				if parsed, err := time.Parse(layout, t); err == nil {
					return parsed, nil
				}
			}
		}
	case KindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: %v is not a %s for field %q", ErrInvalidValue, v, field.Kind, field.Name)
}

func equal(kind Kind, a, b any) bool {
	if kind == KindTime {
		return a.(time.Time).Equal(b.(time.Time))
	}
	return a == b
}

func compare(kind Kind, a, b any) int {
	switch kind {
	case KindNumber:
		x, y := a.(float64), b.(float64)
		switch {
		case x > y:
			return 1
		case x < y:
			return -1
		}
		return 0
	case KindTime:
		return a.(time.Time).Compare(b.(time.Time))
	}
	return 0
}
