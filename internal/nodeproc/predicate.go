package nodeproc

import (
	"fmt"
	"strings"

	istate "github.com/siddhantprateek/reefline/internal/state"
)

// EvaluatePredicate implements the predicate AST of spec §9: a leaf is
// {var, op, value} with op in ==, !=, <, <=, >, >=, in, contains;
// {"and": [...]} / {"or": [...]} combine sub-predicates. A missing
// variable resolves to nil, which compares as falsy everywhere except
// explicit nil equality checks.
func EvaluatePredicate(bag istate.Bag, pred map[string]interface{}) (bool, error) {
	if subs, ok := pred["and"].([]interface{}); ok {
		for _, s := range subs {
			sub, ok := s.(map[string]interface{})
			if !ok {
				return false, fmt.Errorf("and clause element is not an object")
			}
			ok2, err := EvaluatePredicate(bag, sub)
			if err != nil {
				return false, err
			}
			if !ok2 {
				return false, nil
			}
		}
		return true, nil
	}

	if subs, ok := pred["or"].([]interface{}); ok {
		for _, s := range subs {
			sub, ok := s.(map[string]interface{})
			if !ok {
				return false, fmt.Errorf("or clause element is not an object")
			}
			ok2, err := EvaluatePredicate(bag, sub)
			if err != nil {
				return false, err
			}
			if ok2 {
				return true, nil
			}
		}
		return false, nil
	}

	varPath, _ := pred["var"].(string)
	op, _ := pred["op"].(string)
	expected := pred["value"]
	actual := istate.Get(bag, varPath)

	switch op {
	case "==":
		return compareEqual(actual, expected), nil
	case "!=":
		return !compareEqual(actual, expected), nil
	case "<":
		return compareOrdered(actual, expected, func(a, b float64) bool { return a < b })
	case "<=":
		return compareOrdered(actual, expected, func(a, b float64) bool { return a <= b })
	case ">":
		return compareOrdered(actual, expected, func(a, b float64) bool { return a > b })
	case ">=":
		return compareOrdered(actual, expected, func(a, b float64) bool { return a >= b })
	case "in":
		return containsValue(expected, actual), nil
	case "contains":
		return containsValue(actual, expected), nil
	default:
		return false, fmt.Errorf("unknown predicate op %q", op)
	}
}

func compareEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, aok := asComparableFloat(a); aok {
		if bf, bok := asComparableFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func compareOrdered(a, b interface{}, cmp func(a, b float64) bool) (bool, error) {
	af, aok := asComparableFloat(a)
	bf, bok := asComparableFloat(b)
	if !aok || !bok {
		return false, fmt.Errorf("non-numeric comparison operands")
	}
	return cmp(af, bf), nil
}

func asComparableFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

// containsValue reports whether needle is found in haystack, which may be
// a list ("in"/"contains" over a list) or a string (substring "contains").
func containsValue(haystack, needle interface{}) bool {
	switch h := haystack.(type) {
	case []interface{}:
		for _, item := range h {
			if compareEqual(item, needle) {
				return true
			}
		}
		return false
	case string:
		s, ok := needle.(string)
		if !ok {
			return false
		}
		return strings.Contains(h, s)
	default:
		return false
	}
}
