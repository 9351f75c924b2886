package vectordb

import "fmt"

// Match evaluates filter against a record payload. It is used by adapters
// whose backend cannot evaluate the dialect itself.
//
// A nil or empty filter matches every payload. Missing fields only satisfy
// $ne and $nin.
func Match(filter Filter, payload map[string]any) (bool, error) {
	if len(filter) == 0 {
		return true, nil
	}
	conds, err := filter.Conditions()
	if err != nil {
		return false, err
	}
	for _, c := range conds {
		if !matchCondition(c, payload) {
			return false, nil
		}
	}
	return true, nil
}

func matchCondition(c Condition, payload map[string]any) bool {
	actual, present := lookupPath(payload, c.Field)

	switch c.Op {
	case OpEq:
		return present && valuesEqual(actual, c.Value)
	case OpNe:
		return !present || !valuesEqual(actual, c.Value)
	case OpIn:
		return present && containsValue(toAnySlice(c.Value), actual)
	case OpNin:
		return !present || !containsValue(toAnySlice(c.Value), actual)
	case OpGt, OpGte, OpLt, OpLte:
		if !present {
			return false
		}
		cmp, ok := compareValues(actual, c.Value)
		if !ok {
			return false
		}
		switch c.Op {
		case OpGt:
			return cmp > 0
		case OpGte:
			return cmp >= 0
		case OpLt:
			return cmp < 0
		default:
			return cmp <= 0
		}
	}
	return false
}

// valuesEqual compares scalars, treating all numeric types as float64.
func valuesEqual(a, b any) bool {
	if fa, ok := AsFloat64(a); ok {
		fb, ok := AsFloat64(b)
		return ok && fa == fb
	}
	return fmt.Sprintf("%T:%v", a, a) == fmt.Sprintf("%T:%v", b, b)
}

func containsValue(values []any, v any) bool {
	for _, candidate := range values {
		if valuesEqual(v, candidate) {
			return true
		}
	}
	return false
}

// compareValues orders two numbers or two strings. ok is false when the
// values are not comparable.
func compareValues(a, b any) (int, bool) {
	if fa, ok := AsFloat64(a); ok {
		fb, ok := AsFloat64(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}

	sa, okA := a.(string)
	sb, okB := b.(string)
	if !okA || !okB {
		return 0, false
	}
	switch {
	case sa < sb:
		return -1, true
	case sa > sb:
		return 1, true
	}
	return 0, true
}
