package vectordb

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Filter is an opaque predicate over record metadata.
//
// Adapters talking to a backend that understands the dialect below (such as
// Cloudflare Vectorize) forward the map verbatim. Adapters for other backends
// translate it with Conditions.
//
// Dialect: top-level keys are ANDed. A value is either a scalar, meaning
// equality, or an operator object:
//
//	vectordb.Filter{
//	    "user_id": "alice",                             // implicit $eq
//	    "score":   map[string]any{"$gte": 0.5},
//	    "tag":     map[string]any{"$in": []any{"x", "y"}},
//	}
//
// Dotted keys ("meta.lang") address nested payload fields.
type Filter map[string]any

// Operator is a comparison understood by the filter dialect.
type Operator string

const (
	OpEq  Operator = "$eq"
	OpNe  Operator = "$ne"
	OpIn  Operator = "$in"
	OpNin Operator = "$nin"
	OpGt  Operator = "$gt"
	OpGte Operator = "$gte"
	OpLt  Operator = "$lt"
	OpLte Operator = "$lte"
)

var knownOperators = map[Operator]struct{}{
	OpEq: {}, OpNe: {}, OpIn: {}, OpNin: {},
	OpGt: {}, OpGte: {}, OpLt: {}, OpLte: {},
}

// Condition is one field/operator/value triple of a normalized Filter.
type Condition struct {
	Field string
	Op    Operator
	Value any
}

// NumericRange defines bounds for numeric filtering.
// Used with Range for cleaner constructor calls.
type NumericRange struct {
	Gt  *float64 // GreaterThan (exclusive)
	Gte *float64 // GreaterThanOrEqualTo (inclusive)
	Lt  *float64 // LessThan (exclusive)
	Lte *float64 // LessThanOrEqualTo (inclusive)
}

// ── Constructors ─────────────────────────────────────────────────────────────

// Eq matches records whose field equals value.
func Eq(field string, value any) Filter {
	return Filter{field: map[string]any{string(OpEq): value}}
}

// Ne matches records whose field differs from value.
func Ne(field string, value any) Filter {
	return Filter{field: map[string]any{string(OpNe): value}}
}

// In matches records whose field is one of values (SQL: field IN (...)).
func In(field string, values ...any) Filter {
	return Filter{field: map[string]any{string(OpIn): values}}
}

// NotIn matches records whose field is none of values (SQL: field NOT IN (...)).
func NotIn(field string, values ...any) Filter {
	return Filter{field: map[string]any{string(OpNin): values}}
}

// Gt matches records whose field is greater than value.
func Gt(field string, value float64) Filter {
	return Filter{field: map[string]any{string(OpGt): value}}
}

// Gte matches records whose field is greater than or equal to value.
func Gte(field string, value float64) Filter {
	return Filter{field: map[string]any{string(OpGte): value}}
}

// Lt matches records whose field is less than value.
func Lt(field string, value float64) Filter {
	return Filter{field: map[string]any{string(OpLt): value}}
}

// Lte matches records whose field is less than or equal to value.
func Lte(field string, value float64) Filter {
	return Filter{field: map[string]any{string(OpLte): value}}
}

// Range builds a filter from the bounds set in r. Unset bounds are ignored;
// a range without any bound yields an empty filter.
//
// Example:
//
//	vectordb.Range("price", vectordb.NumericRange{Gte: ptr(10.0), Lt: ptr(100.0)})
func Range(field string, r NumericRange) Filter {
	ops := map[string]any{}
	if r.Gt != nil {
		ops[string(OpGt)] = *r.Gt
	}
	if r.Gte != nil {
		ops[string(OpGte)] = *r.Gte
	}
	if r.Lt != nil {
		ops[string(OpLt)] = *r.Lt
	}
	if r.Lte != nil {
		ops[string(OpLte)] = *r.Lte
	}
	if len(ops) == 0 {
		return Filter{}
	}
	return Filter{field: ops}
}

// And combines filters into one. Operator objects on the same field are
// merged; when two filters constrain the same field with the same operator,
// the later one wins.
func (f Filter) And(others ...Filter) Filter {
	out := Filter{}
	for _, src := range append([]Filter{f}, others...) {
		for field, value := range src {
			existing, ok := out[field]
			if !ok {
				out[field] = value
				continue
			}
			merged := operatorObject(existing)
			for op, v := range operatorObject(value) {
				merged[op] = v
			}
			out[field] = merged
		}
	}
	return out
}

// operatorObject returns a copy of v as an operator object, turning a scalar
// into {"$eq": v}.
func operatorObject(v any) map[string]any {
	if ops, ok := asObject(v); ok {
		cp := make(map[string]any, len(ops))
		for k, val := range ops {
			cp[k] = val
		}
		return cp
	}
	return map[string]any{string(OpEq): v}
}

// asObject reports whether v is a map keyed by strings, such as a nested
// Filter or map[string]float64, and returns it as map[string]any.
func asObject(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Filter:
		return m, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// Validate reports the first malformed entry of the filter.
func (f Filter) Validate() error {
	_, err := f.Conditions()
	return err
}

// Conditions flattens the filter into field/operator/value triples, sorted by
// field and operator so translations are deterministic.
func (f Filter) Conditions() ([]Condition, error) {
	conds := make([]Condition, 0, len(f))
	for field, value := range f {
		if field == "" {
			return nil, fmt.Errorf("%w: filter field name cannot be empty", ErrInvalidArgument)
		}

		ops, isObject := asObject(value)
		if !isObject {
			if !isScalar(value) {
				return nil, fmt.Errorf("%w: filter field %q: unsupported value type %T", ErrInvalidArgument, field, value)
			}
			conds = append(conds, Condition{Field: field, Op: OpEq, Value: value})
			continue
		}
		if len(ops) == 0 {
			return nil, fmt.Errorf("%w: filter field %q: empty operator object", ErrInvalidArgument, field)
		}

		for rawOp, operand := range ops {
			op := Operator(rawOp)
			if _, ok := knownOperators[op]; !ok {
				return nil, fmt.Errorf("%w: filter field %q: unsupported operator %q", ErrInvalidArgument, field, rawOp)
			}
			if err := checkOperand(field, op, operand); err != nil {
				return nil, err
			}
			if op == OpIn || op == OpNin {
				operand = toAnySlice(operand)
			}
			conds = append(conds, Condition{Field: field, Op: op, Value: operand})
		}
	}

	sort.Slice(conds, func(i, j int) bool {
		if conds[i].Field != conds[j].Field {
			return conds[i].Field < conds[j].Field
		}
		return conds[i].Op < conds[j].Op
	})
	return conds, nil
}

func checkOperand(field string, op Operator, operand any) error {
	switch op {
	case OpIn, OpNin:
		values := toAnySlice(operand)
		if values == nil {
			return fmt.Errorf("%w: filter field %q: %s expects a list, got %T", ErrInvalidArgument, field, op, operand)
		}
		for _, v := range values {
			if !isScalar(v) {
				return fmt.Errorf("%w: filter field %q: %s list holds unsupported value %T", ErrInvalidArgument, field, op, v)
			}
		}
	case OpGt, OpGte, OpLt, OpLte:
		if _, ok := AsFloat64(operand); !ok {
			if _, isString := operand.(string); !isString {
				return fmt.Errorf("%w: filter field %q: %s expects a number or string, got %T", ErrInvalidArgument, field, op, operand)
			}
		}
	default:
		if !isScalar(operand) {
			return fmt.Errorf("%w: filter field %q: %s expects a scalar, got %T", ErrInvalidArgument, field, op, operand)
		}
	}
	return nil
}

// isScalar reports whether v is a string, bool, number or nil.
func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, bool:
		return true
	}
	_, ok := AsFloat64(v)
	return ok
}

// toAnySlice converts any slice value to []any. It returns nil for non-slices.
func toAnySlice(v any) []any {
	if s, ok := v.([]any); ok {
		if s == nil {
			return []any{}
		}
		return s
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Slice {
		return nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// String renders the filter for logs.
func (f Filter) String() string {
	conds, err := f.Conditions()
	if err != nil {
		return fmt.Sprintf("invalid filter: %v", err)
	}
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = fmt.Sprintf("%s %s %v", c.Field, c.Op, c.Value)
	}
	return strings.Join(parts, " AND ")
}
