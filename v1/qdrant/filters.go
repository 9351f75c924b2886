package qdrant

import (
	"fmt"
	"math"
	"time"

	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
)

// buildFilter converts a vectordb.Filter into a Qdrant filter.
//
// Equality, $in and ranges become Must conditions; $ne and $nin become
// MustNot conditions, so points missing the field satisfy them, as in the
// dialect. empty is true when the filter can never match (an empty $in list),
// in which case no request needs to be sent.
func buildFilter(f vectordb.Filter) (filter *qdrant.Filter, empty bool, err error) {
	conds, err := f.Conditions()
	if err != nil {
		return nil, false, err
	}
	if len(conds) == 0 {
		return nil, false, nil
	}

	filter = &qdrant.Filter{}
	for _, c := range conds {
		switch c.Op {
		case vectordb.OpEq:
			cond, err := matchCondition(c.Field, c.Value)
			if err != nil {
				return nil, false, err
			}
			filter.Must = append(filter.Must, cond)

		case vectordb.OpNe:
			cond, err := matchCondition(c.Field, c.Value)
			if err != nil {
				return nil, false, err
			}
			filter.MustNot = append(filter.MustNot, cond)

		case vectordb.OpIn:
			values := c.Value.([]any)
			if len(values) == 0 {
				return nil, true, nil
			}
			cond, err := matchAnyCondition(c.Field, values)
			if err != nil {
				return nil, false, err
			}
			filter.Must = append(filter.Must, cond)

		case vectordb.OpNin:
			values := c.Value.([]any)
			if len(values) == 0 {
				continue
			}
			cond, err := matchAnyCondition(c.Field, values)
			if err != nil {
				return nil, false, err
			}
			filter.MustNot = append(filter.MustNot, cond)

		case vectordb.OpGt, vectordb.OpGte, vectordb.OpLt, vectordb.OpLte:
			cond, err := rangeCondition(c.Field, c.Op, c.Value)
			if err != nil {
				return nil, false, err
			}
			filter.Must = append(filter.Must, cond)
		}
	}

	if len(filter.Must) == 0 && len(filter.MustNot) == 0 {
		return nil, false, nil
	}
	return filter, false, nil
}

// matchCondition builds an exact match on a scalar.
// Non-integral numbers have no exact match in Qdrant and become a closed range.
func matchCondition(key string, value any) (*qdrant.Condition, error) {
	switch v := value.(type) {
	case nil:
		return qdrant.NewIsNull(key), nil
	case string:
		return qdrant.NewMatch(key, v), nil
	case bool:
		return qdrant.NewMatchBool(key, v), nil
	}

	n, ok := vectordb.AsFloat64(value)
	if !ok {
		return nil, fmt.Errorf("%w: filter field %q: unsupported value %T", vectordb.ErrInvalidArgument, key, value)
	}
	if i, integral := asInt64(n); integral {
		return qdrant.NewMatchInt(key, i), nil
	}
	return qdrant.NewRange(key, &qdrant.Range{Gte: &n, Lte: &n}), nil
}

// matchAnyCondition builds an IN condition. Homogeneous string or integer
// lists map onto a single keywords/ints match; mixed lists become a nested
// Should filter of exact matches.
func matchAnyCondition(key string, values []any) (*qdrant.Condition, error) {
	if strs, ok := allStrings(values); ok {
		return qdrant.NewMatchKeywords(key, strs...), nil
	}
	if ints, ok := allInts(values); ok {
		return qdrant.NewMatchInts(key, ints...), nil
	}

	should := make([]*qdrant.Condition, 0, len(values))
	for _, v := range values {
		cond, err := matchCondition(key, v)
		if err != nil {
			return nil, err
		}
		should = append(should, cond)
	}
	return qdrant.NewFilterAsCondition(&qdrant.Filter{Should: should}), nil
}

// rangeCondition builds a numeric range, or a datetime range when the bound
// is an RFC 3339 timestamp.
func rangeCondition(key string, op vectordb.Operator, bound any) (*qdrant.Condition, error) {
	if s, ok := bound.(string); ok {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("%w: filter field %q: %s bound %q is neither a number nor an RFC 3339 timestamp",
				vectordb.ErrInvalidArgument, key, op, s)
		}
		ts := timestamppb.New(t)
		r := &qdrant.DatetimeRange{}
		switch op {
		case vectordb.OpGt:
			r.Gt = ts
		case vectordb.OpGte:
			r.Gte = ts
		case vectordb.OpLt:
			r.Lt = ts
		default:
			r.Lte = ts
		}
		return qdrant.NewDatetimeRange(key, r), nil
	}

	n, ok := vectordb.AsFloat64(bound)
	if !ok {
		return nil, fmt.Errorf("%w: filter field %q: %s expects a number, got %T", vectordb.ErrInvalidArgument, key, op, bound)
	}
	r := &qdrant.Range{}
	switch op {
	case vectordb.OpGt:
		r.Gt = &n
	case vectordb.OpGte:
		r.Gte = &n
	case vectordb.OpLt:
		r.Lt = &n
	default:
		r.Lte = &n
	}
	return qdrant.NewRange(key, r), nil
}

func allStrings(values []any) ([]string, bool) {
	out := make([]string, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}

func allInts(values []any) ([]int64, bool) {
	out := make([]int64, len(values))
	for i, v := range values {
		n, ok := vectordb.AsFloat64(v)
		if !ok {
			return nil, false
		}
		if out[i], ok = asInt64(n); !ok {
			return nil, false
		}
	}
	return out, true
}

// asInt64 reports whether n is a whole number representable as int64.
func asInt64(n float64) (int64, bool) {
	if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
		return 0, false
	}
	return int64(n), true
}
