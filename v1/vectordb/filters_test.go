package vectordb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   Filter
	}{
		{"eq", Eq("city", "London"), Filter{"city": map[string]any{"$eq": "London"}}},
		{"ne", Ne("city", "Paris"), Filter{"city": map[string]any{"$ne": "Paris"}}},
		{"in", In("tag", "a", "b"), Filter{"tag": map[string]any{"$in": []any{"a", "b"}}}},
		{"nin", NotIn("tag", 1, 2), Filter{"tag": map[string]any{"$nin": []any{1, 2}}}},
		{"gt", Gt("n", 1), Filter{"n": map[string]any{"$gt": 1.0}}},
		{"gte", Gte("n", 1), Filter{"n": map[string]any{"$gte": 1.0}}},
		{"lt", Lt("n", 1), Filter{"n": map[string]any{"$lt": 1.0}}},
		{"lte", Lte("n", 1), Filter{"n": map[string]any{"$lte": 1.0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter)
		})
	}
}

func TestRange(t *testing.T) {
	f := Range("price", NumericRange{Gte: ptr(10), Lt: ptr(100)})
	assert.Equal(t, Filter{"price": map[string]any{"$gte": 10.0, "$lt": 100.0}}, f)

	assert.Empty(t, Range("price", NumericRange{}))
}

func TestAndMergesSameField(t *testing.T) {
	f := Gte("price", 10).And(Lt("price", 100), Filter{"city": "London"})

	assert.Equal(t, Filter{
		"price": map[string]any{"$gte": 10.0, "$lt": 100.0},
		"city":  "London",
	}, f)
}

func TestAndTurnsScalarIntoEq(t *testing.T) {
	f := Filter{"city": "London"}.And(Ne("city", "Paris"))

	assert.Equal(t, Filter{"city": map[string]any{"$eq": "London", "$ne": "Paris"}}, f)
}

func TestAndDoesNotMutateInputs(t *testing.T) {
	base := Gte("price", 10)
	_ = base.And(Lt("price", 100))

	assert.Equal(t, Gte("price", 10), base)
}

func TestConditionsSorted(t *testing.T) {
	f := Filter{
		"b": map[string]any{"$lt": 3, "$gt": 1},
		"a": "x",
	}

	conds, err := f.Conditions()
	require.NoError(t, err)
	assert.Equal(t, []Condition{
		{Field: "a", Op: OpEq, Value: "x"},
		{Field: "b", Op: OpGt, Value: 1},
		{Field: "b", Op: OpLt, Value: 3},
	}, conds)
}

func TestConditionsNormalizesLists(t *testing.T) {
	conds, err := Filter{"tag": map[string]any{"$in": []string{"a", "b"}}}.Conditions()
	require.NoError(t, err)
	require.Len(t, conds, 1)
	assert.Equal(t, []any{"a", "b"}, conds[0].Value)
}

func TestConditionsAcceptsTypedOperatorObjects(t *testing.T) {
	f := Filter{
		"tag":   Filter{"$eq": "x"},
		"score": map[string]float64{"$gte": 0.5},
		"lang":  map[string][]string{"$in": {"de", "en"}},
	}

	conds, err := f.Conditions()
	require.NoError(t, err)
	assert.Equal(t, []Condition{
		{Field: "lang", Op: OpIn, Value: []any{"de", "en"}},
		{Field: "score", Op: OpGte, Value: 0.5},
		{Field: "tag", Op: OpEq, Value: "x"},
	}, conds)
}

func TestAndMergesTypedOperatorObjects(t *testing.T) {
	f := Filter{"score": map[string]float64{"$gte": 0.5}}.And(Lt("score", 1))

	assert.Equal(t, Filter{"score": map[string]any{"$gte": 0.5, "$lt": 1.0}}, f)
}

func TestValidateRejectsMalformedFilters(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
	}{
		{"unknown operator", Filter{"a": map[string]any{"$regex": "x"}}},
		{"empty operator object", Filter{"a": map[string]any{}}},
		{"empty field", Filter{"": "x"}},
		{"in without list", Filter{"a": map[string]any{"$in": "x"}}},
		{"range on bool", Filter{"a": map[string]any{"$gt": true}}},
		{"nested object value", Filter{"a": []any{"x"}}},
		{"eq with list", Filter{"a": map[string]any{"$eq": []any{"x"}}}},
		{"unknown operator in typed object", Filter{"a": map[string]int{"$regex": 1}}},
		{"non-string keyed map", Filter{"a": map[int]any{1: "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filter.Validate()
			require.Error(t, err)
			assert.True(t, IsInvalidArgumentError(err))
		})
	}
}

func TestValidateAcceptsNilFilter(t *testing.T) {
	var f Filter
	assert.NoError(t, f.Validate())
}

func TestFilterString(t *testing.T) {
	f := Eq("city", "London").And(Gte("n", 2))
	assert.Equal(t, "city $eq London AND n $gte 2", f.String())
}
