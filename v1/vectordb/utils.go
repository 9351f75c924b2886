package vectordb

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
)

// BuildRecords validates the parallel slices passed to Store.Insert and
// pairs them into records. It never touches the network, so adapters call it
// before issuing any backend request.
//
// Rules:
//   - vectors, ids and payloads must have the same length (ErrArityMismatch)
//   - every vector must have exactly dimension values (ErrDimensionMismatch)
//   - ids must be non-empty (ErrInvalidArgument)
//   - a nil payload becomes empty metadata
//
// A dimension of zero or less disables the length check.
func BuildRecords(dimension int, vectors [][]float32, ids []string, payloads []map[string]any) ([]Record, error) {
	if len(vectors) != len(ids) || len(vectors) != len(payloads) {
		return nil, &ArityError{Vectors: len(vectors), IDs: len(ids), Payloads: len(payloads)}
	}

	records := make([]Record, len(vectors))
	for i, vec := range vectors {
		if dimension > 0 && len(vec) != dimension {
			return nil, &DimensionError{Expected: dimension, Actual: len(vec), Index: i}
		}
		if ids[i] == "" {
			return nil, fmt.Errorf("%w: empty id at position %d", ErrInvalidArgument, i)
		}

		metadata := map[string]any{}
		if payloads[i] != nil {
			metadata = maps.Clone(payloads[i])
		}
		records[i] = Record{ID: ids[i], Values: vec, Metadata: metadata}
	}
	return records, nil
}

// ValidateQuery checks a search vector and limit before a search is issued.
func ValidateQuery(dimension int, query []float32, limit int) error {
	if dimension > 0 && len(query) != dimension {
		return &DimensionError{Expected: dimension, Actual: len(query), Index: -1}
	}
	if len(query) == 0 {
		return fmt.Errorf("%w: query vector cannot be empty", ErrInvalidArgument)
	}
	if limit <= 0 {
		return fmt.Errorf("%w: limit must be greater than 0, got %d", ErrInvalidArgument, limit)
	}
	return nil
}

// ValidateVector checks the length of a single vector, as used by Update.
func ValidateVector(dimension int, vector []float32) error {
	if dimension > 0 && len(vector) != dimension {
		return &DimensionError{Expected: dimension, Actual: len(vector), Index: -1}
	}
	return nil
}

// ValidateID rejects empty record ids.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id cannot be empty", ErrInvalidArgument)
	}
	return nil
}

// ValidateLimit rejects non-positive limits.
func ValidateLimit(limit int) error {
	if limit <= 0 {
		return fmt.Errorf("%w: limit must be greater than 0, got %d", ErrInvalidArgument, limit)
	}
	return nil
}

// lookupPath resolves a dotted field name ("a.b.c") inside a payload.
// A key that literally contains dots wins over nested traversal.
func lookupPath(payload map[string]any, field string) (any, bool) {
	if v, ok := payload[field]; ok {
		return v, true
	}

	head, rest, found := strings.Cut(field, ".")
	if !found {
		return nil, false
	}
	nested, ok := payload[head].(map[string]any)
	if !ok {
		return nil, false
	}
	return lookupPath(nested, rest)
}

// AsFloat64 converts JSON and Go numeric values to float64.
func AsFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
