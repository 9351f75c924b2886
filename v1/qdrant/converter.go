package qdrant

import (
	"encoding/json"
	"fmt"

	qdrant "github.com/qdrant/go-client/qdrant"

	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
)

// idKey is the payload field holding the caller's id. Qdrant point ids must
// be integers or UUIDs, so string ids are hashed and kept here.
const idKey = "_id"

// ── Payload Conversion ───────────────────────────────────────────────────────

// buildPayload converts a record's metadata into a Qdrant payload carrying
// the caller id. Values the SDK cannot encode directly (typed slices, nested
// typed maps, structs) are normalized through JSON first.
func buildPayload(id string, metadata map[string]any) (map[string]*qdrant.Value, error) {
	payload := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		payload[k] = v
	}
	payload[idKey] = id

	values, err := qdrant.TryValueMap(payload)
	if err == nil {
		return values, nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload for %q is not encodable: %v", vectordb.ErrInvalidArgument, id, err)
	}
	normalized := map[string]any{}
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, fmt.Errorf("%w: payload for %q is not encodable: %v", vectordb.ErrInvalidArgument, id, err)
	}
	values, err = qdrant.TryValueMap(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: payload for %q is not encodable: %v", vectordb.ErrInvalidArgument, id, err)
	}
	return values, nil
}

// convertPayload converts Qdrant's protobuf payload to a generic map,
// removing the stored caller id. It never returns nil.
func convertPayload(payload map[string]*qdrant.Value) map[string]any {
	result := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == idKey {
			continue
		}
		result[k] = extractValue(v)
	}
	return result
}

// extractValue recursively converts a Qdrant Value to a Go native type.
func extractValue(v *qdrant.Value) any {
	if v == nil {
		return nil
	}
	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_NullValue:
		return nil
	case *qdrant.Value_StructValue:
		if val.StructValue == nil {
			return nil
		}
		fields := make(map[string]any, len(val.StructValue.Fields))
		for k, f := range val.StructValue.Fields {
			fields[k] = extractValue(f)
		}
		return fields
	case *qdrant.Value_ListValue:
		if val.ListValue == nil {
			return nil
		}
		items := make([]any, len(val.ListValue.Values))
		for i, item := range val.ListValue.Values {
			items[i] = extractValue(item)
		}
		return items
	default:
		return nil
	}
}

// ── Result Conversion ────────────────────────────────────────────────────────

// recordID returns the caller id of a point: the stored _id when present,
// otherwise the point id itself (points written by other tools).
func recordID(id *qdrant.PointId, payload map[string]*qdrant.Value) (string, error) {
	if v, ok := payload[idKey]; ok {
		if s, ok := v.GetKind().(*qdrant.Value_StringValue); ok && s.StringValue != "" {
			return s.StringValue, nil
		}
	}
	return extractPointID(id)
}

// extractPointID extracts a string ID from Qdrant's PointId type.
func extractPointID(id *qdrant.PointId) (string, error) {
	if id == nil {
		return "", vectordb.Malformed("point without id")
	}
	switch v := id.PointIdOptions.(type) {
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", v.Num), nil
	case *qdrant.PointId_Uuid:
		return v.Uuid, nil
	default:
		return "", vectordb.Malformed("unexpected point id type %T", v)
	}
}

// extractVector returns the unnamed dense vector of a point, or nil.
func extractVector(v *qdrant.VectorsOutput) []float32 {
	out := v.GetVector()
	if out == nil {
		return nil
	}
	if dense := out.GetDense(); dense != nil {
		return dense.GetData()
	}
	return out.GetData() //nolint:staticcheck // servers before 1.13 only fill the deprecated field
}

// parseScoredPoints converts Query results to vectordb.SearchResult values.
func parseScoredPoints(points []*qdrant.ScoredPoint) ([]vectordb.SearchResult, error) {
	results := make([]vectordb.SearchResult, 0, len(points))
	for _, p := range points {
		id, err := recordID(p.GetId(), p.GetPayload())
		if err != nil {
			return nil, err
		}
		results = append(results, vectordb.SearchResult{
			ID:      id,
			Score:   p.GetScore(),
			Payload: convertPayload(p.GetPayload()),
			Vector:  extractVector(p.GetVectors()),
		})
	}
	return results, nil
}

// parseRetrievedPoints converts Get and Scroll results.
func parseRetrievedPoints(points []*qdrant.RetrievedPoint) ([]vectordb.SearchResult, error) {
	results := make([]vectordb.SearchResult, 0, len(points))
	for _, p := range points {
		id, err := recordID(p.GetId(), p.GetPayload())
		if err != nil {
			return nil, err
		}
		results = append(results, vectordb.SearchResult{
			ID:      id,
			Payload: convertPayload(p.GetPayload()),
			Vector:  extractVector(p.GetVectors()),
		})
	}
	return results, nil
}
