package vectorize

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
)

// envelope is the standard Cloudflare API response wrapper.
type envelope struct {
	Success  bool                     `json:"success"`
	Errors   []vectordb.RemoteMessage `json:"errors"`
	Messages []vectordb.RemoteMessage `json:"messages"`
	Result   json.RawMessage          `json:"result"`
}

// vectorRecord is one line of an NDJSON insert body and one element of a
// get_by_ids result.
type vectorRecord struct {
	ID        string         `json:"id"`
	Values    []float32      `json:"values"`
	Metadata  map[string]any `json:"metadata"`
	Namespace string         `json:"namespace,omitempty"`
}

type queryRequest struct {
	Vector         []float32       `json:"vector"`
	TopK           int             `json:"topK"`
	ReturnMetadata string          `json:"returnMetadata"`
	ReturnValues   bool            `json:"returnValues"`
	Filter         vectordb.Filter `json:"filter,omitempty"`
	Namespace      string          `json:"namespace,omitempty"`
}

type queryResult struct {
	Count   int          `json:"count"`
	Matches []queryMatch `json:"matches"`
}

type queryMatch struct {
	ID        string         `json:"id"`
	Score     float32        `json:"score"`
	Values    []float32      `json:"values"`
	Metadata  map[string]any `json:"metadata"`
	Namespace string         `json:"namespace"`
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

type mutationResult struct {
	MutationID string `json:"mutationId"`
}

type indexConfig struct {
	Dimensions int    `json:"dimensions"`
	Metric     string `json:"metric"`
}

type createIndexRequest struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Config      indexConfig `json:"config"`
}

type indexInfo struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Config      indexConfig `json:"config"`
	CreatedOn   string      `json:"created_on"`
	ModifiedOn  string      `json:"modified_on"`
}

type indexStats struct {
	Dimensions            int    `json:"dimensions"`
	VectorCount           uint64 `json:"vectorCount"`
	ProcessedUpToDatetime string `json:"processedUpToDatetime"`
	ProcessedUpToMutation string `json:"processedUpToMutation"`
}

type metadataIndexRequest struct {
	PropertyName string `json:"propertyName"`
	IndexType    string `json:"indexType"`
}

// encodeNDJSON renders records as newline-delimited JSON, one record per line.
func encodeNDJSON(records []vectordb.Record, namespace string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		line := vectorRecord{
			ID:        r.ID,
			Values:    r.Values,
			Metadata:  r.Metadata,
			Namespace: namespace,
		}
		// Encode appends the newline.
		if err := enc.Encode(line); err != nil {
			return nil, fmt.Errorf("%w: record %q is not JSON-encodable: %v", vectordb.ErrInvalidArgument, r.ID, err)
		}
	}
	return buf.Bytes(), nil
}

// toResult normalizes a match into a SearchResult.
func (m queryMatch) toResult(position int) (vectordb.SearchResult, error) {
	if m.ID == "" {
		return vectordb.SearchResult{}, vectordb.Malformed("match %d has no id", position)
	}
	payload := m.Metadata
	if payload == nil {
		payload = map[string]any{}
	}
	return vectordb.SearchResult{
		ID:      m.ID,
		Score:   m.Score,
		Payload: payload,
		Vector:  m.Values,
	}, nil
}

// toResult normalizes a fetched record into a SearchResult with no score.
func (r vectorRecord) toResult() vectordb.SearchResult {
	payload := r.Metadata
	if payload == nil {
		payload = map[string]any{}
	}
	return vectordb.SearchResult{
		ID:      r.ID,
		Payload: payload,
		Vector:  r.Values,
	}
}
