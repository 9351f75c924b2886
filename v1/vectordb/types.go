package vectordb

// Record is a single vector with its caller-assigned id and metadata.
// Adapters build records from the parallel slices passed to Store.Insert.
type Record struct {
	// ID is unique within an index
	ID string `json:"id"`

	// Values is the dense embedding; its length equals the index dimension
	Values []float32 `json:"values"`

	// Metadata is the payload stored alongside the vector, never nil
	Metadata map[string]any `json:"metadata"`
}

// SearchResult represents a single record returned by a backend, with its
// similarity score when it came from a search.
// This is backend-agnostic: payloads are converted to map[string]any.
type SearchResult struct {
	// ID is the unique identifier of the matched record
	ID string `json:"id"`

	// Score is the relevance score (higher = more relevant).
	// Zero for results of Get and List.
	Score float32 `json:"score"`

	// Payload contains the metadata stored with the vector
	Payload map[string]any `json:"payload"`

	// Vector is the stored embedding (only populated if the backend returns it)
	Vector []float32 `json:"vector,omitempty"`
}

// Collection contains metadata about a vector index.
type Collection struct {
	// Name is the unique identifier of the index
	Name string `json:"name"`

	// Dimension is the length of every vector in the index
	Dimension int `json:"dimension"`

	// Metric is the similarity metric (e.g., "cosine", "euclidean", "dot-product")
	Metric string `json:"metric"`

	// Count is the number of stored records, when the backend reports it
	Count uint64 `json:"count"`
}
