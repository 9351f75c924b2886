package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Aleph-Alpha/vectorstore/v1/tracer"
	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
)

// payloadKey is the chromem metadata key holding the JSON-encoded payload.
// chromem metadata is map[string]string, so the payload travels as one value.
const payloadKey = "_payload"

const (
	userIDDocument = "user_id"
	userIDKey      = "user_id"

	dimensionDocument = "dimension"
	dimensionKey      = "dimension"
)

// Initialize creates the collection if it does not exist yet. A persisted
// collection holding vectors of another dimension is rejected with a
// *vectordb.DimensionError.
func (s *Store) Initialize(ctx context.Context) (err error) {
	ctx, span, start := s.begin(ctx, "initialize")
	defer func() { err = s.end(span, "initialize", "", start, err, 0) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.db.GetOrCreateCollection(s.cfg.Collection, nil, embeddingFunc)
	if err != nil {
		return fmt.Errorf("getting/creating collection %s: %w", s.cfg.Collection, err)
	}
	if err := s.checkDimension(ctx, col); err != nil {
		return err
	}
	s.collection = col

	if s.logger != nil {
		s.logger.Info("memory collection ready", nil, map[string]interface{}{
			"collection": s.cfg.Collection,
			"dimension":  s.cfg.Dimension,
			"count":      col.Count(),
			"persistent": s.cfg.PersistPath != "",
		})
	}
	return nil
}

// Insert stores the records, overwriting existing ids.
func (s *Store) Insert(ctx context.Context, vectors [][]float32, ids []string, payloads []map[string]any) (err error) {
	ctx, span, start := s.begin(ctx, "insert")
	defer func() { err = s.end(span, "insert", vectordb.BatchSubject(len(vectors)), start, err, int64(len(vectors))) }()

	records, err := vectordb.BuildRecords(s.cfg.Dimension, vectors, ids, payloads)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		encoded, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("%w: payload for %q is not JSON-encodable: %v", vectordb.ErrInvalidArgument, r.ID, err)
		}
		docs[i] = chromem.Document{
			ID:        r.ID,
			Metadata:  map[string]string{payloadKey: string(encoded)},
			Embedding: append([]float32(nil), r.Values...),
		}
	}

	col, err := s.coll()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Embeddings are already present, so one worker is enough.
	return col.AddDocuments(ctx, docs, 1)
}

// Search returns the records most similar to query.
func (s *Store) Search(ctx context.Context, query []float32, limit int, filter vectordb.Filter) (results []vectordb.SearchResult, err error) {
	ctx, span, start := s.begin(ctx, "search")
	defer func() { err = s.end(span, "search", "", start, err, int64(len(results))) }()

	if err := vectordb.ValidateQuery(s.cfg.Dimension, query, limit); err != nil {
		return nil, err
	}
	// chromem normalizes the query, which turns a zero vector into NaNs.
	if norm(query) == 0 {
		return nil, fmt.Errorf("%w: query vector has zero norm", vectordb.ErrInvalidArgument)
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("limit", limit), attribute.String("filter", filter.String()))

	col, err := s.coll()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// chromem only filters on exact string metadata, so filters are applied
	// after scoring every document.
	n := col.Count()
	if n == 0 {
		return []vectordb.SearchResult{}, nil
	}
	if len(filter) == 0 && limit < n {
		n = limit
	}

	matches, err := col.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", s.cfg.Collection, err)
	}

	results = make([]vectordb.SearchResult, 0, min(limit, len(matches)))
	for _, m := range matches {
		payload, err := decodePayload(m.ID, m.Metadata)
		if err != nil {
			return nil, err
		}
		ok, err := vectordb.Match(filter, payload)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		results = append(results, vectordb.SearchResult{
			ID:      m.ID,
			Score:   m.Similarity,
			Payload: payload,
			Vector:  m.Embedding,
		})
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// Get returns the record stored under id, or nil.
func (s *Store) Get(ctx context.Context, id string) (result *vectordb.SearchResult, err error) {
	ctx, span, start := s.begin(ctx, "get")
	defer func() {
		var size int64
		if result != nil {
			size = 1
		}
		err = s.end(span, "get", vectordb.IDSubject(id), start, err, size)
	}()

	if err := vectordb.ValidateID(id); err != nil {
		return nil, err
	}
	col, err := s.coll()
	if err != nil {
		return nil, err
	}

	doc, found := lookup(ctx, col, id)
	if !found {
		return nil, nil
	}
	payload, err := decodePayload(doc.ID, doc.Metadata)
	if err != nil {
		return nil, err
	}
	return &vectordb.SearchResult{ID: doc.ID, Payload: payload, Vector: doc.Embedding}, nil
}

// Update replaces the vector and/or payload of an existing record atomically.
func (s *Store) Update(ctx context.Context, id string, vector []float32, payload map[string]any) (err error) {
	ctx, span, start := s.begin(ctx, "update")
	defer func() { err = s.end(span, "update", vectordb.IDSubject(id), start, err, 1) }()

	if err := vectordb.ValidateID(id); err != nil {
		return err
	}
	if vector != nil {
		if err := vectordb.ValidateVector(s.cfg.Dimension, vector); err != nil {
			return err
		}
	}
	col, err := s.coll()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, found := lookup(ctx, col, id)
	if !found {
		return fmt.Errorf("%w: record %q", vectordb.ErrNotFound, id)
	}
	if vector != nil {
		doc.Embedding = append([]float32(nil), vector...)
	}
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("%w: payload is not JSON-encodable: %v", vectordb.ErrInvalidArgument, err)
		}
		doc.Metadata = map[string]string{payloadKey: string(encoded)}
	}
	return col.AddDocument(ctx, doc)
}

// Delete removes id. Missing ids are ignored.
func (s *Store) Delete(ctx context.Context, id string) (err error) {
	ctx, span, start := s.begin(ctx, "delete")
	defer func() { err = s.end(span, "delete", vectordb.IDSubject(id), start, err, 0) }()

	if err := vectordb.ValidateID(id); err != nil {
		return err
	}
	col, err := s.coll()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := lookup(ctx, col, id); !found {
		return nil
	}
	return col.Delete(ctx, nil, nil, id)
}

// DeleteCollection drops every record. Initialize recreates an empty collection.
func (s *Store) DeleteCollection(ctx context.Context) (err error) {
	_, span, start := s.begin(ctx, "delete_collection")
	defer func() { err = s.end(span, "delete_collection", "", start, err, 0) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection(s.cfg.Collection); err != nil {
		return fmt.Errorf("deleting collection %s: %w", s.cfg.Collection, err)
	}
	s.collection = nil

	if s.logger != nil {
		s.logger.Warn("memory collection deleted", nil, map[string]interface{}{"collection": s.cfg.Collection})
	}
	return nil
}

// List returns up to limit records matching filter, ordered by id, and the
// number of matching records.
func (s *Store) List(ctx context.Context, filter vectordb.Filter, limit int) (results []vectordb.SearchResult, total int, err error) {
	ctx, span, start := s.begin(ctx, "list")
	defer func() { err = s.end(span, "list", "", start, err, int64(len(results))) }()

	if err := vectordb.ValidateLimit(limit); err != nil {
		return nil, 0, err
	}
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}
	col, err := s.coll()
	if err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	all, err := s.scan(ctx, col)
	s.mu.RUnlock()
	if err != nil {
		return nil, 0, err
	}

	results = make([]vectordb.SearchResult, 0, min(limit, len(all)))
	for _, r := range all {
		ok, err := vectordb.Match(filter, r.Payload)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			continue
		}
		total++
		if len(results) < limit {
			results = append(results, r)
		}
	}
	return results, total, nil
}

// scan returns every document of col sorted by id. chromem has no listing
// API, so it queries with a probe vector for all documents.
func (s *Store) scan(ctx context.Context, col *chromem.Collection) ([]vectordb.SearchResult, error) {
	n := col.Count()
	if n == 0 {
		return nil, nil
	}
	docs, err := col.QueryEmbedding(ctx, probe(s.cfg.Dimension), n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("scanning collection %s: %w", s.cfg.Collection, err)
	}

	out := make([]vectordb.SearchResult, len(docs))
	for i, d := range docs {
		payload, err := decodePayload(d.ID, d.Metadata)
		if err != nil {
			return nil, err
		}
		out[i] = vectordb.SearchResult{ID: d.ID, Payload: payload, Vector: d.Embedding}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetUserID returns the stored user id, generating and persisting one on first use.
func (s *Store) GetUserID(ctx context.Context) (userID string, err error) {
	ctx, span, start := s.begin(ctx, "get_user_id")
	defer func() { err = s.end(span, "get_user_id", "", start, err, 0) }()

	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.migrations()
	if err != nil {
		return "", err
	}
	if doc, found := lookup(ctx, col, userIDDocument); found && doc.Metadata[userIDKey] != "" {
		s.userID = doc.Metadata[userIDKey]
		return s.userID, nil
	}

	if s.userID == "" {
		s.userID = uuid.NewString()
	}
	if err := storeUserID(ctx, col, s.userID); err != nil {
		return "", err
	}
	return s.userID, nil
}

// SetUserID persists userID.
func (s *Store) SetUserID(ctx context.Context, userID string) (err error) {
	ctx, span, start := s.begin(ctx, "set_user_id")
	defer func() { err = s.end(span, "set_user_id", "", start, err, 0) }()

	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id cannot be empty", vectordb.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	col, err := s.migrations()
	if err != nil {
		return err
	}
	if err := storeUserID(ctx, col, userID); err != nil {
		return err
	}
	s.userID = userID
	return nil
}

// Describe reports the collection's name, dimension, metric and size.
func (s *Store) Describe(ctx context.Context) (info *vectordb.Collection, err error) {
	_, span, start := s.begin(ctx, "describe")
	defer func() { err = s.end(span, "describe", "", start, err, 0) }()

	col, err := s.coll()
	if err != nil {
		return nil, err
	}
	return &vectordb.Collection{
		Name:      s.cfg.Collection,
		Dimension: s.cfg.Dimension,
		Metric:    "cosine",
		Count:     uint64(col.Count()),
	}, nil
}

// migrations returns the side collection holding store-level settings.
// Callers hold s.mu.
func (s *Store) migrations() (*chromem.Collection, error) {
	name := s.cfg.Collection + "_migrations"
	col, err := s.db.GetOrCreateCollection(name, nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", name, err)
	}
	return col, nil
}

// checkDimension compares the dimension recorded for a non-empty collection
// with the configured one and records the configured one when they agree.
// Collections written before the record existed are probed instead.
// Callers hold s.mu.
func (s *Store) checkDimension(ctx context.Context, col *chromem.Collection) error {
	meta, err := s.migrations()
	if err != nil {
		return err
	}
	if col.Count() > 0 {
		doc, found := lookup(ctx, meta, dimensionDocument)
		if stored, convErr := strconv.Atoi(doc.Metadata[dimensionKey]); found && convErr == nil {
			if stored != s.cfg.Dimension {
				return &vectordb.DimensionError{Expected: s.cfg.Dimension, Actual: stored, Index: -1}
			}
		} else if _, err := col.QueryEmbedding(ctx, probe(s.cfg.Dimension), 1, nil, nil); err != nil {
			return fmt.Errorf("%w: collection %s does not hold %d-dimensional vectors: %v",
				vectordb.ErrDimensionMismatch, s.cfg.Collection, s.cfg.Dimension, err)
		}
	}
	return meta.AddDocument(ctx, chromem.Document{
		ID:        dimensionDocument,
		Metadata:  map[string]string{dimensionKey: strconv.Itoa(s.cfg.Dimension)},
		Embedding: []float32{1},
	})
}

// probe returns a unit vector of length dim.
func probe(dim int) []float32 {
	v := make([]float32, dim)
	v[0] = 1
	return v
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func storeUserID(ctx context.Context, col *chromem.Collection, userID string) error {
	return col.AddDocument(ctx, chromem.Document{
		ID:        userIDDocument,
		Metadata:  map[string]string{userIDKey: userID},
		Embedding: []float32{1},
	})
}

// lookup fetches a document by id. chromem reports a missing id as an error,
// which is the only failure once the id is validated.
func lookup(ctx context.Context, col *chromem.Collection, id string) (chromem.Document, bool) {
	doc, err := col.GetByID(ctx, id)
	if err != nil {
		return chromem.Document{}, false
	}
	return doc, true
}

func decodePayload(id string, metadata map[string]string) (map[string]any, error) {
	payload := map[string]any{}
	raw, ok := metadata[payloadKey]
	if !ok || raw == "" {
		return payload, nil
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, vectordb.Malformed("payload of %q: %v", id, err)
	}
	return payload, nil
}

func (s *Store) begin(ctx context.Context, op string) (context.Context, trace.Span, time.Time) {
	ctx, span := spanTracer.Start(ctx, "memory."+op, trace.WithAttributes(
		attribute.String("db.system", "chromem"),
		attribute.String("db.collection.name", s.cfg.Collection),
	))
	return ctx, span, time.Now()
}

// end wraps err with the operation, records it on the span and notifies the observer.
func (s *Store) end(span trace.Span, op, subject string, start time.Time, err error, size int64) error {
	defer span.End()
	err = vectordb.WrapOp(component, op, subject, err)
	tracer.RecordError(span, err)
	s.observeOperation(op, subject, time.Since(start), err, size)
	return err
}
