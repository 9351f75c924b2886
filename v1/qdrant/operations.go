package qdrant

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/protobuf/proto"

	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
)

const (
	userIDPoint = "user_id"
	userIDKey   = "user_id"
)

// Initialize ──────────────────────────────────────────────────────────────
// Initialize
// ──────────────────────────────────────────────────────────────
//
// Initialize creates the collection if it does not exist yet, verifies the
// vector size of an existing one and creates the configured payload indexes.
//
// A concurrent creation of the same collection by another process is
// tolerated.
func (c *QdrantClient) Initialize(ctx context.Context) (err error) {
	ctx, span, start := c.begin(ctx, "initialize")
	defer func() { err = c.end(span, "initialize", "", start, err, 0) }()

	distance := strings.ToLower(c.cfg.Distance)
	if err := c.ensureCollection(ctx, c.cfg.Collection, uint64(c.cfg.Dimension), distances[distance]); err != nil {
		return err
	}

	info, err := c.api.GetCollectionInfo(ctx, c.cfg.Collection)
	if err != nil {
		return remoteError(err)
	}
	size, actual := extractVectorDetails(info)
	if size != c.cfg.Dimension {
		return &vectordb.DimensionError{Expected: c.cfg.Dimension, Actual: size, Index: -1}
	}
	if actual != distance && c.logger != nil {
		c.logger.Warn("qdrant collection uses a different distance than configured", nil, map[string]interface{}{
			"collection": c.cfg.Collection,
			"configured": distance,
			"actual":     actual,
		})
	}

	return c.createPayloadIndexes(ctx)
}

// ensureCollection creates the named collection when it is missing.
func (c *QdrantClient) ensureCollection(ctx context.Context, name string, size uint64, distance qdrant.Distance) error {
	exists, err := c.api.CollectionExists(ctx, name)
	if err != nil {
		return remoteError(err)
	}
	if exists {
		return nil
	}

	err = c.api.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     size,
			Distance: distance,
		}),
	})
	if err != nil && !alreadyExists(err) {
		return remoteError(err)
	}

	if c.logger != nil {
		c.logger.Info("qdrant collection created", nil, map[string]interface{}{
			"collection": name,
			"size":       size,
			"distance":   distance.String(),
		})
	}
	return nil
}

// createPayloadIndexes creates the configured payload indexes in field order.
func (c *QdrantClient) createPayloadIndexes(ctx context.Context) error {
	fields := make([]string, 0, len(c.cfg.PayloadIndexes))
	for field := range c.cfg.PayloadIndexes {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		fieldType := fieldTypes[c.cfg.PayloadIndexes[field]]
		_, err := c.api.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: c.cfg.Collection,
			Wait:           proto.Bool(true),
			FieldName:      field,
			FieldType:      &fieldType,
		})
		if err != nil && !alreadyExists(err) {
			return fmt.Errorf("creating payload index %q: %w", field, remoteError(err))
		}
	}
	return nil
}

// Insert ──────────────────────────────────────────────────────────────
// Insert
// ──────────────────────────────────────────────────────────────
//
// Insert upserts the records in chunks of Config.BatchSize, waiting for each
// chunk to be applied. Existing ids are overwritten. Chunks are sent in
// order; when one fails, the earlier chunks stay applied.
func (c *QdrantClient) Insert(ctx context.Context, vectors [][]float32, ids []string, payloads []map[string]any) (err error) {
	ctx, span, start := c.begin(ctx, "insert")
	defer func() { err = c.end(span, "insert", vectordb.BatchSubject(len(vectors)), start, err, int64(len(vectors))) }()

	records, err := vectordb.BuildRecords(c.cfg.Dimension, vectors, ids, payloads)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		payload, err := buildPayload(r.ID, r.Metadata)
		if err != nil {
			return err
		}
		points[i] = &qdrant.PointStruct{
			Id:      pointID(r.ID),
			Vectors: qdrant.NewVectorsDense(r.Values),
			Payload: payload,
		}
	}

	for from := 0; from < len(points); from += c.cfg.BatchSize {
		to := min(from+c.cfg.BatchSize, len(points))
		if err := c.upsertBatch(ctx, c.cfg.Collection, points[from:to]); err != nil {
			return fmt.Errorf("points %d-%d: %w", from, to-1, err)
		}
	}
	return nil
}

// upsertBatch sends one Upsert request and waits until it is applied.
func (c *QdrantClient) upsertBatch(ctx context.Context, collection string, batch []*qdrant.PointStruct) error {
	_, err := c.api.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           proto.Bool(true),
		Points:         batch,
	})
	return remoteError(err)
}

// Search ──────────────────────────────────────────────────────────────
// Search
// ──────────────────────────────────────────────────────────────
//
// Search runs a nearest-neighbour query, optionally restricted by filter.
// Scores follow the collection's distance (cosine similarity by default).
func (c *QdrantClient) Search(ctx context.Context, query []float32, limit int, filter vectordb.Filter) (results []vectordb.SearchResult, err error) {
	ctx, span, start := c.begin(ctx, "search")
	defer func() { err = c.end(span, "search", "", start, err, int64(len(results))) }()

	if err := vectordb.ValidateQuery(c.cfg.Dimension, query, limit); err != nil {
		return nil, err
	}
	qf, empty, err := buildFilter(filter)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("limit", limit), attribute.String("filter", filter.String()))
	if empty {
		return []vectordb.SearchResult{}, nil
	}

	n := uint64(limit)
	resp, err := c.api.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.cfg.Collection,
		Query:          qdrant.NewQueryDense(query),
		Filter:         qf,
		Limit:          &n,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(c.cfg.ReturnVectors),
	})
	if err != nil {
		return nil, remoteError(err)
	}

	results, err = parseScoredPoints(resp)
	if err != nil {
		return nil, err
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Get returns the record stored under id, or nil.
func (c *QdrantClient) Get(ctx context.Context, id string) (result *vectordb.SearchResult, err error) {
	ctx, span, start := c.begin(ctx, "get")
	defer func() {
		var size int64
		if result != nil {
			size = 1
		}
		err = c.end(span, "get", vectordb.IDSubject(id), start, err, size)
	}()

	if err := vectordb.ValidateID(id); err != nil {
		return nil, err
	}

	points, err := c.retrieve(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, nil
	}
	results, err := parseRetrievedPoints(points[:1])
	if err != nil {
		return nil, err
	}
	if results[0].ID != id {
		return nil, vectordb.Malformed("point for %q carries id %q", id, results[0].ID)
	}
	return &results[0], nil
}

// retrieve fetches the point of id with or without its payload and vector.
func (c *QdrantClient) retrieve(ctx context.Context, id string, full bool) ([]*qdrant.RetrievedPoint, error) {
	points, err := c.api.Get(ctx, &qdrant.GetPoints{
		CollectionName: c.cfg.Collection,
		Ids:            []*qdrant.PointId{pointID(id)},
		WithPayload:    qdrant.NewWithPayload(full),
		WithVectors:    qdrant.NewWithVectors(full),
	})
	return points, remoteError(err)
}

// Update ──────────────────────────────────────────────────────────────
// Update
// ──────────────────────────────────────────────────────────────
//
// Update checks that id exists, then replaces its vector and/or payload.
// Replacing both takes two requests, so a concurrent reader may observe
// the new vector with the old payload.
func (c *QdrantClient) Update(ctx context.Context, id string, vector []float32, payload map[string]any) (err error) {
	ctx, span, start := c.begin(ctx, "update")
	defer func() { err = c.end(span, "update", vectordb.IDSubject(id), start, err, 1) }()

	if err := vectordb.ValidateID(id); err != nil {
		return err
	}
	if vector != nil {
		if err := vectordb.ValidateVector(c.cfg.Dimension, vector); err != nil {
			return err
		}
	}
	var values map[string]*qdrant.Value
	if payload != nil {
		if values, err = buildPayload(id, payload); err != nil {
			return err
		}
	}

	points, err := c.retrieve(ctx, id, false)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		return fmt.Errorf("%w: record %q", vectordb.ErrNotFound, id)
	}

	pid := pointID(id)
	if vector != nil {
		_, err := c.api.UpdateVectors(ctx, &qdrant.UpdatePointVectors{
			CollectionName: c.cfg.Collection,
			Wait:           proto.Bool(true),
			Points: []*qdrant.PointVectors{{
				Id:      pid,
				Vectors: qdrant.NewVectorsDense(vector),
			}},
		})
		if err != nil {
			return remoteError(err)
		}
	}
	if values != nil {
		_, err := c.api.OverwritePayload(ctx, &qdrant.SetPayloadPoints{
			CollectionName: c.cfg.Collection,
			Wait:           proto.Bool(true),
			Payload:        values,
			PointsSelector: qdrant.NewPointsSelector(pid),
		})
		if err != nil {
			return remoteError(err)
		}
	}
	return nil
}

// Delete removes the point of id. Qdrant ignores unknown ids.
func (c *QdrantClient) Delete(ctx context.Context, id string) (err error) {
	ctx, span, start := c.begin(ctx, "delete")
	defer func() { err = c.end(span, "delete", vectordb.IDSubject(id), start, err, 0) }()

	if err := vectordb.ValidateID(id); err != nil {
		return err
	}

	_, err = c.api.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: c.cfg.Collection,
		Wait:           proto.Bool(true),
		Points:         qdrant.NewPointsSelector(pointID(id)),
	})
	return remoteError(err)
}

// DeleteCollection drops the collection. A missing collection is not an error.
func (c *QdrantClient) DeleteCollection(ctx context.Context) (err error) {
	ctx, span, start := c.begin(ctx, "delete_collection")
	defer func() { err = c.end(span, "delete_collection", "", start, err, 0) }()

	exists, err := c.api.CollectionExists(ctx, c.cfg.Collection)
	if err != nil {
		return remoteError(err)
	}
	if !exists {
		return nil
	}
	if err := c.api.DeleteCollection(ctx, c.cfg.Collection); err != nil {
		return remoteError(err)
	}

	if c.logger != nil {
		c.logger.Warn("qdrant collection deleted", nil, map[string]interface{}{"collection": c.cfg.Collection})
	}
	return nil
}

// List ──────────────────────────────────────────────────────────────
// List
// ──────────────────────────────────────────────────────────────
//
// List scrolls through up to limit points matching filter, ordered by point
// id, and counts every match exactly. The count and the page come from two
// requests and may disagree under concurrent writes.
func (c *QdrantClient) List(ctx context.Context, filter vectordb.Filter, limit int) (results []vectordb.SearchResult, total int, err error) {
	ctx, span, start := c.begin(ctx, "list")
	defer func() { err = c.end(span, "list", "", start, err, int64(len(results))) }()

	if err := vectordb.ValidateLimit(limit); err != nil {
		return nil, 0, err
	}
	qf, empty, err := buildFilter(filter)
	if err != nil {
		return nil, 0, err
	}
	if empty {
		return []vectordb.SearchResult{}, 0, nil
	}

	count, err := c.api.Count(ctx, &qdrant.CountPoints{
		CollectionName: c.cfg.Collection,
		Filter:         qf,
		Exact:          proto.Bool(true),
	})
	if err != nil {
		return nil, 0, remoteError(err)
	}

	n := uint32(math.MaxUint32)
	if uint64(limit) < math.MaxUint32 {
		n = uint32(limit)
	}
	points, err := c.api.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: c.cfg.Collection,
		Filter:         qf,
		Limit:          &n,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, 0, remoteError(err)
	}

	results, err = parseRetrievedPoints(points)
	if err != nil {
		return nil, 0, err
	}
	return results, int(count), nil
}

// GetUserID ──────────────────────────────────────────────────────────────
// GetUserID
// ──────────────────────────────────────────────────────────────
//
// GetUserID reads the user id from the "<collection>_migrations" collection,
// creating and storing one (Config.UserID or a random UUID) on first use.
func (c *QdrantClient) GetUserID(ctx context.Context) (userID string, err error) {
	ctx, span, start := c.begin(ctx, "get_user_id")
	defer func() { err = c.end(span, "get_user_id", "", start, err, 0) }()

	c.userMu.Lock()
	defer c.userMu.Unlock()

	name := c.migrationsCollection()
	if err := c.ensureCollection(ctx, name, 1, qdrant.Distance_Cosine); err != nil {
		return "", err
	}

	points, err := c.api.Get(ctx, &qdrant.GetPoints{
		CollectionName: name,
		Ids:            []*qdrant.PointId{pointID(userIDPoint)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return "", remoteError(err)
	}
	if len(points) > 0 {
		if stored := points[0].GetPayload()[userIDKey].GetStringValue(); stored != "" {
			return stored, nil
		}
	}

	userID = c.cfg.UserID
	if userID == "" {
		userID = uuid.NewString()
	}
	if err := c.storeUserID(ctx, name, userID); err != nil {
		return "", err
	}
	return userID, nil
}

// SetUserID stores userID in the "<collection>_migrations" collection.
func (c *QdrantClient) SetUserID(ctx context.Context, userID string) (err error) {
	ctx, span, start := c.begin(ctx, "set_user_id")
	defer func() { err = c.end(span, "set_user_id", "", start, err, 0) }()

	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id cannot be empty", vectordb.ErrInvalidArgument)
	}

	c.userMu.Lock()
	defer c.userMu.Unlock()

	name := c.migrationsCollection()
	if err := c.ensureCollection(ctx, name, 1, qdrant.Distance_Cosine); err != nil {
		return err
	}
	return c.storeUserID(ctx, name, userID)
}

func (c *QdrantClient) migrationsCollection() string {
	return c.cfg.Collection + "_migrations"
}

func (c *QdrantClient) storeUserID(ctx context.Context, collection, userID string) error {
	return c.upsertBatch(ctx, collection, []*qdrant.PointStruct{{
		Id:      pointID(userIDPoint),
		Vectors: qdrant.NewVectorsDense([]float32{1}),
		Payload: map[string]*qdrant.Value{userIDKey: qdrant.NewValueString(userID)},
	}})
}

// Describe ──────────────────────────────────────────────────────────────
// Describe
// ──────────────────────────────────────────────────────────────
//
// Describe retrieves collection metadata from Qdrant and maps it onto
// vectordb.Collection, hiding the SDK's CollectionInfo.
//
// Example:
//
//	info, err := client.Describe(ctx)
//	if err != nil {
//	    return err
//	}
//	log.Printf("collection %s: %d points of size %d (%s)", info.Name, info.Count, info.Dimension, info.Metric)
func (c *QdrantClient) Describe(ctx context.Context) (info *vectordb.Collection, err error) {
	ctx, span, start := c.begin(ctx, "describe")
	defer func() { err = c.end(span, "describe", "", start, err, 0) }()

	raw, err := c.api.GetCollectionInfo(ctx, c.cfg.Collection)
	if err != nil {
		return nil, remoteError(err)
	}
	size, distance := extractVectorDetails(raw)
	return &vectordb.Collection{
		Name:      c.cfg.Collection,
		Dimension: size,
		Metric:    distance,
		Count:     derefUint64(raw.PointsCount),
	}, nil
}
