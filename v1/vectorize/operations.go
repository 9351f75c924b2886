package vectorize

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Aleph-Alpha/vectorstore/v1/tracer"
	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
)

// Initialize makes sure the index exists with the configured dimension and
// creates the configured metadata indexes. Calling it again is harmless.
func (c *Client) Initialize(ctx context.Context) (err error) {
	ctx, span, start := c.begin(ctx, "initialize")
	defer func() { err = c.end(span, "initialize", "", start, err, 0) }()

	var info indexInfo
	err = c.do(ctx, call{method: http.MethodGet, url: c.indexURL()}, &info)
	switch {
	case err == nil:
		if info.Config.Dimensions != c.cfg.Dimension {
			return &vectordb.DimensionError{Expected: c.cfg.Dimension, Actual: info.Config.Dimensions, Index: -1}
		}
		if info.Config.Metric != "" && info.Config.Metric != c.cfg.Metric && c.logger != nil {
			c.logger.Warn("vectorize index uses a different metric than configured", nil, map[string]interface{}{
				"index":      c.cfg.IndexName,
				"configured": c.cfg.Metric,
				"actual":     info.Config.Metric,
			})
		}
	case statusCode(err) == http.StatusNotFound:
		if err := c.createIndex(ctx); err != nil {
			return err
		}
	default:
		return err
	}

	return c.createMetadataIndexes(ctx)
}

func (c *Client) createIndex(ctx context.Context) error {
	req := createIndexRequest{
		Name:   c.cfg.IndexName,
		Config: indexConfig{Dimensions: c.cfg.Dimension, Metric: c.cfg.Metric},
	}
	var created indexInfo
	err := c.postJSON(ctx, c.indexesURL, req, &created)
	if alreadyExists(err) {
		// Another process created it between our GET and POST.
		return nil
	}
	if err != nil {
		return err
	}
	if c.logger != nil {
		c.logger.Info("vectorize index created", nil, map[string]interface{}{
			"index":     c.cfg.IndexName,
			"dimension": c.cfg.Dimension,
			"metric":    c.cfg.Metric,
		})
	}
	return nil
}

func (c *Client) createMetadataIndexes(ctx context.Context) error {
	properties := make([]string, 0, len(c.cfg.MetadataIndexes))
	for p := range c.cfg.MetadataIndexes {
		properties = append(properties, p)
	}
	sort.Strings(properties)

	for _, p := range properties {
		req := metadataIndexRequest{PropertyName: p, IndexType: c.cfg.MetadataIndexes[p]}
		err := c.postJSON(ctx, c.indexURL("metadata_index", "create"), req, nil)
		if err != nil && !alreadyExists(err) {
			return fmt.Errorf("creating metadata index %q: %w", p, err)
		}
	}
	return nil
}

// Insert writes the records in one NDJSON request. With Config.Upsert unset,
// ids that already exist keep their stored vector and metadata.
func (c *Client) Insert(ctx context.Context, vectors [][]float32, ids []string, payloads []map[string]any) (err error) {
	ctx, span, start := c.begin(ctx, "insert")
	defer func() { err = c.end(span, "insert", vectordb.BatchSubject(len(vectors)), start, err, int64(len(vectors))) }()

	records, err := vectordb.BuildRecords(c.cfg.Dimension, vectors, ids, payloads)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	body, err := encodeNDJSON(records, c.cfg.Namespace)
	if err != nil {
		return err
	}

	endpoint := "insert"
	if c.cfg.Upsert {
		endpoint = "upsert"
	}
	span.SetAttributes(attribute.String("vectorize.endpoint", endpoint))

	var res mutationResult
	err = c.do(ctx, call{
		method:      http.MethodPost,
		url:         c.indexURL(endpoint),
		contentType: contentTypeNDJSON,
		body:        body,
	}, &res)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("vectorize.mutation_id", res.MutationID))
	return nil
}

// Search queries the index for the nearest neighbours of query. The filter
// is forwarded unchanged, so it must only reference indexed metadata.
func (c *Client) Search(ctx context.Context, query []float32, limit int, filter vectordb.Filter) (results []vectordb.SearchResult, err error) {
	ctx, span, start := c.begin(ctx, "search")
	defer func() { err = c.end(span, "search", "", start, err, int64(len(results))) }()

	if err := vectordb.ValidateQuery(c.cfg.Dimension, query, limit); err != nil {
		return nil, err
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("limit", limit))

	req := queryRequest{
		Vector:         query,
		TopK:           limit,
		ReturnMetadata: "all",
		ReturnValues:   c.cfg.ReturnValues,
		Namespace:      c.cfg.Namespace,
	}
	if len(filter) > 0 {
		req.Filter = filter
	}

	var res queryResult
	if err := c.postJSON(ctx, c.indexURL("query"), req, &res); err != nil {
		return nil, err
	}

	n := min(limit, len(res.Matches))
	results = make([]vectordb.SearchResult, 0, n)
	for i, m := range res.Matches[:n] {
		r, err := m.toResult(i)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

// Get fetches a single record. It returns nil when the id is unknown.
func (c *Client) Get(ctx context.Context, id string) (result *vectordb.SearchResult, err error) {
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

	var records []vectorRecord
	if err := c.postJSON(ctx, c.indexURL("get_by_ids"), idsRequest{IDs: []string{id}}, &records); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	for _, r := range records {
		if r.ID == id {
			found := r.toResult()
			return &found, nil
		}
	}
	return nil, vectordb.Malformed("get_by_ids returned %d records, none with the requested id", len(records))
}

// Delete removes id. Unknown ids are ignored by the API.
func (c *Client) Delete(ctx context.Context, id string) (err error) {
	ctx, span, start := c.begin(ctx, "delete")
	defer func() { err = c.end(span, "delete", vectordb.IDSubject(id), start, err, 0) }()

	if err := vectordb.ValidateID(id); err != nil {
		return err
	}
	var res mutationResult
	if err := c.postJSON(ctx, c.indexURL("delete_by_ids"), idsRequest{IDs: []string{id}}, &res); err != nil {
		return err
	}
	span.SetAttributes(attribute.String("vectorize.mutation_id", res.MutationID))
	return nil
}

// DeleteCollection deletes the whole index. A missing index is not an error.
func (c *Client) DeleteCollection(ctx context.Context) (err error) {
	ctx, span, start := c.begin(ctx, "delete_collection")
	defer func() { err = c.end(span, "delete_collection", "", start, err, 0) }()

	err = c.do(ctx, call{method: http.MethodDelete, url: c.indexURL()}, nil)
	if statusCode(err) == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if c.logger != nil {
		c.logger.Warn("vectorize index deleted", nil, map[string]interface{}{"index": c.cfg.IndexName})
	}
	return nil
}

// Update is not offered by Vectorize: there is no endpoint that changes a
// record atomically.
func (c *Client) Update(ctx context.Context, id string, _ []float32, _ map[string]any) error {
	return c.unsupported(ctx, "update", vectordb.IDSubject(id))
}

// List is not offered by Vectorize: the API cannot enumerate records by filter.
func (c *Client) List(ctx context.Context, _ vectordb.Filter, _ int) ([]vectordb.SearchResult, int, error) {
	return nil, 0, c.unsupported(ctx, "list", "")
}

// GetUserID is not offered: tenancy is expressed through Config.Namespace.
func (c *Client) GetUserID(ctx context.Context) (string, error) {
	return "", c.unsupported(ctx, "get_user_id", "")
}

// SetUserID is not offered: tenancy is expressed through Config.Namespace.
func (c *Client) SetUserID(ctx context.Context, _ string) error {
	return c.unsupported(ctx, "set_user_id", "")
}

// Describe reports the index configuration and its vector count.
func (c *Client) Describe(ctx context.Context) (info *vectordb.Collection, err error) {
	ctx, span, start := c.begin(ctx, "describe")
	defer func() { err = c.end(span, "describe", "", start, err, 0) }()

	var index indexInfo
	if err := c.do(ctx, call{method: http.MethodGet, url: c.indexURL()}, &index); err != nil {
		return nil, err
	}
	var stats indexStats
	if err := c.do(ctx, call{method: http.MethodGet, url: c.indexURL("info")}, &stats); err != nil {
		return nil, err
	}
	return &vectordb.Collection{
		Name:      index.Name,
		Dimension: index.Config.Dimensions,
		Metric:    index.Config.Metric,
		Count:     stats.VectorCount,
	}, nil
}

func (c *Client) unsupported(ctx context.Context, op, subject string) error {
	_, span, start := c.begin(ctx, op)
	return c.end(span, op, subject, start, vectordb.ErrNotImplemented, 0)
}

func (c *Client) begin(ctx context.Context, op string) (context.Context, trace.Span, time.Time) {
	ctx, span := spanTracer.Start(ctx, "vectorize."+op, trace.WithAttributes(
		attribute.String("db.system", "cloudflare_vectorize"),
		attribute.String("db.collection.name", c.cfg.IndexName),
	))
	return ctx, span, time.Now()
}

// end wraps err with the operation, records it on the span and notifies the observer.
func (c *Client) end(span trace.Span, op, subject string, start time.Time, err error, size int64) error {
	defer span.End()
	err = vectordb.WrapOp(component, op, subject, err)
	tracer.RecordError(span, err)
	c.observeOperation(op, subject, time.Since(start), err, size)
	return err
}
