// Package qdrant implements vectordb.Store on top of a single Qdrant collection,
// using the official gRPC client.
//
// The package integrates with the fx dependency injection framework and
// supports builder-style configuration.
//
// # Core Features
//
//   - Managed Qdrant client lifecycle with Fx integration
//   - Config struct supporting environment and YAML loading
//   - Automatic health checks on client initialization
//   - Batched upserts with configurable batch size
//   - Translation of the vectordb filter dialect into native Qdrant filters
//   - Payload indexes created on Initialize
//
// # Basic Usage
//
//	client, err := qdrant.NewClient(
//	    qdrant.FromEndpoint("localhost").WithCollection("documents", 1536),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	if err := client.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	err = client.Insert(ctx,
//	    [][]float32{embedding},
//	    []string{"doc_1"},
//	    []map[string]any{{"title": "My Document"}},
//	)
//
//	results, err := client.Search(ctx, queryVector, 5, vectordb.Eq("title", "My Document"))
//	for _, res := range results {
//	    fmt.Printf("ID=%s Score=%.4f\n", res.ID, res.Score)
//	}
//
// # Point IDs
//
// Qdrant only accepts unsigned integers and UUIDs as point ids. Caller ids are
// mapped to a deterministic UUIDv5, and the original id is stored in the
// payload under "_id". The field is removed from payloads returned to
// callers. Points written by other tools without "_id" are reported with
// their Qdrant id.
//
// # Filtering
//
// Filters use the vectordb dialect and are converted as follows:
//
//	scalar / $eq     → Must: match keyword, bool or integer (is_null for nil)
//	$ne              → MustNot: the same match
//	$in              → Must: match any of keywords or integers
//	$nin             → MustNot: match any
//	$gt $gte $lt $lte → Must: range, or datetime range for RFC 3339 strings
//
// Points lacking a field satisfy $ne and $nin, as in the dialect.
// Non-integral numbers in equality filters become a closed range. An empty
// $in list matches nothing and short-circuits without a request.
//
// Filtering works without payload indexes but scans the collection; declare
// the filtered fields in Config.PayloadIndexes for large collections:
//
//	cfg := qdrant.DefaultConfig().
//	    WithPayloadIndex("user_id", qdrant.IndexKeyword).
//	    WithPayloadIndex("created_at", qdrant.IndexDatetime)
//
// # User ID
//
// GetUserID and SetUserID keep the user id in a companion collection named
// "<collection>_migrations", created on first use.
//
// # FX Module Integration
//
// The package exposes an Fx module for automatic dependency injection:
//
//	app := fx.New(
//	    qdrant.FXModule,
//	    fx.Provide(func() *qdrant.Config { return qdrant.FromEndpoint("qdrant") }),
//	)
//	app.Run()
//
// # Configuration
//
// Qdrant can be configured via environment variables or YAML:
//
//	QDRANT_ENDPOINT=localhost
//	QDRANT_PORT=6334
//	QDRANT_API_KEY=your-api-key
//	QDRANT_COLLECTION=documents
//	QDRANT_DIMENSION=1536
//
// # Consistency
//
// Every write waits until Qdrant has applied it. Insert sends one request per
// Config.BatchSize points; a failing batch leaves earlier batches applied.
// Update with both a vector and a payload takes two requests. List counts and
// scrolls in two requests. Canceling a context after a request was sent does
// not undo it.
//
// # Thread Safety
//
// All exported methods on QdrantClient are safe for concurrent use by multiple goroutines.
//
// # Package Layout
//
//	qdrant/
//	├── client.go        // Qdrant client wrapper and lifecycle
//	├── operations.go    // vectordb.Store implementation
//	├── filters.go       // vectordb.Filter → Qdrant filter translation
//	├── converter.go     // payload and result conversion
//	├── utils.go         // error classification and tracing helpers
//	├── observer.go      // observability hook
//	├── configs.go       // Configuration struct
//	└── fx_module.go     // Fx dependency injection module
package qdrant
