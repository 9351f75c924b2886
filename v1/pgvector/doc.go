// Package pgvector implements vectordb.Store on a PostgreSQL table using the
// pgvector extension.
//
// The store is built on GORM with the pgx driver and follows the same
// connection handling as a plain Postgres client: a pooled connection,
// periodic health checks and automatic reconnection.
//
// # Schema
//
// Initialize creates (if missing) one table per store:
//
//	CREATE TABLE "<table>" (
//	    id        text PRIMARY KEY,
//	    embedding vector(<dimension>) NOT NULL,
//	    payload   jsonb NOT NULL DEFAULT '{}'
//	)
//
// An HNSW index on the embedding column is created when Config.HNSWIndex is
// set. An existing table whose embedding column has another size makes
// Initialize fail with vectordb.ErrDimensionMismatch.
//
// # Basic Usage
//
//	cfg := pgvector.DefaultConfig()
//	cfg.Connection.User = "app"
//	cfg.Connection.Password = os.Getenv("PGPASSWORD")
//	cfg.Connection.DbName = "app"
//	cfg.Table = "memories"
//	cfg.Dimension = 768
//
//	store, err := pgvector.NewClient(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	if err := store.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	results, err := store.Search(ctx, query, 10, vectordb.Eq("user_id", "u-1"))
//
// # Filtering
//
// Filters are translated into parameterised predicates on the payload
// column; field names and values are never interpolated into SQL. Equality
// and membership compare JSON values, so 1 and 1.0 are equal but "1" and 1
// are not. Range operators compare numbers numerically and strings bytewise;
// a value of another type never satisfies a range.
//
// # Consistency
//
// Insert writes all records in one transaction and Update is a single
// statement. List reads the count and the page from one repeatable-read
// snapshot.
//
// # FX Module Integration
//
//	app := fx.New(
//	    logger.FXModule,
//	    pgvector.FXModule,
//	    fx.Provide(loadPGVectorConfig), // returns *pgvector.Config
//	)
//
// The lifecycle runs Initialize on start, monitors the connection every
// MonitorInterval and closes the pool on stop.
package pgvector
