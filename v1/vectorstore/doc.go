// Package vectorstore builds a vectordb.Store for the backend named in
// configuration, so callers can switch between Cloudflare Vectorize, Qdrant,
// pgvector and the in-process store without code changes.
//
// # Basic Usage
//
//	cfg, err := vectorstore.LoadConfig("config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store, err := vectorstore.New(cfg, vectorstore.WithLogger(log))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	if err := store.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Configuration
//
// The YAML file has one section per adapter; only the one named by provider
// is read:
//
//	provider: vectorize
//	vectorize:
//	  account_id: 0123abcd
//	  index_name: memories
//	  dimension: 768
//	  metric: cosine
//
// Every key can be overridden from the environment, for example
// VECTORSTORE_PROVIDER=pgvector or VECTORSTORE_VECTORIZE_API_TOKEN=... .
package vectorstore
