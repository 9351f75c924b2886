// Package vectorize implements vectordb.Store against the Cloudflare
// Vectorize v2 REST API.
//
// Every request goes to
//
//	{APIBaseURL}/accounts/{AccountID}/vectorize/v2/indexes/{IndexName}/...
//
// with a bearer token. Responses use the Cloudflare envelope
// ({success, errors, messages, result}); a failed envelope or a non-2xx
// status becomes a *vectordb.RemoteError that keeps the status code and the
// API's error messages.
//
// # Operation mapping
//
//	Initialize        GET /{index}, POST / when missing, POST /{index}/metadata_index/create
//	Insert            POST /{index}/insert (or /upsert), NDJSON body
//	Search            POST /{index}/query
//	Get               POST /{index}/get_by_ids
//	Delete            POST /{index}/delete_by_ids
//	DeleteCollection  DELETE /{index}
//	Describe          GET /{index} and GET /{index}/info
//
// Update, List, GetUserID and SetUserID fail with vectordb.ErrNotImplemented:
// the API has no atomic update or filtered enumeration, and tenancy is
// expressed with Config.Namespace.
//
// # Consistency
//
// Vectorize applies mutations asynchronously. A record inserted a moment ago
// may not be returned by Search or Get yet. Insert does not overwrite an
// existing id unless Config.Upsert is set.
//
// # Filters
//
// Filters are sent as-is. Vectorize only filters on properties that have a
// metadata index, so list them in Config.MetadataIndexes:
//
//	cfg := vectorize.DefaultConfig().
//	    WithCredentials(accountID, token).
//	    WithIndex("memories", 1536).
//	    WithMetadataIndex("user_id", vectorize.IndexTypeString)
//
//	client, err := vectorize.NewClient(cfg)
//	if err != nil {
//	    return err
//	}
//	if err := client.Initialize(ctx); err != nil {
//	    return err
//	}
//	results, err := client.Search(ctx, embedding, 5, vectordb.Eq("user_id", "alice"))
//
// # Observability
//
// Each operation starts a span on the global OpenTelemetry tracer, and each
// HTTP request a child client span whose context is propagated in the
// request headers. Attach an observability.Observer with WithObserver to
// record metrics, and a Logger to get a debug entry per request.
package vectorize
