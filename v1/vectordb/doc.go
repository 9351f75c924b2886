// Package vectordb provides a backend-agnostic abstraction for vector similarity search.
//
// # Overview
//
// This package defines a common interface [Store] that is implemented by
// different vector store adapters (Cloudflare Vectorize, Qdrant, pgvector and an
// in-process store), allowing applications to switch between backends without
// changing application code.
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────┐
//	│                    Application Layer                        │
//	│      (uses vectordb.Store - no backend-specific imports)    │
//	└──────────────────────────┬──────────────────────────────────┘
//	                           │
//	                           ▼
//	┌─────────────────────────────────────────────────────────────┐
//	│                      vectordb.Store                         │
//	│   (contract + Record/SearchResult/Filter + error taxonomy)  │
//	└──────────────────────────┬──────────────────────────────────┘
//	                           │
//	     ┌──────────────┬──────┴───────┬──────────────┐
//	     ▼              ▼              ▼              ▼
//	┌──────────┐  ┌──────────┐  ┌──────────┐  ┌──────────┐
//	│vectorize │  │  memory  │  │  qdrant  │  │ pgvector │
//	│  (HTTP)  │  │(chromem) │  │  (gRPC)  │  │  (SQL)   │
//	└──────────┘  └──────────┘  └──────────┘  └──────────┘
//
// The adapter is chosen when the store is constructed (see the vectorstore
// package); nothing in this package knows which one is active.
//
// # Usage
//
// In your application, depend only on the vectordb interface:
//
//	import "github.com/Aleph-Alpha/vectorstore/v1/vectordb"
//
//	type MemoryService struct {
//	    store vectordb.Store
//	}
//
//	func (s *MemoryService) Recall(ctx context.Context, userID string, vector []float32) ([]vectordb.SearchResult, error) {
//	    return s.store.Search(ctx, vector, 10, vectordb.Filter{"user_id": userID})
//	}
//
// # Filters
//
// A [Filter] is forwarded to backends that understand its dialect and
// translated by the others. Builders keep call sites readable:
//
//	filter := vectordb.Eq("user_id", "alice").
//	    And(vectordb.In("tag", "work", "travel")).
//	    And(vectordb.Gte("score", 0.5))
//
// # Errors
//
// Every adapter reports failures through the sentinels in this package, so
// callers can react without knowing the backend:
//
//	err := store.Update(ctx, "missing", nil, map[string]any{"k": "v"})
//	switch {
//	case vectordb.IsNotFoundError(err):
//	    // record does not exist
//	case vectordb.IsNotImplementedError(err):
//	    // backend cannot update in place
//	case vectordb.IsRemoteFailureError(err):
//	    var remote *vectordb.RemoteError
//	    if errors.As(err, &remote) {
//	        log.Printf("backend answered %d", remote.StatusCode)
//	    }
//	}
//
// Input validation (arity, dimension, limit) always happens before any
// backend call, so these errors never leave partial writes behind.
//
// # Missing payloads
//
// Insert accepts nil entries in the payload slice and stores them as empty
// metadata. The payload slice itself must still be as long as the vector
// and id slices.
package vectordb
