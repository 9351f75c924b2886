// Package memory implements vectordb.Store in process on top of chromem-go.
//
// It needs no external service, which makes it the default for tests, local
// development and small single-node deployments. With Config.PersistPath set
// every write is persisted to gob files and survives restarts.
//
// Differences from remote backends:
//   - only cosine similarity is available
//   - vectors are normalized on insert, so Get returns unit-length vectors
//   - payload numbers round-trip through JSON and come back as float64
//   - filters are evaluated in process with vectordb.Match
//
// Example:
//
//	store, err := memory.NewStore(memory.Config{Dimension: 384})
//	if err != nil {
//	    return err
//	}
//	if err := store.Initialize(ctx); err != nil {
//	    return err
//	}
//	err = store.Insert(ctx, vectors, ids, payloads)
package memory
