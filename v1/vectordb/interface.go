package vectordb

import "context"

// Store is the common interface for all vector store backends.
// It provides a backend-agnostic abstraction for similarity search and
// metadata-filtered retrieval, allowing applications to switch between
// backends (Vectorize, Qdrant, pgvector, in-process) without changing
// application code.
//
// Every adapter validates caller input before it talks to its backend, so
// ErrArityMismatch, ErrDimensionMismatch and ErrInvalidArgument never leave
// partial side effects behind. Operations a backend cannot serve fail with
// ErrNotImplemented instead of approximating the behavior.
//
// Example usage:
//
//	func NewMemoryService(store vectordb.Store) *MemoryService {
//	    return &MemoryService{store: store}
//	}
//
//	// Works with any implementation:
//	// - vectorize.NewClient(cfg)
//	// - memory.NewStore(cfg)
//	// - qdrant.NewQdrantClient(params)
//	// - pgvector.NewClient(cfg)
type Store interface {
	// Initialize creates the backing index if it is absent and verifies its
	// dimension if it already exists. Safe to call multiple times.
	Initialize(ctx context.Context) error

	// Insert stores one record per index of the three parallel slices.
	// The slices must have equal length, otherwise ErrArityMismatch is returned.
	// A nil payload is stored as empty metadata.
	//
	// Inserting an existing id overwrites it unless the adapter documents
	// otherwise.
	Insert(ctx context.Context, vectors [][]float32, ids []string, payloads []map[string]any) error

	// Search returns at most limit results ordered by decreasing relevance.
	// The filter is optional and may be nil.
	Search(ctx context.Context, query []float32, limit int, filter Filter) ([]SearchResult, error)

	// Get returns the record stored under id, or nil when no such record exists.
	// Absence is not an error.
	Get(ctx context.Context, id string) (*SearchResult, error)

	// Update replaces the vector and/or payload of an existing record.
	// A nil vector keeps the stored vector, a nil payload keeps the stored payload.
	// Returns ErrNotFound when id does not exist.
	Update(ctx context.Context, id string, vector []float32, payload map[string]any) error

	// Delete removes the record stored under id. Deleting a missing id is a no-op.
	Delete(ctx context.Context, id string) error

	// DeleteCollection destroys the whole index. This cannot be undone.
	DeleteCollection(ctx context.Context) error

	// List enumerates up to limit records matching filter and reports the
	// total number of matching records.
	List(ctx context.Context, filter Filter, limit int) ([]SearchResult, int, error)

	// GetUserID returns the user id associated with this store.
	GetUserID(ctx context.Context) (string, error)

	// SetUserID associates a user id with this store.
	SetUserID(ctx context.Context, userID string) error

	// Close releases the underlying client. Calling it more than once is safe.
	Close() error
}

// Describer is implemented by adapters that can report index metadata.
type Describer interface {
	// Describe returns the name, dimension, metric and record count of the index.
	Describe(ctx context.Context) (*Collection, error)
}
