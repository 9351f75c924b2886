// Package observability defines the hook through which vector store adapters
// report completed operations to metrics, tracing or audit systems.
//
// Adapters never depend on a concrete metrics library. They call an optional
// Observer after every operation, and the application decides what to do
// with the event (see metrics.NewOperationObserver for a Prometheus-backed
// implementation).
//
// Example:
//
//	type CountingObserver struct{ n atomic.Int64 }
//
//	func (o *CountingObserver) ObserveOperation(ctx observability.OperationContext) {
//	    o.n.Add(1)
//	}
//
//	client = client.WithObserver(&CountingObserver{})
package observability

import "time"

// OperationContext describes one completed adapter operation.
type OperationContext struct {
	// Component is the adapter that ran the operation ("vectorize", "memory", "qdrant", "pgvector").
	Component string

	// Operation is the contract method ("insert", "search", "get", ...).
	Operation string

	// Resource is the index, collection or table the operation targeted.
	Resource string

	// SubResource narrows the resource, typically a record id. Empty for batch operations.
	SubResource string

	// Duration is the wall time of the operation, including validation.
	Duration time.Duration

	// Error is the error returned to the caller, or nil.
	Error error

	// Size is the number of records written or returned.
	Size int64

	// Metadata holds adapter-specific details such as the HTTP status.
	Metadata map[string]interface{}
}

// Observer receives operation events. Implementations must be safe for
// concurrent use and must not block, since they run on the caller's goroutine.
type Observer interface {
	ObserveOperation(ctx OperationContext)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(ctx OperationContext)

// ObserveOperation calls f(ctx).
func (f ObserverFunc) ObserveOperation(ctx OperationContext) { f(ctx) }
