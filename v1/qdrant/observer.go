package qdrant

import (
	"time"

	"github.com/Aleph-Alpha/vectorstore/v1/observability"
)

// observeOperation notifies the observer about an operation if one is configured.
//
// Notes:
//   - resource: collection name
//   - subResource: record id or batch description
//   - metadata: grpc status code when the call failed remotely
func (c *QdrantClient) observeOperation(operation, subResource string, duration time.Duration, err error, size int64) {
	if c == nil || c.observer == nil {
		return
	}

	var metadata map[string]interface{}
	if code, ok := grpcCode(err); ok {
		metadata = map[string]interface{}{"grpc_code": code}
	}

	c.observer.ObserveOperation(observability.OperationContext{
		Component:   component,
		Operation:   operation,
		Resource:    c.cfg.Collection,
		SubResource: subResource,
		Duration:    duration,
		Error:       err,
		Size:        size,
		Metadata:    metadata,
	})
}
