package pgvector

import (
	"time"

	"github.com/Aleph-Alpha/vectorstore/v1/observability"
)

// observeOperation notifies the observer about an operation if one is configured.
//
// Notes:
//   - resource: table name
//   - subResource: record id or batch description
//   - metadata: SQLSTATE when Postgres rejected the statement
func (p *PGVector) observeOperation(operation, subResource string, duration time.Duration, err error, size int64) {
	if p == nil || p.observer == nil {
		return
	}

	var metadata map[string]interface{}
	if code, ok := sqlState(err); ok {
		metadata = map[string]interface{}{"sqlstate": code}
	}

	p.observer.ObserveOperation(observability.OperationContext{
		Component:   component,
		Operation:   operation,
		Resource:    p.cfg.Table,
		SubResource: subResource,
		Duration:    duration,
		Error:       err,
		Size:        size,
		Metadata:    metadata,
	})
}
