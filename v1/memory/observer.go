package memory

import (
	"time"

	"github.com/Aleph-Alpha/vectorstore/v1/observability"
)

// observeOperation notifies the observer about an operation if one is configured.
//
// Notes:
//   - resource: collection name
//   - subResource: record id or batch description
func (s *Store) observeOperation(operation, subResource string, duration time.Duration, err error, size int64) {
	if s == nil || s.observer == nil {
		return
	}

	s.observer.ObserveOperation(observability.OperationContext{
		Component:   component,
		Operation:   operation,
		Resource:    s.cfg.Collection,
		SubResource: subResource,
		Duration:    duration,
		Error:       err,
		Size:        size,
	})
}
