package vectorize

import (
	"time"

	"github.com/Aleph-Alpha/vectorstore/v1/observability"
)

// observeOperation notifies the observer about an operation if one is configured.
//
// Notes:
//   - resource: index name
//   - subResource: record id or batch description
func (c *Client) observeOperation(operation, subResource string, duration time.Duration, err error, size int64) {
	if c == nil || c.observer == nil {
		return
	}

	c.observer.ObserveOperation(observability.OperationContext{
		Component:   component,
		Operation:   operation,
		Resource:    c.cfg.IndexName,
		SubResource: subResource,
		Duration:    duration,
		Error:       err,
		Size:        size,
		Metadata: map[string]interface{}{
			"namespace": c.cfg.Namespace,
		},
	})
}
