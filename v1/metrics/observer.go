package metrics

import (
	"context"
	"errors"

	"github.com/Aleph-Alpha/vectorstore/v1/observability"
	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
)

// OperationObserver turns adapter operation events into Prometheus metrics.
// Attach it to any adapter with WithObserver, or provide it to fx as an
// observability.Observer.
type OperationObserver struct {
	collector MetricsCollector
}

// NewOperationObserver returns an observer that records into collector.
func NewOperationObserver(collector MetricsCollector) *OperationObserver {
	return &OperationObserver{collector: collector}
}

// ObserveOperation implements observability.Observer.
func (o *OperationObserver) ObserveOperation(ctx observability.OperationContext) {
	o.collector.RecordOperation(ctx.Component, ctx.Operation, Status(ctx.Error), ctx.Duration)
	o.collector.AddRecords(ctx.Component, ctx.Operation, ctx.Size)
}

// Status maps an operation error to a low-cardinality label value.
func Status(err error) string {
	switch {
	case err == nil:
		return "success"
	case vectordb.IsNotImplementedError(err):
		return "not_implemented"
	case vectordb.IsArityMismatchError(err), vectordb.IsDimensionMismatchError(err), vectordb.IsInvalidArgumentError(err):
		return "invalid_input"
	case vectordb.IsNotFoundError(err):
		return "not_found"
	case vectordb.IsMalformedResponseError(err):
		return "malformed_response"
	case vectordb.IsRemoteFailureError(err):
		return "remote_failure"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
