package qdrant

import (
	"context"
	"errors"
	"strings"
	"time"

	qdrant "github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Aleph-Alpha/vectorstore/v1/tracer"
	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
)

var spanTracer = otel.Tracer("github.com/Aleph-Alpha/vectorstore/v1/qdrant")

var distances = map[string]qdrant.Distance{
	DistanceCosine:    qdrant.Distance_Cosine,
	DistanceEuclid:    qdrant.Distance_Euclid,
	DistanceDot:       qdrant.Distance_Dot,
	DistanceManhattan: qdrant.Distance_Manhattan,
}

var fieldTypes = map[string]qdrant.FieldType{
	IndexKeyword:  qdrant.FieldType_FieldTypeKeyword,
	IndexInteger:  qdrant.FieldType_FieldTypeInteger,
	IndexFloat:    qdrant.FieldType_FieldTypeFloat,
	IndexBool:     qdrant.FieldType_FieldTypeBool,
	IndexDatetime: qdrant.FieldType_FieldTypeDatetime,
}

// extractVectorDetails safely extracts the vector size (embedding dimension)
// and distance metric from a Qdrant `CollectionInfo` object.
//
// Qdrant represents vector configuration data using a deeply nested protobuf
// structure with "oneof" wrappers. This helper navigates that hierarchy and
// returns (0, "") for collections using named vectors.
func extractVectorDetails(info *qdrant.CollectionInfo) (int, string) {
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return 0, ""
	}
	return int(params.GetSize()), strings.ToLower(params.GetDistance().String())
}

// derefUint64 safely dereferences a *uint64 pointer.
// If the pointer is nil, it returns 0 instead of panicking.
func derefUint64(v *uint64) uint64 {
	if v != nil {
		return *v
	}
	return 0
}

// remoteError wraps a gRPC failure in a *vectordb.RemoteError carrying the
// status code and message. Context errors pass through unchanged.
func remoteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		return &vectordb.RemoteError{Err: err}
	}
	switch st.Code() {
	case codes.Canceled:
		return errors.Join(context.Canceled, err)
	case codes.DeadlineExceeded:
		return errors.Join(context.DeadlineExceeded, err)
	}
	return &vectordb.RemoteError{
		Messages: []vectordb.RemoteMessage{{Code: int(st.Code()), Message: st.Message()}},
		Err:      err,
	}
}

// grpcCode returns the gRPC status name carried by a remote failure.
func grpcCode(err error) (string, bool) {
	var remote *vectordb.RemoteError
	if !errors.As(err, &remote) || len(remote.Messages) == 0 {
		return "", false
	}
	return codes.Code(remote.Messages[0].Code).String(), true
}

// alreadyExists reports whether err signals a concurrent create of the same
// collection or index.
func alreadyExists(err error) bool {
	if err == nil {
		return false
	}
	if st, ok := status.FromError(err); ok && st.Code() == codes.AlreadyExists {
		return true
	}
	return strings.Contains(err.Error(), "already exists")
}

func (c *QdrantClient) begin(ctx context.Context, op string) (context.Context, trace.Span, time.Time) {
	ctx, span := spanTracer.Start(ctx, "qdrant."+op, trace.WithAttributes(
		attribute.String("db.system", "qdrant"),
		attribute.String("db.collection.name", c.cfg.Collection),
		attribute.String("server.address", c.cfg.Endpoint),
	))
	return ctx, span, time.Now()
}

// end wraps err with the operation, records it on the span and notifies the observer.
func (c *QdrantClient) end(span trace.Span, op, subject string, start time.Time, err error, size int64) error {
	defer span.End()
	err = vectordb.WrapOp(component, op, subject, err)
	tracer.RecordError(span, err)
	c.observeOperation(op, subject, time.Since(start), err, size)
	return err
}
