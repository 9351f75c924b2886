package pgvector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/Aleph-Alpha/vectorstore/v1/tracer"
	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
)

var spanTracer = otel.Tracer("github.com/Aleph-Alpha/vectorstore/v1/pgvector")

// distanceOperator describes how a metric is queried and scored.
type distanceOperator struct {
	// operator orders rows by distance, smallest first.
	operator string
	// opclass is the HNSW operator class of the metric.
	opclass string
	// score converts the distance expression into a similarity, higher is better.
	score string
}

var distanceOperators = map[string]distanceOperator{
	DistanceCosine:       {operator: "<=>", opclass: "vector_cosine_ops", score: "1 - (%s)"},
	DistanceEuclidean:    {operator: "<->", opclass: "vector_l2_ops", score: "-(%s)"},
	DistanceInnerProduct: {operator: "<#>", opclass: "vector_ip_ops", score: "-(%s)"},
}

// SQLSTATE codes handled explicitly.
const (
	sqlStateQueryCanceled  = "57014"
	sqlStateUndefinedTable = "42P01"
	sqlStateDataException  = "22000"
	sqlStateInvalidText    = "22P02"
)

// remoteError classifies a database failure. Context cancellation passes
// through, Postgres errors become a *vectordb.RemoteError carrying the
// SQLSTATE and message, and connection failures wrap ErrRemoteFailure.
func remoteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %v", vectordb.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return &vectordb.RemoteError{Err: err}
	}
	switch pgErr.Code {
	case sqlStateQueryCanceled:
		return errors.Join(context.Canceled, err)
	case sqlStateDataException, sqlStateInvalidText:
		if strings.Contains(pgErr.Message, "dimensions") {
			return fmt.Errorf("%w: %s", vectordb.ErrDimensionMismatch, pgErr.Message)
		}
	}
	return &vectordb.RemoteError{
		Messages: []vectordb.RemoteMessage{{Message: fmt.Sprintf("%s (SQLSTATE %s)", pgErr.Message, pgErr.Code)}},
		Err:      err,
	}
}

// sqlState returns the SQLSTATE carried by err, if any.
func sqlState(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, true
	}
	return "", false
}

// quoteIdent quotes an identifier already checked by Config.Validate.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (p *PGVector) begin(ctx context.Context, op string) (context.Context, trace.Span, time.Time) {
	ctx, span := spanTracer.Start(ctx, "pgvector."+op, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.collection.name", p.cfg.Table),
		attribute.String("server.address", p.cfg.Connection.Host),
	))
	return ctx, span, time.Now()
}

// end wraps err with the operation, records it on the span and notifies the observer.
func (p *PGVector) end(span trace.Span, op, subject string, start time.Time, err error, size int64) error {
	defer span.End()
	err = vectordb.WrapOp(component, op, subject, err)
	tracer.RecordError(span, err)
	p.observeOperation(op, subject, time.Since(start), err, size)
	return err
}
