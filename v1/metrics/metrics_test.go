package metrics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aleph-Alpha/vectorstore/v1/observability"
	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
)

func TestNewMetricsDefaults(t *testing.T) {
	m := NewMetrics(Config{ServiceName: "test"})
	assert.Equal(t, DefaultMetricsAddress, m.Server.Addr)
	assert.NotNil(t, m.Registry)
}

func TestOperationObserverRecordsStatus(t *testing.T) {
	m := NewMetrics(Config{ServiceName: "test"})
	obs := NewOperationObserver(m)

	obs.ObserveOperation(observability.OperationContext{
		Component: "memory",
		Operation: "insert",
		Duration:  5 * time.Millisecond,
		Size:      3,
	})
	obs.ObserveOperation(observability.OperationContext{
		Component: "memory",
		Operation: "insert",
		Error:     vectordb.WrapOp("memory", "insert", "", &vectordb.ArityError{Vectors: 1}),
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("memory", "insert", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("memory", "insert", "invalid_input")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.recordsTotal.WithLabelValues("memory", "insert")))
}

func TestRegistryCarriesServiceLabel(t *testing.T) {
	m := NewMetrics(Config{ServiceName: "memory-api", Namespace: "app"})
	m.RecordOperation("vectorize", "search", "success", time.Millisecond)

	expected := `
# HELP app_vectorstore_operations_total Total number of vector store operations
# TYPE app_vectorstore_operations_total counter
app_vectorstore_operations_total{component="vectorize",operation="search",service="memory-api",status="success"} 1
`
	err := testutil.GatherAndCompare(m.Registry, strings.NewReader(expected), "app_vectorstore_operations_total")
	require.NoError(t, err)
}

func TestCreateCounterUsesNamespace(t *testing.T) {
	m := NewMetrics(Config{ServiceName: "svc", Namespace: "ns"})
	c := m.CreateCounter("custom_total", "custom", []string{"kind"})
	c.WithLabelValues("a").Add(2)

	count, err := testutil.GatherAndCount(m.Registry, "ns_custom_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "success"},
		{vectordb.NotImplemented("vectorize", "update"), "not_implemented"},
		{&vectordb.DimensionError{Expected: 2, Actual: 3, Index: -1}, "invalid_input"},
		{fmt.Errorf("x: %w", vectordb.ErrInvalidArgument), "invalid_input"},
		{vectordb.WrapOp("memory", "update", "", vectordb.ErrNotFound), "not_found"},
		{vectordb.Malformed("no id"), "malformed_response"},
		{&vectordb.RemoteError{StatusCode: 500}, "remote_failure"},
		{context.DeadlineExceeded, "canceled"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Status(tt.err))
		})
	}
}
