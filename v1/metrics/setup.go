package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics encapsulates the Prometheus registry and HTTP server responsible
// for exposing application metrics.
type Metrics struct {
	// Server defines the HTTP server used to expose the /metrics endpoint.
	Server *http.Server

	// Registry is the Prometheus registry where all metrics are registered.
	// Each service maintains its own isolated registry to prevent metric name collisions.
	Registry *prometheus.Registry

	// registerer wraps Registry with the constant service label.
	registerer prometheus.Registerer
	namespace  string

	// Vector store operation metrics, fed by OperationObserver.
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	recordsTotal      *prometheus.CounterVec
}

// NewMetrics initializes and returns a new instance of the Metrics struct.
// It sets up a dedicated Prometheus registry, registers default system collectors,
// wraps all metrics with a constant `service` label, and creates an HTTP server
// exposing the /metrics endpoint.
//
// The setup includes:
//   - A dedicated Prometheus registry for the service
//   - vectorstore_operations_total{component,operation,status}
//   - vectorstore_operation_duration_seconds{component,operation}
//   - vectorstore_records_total{component,operation}
//   - Go, process and build info collectors when enabled
//
// Example:
//
//	m := metrics.NewMetrics(metrics.Config{Address: ":9090", ServiceName: "memory-api"})
//	go m.Server.ListenAndServe()
func NewMetrics(cfg Config) *Metrics {
	registry := prometheus.NewRegistry()

	// All metrics emitted by this service carry service="<cfg.ServiceName>".
	wrappedRegistry := prometheus.WrapRegistererWith(
		prometheus.Labels{"service": cfg.ServiceName},
		registry,
	)

	m := &Metrics{
		Registry:   registry,
		registerer: wrappedRegistry,
		namespace:  cfg.Namespace,
	}

	m.operationsTotal = createCounterVec(cfg.Namespace, "vectorstore_operations_total",
		"Total number of vector store operations", []string{"component", "operation", "status"})
	m.operationDuration = createHistogramVec(cfg.Namespace, "vectorstore_operation_duration_seconds",
		"Duration of vector store operations in seconds", []string{"component", "operation"}, prometheus.DefBuckets)
	m.recordsTotal = createCounterVec(cfg.Namespace, "vectorstore_records_total",
		"Total number of records written or returned by vector store operations", []string{"component", "operation"})

	wrappedRegistry.MustRegister(
		m.operationsTotal,
		m.operationDuration,
		m.recordsTotal,
	)

	if cfg.EnableDefaultCollectors {
		wrappedRegistry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewBuildInfoCollector(),
		)
	}

	address := cfg.Address
	if address == "" {
		address = DefaultMetricsAddress
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	m.Server = &http.Server{
		Addr:    address,
		Handler: mux,
	}
	return m
}
