// Package metrics provides Prometheus instrumentation for vector store adapters.
//
// The package owns an isolated Prometheus registry per service, labels every
// series with the service name, and serves them on /metrics. Adapters never
// import it directly: they report operations through observability.Observer,
// and OperationObserver turns those events into three series:
//
//	vectorstore_operations_total{component,operation,status}
//	vectorstore_operation_duration_seconds{component,operation}
//	vectorstore_records_total{component,operation}
//
// The status label is derived from the vectordb error taxonomy ("success",
// "invalid_input", "not_found", "not_implemented", "remote_failure",
// "malformed_response", "canceled", "error").
//
// Basic Usage:
//
//	m := metrics.NewMetrics(metrics.Config{
//	    Address:     ":9090",
//	    ServiceName: "memory-api",
//	})
//	go m.Server.ListenAndServe()
//
//	client := vectorize.NewClient(cfg).WithObserver(metrics.NewOperationObserver(m))
//
// Custom metrics can be registered on the same registry:
//
//	hits := m.CreateCounter("cache_hits_total", "Embedding cache hits", []string{"model"})
//	hits.WithLabelValues("bge-m3").Inc()
//
// FX Module Integration:
//
// FXModule provides *Metrics and an observability.Observer, and starts and
// stops the HTTP server with the application lifecycle.
//
// Thread Safety:
//
// All methods are safe for concurrent use.
package metrics
