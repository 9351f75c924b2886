package metrics

// DefaultMetricsAddress is the listen address used when Config.Address is empty.
const DefaultMetricsAddress = ":9090"

// Config defines the configuration structure for the Prometheus metrics server.
type Config struct {
	// Address determines the network address where the Prometheus
	// metrics HTTP server listens (e.g. ":9090", "127.0.0.1:9100").
	//
	// Default: ":9090"
	Address string `yaml:"address" env:"METRICS_ADDRESS"`

	// EnableDefaultCollectors controls whether the built-in Go runtime
	// and process metrics are automatically registered.
	EnableDefaultCollectors bool `yaml:"enable_default_collectors" env:"METRICS_ENABLE_DEFAULT_COLLECTORS"`

	// Namespace sets a global prefix for all metrics registered by this service.
	//
	// Example:
	//   Namespace: "memory"
	//   → Metric name becomes "memory_vectorstore_operations_total"
	Namespace string `yaml:"namespace" env:"METRICS_NAMESPACE"`

	// ServiceName is added as a constant "service" label to every metric.
	ServiceName string `yaml:"service_name" env:"METRICS_SERVICE_NAME"`
}
