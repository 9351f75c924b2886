package tracer

// Config defines the configuration for the OpenTelemetry tracer provider.
type Config struct {
	// ServiceName is reported as the service.name resource attribute.
	ServiceName string `yaml:"service_name" env:"TRACER_SERVICE_NAME"`

	// AppEnv is reported as deployment.environment (e.g. "production").
	AppEnv string `yaml:"app_env" env:"TRACER_APP_ENV"`

	// EnableExport sends spans to an OTLP/HTTP collector. The exporter is
	// configured through the standard OTEL_EXPORTER_OTLP_* variables.
	// When false, spans are created but never leave the process.
	EnableExport bool `yaml:"enable_export" env:"TRACER_ENABLE_EXPORT"`
}
