package logger

// Log levels accepted by Config.Level.
const (
	Debug   = "debug"
	Info    = "info"
	Warning = "warning"
	Error   = "error"
)

// Config defines the configuration for the zap-backed logger.
type Config struct {
	// Level sets the minimum level that is written.
	// One of "debug", "info", "warning", "error". Anything else means "info".
	Level string `yaml:"level" env:"LOGGER_LEVEL"`

	// EnableTracing adds trace_id and span_id fields to the *WithContext
	// methods when the context carries an OpenTelemetry span.
	EnableTracing bool `yaml:"enable_tracing" env:"LOGGER_ENABLE_TRACING"`

	// ServiceName is attached to every entry as the "service" field.
	ServiceName string `yaml:"service_name" env:"LOGGER_SERVICE_NAME"`
}
