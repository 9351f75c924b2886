package qdrant

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
)

// Default values for configuration
const (
	DefaultEndpoint   = "localhost"
	DefaultPort       = 6334
	DefaultCollection = "vectors"
	DefaultDimension  = 1536
	DefaultBatchSize  = 200
	DefaultTimeout    = 5 * time.Second
)

// Distance metrics accepted by Config.Distance.
const (
	DistanceCosine    = "cosine"
	DistanceEuclid    = "euclid"
	DistanceDot       = "dot"
	DistanceManhattan = "manhattan"
)

// Payload index types accepted by Config.PayloadIndexes.
const (
	IndexKeyword  = "keyword"
	IndexInteger  = "integer"
	IndexFloat    = "float"
	IndexBool     = "bool"
	IndexDatetime = "datetime"
)

// Config holds connection and behavior settings for the Qdrant client.
//
// It is intentionally minimal, readable, and easy to override from environment
// variables, YAML, or programmatically via helper methods.
//
// Example (programmatic):
//
//	cfg := qdrant.DefaultConfig()
//	cfg.Endpoint = "qdrant.internal"
//	cfg.ApiKey = os.Getenv("QDRANT_API_KEY")
//	cfg.Timeout = 10 * time.Second
//
// Example (builder style):
//
//	cfg := qdrant.FromEndpoint("qdrant.internal").
//	    WithApiKey(os.Getenv("QDRANT_API_KEY")).
//	    WithCollection("memories", 768)
type Config struct {
	// Hostname of the Qdrant server, e.g. "localhost".
	Endpoint string `yaml:"endpoint" env:"QDRANT_ENDPOINT"`

	// gRPC port of the Qdrant server. Defaults to 6334.
	Port int `yaml:"port" env:"QDRANT_PORT"`

	// Optional authentication token for secured deployments.
	ApiKey string `yaml:"api_key" env:"QDRANT_API_KEY"`

	// UseTLS enables TLS on the gRPC connection.
	UseTLS bool `yaml:"use_tls" env:"QDRANT_USE_TLS"`

	// Collection this client operates on.
	Collection string `yaml:"collection" env:"QDRANT_COLLECTION"`

	// Dimension is the vector size of the collection.
	Dimension int `yaml:"dimension" env:"QDRANT_DIMENSION"`

	// Distance is the similarity metric used when the collection is created.
	Distance string `yaml:"distance" env:"QDRANT_DISTANCE"`

	// PayloadIndexes maps payload fields to an index type created by Initialize.
	PayloadIndexes map[string]string `yaml:"payload_indexes"`

	// BatchSize caps the number of points sent per upsert request.
	BatchSize int `yaml:"batch_size" env:"QDRANT_BATCH_SIZE"`

	// ReturnVectors makes Search return stored vectors.
	ReturnVectors bool `yaml:"return_vectors" env:"QDRANT_RETURN_VECTORS"`

	// UserID seeds the user id reported by GetUserID.
	UserID string `yaml:"user_id" env:"QDRANT_USER_ID"`

	// Maximum duration of the startup health check.
	Timeout time.Duration `yaml:"timeout" env:"QDRANT_TIMEOUT"`

	// Whether to perform version compatibility checks between client and server.
	CheckCompatibility bool `yaml:"check_compatibility" env:"QDRANT_CHECK_COMPATIBILITY"`

	// Logger is optional. It is injected by NewQdrantClient when available.
	Logger Logger `yaml:"-"`
}

// DefaultConfig provides sensible defaults for most use cases.
func DefaultConfig() *Config {
	return &Config{
		Endpoint:           DefaultEndpoint,
		Port:               DefaultPort,
		Collection:         DefaultCollection,
		Dimension:          DefaultDimension,
		Distance:           DistanceCosine,
		BatchSize:          DefaultBatchSize,
		Timeout:            DefaultTimeout,
		CheckCompatibility: true,
	}
}

// FromEndpoint returns a default config pre-filled with a specific endpoint.
func FromEndpoint(host string) *Config {
	cfg := DefaultConfig()
	cfg.Endpoint = host
	return cfg
}

// Builder-style helpers (optional, ergonomic)
func (c *Config) WithApiKey(key string) *Config {
	c.ApiKey = key
	return c
}

func (c *Config) WithPort(port int) *Config {
	c.Port = port
	return c
}

func (c *Config) WithCollection(name string, dimension int) *Config {
	c.Collection = name
	c.Dimension = dimension
	return c
}

func (c *Config) WithDistance(distance string) *Config {
	c.Distance = distance
	return c
}

// WithPayloadIndex registers a payload index created by Initialize.
func (c *Config) WithPayloadIndex(field, indexType string) *Config {
	if c.PayloadIndexes == nil {
		c.PayloadIndexes = map[string]string{}
	}
	c.PayloadIndexes[field] = indexType
	return c
}

func (c *Config) WithTimeout(d time.Duration) *Config {
	c.Timeout = d
	return c
}

func (c *Config) WithTLS(enabled bool) *Config {
	c.UseTLS = enabled
	return c
}

func (c *Config) WithCompatibilityCheck(enabled bool) *Config {
	c.CheckCompatibility = enabled
	return c
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
	if c.Dimension == 0 {
		c.Dimension = DefaultDimension
	}
	if c.Distance == "" {
		c.Distance = DistanceCosine
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Dimension < 0 {
		errs = append(errs, fmt.Errorf("dimension must be positive, got %d", c.Dimension))
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port out of range: %d", c.Port))
	}
	if c.Distance != "" {
		if _, ok := distances[strings.ToLower(c.Distance)]; !ok {
			errs = append(errs, fmt.Errorf("unsupported distance %q", c.Distance))
		}
	}
	for field, kind := range c.PayloadIndexes {
		if _, ok := fieldTypes[kind]; !ok {
			errs = append(errs, fmt.Errorf("payload index %q: unsupported type %q", field, kind))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: qdrant config: %w", vectordb.ErrInvalidArgument, errors.Join(errs...))
	}
	return nil
}

// Logger is the subset of logger.Logger used by the client.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
}
