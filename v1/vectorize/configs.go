package vectorize

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
)

// Default values for configuration
const (
	DefaultAPIBaseURL = "https://api.cloudflare.com/client/v4"
	DefaultDimension  = 1536
	DefaultMetric     = MetricCosine
	DefaultTimeout    = 30 * time.Second
)

// Distance metrics accepted by Vectorize.
const (
	MetricCosine     = "cosine"
	MetricEuclidean  = "euclidean"
	MetricDotProduct = "dot-product"
)

// Metadata index types accepted by Vectorize.
const (
	IndexTypeString  = "string"
	IndexTypeNumber  = "number"
	IndexTypeBoolean = "boolean"
)

// Config holds the settings of a Vectorize index client.
//
// Filtering on a metadata property only works once a metadata index exists
// for it. List such properties in MetadataIndexes and Initialize creates them.
type Config struct {
	// AccountID is the Cloudflare account owning the index.
	AccountID string `yaml:"account_id" env:"VECTORIZE_ACCOUNT_ID"`

	// APIToken is sent as a bearer token on every request.
	APIToken string `yaml:"api_token" env:"VECTORIZE_API_TOKEN"`

	// IndexName is the Vectorize index used by this client.
	IndexName string `yaml:"index_name" env:"VECTORIZE_INDEX_NAME"`

	// Dimension is the length of every vector in the index.
	//
	// Default: 1536
	Dimension int `yaml:"dimension" env:"VECTORIZE_DIMENSION"`

	// Metric is used when Initialize creates the index.
	//
	// Default: "cosine"
	Metric string `yaml:"metric" env:"VECTORIZE_METRIC"`

	// Namespace scopes inserts and queries. Empty means the default namespace.
	Namespace string `yaml:"namespace" env:"VECTORIZE_NAMESPACE"`

	// MetadataIndexes maps a metadata property to its index type
	// ("string", "number" or "boolean").
	MetadataIndexes map[string]string `yaml:"metadata_indexes"`

	// Upsert routes Insert to the upsert endpoint so existing ids are replaced.
	// The insert endpoint keeps the first write of an id.
	Upsert bool `yaml:"upsert" env:"VECTORIZE_UPSERT"`

	// ReturnValues asks queries and lookups to include stored vectors.
	ReturnValues bool `yaml:"return_values" env:"VECTORIZE_RETURN_VALUES"`

	// APIBaseURL is the Cloudflare API root.
	//
	// Default: "https://api.cloudflare.com/client/v4"
	APIBaseURL string `yaml:"api_base_url" env:"VECTORIZE_API_BASE_URL"`

	// Timeout bounds every HTTP request.
	//
	// Default: 30s
	Timeout time.Duration `yaml:"timeout" env:"VECTORIZE_TIMEOUT"`

	// RequestsPerSecond limits the request rate on the client side. Zero disables the limiter.
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"VECTORIZE_REQUESTS_PER_SECOND"`

	// Burst is the limiter's bucket size. Defaults to 1 when a rate is set.
	Burst int `yaml:"burst" env:"VECTORIZE_BURST"`

	// Logger is optional. It is injected by NewClientWithDI when available.
	Logger Logger `yaml:"-"`
}

// DefaultConfig returns a Config with defaults for everything but credentials.
func DefaultConfig() Config {
	return Config{
		Dimension:  DefaultDimension,
		Metric:     DefaultMetric,
		APIBaseURL: DefaultAPIBaseURL,
		Timeout:    DefaultTimeout,
	}
}

// WithCredentials sets the account id and API token.
func (c Config) WithCredentials(accountID, apiToken string) Config {
	c.AccountID = accountID
	c.APIToken = apiToken
	return c
}

// WithIndex sets the index name and dimension.
func (c Config) WithIndex(name string, dimension int) Config {
	c.IndexName = name
	c.Dimension = dimension
	return c
}

// WithNamespace sets the namespace used for inserts and queries.
func (c Config) WithNamespace(namespace string) Config {
	c.Namespace = namespace
	return c
}

// WithMetadataIndex adds a metadata index created by Initialize.
func (c Config) WithMetadataIndex(property, indexType string) Config {
	indexes := make(map[string]string, len(c.MetadataIndexes)+1)
	for k, v := range c.MetadataIndexes {
		indexes[k] = v
	}
	indexes[property] = indexType
	c.MetadataIndexes = indexes
	return c
}

// WithRateLimit sets the client-side request rate.
func (c Config) WithRateLimit(requestsPerSecond float64, burst int) Config {
	c.RequestsPerSecond = requestsPerSecond
	c.Burst = burst
	return c
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Dimension == 0 {
		c.Dimension = DefaultDimension
	}
	if c.Metric == "" {
		c.Metric = DefaultMetric
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultAPIBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		c.Burst = 1
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var problems []string
	if c.AccountID == "" {
		problems = append(problems, "account_id is required")
	}
	if c.APIToken == "" {
		problems = append(problems, "api_token is required")
	}
	if c.IndexName == "" {
		problems = append(problems, "index_name is required")
	}
	if c.Dimension <= 0 {
		problems = append(problems, fmt.Sprintf("dimension must be positive, got %d", c.Dimension))
	}
	switch c.Metric {
	case MetricCosine, MetricEuclidean, MetricDotProduct:
	default:
		problems = append(problems, fmt.Sprintf("unsupported metric %q", c.Metric))
	}
	for property, indexType := range c.MetadataIndexes {
		switch indexType {
		case IndexTypeString, IndexTypeNumber, IndexTypeBoolean:
		default:
			problems = append(problems, fmt.Sprintf("metadata index %q: unsupported type %q", property, indexType))
		}
	}
	if u, err := url.Parse(c.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Sprintf("invalid api_base_url %q", c.APIBaseURL))
	}
	if c.Timeout < 0 {
		problems = append(problems, "timeout cannot be negative")
	}
	if c.RequestsPerSecond < 0 {
		problems = append(problems, "requests_per_second cannot be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: vectorize config: %s", vectordb.ErrInvalidArgument, strings.Join(problems, "; "))
	}
	return nil
}

// Logger is the subset of logger.Logger used by the client.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
	DebugWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
}
