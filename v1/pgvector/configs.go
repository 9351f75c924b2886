package pgvector

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
)

// Default values for configuration
const (
	DefaultHost            = "localhost"
	DefaultPort            = "5432"
	DefaultSSLMode         = "disable"
	DefaultTable           = "vectors"
	DefaultDimension       = 1536
	DefaultBatchSize       = 500
	DefaultMaxOpenConns    = 50
	DefaultMaxIdleConns    = 25
	DefaultConnMaxLifetime = time.Minute
	DefaultTimeout         = 5 * time.Second
)

// Distance metrics accepted by Config.Distance.
const (
	DistanceCosine       = "cosine"
	DistanceEuclidean    = "euclidean"
	DistanceInnerProduct = "inner_product"
)

// identifierPattern restricts table names to plain, unquoted Postgres identifiers.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,49}$`)

// Config holds the database connection and table settings of the store.
//
// Example:
//
//	cfg := pgvector.DefaultConfig()
//	cfg.Connection.Host = "postgres.internal"
//	cfg.Connection.Password = os.Getenv("PGPASSWORD")
//	cfg.Table = "memories"
//	cfg.Dimension = 768
type Config struct {
	Connection        Connection        `yaml:"connection"`
	ConnectionDetails ConnectionDetails `yaml:"connection_details"`

	// Table holding the vectors. Created by Initialize.
	Table string `yaml:"table" env:"PGVECTOR_TABLE"`

	// Dimension is the size of the embedding column.
	Dimension int `yaml:"dimension" env:"PGVECTOR_DIMENSION"`

	// Distance selects the operator used for ordering and scoring.
	Distance string `yaml:"distance" env:"PGVECTOR_DISTANCE"`

	// HNSWIndex makes Initialize create an HNSW index on the embedding column.
	// pgvector limits HNSW indexes to 2000 dimensions.
	HNSWIndex bool `yaml:"hnsw_index" env:"PGVECTOR_HNSW_INDEX"`

	// CreateExtension makes Initialize run CREATE EXTENSION IF NOT EXISTS vector.
	CreateExtension bool `yaml:"create_extension" env:"PGVECTOR_CREATE_EXTENSION"`

	// BatchSize caps the number of rows per INSERT statement.
	BatchSize int `yaml:"batch_size" env:"PGVECTOR_BATCH_SIZE"`

	// UserID seeds the user id reported by GetUserID.
	UserID string `yaml:"user_id" env:"PGVECTOR_USER_ID"`

	// Timeout bounds the startup ping and health checks.
	Timeout time.Duration `yaml:"timeout" env:"PGVECTOR_TIMEOUT"`

	// Logger is optional. It is injected by NewClientWithDI when available.
	Logger Logger `yaml:"-"`
}

// Connection contains the parameters of the Postgres DSN.
type Connection struct {
	Host     string `yaml:"host" env:"PGVECTOR_HOST"`
	Port     string `yaml:"port" env:"PGVECTOR_PORT"`
	User     string `yaml:"user" env:"PGVECTOR_USER"`
	Password string `yaml:"password" env:"PGVECTOR_PASSWORD"`
	DbName   string `yaml:"db_name" env:"PGVECTOR_DB_NAME"`
	SSLMode  string `yaml:"ssl_mode" env:"PGVECTOR_SSL_MODE"`
}

// ConnectionDetails configures the database/sql connection pool.
type ConnectionDetails struct {
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DefaultConfig returns a configuration for a local database.
func DefaultConfig() *Config {
	cfg := &Config{
		Connection: Connection{
			Host:    DefaultHost,
			Port:    DefaultPort,
			SSLMode: DefaultSSLMode,
		},
		CreateExtension: true,
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Connection.Host == "" {
		c.Connection.Host = DefaultHost
	}
	if c.Connection.Port == "" {
		c.Connection.Port = DefaultPort
	}
	if c.Connection.SSLMode == "" {
		c.Connection.SSLMode = DefaultSSLMode
	}
	if c.ConnectionDetails.MaxOpenConns == 0 {
		c.ConnectionDetails.MaxOpenConns = DefaultMaxOpenConns
	}
	if c.ConnectionDetails.MaxIdleConns == 0 {
		c.ConnectionDetails.MaxIdleConns = DefaultMaxIdleConns
	}
	if c.ConnectionDetails.ConnMaxLifetime == 0 {
		c.ConnectionDetails.ConnMaxLifetime = DefaultConnMaxLifetime
	}
	if c.Table == "" {
		c.Table = DefaultTable
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
	if !identifierPattern.MatchString(c.Table) {
		errs = append(errs, fmt.Errorf("table %q must be a plain identifier of at most 50 characters", c.Table))
	}
	if c.Dimension < 1 || c.Dimension > 16000 {
		errs = append(errs, fmt.Errorf("dimension must be between 1 and 16000, got %d", c.Dimension))
	}
	if c.HNSWIndex && c.Dimension > 2000 {
		errs = append(errs, fmt.Errorf("hnsw index supports at most 2000 dimensions, got %d", c.Dimension))
	}
	if _, ok := distanceOperators[strings.ToLower(c.Distance)]; !ok {
		errs = append(errs, fmt.Errorf("unsupported distance %q", c.Distance))
	}
	if c.Connection.DbName == "" {
		errs = append(errs, errors.New("database name is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: pgvector config: %w", vectordb.ErrInvalidArgument, errors.Join(errs...))
	}
	return nil
}

// dsn renders the connection as a keyword/value connection string.
func (c Connection) dsn() string {
	parts := []string{
		"host=" + quoteDSN(c.Host),
		"port=" + quoteDSN(c.Port),
		"user=" + quoteDSN(c.User),
		"password=" + quoteDSN(c.Password),
		"dbname=" + quoteDSN(c.DbName),
		"sslmode=" + quoteDSN(c.SSLMode),
	}
	return strings.Join(parts, " ")
}

func quoteDSN(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Logger is the subset of logger.Logger used by the client.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
}
