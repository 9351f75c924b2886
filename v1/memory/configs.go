package memory

import (
	"fmt"

	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
)

// Default values for configuration
const (
	DefaultCollection = "vectors"
	DefaultDimension  = 1536
)

// Config holds the settings of the in-process store.
type Config struct {
	// Collection names the chromem collection backing the store.
	Collection string `yaml:"collection" env:"MEMORY_COLLECTION"`

	// Dimension is the length of every stored vector.
	Dimension int `yaml:"dimension" env:"MEMORY_DIMENSION"`

	// PersistPath enables gob persistence to this directory. Empty keeps
	// everything in memory.
	PersistPath string `yaml:"persist_path" env:"MEMORY_PERSIST_PATH"`

	// Compress gzips persisted files.
	Compress bool `yaml:"compress" env:"MEMORY_COMPRESS"`

	// UserID seeds the user id reported by GetUserID.
	UserID string `yaml:"user_id" env:"MEMORY_USER_ID"`

	// Logger is optional. It is injected by NewClientWithDI when available.
	Logger Logger `yaml:"-"`
}

// DefaultConfig returns a Config for a non-persistent store.
func DefaultConfig() Config {
	return Config{
		Collection: DefaultCollection,
		Dimension:  DefaultDimension,
	}
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
	if c.Dimension == 0 {
		c.Dimension = DefaultDimension
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Dimension < 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", vectordb.ErrInvalidArgument, c.Dimension)
	}
	return nil
}

// Logger is the subset of logger.Logger used by the store.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
}
