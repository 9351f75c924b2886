package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/Aleph-Alpha/vectorstore/v1/memory"
	"github.com/Aleph-Alpha/vectorstore/v1/pgvector"
	"github.com/Aleph-Alpha/vectorstore/v1/qdrant"
	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
	"github.com/Aleph-Alpha/vectorstore/v1/vectorize"
)

// Supported values of Config.Provider.
const (
	ProviderVectorize = "vectorize"
	ProviderMemory    = "memory"
	ProviderQdrant    = "qdrant"
	ProviderPGVector  = "pgvector"
)

// Providers lists every backend New can build, in documentation order.
var Providers = []string{ProviderVectorize, ProviderMemory, ProviderQdrant, ProviderPGVector}

// Config selects a backend and carries the settings of every adapter.
// Only the section named by Provider is used.
//
// Example YAML:
//
//	provider: qdrant
//	qdrant:
//	  endpoint: qdrant.internal
//	  collection: memories
//	  dimension: 768
type Config struct {
	// Provider names the backend: "vectorize", "memory", "qdrant" or "pgvector".
	//
	// Default: "memory"
	Provider string `yaml:"provider"`

	// SkipInitialize stops the fx lifecycle from calling Initialize on start.
	SkipInitialize bool `yaml:"skip_initialize"`

	Vectorize vectorize.Config `yaml:"vectorize"`
	Memory    memory.Config    `yaml:"memory"`
	Qdrant    qdrant.Config    `yaml:"qdrant"`
	PGVector  pgvector.Config  `yaml:"pgvector"`
}

// DefaultConfig returns the defaults of every adapter with the in-process
// store selected.
func DefaultConfig() Config {
	return Config{
		Provider:  ProviderMemory,
		Vectorize: vectorize.DefaultConfig(),
		Memory:    memory.DefaultConfig(),
		Qdrant:    *qdrant.DefaultConfig(),
		PGVector:  *pgvector.DefaultConfig(),
	}
}

// Validate checks the provider name. Adapter sections are validated by the
// adapter constructors.
func (c Config) Validate() error {
	switch c.provider() {
	case ProviderVectorize, ProviderMemory, ProviderQdrant, ProviderPGVector:
		return nil
	default:
		return fmt.Errorf("%w: unknown vector store provider %q (supported: %s)",
			vectordb.ErrInvalidArgument, c.Provider, strings.Join(Providers, ", "))
	}
}

func (c Config) provider() string {
	return strings.ToLower(strings.TrimSpace(c.Provider))
}

// Logger is satisfied by logger.Logger and by every adapter's logger.
type Logger interface {
	Info(msg string, err error, fields ...map[string]interface{})
	Warn(msg string, err error, fields ...map[string]interface{})
	Error(msg string, err error, fields ...map[string]interface{})
	DebugWithContext(ctx context.Context, msg string, err error, fields ...map[string]interface{})
}
