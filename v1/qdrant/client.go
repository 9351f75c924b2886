package qdrant

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"

	"github.com/Aleph-Alpha/vectorstore/v1/observability"
	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
)

//
// ──────────────────────────────────────────────────────────────
//   QDRANT CLIENT WRAPPER
// ──────────────────────────────────────────────────────────────
//
// This file defines a thin wrapper around the official Qdrant Go client
// that implements vectordb.Store for a single collection.
//
// Responsibilities:
//   • Establish and validate connectivity with Qdrant.
//   • Map caller string ids onto Qdrant point ids.
//   • Offer a safe API suitable for Fx dependency injection.
//

const component = "qdrant"

// pointNamespace seeds the UUIDv5 point ids derived from caller ids.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("github.com/Aleph-Alpha/vectorstore/v1/qdrant"))

// QdrantClient wraps the official Qdrant Go client and implements
// vectordb.Store on top of one collection.
type QdrantClient struct {
	api      *qdrant.Client
	cfg      *Config
	logger   Logger
	observer observability.Observer

	// userMu serializes the read-then-create sequence of GetUserID.
	userMu sync.Mutex
	closed atomic.Bool
}

var (
	_ vectordb.Store     = (*QdrantClient)(nil)
	_ vectordb.Describer = (*QdrantClient)(nil)
)

// NewClient ──────────────────────────────────────────────────────────────
// NewClient
// ──────────────────────────────────────────────────────────────
//
// NewClient constructs a new instance of QdrantClient and validates
// connectivity via a health check.
//
// The Qdrant Go SDK creates lightweight gRPC connections, so this method
// performs an immediate health check to fail fast if the service is unreachable.
//
// Example:
//
//	client, err := qdrant.NewClient(qdrant.FromEndpoint("localhost").WithCollection("memories", 768))
func NewClient(cfg *Config) (*QdrantClient, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	api, err := qdrant.NewClient(&qdrant.Config{
		Host:                   cfg.Endpoint,
		Port:                   cfg.Port,
		APIKey:                 cfg.ApiKey,
		UseTLS:                 cfg.UseTLS,
		SkipCompatibilityCheck: !cfg.CheckCompatibility,
	})
	if err != nil {
		return nil, fmt.Errorf("[Qdrant] failed to initialize client: %w", err)
	}

	qc := &QdrantClient{
		api:    api,
		cfg:    cfg,
		logger: cfg.Logger,
	}

	if err := qc.healthCheck(); err != nil {
		_ = api.Close()
		return nil, err
	}
	return qc, nil
}

// WithObserver sets the observer for this client and returns the client for method chaining.
func (c *QdrantClient) WithObserver(observer observability.Observer) *QdrantClient {
	c.observer = observer
	return c
}

// WithLogger sets the logger for this client and returns the client for method chaining.
func (c *QdrantClient) WithLogger(logger Logger) *QdrantClient {
	c.logger = logger
	return c
}

// ──────────────────────────────────────────────────────────────
// healthCheck
// ──────────────────────────────────────────────────────────────
//
// healthCheck verifies the availability of the Qdrant service
// by calling the health endpoint through the SDK.
func (c *QdrantClient) healthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()

	resp, err := c.api.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("[Qdrant] health check failed: %w", remoteError(err))
	}

	if c.logger != nil {
		c.logger.Info("qdrant health check passed", nil, map[string]interface{}{
			"title":    resp.GetTitle(),
			"version":  resp.GetVersion(),
			"endpoint": c.cfg.Endpoint,
		})
	}
	return nil
}

// Client returns the underlying Qdrant SDK client.
// This is useful for direct access to low-level operations.
func (c *QdrantClient) Client() *qdrant.Client {
	return c.api
}

// Config returns the effective configuration.
func (c *QdrantClient) Config() Config {
	return *c.cfg
}

// Close ──────────────────────────────────────────────────────────────
// Close
// ──────────────────────────────────────────────────────────────
//
// Close shuts down the gRPC connection pool. Calling it more than once is safe.
func (c *QdrantClient) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := c.api.Close(); err != nil {
		return fmt.Errorf("[Qdrant] failed to close client: %w", err)
	}
	if c.logger != nil {
		c.logger.Info("qdrant client closed", nil, map[string]interface{}{"collection": c.cfg.Collection})
	}
	return nil
}

// pointID maps a caller id onto a deterministic Qdrant UUID point id.
func pointID(id string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(pointNamespace, []byte(id)).String())
}
