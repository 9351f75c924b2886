package qdrant

import (
	"context"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/vectorstore/v1/observability"
	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
)

// FXModule is an fx.Module that provides the Qdrant client.
//
// The module:
//  1. Provides *QdrantClient and exposes it as vectordb.Store
//  2. Initializes the collection on start and closes the connection on stop
//
// Usage:
//
//	app := fx.New(
//	    qdrant.FXModule,
//	    fx.Provide(func() *qdrant.Config {
//	        return qdrant.FromEndpoint("localhost").WithCollection("memories", 768)
//	    }),
//	)
var FXModule = fx.Module("qdrant",
	fx.Provide(
		NewQdrantClient,
		fx.Annotate(
			func(c *QdrantClient) vectordb.Store { return c },
			fx.As(new(vectordb.Store)),
		),
	),
	fx.Invoke(RegisterQdrantLifecycle),
)

// QdrantParams groups the dependencies needed to create a Qdrant client.
type QdrantParams struct {
	fx.In

	Config   *Config
	Logger   Logger                 `optional:"true"`
	Observer observability.Observer `optional:"true"`
}

// NewQdrantClient creates a client from injected dependencies. The optional
// logger and observer are attached when present.
func NewQdrantClient(p QdrantParams) (*QdrantClient, error) {
	cfg := DefaultConfig()
	if p.Config != nil {
		copied := *p.Config
		cfg = &copied
	}
	if p.Logger != nil {
		cfg.Logger = p.Logger
	}
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if p.Observer != nil {
		client = client.WithObserver(p.Observer)
	}
	return client, nil
}

// RegisterQdrantLifecycle initializes the collection on start and closes the client on stop.
func RegisterQdrantLifecycle(lc fx.Lifecycle, client *QdrantClient) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Initialize(ctx)
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
}
