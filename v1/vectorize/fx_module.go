package vectorize

import (
	"context"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/vectorstore/v1/observability"
	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
)

// FXModule is an fx.Module that provides the Vectorize client.
//
// The module:
//  1. Provides *Client and exposes it as vectordb.Store
//  2. Initializes the index on start and closes the client on stop
//
// Usage:
//
//	app := fx.New(
//	    logger.FXModule,  // optional
//	    metrics.FXModule, // optional, provides an observability.Observer
//	    vectorize.FXModule,
//	    fx.Provide(func() vectorize.Config {
//	        return vectorize.DefaultConfig().
//	            WithCredentials(accountID, token).
//	            WithIndex("memories", 1536)
//	    }),
//	)
var FXModule = fx.Module("vectorize",
	fx.Provide(
		NewClientWithDI,
		fx.Annotate(
			func(c *Client) vectordb.Store { return c },
			fx.As(new(vectordb.Store)),
		),
	),
	fx.Invoke(RegisterVectorizeLifecycle),
)

// VectorizeParams groups the dependencies needed to create a Vectorize client.
type VectorizeParams struct {
	fx.In

	Config   Config
	Logger   Logger                 `optional:"true"`
	Observer observability.Observer `optional:"true"`
}

// NewClientWithDI creates a client from injected dependencies. The optional
// logger and observer are attached when present.
func NewClientWithDI(params VectorizeParams) (*Client, error) {
	if params.Logger != nil {
		params.Config.Logger = params.Logger
	}
	client, err := NewClient(params.Config)
	if err != nil {
		return nil, err
	}
	if params.Observer != nil {
		client = client.WithObserver(params.Observer)
	}
	return client, nil
}

// RegisterVectorizeLifecycle initializes the index on start and closes the client on stop.
func RegisterVectorizeLifecycle(lc fx.Lifecycle, client *Client) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Initialize(ctx)
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
}
