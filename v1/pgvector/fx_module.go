package pgvector

import (
	"context"
	"sync"
	"time"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/vectorstore/v1/observability"
	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
)

// MonitorInterval is the health check period of the connection monitor
// started by the fx lifecycle.
var MonitorInterval = 10 * time.Second

// FXModule is an fx module that provides the pgvector store.
// It registers the constructor for dependency injection and sets up
// lifecycle hooks that initialize the table, monitor the connection and
// close the pool on shutdown.
//
// The module provides *PGVector and exposes it as vectordb.Store.
var FXModule = fx.Module("pgvector",
	fx.Provide(
		NewClientWithDI,
		fx.Annotate(
			func(p *PGVector) vectordb.Store { return p },
			fx.As(new(vectordb.Store)),
		),
	),
	fx.Invoke(RegisterPGVectorLifecycle),
)

// PGVectorParams groups the dependencies needed to create the store via dependency injection.
type PGVectorParams struct {
	fx.In

	Config   *Config
	Logger   Logger                 `optional:"true"`
	Observer observability.Observer `optional:"true"`
}

// NewClientWithDI creates the store from injected dependencies.
//
// Example usage with fx:
//
//	app := fx.New(
//	    pgvector.FXModule,
//	    fx.Provide(func() *pgvector.Config {
//	        cfg := pgvector.DefaultConfig()
//	        cfg.Connection.DbName = "app"
//	        return cfg
//	    }),
//	)
func NewClientWithDI(params PGVectorParams) (*PGVector, error) {
	cfg := DefaultConfig()
	if params.Config != nil {
		copied := *params.Config
		cfg = &copied
	}
	if params.Logger != nil {
		cfg.Logger = params.Logger
	}
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if params.Observer != nil {
		client = client.WithObserver(params.Observer)
	}
	return client, nil
}

// PGVectorLifeCycleParams groups the dependencies for lifecycle management.
type PGVectorLifeCycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	PGVector  *PGVector
}

// RegisterPGVectorLifecycle registers lifecycle hooks for the store.
// It sets up:
// 1. Table initialization on application start
// 2. Connection monitoring and automatic reconnection while running
// 3. Graceful shutdown of database connections on application stop
//
// The function uses a WaitGroup to ensure that all goroutines complete
// before the application terminates.
func RegisterPGVectorLifecycle(params PGVectorLifeCycleParams) {
	wg := &sync.WaitGroup{}
	ctx, cancel := context.WithCancel(context.Background())

	params.Lifecycle.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			if err := params.PGVector.Initialize(startCtx); err != nil {
				cancel()
				return err
			}

			wg.Add(2)
			go func() {
				defer wg.Done()
				params.PGVector.MonitorConnection(ctx, MonitorInterval)
			}()
			go func() {
				defer wg.Done()
				params.PGVector.RetryConnection(ctx)
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			err := params.PGVector.Close()
			wg.Wait()
			return err
		},
	})
}
