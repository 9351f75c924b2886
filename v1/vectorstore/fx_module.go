package vectorstore

import (
	"context"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/vectorstore/v1/logger"
	"github.com/Aleph-Alpha/vectorstore/v1/observability"
	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
)

// FXModule provides the vectordb.Store selected by an injected Config.
//
// The store is initialized on start unless Config.SkipInitialize is set and
// closed on stop. A logger.Logger and an observability.Observer (for example
// from metrics.FXModule) are attached when present.
//
// Usage:
//
//	app := fx.New(
//	    logger.FXModule,
//	    metrics.FXModule,
//	    vectorstore.FXModule,
//	    fx.Provide(func() (vectorstore.Config, error) {
//	        return vectorstore.LoadConfig("config.yaml")
//	    }),
//	)
var FXModule = fx.Module("vectorstore",
	fx.Provide(NewWithDI),
	fx.Invoke(RegisterLifecycle),
)

// Params groups the dependencies needed to create the store.
type Params struct {
	fx.In

	Config   Config
	Logger   logger.Logger          `optional:"true"`
	Observer observability.Observer `optional:"true"`
}

// NewWithDI builds the store from injected dependencies.
func NewWithDI(p Params) (vectordb.Store, error) {
	var opts []Option
	if p.Logger != nil {
		opts = append(opts, WithLogger(p.Logger))
	}
	if p.Observer != nil {
		opts = append(opts, WithObserver(p.Observer))
	}
	return New(p.Config, opts...)
}

// LifecycleParams groups the dependencies of RegisterLifecycle.
type LifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    Config
	Store     vectordb.Store
}

// RegisterLifecycle initializes the store on start and closes it on stop.
func RegisterLifecycle(p LifecycleParams) {
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if p.Config.SkipInitialize {
				return nil
			}
			return p.Store.Initialize(ctx)
		},
		OnStop: func(context.Context) error {
			return p.Store.Close()
		},
	})
}
