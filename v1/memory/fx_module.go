package memory

import (
	"context"

	"go.uber.org/fx"

	"github.com/Aleph-Alpha/vectorstore/v1/observability"
	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
)

// FXModule provides a *Store and registers it as vectordb.Store.
// The collection is initialized on start.
//
// Usage:
//
//	app := fx.New(
//	    memory.FXModule,
//	    fx.Provide(func() memory.Config { return memory.DefaultConfig() }),
//	)
var FXModule = fx.Module("memory",
	fx.Provide(
		NewClientWithDI,
		fx.Annotate(
			func(s *Store) vectordb.Store { return s },
			fx.As(new(vectordb.Store)),
		),
	),
	fx.Invoke(RegisterLifecycle),
)

// Params groups the dependencies needed to create a Store.
type Params struct {
	fx.In

	Config   Config
	Logger   Logger                 `optional:"true"`
	Observer observability.Observer `optional:"true"`
}

// NewClientWithDI creates a Store from injected dependencies.
func NewClientWithDI(p Params) (*Store, error) {
	if p.Logger != nil {
		p.Config.Logger = p.Logger
	}
	s, err := NewStore(p.Config)
	if err != nil {
		return nil, err
	}
	if p.Observer != nil {
		s = s.WithObserver(p.Observer)
	}
	return s, nil
}

// RegisterLifecycle initializes the store on start and closes it on stop.
func RegisterLifecycle(lc fx.Lifecycle, s *Store) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return s.Initialize(ctx)
		},
		OnStop: func(context.Context) error {
			return s.Close()
		},
	})
}
