package tracer

import (
	"context"

	"go.uber.org/fx"
)

// FXModule provides a Uber FX module that configures distributed tracing for your application.
// It provides *Tracer through NewClient and flushes pending spans on shutdown.
//
// Usage:
//
//	app := fx.New(
//	    tracer.FXModule,
//	    fx.Provide(func() tracer.Config { return tracer.Config{ServiceName: "memory-api"} }),
//	)
var FXModule = fx.Module("tracer",
	fx.Provide(
		NewClientWithDI,
	),
	fx.Invoke(RegisterTracerLifecycle),
)

// TracerParams groups the dependencies needed to create a Tracer.
type TracerParams struct {
	fx.In

	Config Config
	Logger Logger `optional:"true"`
}

// NewClientWithDI creates a Tracer from fx-provided dependencies.
func NewClientWithDI(params TracerParams) (*Tracer, error) {
	return NewClient(params.Config, params.Logger)
}

// RegisterTracerLifecycle registers an OnStop hook that shuts the tracer
// provider down, flushing spans to the exporter.
func RegisterTracerLifecycle(lc fx.Lifecycle, tracer *Tracer) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if tracer.logger != nil {
				tracer.logger.Info("shutting down tracer", nil, nil)
			}
			if tracer.tracer == nil {
				if tracer.logger != nil {
					tracer.logger.Warn("tracer was nil during shutdown", nil, nil)
				}
				return nil
			}
			return tracer.Shutdown(ctx)
		},
	})
}
