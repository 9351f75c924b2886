package vectorstore

import (
	"github.com/Aleph-Alpha/vectorstore/v1/memory"
	"github.com/Aleph-Alpha/vectorstore/v1/observability"
	"github.com/Aleph-Alpha/vectorstore/v1/pgvector"
	"github.com/Aleph-Alpha/vectorstore/v1/qdrant"
	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
	"github.com/Aleph-Alpha/vectorstore/v1/vectorize"
)

type options struct {
	logger   Logger
	observer observability.Observer
}

// Option customises the store built by New.
type Option func(*options)

// WithLogger attaches a logger to the adapter.
func WithLogger(logger Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithObserver attaches an operation observer to the adapter.
func WithObserver(observer observability.Observer) Option {
	return func(o *options) { o.observer = observer }
}

// New builds the adapter selected by cfg.Provider. The store is not
// initialized; call Initialize before use.
func New(cfg Config, opts ...Option) (vectordb.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store, err := build(cfg, o)
	if err != nil {
		return nil, err
	}
	if o.logger != nil {
		o.logger.Info("Vector store created", nil, map[string]interface{}{
			"provider": cfg.provider(),
		})
	}
	return store, nil
}

func build(cfg Config, o options) (vectordb.Store, error) {
	switch cfg.provider() {
	case ProviderVectorize:
		c := cfg.Vectorize
		if o.logger != nil {
			c.Logger = o.logger
		}
		client, err := vectorize.NewClient(c)
		if err != nil {
			return nil, err
		}
		if o.observer != nil {
			client = client.WithObserver(o.observer)
		}
		return client, nil

	case ProviderQdrant:
		c := cfg.Qdrant
		if o.logger != nil {
			c.Logger = o.logger
		}
		client, err := qdrant.NewClient(&c)
		if err != nil {
			return nil, err
		}
		if o.observer != nil {
			client = client.WithObserver(o.observer)
		}
		return client, nil

	case ProviderPGVector:
		c := cfg.PGVector
		if o.logger != nil {
			c.Logger = o.logger
		}
		client, err := pgvector.NewClient(&c)
		if err != nil {
			return nil, err
		}
		if o.observer != nil {
			client = client.WithObserver(o.observer)
		}
		return client, nil

	default:
		c := cfg.Memory
		if o.logger != nil {
			c.Logger = o.logger
		}
		store, err := memory.NewStore(c)
		if err != nil {
			return nil, err
		}
		if o.observer != nil {
			store = store.WithObserver(o.observer)
		}
		return store, nil
	}
}
