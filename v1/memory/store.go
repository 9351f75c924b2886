package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"

	"github.com/Aleph-Alpha/vectorstore/v1/observability"
	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
)

const component = "memory"

var spanTracer = otel.Tracer("github.com/Aleph-Alpha/vectorstore/v1/memory")

// errNoEmbedding is returned by the collection's embedding function. The
// store always supplies vectors, so chromem must never try to embed text.
var errNoEmbedding = errors.New("memory: documents must carry an embedding")

// Store is an in-process vectordb.Store backed by chromem-go.
//
// chromem only supports cosine similarity and normalizes vectors on insert,
// so Get and Search return unit-length vectors.
type Store struct {
	cfg      Config
	db       *chromem.DB
	logger   Logger
	observer observability.Observer

	// mu serializes writes so Update's read-modify-write is atomic.
	mu         sync.RWMutex
	collection *chromem.Collection
	userID     string
	closed     bool
}

var (
	_ vectordb.Store     = (*Store)(nil)
	_ vectordb.Describer = (*Store)(nil)
)

// NewStore creates a store. Call Initialize before use.
func NewStore(cfg Config) (*Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var db *chromem.DB
	if cfg.PersistPath == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(cfg.PersistPath, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", cfg.PersistPath, err)
		}
		var err error
		db, err = chromem.NewPersistentDB(cfg.PersistPath, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}

	return &Store{
		cfg:    cfg,
		db:     db,
		logger: cfg.Logger,
		userID: cfg.UserID,
	}, nil
}

// WithObserver sets the observer for this store and returns the store for method chaining.
func (s *Store) WithObserver(observer observability.Observer) *Store {
	s.observer = observer
	return s
}

// WithLogger sets the logger for this store and returns the store for method chaining.
func (s *Store) WithLogger(logger Logger) *Store {
	s.logger = logger
	return s
}

// Dimension returns the configured vector length.
func (s *Store) Dimension() int { return s.cfg.Dimension }

func embeddingFunc(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedding
}

// coll returns the backing collection, or ErrInvalidArgument before Initialize.
func (s *Store) coll() (*chromem.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.collection == nil {
		return nil, fmt.Errorf("%w: collection %q is not initialized; call Initialize first", vectordb.ErrInvalidArgument, s.cfg.Collection)
	}
	return s.collection, nil
}

// Close marks the store closed. chromem persists on every write, so there is
// nothing to flush.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.logger != nil {
		s.logger.Info("memory store closed", nil, map[string]interface{}{"collection": s.cfg.Collection})
	}
	return nil
}
