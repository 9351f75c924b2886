package vectorstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Aleph-Alpha/vectorstore/v1/logger"
	"github.com/Aleph-Alpha/vectorstore/v1/memory"
	"github.com/Aleph-Alpha/vectorstore/v1/observability"
	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
	"github.com/Aleph-Alpha/vectorstore/v1/vectordb/vectordbtest"
	"github.com/Aleph-Alpha/vectorstore/v1/vectorize"
)

const testDimension = 8

func memoryConfig() Config {
	cfg := DefaultConfig()
	cfg.Memory.Dimension = testDimension
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ProviderMemory, cfg.Provider)
	assert.Equal(t, vectorize.DefaultAPIBaseURL, cfg.Vectorize.APIBaseURL)
	assert.Equal(t, memory.DefaultCollection, cfg.Memory.Collection)
	assert.NotEmpty(t, cfg.Qdrant.Endpoint)
	assert.NotEmpty(t, cfg.PGVector.Table)
	assert.NoError(t, cfg.Validate())
}

func TestNewUnknownProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = "pinecone"

	store, err := New(cfg)
	require.Error(t, err)
	assert.Nil(t, store)
	assert.True(t, vectordb.IsInvalidArgumentError(err))
	assert.Contains(t, err.Error(), "pinecone")
}

func TestNewMemory(t *testing.T) {
	cfg := memoryConfig()
	cfg.Provider = "  Memory "

	var mu sync.Mutex
	var events []observability.OperationContext
	obs := observability.ObserverFunc(func(op observability.OperationContext) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, op)
	})

	core, logs := observer.New(zapcore.InfoLevel)
	log := logger.NewFromZap(zap.New(core), false)

	store, err := New(cfg, WithLogger(log), WithObserver(obs))
	require.NoError(t, err)
	require.IsType(t, &memory.Store{}, store)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	require.NoError(t, store.Initialize(ctx))
	require.NoError(t, store.Insert(ctx,
		[][]float32{vectordbtest.Unit(testDimension, 0)},
		[]string{"a"},
		[]map[string]any{{"tag": "x"}},
	))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	assert.Equal(t, "memory", events[len(events)-1].Component)
	assert.NotEmpty(t, logs.FilterMessage("Vector store created").All())
}

func TestNewVectorize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Provider = ProviderVectorize

	_, err := New(cfg)
	require.Error(t, err, "credentials are required")
	assert.True(t, vectordb.IsInvalidArgumentError(err), "got %v", err)

	cfg.Vectorize = cfg.Vectorize.WithCredentials("account", "token").WithIndex("memories", testDimension)
	store, err := New(cfg)
	require.NoError(t, err)
	assert.IsType(t, &vectorize.Client{}, store)
	assert.NoError(t, store.Close())
}

func TestFactoryConformance(t *testing.T) {
	vectordbtest.Run(t, vectordbtest.Harness{
		Dimension: testDimension,
		NewStore: func(t *testing.T) vectordb.Store {
			store, err := New(memoryConfig())
			require.NoError(t, err)
			require.NoError(t, store.Initialize(context.Background()))
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
		Capabilities: vectordbtest.Capabilities{
			Update:         true,
			List:           true,
			UserID:         true,
			Overwrite:      true,
			ReturnsVectors: true,
		},
	})
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
provider: qdrant
qdrant:
  endpoint: qdrant.internal
  collection: memories
  dimension: 768
  timeout: 3s
  payload_indexes:
    tag: keyword
pgvector:
  connection:
    host: db.internal
  table: memories
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ProviderQdrant, cfg.Provider)
	assert.Equal(t, "qdrant.internal", cfg.Qdrant.Endpoint)
	assert.Equal(t, "memories", cfg.Qdrant.Collection)
	assert.Equal(t, 768, cfg.Qdrant.Dimension)
	assert.Equal(t, 3*time.Second, cfg.Qdrant.Timeout)
	assert.Equal(t, map[string]string{"tag": "keyword"}, cfg.Qdrant.PayloadIndexes)
	assert.Equal(t, "db.internal", cfg.PGVector.Connection.Host)
	assert.Equal(t, "memories", cfg.PGVector.Table)

	defaults := DefaultConfig()
	assert.Equal(t, defaults.Qdrant.Port, cfg.Qdrant.Port, "unset keys keep their defaults")
	assert.Equal(t, defaults.PGVector.Connection.Port, cfg.PGVector.Connection.Port)
	assert.Equal(t, defaults.Vectorize, cfg.Vectorize)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: qdrant\n"), 0o600))

	t.Setenv("VECTORSTORE_PROVIDER", "vectorize")
	t.Setenv("VECTORSTORE_SKIP_INITIALIZE", "true")
	t.Setenv("VECTORSTORE_VECTORIZE_API_TOKEN", "secret")
	t.Setenv("VECTORSTORE_VECTORIZE_DIMENSION", "384")
	t.Setenv("VECTORSTORE_PGVECTOR_CONNECTION_HOST", "pg.internal")
	t.Setenv("VECTORSTORE_PGVECTOR_CONNECTION_DETAILS_MAX_OPEN_CONNS", "7")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ProviderVectorize, cfg.Provider)
	assert.True(t, cfg.SkipInitialize)
	assert.Equal(t, "secret", cfg.Vectorize.APIToken)
	assert.Equal(t, 384, cfg.Vectorize.Dimension)
	assert.Equal(t, "pg.internal", cfg.PGVector.Connection.Host)
	assert.Equal(t, 7, cfg.PGVector.ConnectionDetails.MaxOpenConns)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := LoadConfigBytes([]byte("provider: [unterminated"))
		require.Error(t, err)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := LoadConfigBytes([]byte("provider: faiss\n"))
		require.Error(t, err)
		assert.True(t, vectordb.IsInvalidArgumentError(err))
	})

	t.Run("no file", func(t *testing.T) {
		cfg, err := LoadConfig("")
		require.NoError(t, err)
		assert.Equal(t, ProviderMemory, cfg.Provider)
	})
}

func TestEnvKey(t *testing.T) {
	tests := []struct{ in, want string }{
		{"VECTORSTORE_PROVIDER", "provider"},
		{"VECTORSTORE_SKIP_INITIALIZE", "skip_initialize"},
		{"VECTORSTORE_QDRANT_API_KEY", "qdrant.api_key"},
		{"VECTORSTORE_MEMORY_PERSIST_PATH", "memory.persist_path"},
		{"VECTORSTORE_PGVECTOR_TABLE", "pgvector.table"},
		{"VECTORSTORE_PGVECTOR_CONNECTION_DB_NAME", "pgvector.connection.db_name"},
		{"VECTORSTORE_PGVECTOR_CONNECTION_DETAILS_MAX_IDLE_CONNS", "pgvector.connection_details.max_idle_conns"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, envKey(tt.in), tt.in)
	}
}

func TestFXModule(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	var store vectordb.Store
	app := fxtest.New(t,
		fx.Provide(
			memoryConfig,
			func() logger.Logger { return logger.NewFromZap(zap.New(core), false) },
		),
		FXModule,
		fx.Populate(&store),
	)
	app.RequireStart()

	ctx := context.Background()
	require.NoError(t, store.Insert(ctx,
		[][]float32{vectordbtest.Unit(testDimension, 1)},
		[]string{"doc"},
		[]map[string]any{{"title": "hello"}},
	))
	got, err := store.Get(ctx, "doc")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hello", got.Payload["title"])

	app.RequireStop()
	assert.NotEmpty(t, logs.FilterMessage("Vector store created").All())
}

func TestFXModuleSkipInitialize(t *testing.T) {
	cfg := memoryConfig()
	cfg.SkipInitialize = true

	var store vectordb.Store
	app := fxtest.New(t,
		fx.Provide(func() Config { return cfg }),
		FXModule,
		fx.Populate(&store),
	)
	app.RequireStart()
	defer app.RequireStop()

	_, err := store.Get(context.Background(), "doc")
	assert.Error(t, err, "store must not be initialized")
}
