package pgvector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// lazyConn opens a pool that does not dial until first use.
func lazyConn(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := DefaultConfig()
	conn, err := gorm.Open(postgres.Open(cfg.Connection.dsn()), &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)
	return conn
}

func newUnconnectedStore(t *testing.T) *PGVector {
	t.Helper()
	p := &PGVector{
		cfg:             DefaultConfig(),
		shutdownSignal:  make(chan struct{}),
		retryChanSignal: make(chan error, 1),
	}
	p.client.Store(lazyConn(t))
	return p
}

func pingErr(t *testing.T, conn *gorm.DB) error {
	t.Helper()
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	return sqlDB.PingContext(context.Background())
}

func TestInstallReplacesConnection(t *testing.T) {
	p := newUnconnectedStore(t)
	old := p.DB()
	next := lazyConn(t)

	require.True(t, p.install(next))
	assert.Same(t, next, p.DB())
	assert.ErrorContains(t, pingErr(t, old), "database is closed")

	require.NoError(t, p.Close())
}

func TestInstallAfterCloseDiscardsConnection(t *testing.T) {
	p := newUnconnectedStore(t)
	current := p.DB()
	require.NoError(t, p.Close())

	next := lazyConn(t)
	assert.False(t, p.install(next))
	assert.Same(t, current, p.DB(), "a closed store keeps its connection")
	assert.ErrorContains(t, pingErr(t, next), "database is closed")
}
