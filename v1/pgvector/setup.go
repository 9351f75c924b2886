package pgvector

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Aleph-Alpha/vectorstore/v1/observability"
	"github.com/Aleph-Alpha/vectorstore/v1/vectordb"
)

const component = "pgvector"

// PGVector implements vectordb.Store on a Postgres table with a pgvector
// embedding column. It wraps gorm.DB with connection monitoring and
// automatic reconnection.
//
// Concurrency: the active *gorm.DB pointer is stored in an atomic pointer and can be
// swapped during reconnection without blocking readers.
type PGVector struct {
	cfg      *Config
	client   atomic.Pointer[gorm.DB]
	logger   Logger
	observer observability.Observer

	shutdownSignal  chan struct{}
	retryChanSignal chan error

	closeRetryChanOnce sync.Once
	closeShutdownOnce  sync.Once
	closed             atomic.Bool
}

var (
	_ vectordb.Store     = (*PGVector)(nil)
	_ vectordb.Describer = (*PGVector)(nil)
)

// NewClient validates cfg, connects to the database and pings it.
//
// Example:
//
//	cfg := pgvector.DefaultConfig()
//	cfg.Connection.DbName = "app"
//	store, err := pgvector.NewClient(cfg)
func NewClient(cfg *Config) (*PGVector, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	conn, err := connectToPostgres(cfg)
	if err != nil {
		return nil, fmt.Errorf("[pgvector] %w", err)
	}

	p := &PGVector{
		cfg:             cfg,
		logger:          cfg.Logger,
		shutdownSignal:  make(chan struct{}),
		retryChanSignal: make(chan error, 1),
	}
	p.client.Store(conn)

	if err := p.healthCheck(); err != nil {
		_ = p.closeDB(conn)
		return nil, fmt.Errorf("[pgvector] %w", err)
	}
	if p.logger != nil {
		p.logger.Info("connected to postgres", nil, map[string]interface{}{
			"host":  cfg.Connection.Host,
			"db":    cfg.Connection.DbName,
			"table": cfg.Table,
		})
	}
	return p, nil
}

// connectToPostgres opens a gorm connection and configures the pool.
func connectToPostgres(cfg *Config) (*gorm.DB, error) {
	database, err := gorm.Open(
		postgres.Open(cfg.Connection.dsn()),
		&gorm.Config{
			Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
			SkipDefaultTransaction: true,
		})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", remoteError(err))
	}

	sqlDB, err := database.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get postgres database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.ConnectionDetails.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.ConnectionDetails.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnectionDetails.ConnMaxLifetime)

	return database, nil
}

// WithObserver sets the observer for this client and returns the client for method chaining.
func (p *PGVector) WithObserver(observer observability.Observer) *PGVector {
	p.observer = observer
	return p
}

// WithLogger sets the logger for this client and returns the client for method chaining.
func (p *PGVector) WithLogger(logger Logger) *PGVector {
	p.logger = logger
	return p
}

// DB returns the current gorm connection.
func (p *PGVector) DB() *gorm.DB {
	return p.client.Load()
}

// Config returns the effective configuration.
func (p *PGVector) Config() Config {
	return *p.cfg
}

// RetryConnection reconnects to the database whenever MonitorConnection
// reports a failed health check. It returns on shutdown or when ctx is done.
//
// It implements two nested loops:
// - The outer loop waits for retry signals
// - The inner loop attempts reconnection until successful
func (p *PGVector) RetryConnection(ctx context.Context) {
outerLoop:
	for {
		select {
		case <-p.shutdownSignal:
			return
		case <-ctx.Done():
			return
		case _, ok := <-p.retryChanSignal:
			if !ok {
				return
			}
		innerLoop:
			for {
				select {
				case <-p.shutdownSignal:
					return
				case <-ctx.Done():
					return
				default:
					newConn, err := connectToPostgres(p.cfg)
					if err != nil {
						if p.logger != nil {
							p.logger.Error("postgres reconnection failed", err)
						}
						time.Sleep(time.Second)
						continue innerLoop
					}
					if !p.install(newConn) {
						return
					}
					if p.logger != nil {
						p.logger.Info("reconnected to postgres", nil)
					}
					continue outerLoop
				}
			}
		}
	}
}

// install swaps conn in as the current connection and closes the previous
// one. After Close it closes conn instead and reports false.
func (p *PGVector) install(conn *gorm.DB) bool {
	if p.closed.Load() {
		_ = p.closeDB(conn)
		return false
	}
	old := p.client.Swap(conn)
	if old != nil {
		_ = p.closeDB(old)
	}
	// Close may have read the previous connection before the swap.
	if p.closed.Load() {
		_ = p.closeDB(conn)
		return false
	}
	return true
}

// MonitorConnection pings the database every interval and signals
// RetryConnection when the ping fails.
func (p *PGVector) MonitorConnection(ctx context.Context, interval time.Duration) {
	defer p.closeRetryChanOnce.Do(func() {
		close(p.retryChanSignal)
	})

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.shutdownSignal:
			return
		case <-ticker.C:
			if err := p.healthCheck(); err != nil {
				if p.logger != nil {
					p.logger.Warn("postgres health check failed", err)
				}
				select {
				case p.retryChanSignal <- err:
				default:
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

// healthCheck pings the current connection within Config.Timeout.
func (p *PGVector) healthCheck() error {
	dbConn := p.DB()
	if dbConn == nil {
		return fmt.Errorf("database client is not initialized")
	}

	db, err := dbConn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance during health check: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed during health check: %w", remoteError(err))
	}
	return nil
}

// Close stops connection monitoring and closes the pool. Calling it more than once is safe.
func (p *PGVector) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.closeShutdownOnce.Do(func() {
		close(p.shutdownSignal)
	})

	if err := p.closeDB(p.DB()); err != nil {
		return fmt.Errorf("[pgvector] failed to close connection: %w", err)
	}
	if p.logger != nil {
		p.logger.Info("postgres connection closed", nil, map[string]interface{}{"table": p.cfg.Table})
	}
	return nil
}

func (p *PGVector) closeDB(conn *gorm.DB) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
