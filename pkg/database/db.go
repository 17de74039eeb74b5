package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/aryan0dhankhar/bizdesk/internal/reliability/retry"
)

// Config holds database configuration
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// ConnectRetry controls how long startup waits for Postgres; nil uses
	// retry.DefaultConfig
	ConnectRetry *retry.Config
}

// ConnectionPool wraps the shared sqlx handle
type ConnectionPool struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewConnectionPool opens the pool and waits until Postgres answers a ping
func NewConnectionPool(ctx context.Context, config *Config, logger *slog.Logger) (*ConnectionPool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config.URL == "" {
		return nil, errors.New("database url is required")
	}

	db, err := sqlx.Open("postgres", config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(orDefault(config.MaxOpenConns, 25))
	db.SetMaxIdleConns(orDefault(config.MaxIdleConns, 5))
	db.SetConnMaxLifetime(orDefault(config.ConnMaxLifetime, 5*time.Minute))

	cp := &ConnectionPool{db: db, logger: logger}
	retryCfg := config.ConnectRetry
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	_, err = retry.Do(ctx, retryCfg, logger, "postgres ping", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, cp.Health(ctx)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connected",
		slog.Int("max_open_conns", db.Stats().MaxOpenConnections),
	)
	return cp, nil
}

func orDefault[T int | time.Duration](v, def T) T {
	if v > 0 {
		return v
	}
	return def
}

// DB returns the underlying sqlx handle
func (cp *ConnectionPool) DB() *sqlx.DB {
	return cp.db
}

// RegisterMetrics exposes pool statistics (open, in-use and idle
// connections, wait counts) on reg
func (cp *ConnectionPool) RegisterMetrics(reg prometheus.Registerer, name string) error {
	return reg.Register(collectors.NewDBStatsCollector(cp.db.DB, name))
}

// Close closes the database connection
func (cp *ConnectionPool) Close() error {
	if cp.db != nil {
		return cp.db.Close()
	}
	return nil
}

// Health pings the database with a short deadline
func (cp *ConnectionPool) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return cp.db.PingContext(ctx)
}
