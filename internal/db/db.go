// Package db opens the Postgres pool and brings the schema up to date before
// the server takes traffic.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"pharmago/internal/config"
)

const pingTimeout = 5 * time.Second

// Connect opens the pool described by cfg, verifies the server is reachable
// and applies pending migrations. The pool is sized for dashboard polling:
// many short reads, few writes.
func Connect(cfg *config.Config) (*sql.DB, error) {
	pool, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	pool.SetMaxOpenConns(25)
	pool.SetMaxIdleConns(5)
	pool.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres unreachable: %w", err)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrations dialect: %w", err)
	}
	if err := goose.Up(pool, cfg.MigrationsDir); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply migrations from %s: %w", cfg.MigrationsDir, err)
	}
	return pool, nil
}
