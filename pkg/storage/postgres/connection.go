// Package postgres implements the durable relay stores on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/relaypub/relay/pkg/storage"
)

// Open connects to PostgreSQL, configures the connection pool and verifies
// the connection with a bounded ping.
func Open(cfg storage.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.PostgresMaxConns)
	db.SetMaxIdleConns(cfg.PostgresMinConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	timeout := cfg.PostgresTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return db, nil
}

// EnsureSchema creates the relay tables if they do not exist. The UNIQUE
// constraint on subscribers.url is the only concurrency control between
// racing subscribe calls, so it must live in the schema rather than in
// application code.
func EnsureSchema(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS subscribers (
		id BIGSERIAL PRIMARY KEY,
		url VARCHAR(500) NOT NULL UNIQUE,
		secret VARCHAR(100) NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		body TEXT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_subscribers_active ON subscribers(active);
	CREATE INDEX IF NOT EXISTS idx_subscribers_created_at ON subscribers(created_at DESC);
	`

	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to ensure relay schema: %w", err)
	}
	return nil
}
