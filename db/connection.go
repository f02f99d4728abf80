package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	// registers the postgres driver
	_ "github.com/lib/pq"
)

// Run history writes one row per run, so a small pool is plenty.
const (
	maxOpenConns    = 4
	maxIdleConns    = 2
	connMaxIdleTime = 5 * time.Minute
)

// NewConnection opens the run history database and checks it is reachable.
func NewConnection(ctx context.Context, databaseURL string) (*sqlx.DB, error) {
	conn, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open run history database: %w", err)
	}
	conn.SetMaxOpenConns(maxOpenConns)
	conn.SetMaxIdleConns(maxIdleConns)
	conn.SetConnMaxIdleTime(connMaxIdleTime)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to reach run history database: %w", err)
	}
	return conn, nil
}
