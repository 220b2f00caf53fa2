// Package store provides PostgreSQL persistence for pipelines, builds,
// alert rules, and alert trigger history.
//
// The two hot spots under concurrent webhook delivery are handled with
// single conditional statements rather than read-modify-write: build upserts
// only advance along the pending -> running -> terminal order, and rule
// triggering is a compare-and-set on (status, last_triggered).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store wraps a database connection and provides pipeline, build, rule, and
// trigger operations.
type Store struct {
	conn *sql.DB
}

// New creates a store using the provided DSN.
func New(dsn string) (*Store, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Successfully connected to PostgreSQL database")

	return &Store{conn: conn}, nil
}

// NewWithConn wraps an existing connection. Used by tests with sqlmock.
func NewWithConn(conn *sql.DB) *Store {
	return &Store{conn: conn}
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
