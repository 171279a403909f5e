package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// ErrEmptyDSN is returned by Open when no DSN is configured.
var ErrEmptyDSN = errors.New("db: DSN is empty")

const pingTimeout = 5 * time.Second

// Open opens a Postgres connection using the given DSN. Caller must call Close when done.
func Open(dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, ErrEmptyDSN
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Privileged is a database handle connected as the service role, which bypasses row-level security.
// It is a distinct type from the ordinary *sql.DB so it cannot be handed to request-scoped code by accident;
// construct it only in composition roots (cmd/*) and pass it to store adapters.
type Privileged struct {
	*sql.DB
}

// NewPrivileged marks an already-open connection as privileged.
func NewPrivileged(conn *sql.DB) *Privileged {
	return &Privileged{DB: conn}
}

// OpenPrivileged opens the service-role connection for dsn.
func OpenPrivileged(dsn string) (*Privileged, error) {
	conn, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	return NewPrivileged(conn), nil
}
