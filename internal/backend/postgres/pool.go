// Package postgres implements the table and procedure parts of the backend facade
// over a direct PostgreSQL connection, for self-hosted and development databases.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ApplicationName tags backend sessions in pg_stat_activity.
const ApplicationName = "lytoranea"

// MaxConns bounds the pool; admin tools and the site issue few concurrent reads.
const MaxConns = 4

// PgxPool is the part of *pgxpool.Pool the facade uses. pgxmock.PgxPoolIface
// satisfies it in tests.
type PgxPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// DB holds the pool.
type DB struct{ Pool PgxPool }

// New parses dsn, applies the pool defaults and verifies connectivity.
func New(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > MaxConns {
		cfg.MaxConns = MaxConns
	}
	if cfg.ConnConfig.RuntimeParams["application_name"] == "" {
		cfg.ConnConfig.RuntimeParams["application_name"] = ApplicationName
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Close closes the pool.
func (db *DB) Close() { db.Pool.Close() }
