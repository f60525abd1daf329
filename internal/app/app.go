// Package app assembles the backend transports and the query cache from a
// config.Config. Both binaries share it.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lytoranea/website/internal/backend"
	"github.com/lytoranea/website/internal/backend/postgres"
	"github.com/lytoranea/website/internal/backend/rest"
	"github.com/lytoranea/website/internal/config"
	"github.com/lytoranea/website/internal/query"
)

// Deps are the long-lived collaborators built from config.
type Deps struct {
	Dialer backend.Dialer
	Cache  *query.Cache

	closers []func()
}

// Close releases pools and connections in reverse order.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// Build dials the configured transports. With a DSN, tables and procedures go
// straight to Postgres and only object storage uses the REST API. With a redis
// address the query cache is shared across processes.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Deps, error) {
	d := &Deps{}

	var dialer backend.Dialer = rest.NewDialer(rest.Config{
		BaseURL: cfg.BackendURL,
		AnonKey: cfg.AnonKey,
		Timeout: cfg.HTTPTimeout,
	}, nil)

	if cfg.DatabaseURL != "" {
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		d.closers = append(d.closers, db.Close)
		dialer = postgres.NewDialer(postgres.NewBackend(db), dialer)
		log.Info("direct postgres transport enabled")
	}
	d.Dialer = dialer

	var store query.Store = query.NewMemoryStore()
	if cfg.RedisAddr != "" {
		rdb := query.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			d.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		d.closers = append(d.closers, func() { _ = rdb.Close() })
		store = query.NewRedisStore(rdb, "")
		log.Info("shared query cache", zap.String("redis", cfg.RedisAddr))
	}
	d.Cache = query.New(store, cfg.CacheTTL, log)
	return d, nil
}
