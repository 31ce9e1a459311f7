// Package database opens the PostGIS connection pool of the active
// deployment profile.
package database

import (
	"context"
	"fmt"

	"github.com/haitaton/gis-material-update/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConfig builds the pgxpool configuration of the active profile.
func PoolConfig(cfg *config.Config) (*pgxpool.Config, error) {
	uri, err := cfg.PgConnURI()
	if err != nil {
		return nil, err
	}
	profile, err := cfg.ActiveProfile()
	if err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(uri)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	db := profile.Database
	poolConfig.MaxConns = int32(db.MaxConns)
	poolConfig.MinConns = int32(db.MinConns)
	poolConfig.MaxConnLifetime = db.MaxConnLifetime
	poolConfig.MaxConnIdleTime = db.MaxConnIdleTime
	return poolConfig, nil
}

// Connect opens the pool and verifies the connection. The caller closes the
// pool.
func Connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := PoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
