package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-accounts/pkg/retry"
)

// ApplicationName is reported to postgres on every pooled connection.
const ApplicationName = "ekaya-accounts"

// DB is the account store's connection pool.
type DB struct {
	*pgxpool.Pool
}

// PoolOptions tunes the pool. Zero fields keep the defaults below.
type PoolOptions struct {
	MaxConns        int32         // default 25
	MaxConnLifetime time.Duration // default 1h
	MaxConnIdleTime time.Duration // default 30m
	Startup         *retry.Policy // default retry.Startup()
}

func (o PoolOptions) apply(pc *pgxpool.Config) {
	pc.MaxConns = orDefault(o.MaxConns, 25)
	pc.MaxConnLifetime = orDefault(o.MaxConnLifetime, time.Hour)
	pc.MaxConnIdleTime = orDefault(o.MaxConnIdleTime, 30*time.Minute)
	pc.ConnConfig.RuntimeParams["application_name"] = ApplicationName
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

// NewConnection opens the pool for url and blocks until postgres answers,
// waiting out a server that is still starting.
func NewConnection(ctx context.Context, url string, opts PoolOptions, logger *zap.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	opts.apply(poolConfig)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	policy := retry.Startup()
	if opts.Startup != nil {
		policy = *opts.Startup
	}

	attempts := 0
	err = retry.Do(ctx, policy, func(ctx context.Context) error {
		attempts++
		if err := pool.Ping(ctx); err != nil {
			logger.Debug("Database not ready",
				zap.Int("attempt", attempts),
				zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable after %d attempts: %w", attempts, err)
	}

	logger.Info("Connected to database",
		zap.String("host", poolConfig.ConnConfig.Host),
		zap.String("database", poolConfig.ConnConfig.Database),
		zap.Int32("max_conns", poolConfig.MaxConns))

	return &DB{Pool: pool}, nil
}
