package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/asaidimu/go-dynaquery/core/persistence"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var _ Querier = (*pgxpool.Pool)(nil)

// Connect opens a connection pool for dsn, pings it and wraps it in an
// interactor. The caller owns the pool and must close it.
func Connect(ctx context.Context, dsn string, logger *zap.Logger, options *persistence.InteractorOptions) (*pgxpool.Pool, persistence.DatabaseInteractor, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, NewPostgresInteractor(pool, logger, options, nil), nil
}
