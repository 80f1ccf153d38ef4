// Package db provides database connection infrastructure.
// This is part of the platform layer and contains no business logic.
package db

import (
	"context"
	"strconv"
	"time"

	"hotline_backend/platform/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

const applicationName = "hotline_backend"

// NewPool opens the incident store pool. Every session carries the
// configured statement timeout.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.GetDatabaseURL())
	if err != nil {
		return nil, err
	}
	applyPoolSettings(poolConfig, cfg)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

func applyPoolSettings(poolConfig *pgxpool.Config, cfg config.DatabaseConfig) {
	poolConfig.MaxConns = cfg.GetDatabaseMaxConns()
	poolConfig.MinConns = min(2, poolConfig.MaxConns)
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 15 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second

	params := poolConfig.ConnConfig.RuntimeParams
	params["statement_timeout"] = strconv.FormatInt(cfg.GetDatabaseStatementTimeout().Milliseconds(), 10)
	params["idle_in_transaction_session_timeout"] = strconv.FormatInt((2 * cfg.GetDatabaseStatementTimeout()).Milliseconds(), 10)
	if params["application_name"] == "" {
		params["application_name"] = applicationName
	}
}
