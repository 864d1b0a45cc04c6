package postgres

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fastygo/floorplan/internal/config"
)

// NewPool creates and validates the pgx pool backing the floor store.
// Sessions idle inside a transaction longer than the floor transaction
// timeout are terminated by the server, which releases the floor row lock.
func NewPool(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db := cfg.Database
	pgxCfg, err := pgxpool.ParseConfig(db.DSN())
	if err != nil {
		return nil, err
	}

	params := pgxCfg.ConnConfig.RuntimeParams
	if _, ok := params["application_name"]; !ok {
		params["application_name"] = cfg.AppName
	}
	if cfg.Floor.TxTimeout > 0 {
		params["idle_in_transaction_session_timeout"] = strconv.FormatInt(cfg.Floor.TxTimeout.Milliseconds(), 10)
	}

	if db.MaxOpenConns > 0 {
		pgxCfg.MaxConns = int32(db.MaxOpenConns)
	}
	if db.MaxIdleConns > 0 {
		pgxCfg.MinConns = int32(db.MaxIdleConns)
	}
	if db.MaxConnLifetime > 0 {
		pgxCfg.MaxConnLifetime = db.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("connected to postgres",
		zap.String("host", pgxCfg.ConnConfig.Host),
		zap.String("db", pgxCfg.ConnConfig.Database),
		zap.Int32("max_conns", pgxCfg.MaxConns),
		zap.Int64("floor_id", cfg.Floor.ID))
	return pool, nil
}

// Close releases the pool and logs the result.
func Close(pool *pgxpool.Pool, logger *zap.Logger) {
	if pool == nil {
		return
	}
	pool.Close()
	if logger != nil {
		logger.Info("postgres pool closed")
	}
}
