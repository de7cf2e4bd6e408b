package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
)

const tickTableSQL = `
CREATE TABLE IF NOT EXISTS ratio_ticks (
	symbol VARCHAR(20) NOT NULL,
	session VARCHAR(10) NOT NULL,
	time TIMESTAMPTZ NOT NULL,
	tradable_price NUMERIC(20, 8) NOT NULL,
	reference_price NUMERIC(20, 8) NOT NULL,
	ratio NUMERIC(30, 12) NOT NULL,
	tradable_volume NUMERIC(24, 8) NOT NULL DEFAULT 0,
	reference_volume NUMERIC(24, 8) NOT NULL DEFAULT 0,
	PRIMARY KEY (symbol, session, time)
);`

const baselineTableSQL = `
CREATE TABLE IF NOT EXISTS baselines (
	trading_day DATE NOT NULL,
	session VARCHAR(10) NOT NULL,
	symbol VARCHAR(20) NOT NULL,
	method VARCHAR(20) NOT NULL,
	value NUMERIC(30, 12) NOT NULL,
	sample_count INT NOT NULL,
	PRIMARY KEY (trading_day, session, symbol, method)
);`

const checkpointTableSQL = `
CREATE TABLE IF NOT EXISTS grid_checkpoints (
	run_id VARCHAR(64) NOT NULL,
	combination_key VARCHAR(120) NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (run_id, combination_key)
);`

const usersTableSQL = `
CREATE TABLE IF NOT EXISTS users (
	id SERIAL PRIMARY KEY,
	email VARCHAR(255) UNIQUE NOT NULL,
	password_hash VARCHAR(255) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// eventPartitionSQL is instantiated once per entry of the partition lookup
// table; the identifier comes from that fixed map, not from input.
const eventPartitionSQL = `
CREATE TABLE IF NOT EXISTS %s (
	symbol VARCHAR(20) NOT NULL,
	buy_pct NUMERIC(6, 3) NOT NULL,
	sell_pct NUMERIC(6, 3) NOT NULL,
	time TIMESTAMPTZ NOT NULL,
	event_type VARCHAR(4) NOT NULL,
	tradable_price NUMERIC(20, 8) NOT NULL,
	reference_price NUMERIC(20, 8) NOT NULL,
	ratio NUMERIC(30, 12) NOT NULL,
	baseline NUMERIC(30, 12) NOT NULL,
	shares BIGINT NOT NULL,
	cash_after NUMERIC(20, 8) NOT NULL,
	trade_roi_pct NUMERIC(20, 8),
	PRIMARY KEY (symbol, buy_pct, sell_pct, time)
);`

// InitSchema creates every table the backtester owns, including one event
// table per (method, session) partition.
func InitSchema(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{tickTableSQL, baselineTableSQL, checkpointTableSQL, usersTableSQL}
	for _, table := range eventPartitions {
		statements = append(statements, fmt.Sprintf(eventPartitionSQL, table))
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}
