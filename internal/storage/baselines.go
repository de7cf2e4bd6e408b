package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"ratio-backtester/internal/model"
)

// ErrBaselineNotFound means no baseline row exists for the requested key.
var ErrBaselineNotFound = errors.New("storage: baseline not found")

// BaselineStore persists per-day baselines, one row per
// (trading_day, session, symbol, method).
type BaselineStore struct {
	pool *pgxpool.Pool
}

func NewBaselineStore(pool *pgxpool.Pool) *BaselineStore {
	return &BaselineStore{pool: pool}
}

// Upsert writes a baseline idempotently: recomputing the same key overwrites
// in place.
func (s *BaselineStore) Upsert(ctx context.Context, b model.Baseline) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO baselines (trading_day, session, symbol, method, value, sample_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (trading_day, session, symbol, method)
		DO UPDATE SET value = EXCLUDED.value, sample_count = EXCLUDED.sample_count`,
		b.TradingDay, b.Session, b.Symbol, b.Method, b.Value, b.SampleCount)
	return err
}

// Get returns one baseline value, or ErrBaselineNotFound.
func (s *BaselineStore) Get(ctx context.Context, symbol string, session model.Session, method model.Method, day time.Time) (decimal.Decimal, error) {
	var value decimal.Decimal
	err := s.pool.QueryRow(ctx, `
		SELECT value FROM baselines
		WHERE trading_day = $1 AND session = $2 AND symbol = $3 AND method = $4`,
		day, session, symbol, method).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrBaselineNotFound
	}
	return value, err
}

// LookupRange loads every baseline of a (symbol, method) in [start, end)
// into memory and returns the lookup the state machine replays against.
// One query per dataset unit, reused across the whole buy/sell inner loop.
func (s *BaselineStore) LookupRange(ctx context.Context, symbol string, method model.Method, start, end time.Time) (model.BaselineLookup, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT trading_day, session, value FROM baselines
		WHERE symbol = $1 AND method = $2 AND trading_day >= $3 AND trading_day < $4`,
		symbol, method, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make(map[string]decimal.Decimal)
	for rows.Next() {
		var day time.Time
		var session model.Session
		var value decimal.Decimal
		if err := rows.Scan(&day, &session, &value); err != nil {
			return nil, err
		}
		values[model.DayKey(day)+"|"+string(session)] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return func(day string, session model.Session) (decimal.Decimal, bool) {
		v, ok := values[day+"|"+string(session)]
		return v, ok
	}, nil
}
