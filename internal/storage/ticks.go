package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"ratio-backtester/internal/model"
)

// TickStore reads and appends minute-bar ratio ticks. Writes come only from
// the ingest consumer; simulations never touch this table.
type TickStore struct {
	pool *pgxpool.Pool
}

func NewTickStore(pool *pgxpool.Pool) *TickStore {
	return &TickStore{pool: pool}
}

// FetchRange returns a (symbol, session) window's ticks in [start, end),
// ordered by timestamp. Threshold crossings are order-sensitive, so the
// ordering here is a correctness requirement.
func (s *TickStore) FetchRange(ctx context.Context, symbol string, session model.Session, start, end time.Time) ([]model.Tick, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT symbol, session, time, tradable_price, reference_price, ratio, tradable_volume, reference_volume
		FROM ratio_ticks
		WHERE symbol = $1 AND session = $2 AND time >= $3 AND time < $4
		ORDER BY time ASC`,
		symbol, session, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ticks []model.Tick
	for rows.Next() {
		var t model.Tick
		if err := rows.Scan(&t.Symbol, &t.Session, &t.Timestamp, &t.TradablePrice, &t.ReferencePrice,
			&t.Ratio, &t.TradableVolume, &t.ReferenceVolume); err != nil {
			return nil, err
		}
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}

// InsertTicks batch-writes assembled ticks. Duplicate (symbol, session,
// time) rows are skipped, so replayed upstream bars are harmless. Returns
// the number of rows actually inserted.
func (s *TickStore) InsertTicks(ctx context.Context, ticks []model.Tick) (int, error) {
	batch := &pgx.Batch{}
	for _, t := range ticks {
		batch.Queue(`
			INSERT INTO ratio_ticks (symbol, session, time, tradable_price, reference_price, ratio, tradable_volume, reference_volume)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (symbol, session, time) DO NOTHING`,
			t.Symbol, t.Session, t.Timestamp, t.TradablePrice, t.ReferencePrice,
			t.Ratio, t.TradableVolume, t.ReferenceVolume)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range ticks {
		ct, err := results.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += int(ct.RowsAffected())
	}
	return inserted, nil
}

// FetchDay returns one calendar day's ticks for a (symbol, session).
func (s *TickStore) FetchDay(ctx context.Context, symbol string, session model.Session, day time.Time) ([]model.Tick, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return s.FetchRange(ctx, symbol, session, start, start.AddDate(0, 0, 1))
}
