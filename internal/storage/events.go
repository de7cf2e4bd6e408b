package storage

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"ratio-backtester/internal/model"
	"ratio-backtester/internal/selector"
)

// EventStore persists simulation events into per-(method, session)
// partitions and serves the selector's read paths.
type EventStore struct {
	pool *pgxpool.Pool
}

func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// AppendEvents writes one combination's events in a single batched
// round-trip. Duplicate (combination, timestamp) rows are silently skipped,
// which makes re-running a range idempotent. Returns the number of rows
// actually inserted.
func (s *EventStore) AppendEvents(ctx context.Context, comb model.Combination, events []model.Event) (int, error) {
	table, err := eventPartition(comb.Method, comb.Session)
	if err != nil {
		return 0, err
	}

	batch := &pgx.Batch{}
	for _, ev := range events {
		batch.Queue(`
			INSERT INTO `+table+` (symbol, buy_pct, sell_pct, time, event_type,
				tradable_price, reference_price, ratio, baseline, shares, cash_after, trade_roi_pct)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (symbol, buy_pct, sell_pct, time) DO NOTHING`,
			comb.Symbol, comb.BuyPct, comb.SellPct, ev.Timestamp, ev.Type,
			ev.TradablePrice, ev.ReferencePrice, ev.Ratio, ev.Baseline,
			ev.Shares, ev.CashAfter, ev.TradeROIPct)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range events {
		ct, err := results.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += int(ct.RowsAffected())
	}
	return inserted, nil
}

// LastEventBefore returns the single most recent event of a combination
// strictly before the given time, or nil if none exists. This is the one
// lookup that makes incremental extension cheap.
func (s *EventStore) LastEventBefore(ctx context.Context, comb model.Combination, before time.Time) (*model.Event, error) {
	table, err := eventPartition(comb.Method, comb.Session)
	if err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx, `
		SELECT time, event_type, tradable_price, reference_price, ratio, baseline, shares, cash_after, trade_roi_pct
		FROM `+table+`
		WHERE symbol = $1 AND buy_pct = $2 AND sell_pct = $3 AND time < $4
		ORDER BY time DESC
		LIMIT 1`,
		comb.Symbol, comb.BuyPct, comb.SellPct, before)

	ev := model.Event{Combination: comb}
	err = row.Scan(&ev.Timestamp, &ev.Type, &ev.TradablePrice, &ev.ReferencePrice,
		&ev.Ratio, &ev.Baseline, &ev.Shares, &ev.CashAfter, &ev.TradeROIPct)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// TopByApproxROI is the selector's step-1 aggregation: per combination, the
// sum of trade_roi_pct over SELL events in range. Partitions matching the
// filter are queried independently and merged; each partition query is
// already limited, so the merge stays small.
func (s *EventStore) TopByApproxROI(ctx context.Context, f selector.Filter, limit int) ([]selector.Candidate, error) {
	start, end := filterWindow(f)
	methods := f.Methods
	if len(methods) == 0 {
		methods = model.AllMethods()
	}
	sessions := f.Sessions
	if len(sessions) == 0 {
		sessions = model.AllSessions()
	}

	var merged []selector.Candidate
	for _, method := range methods {
		for _, session := range sessions {
			table, err := eventPartition(method, session)
			if err != nil {
				return nil, err
			}

			sql := `
				SELECT symbol, buy_pct, sell_pct, SUM(trade_roi_pct) AS score
				FROM ` + table + `
				WHERE event_type = 'SELL' AND time >= $1 AND time < $2`
			args := []interface{}{start, end}
			if len(f.Symbols) > 0 {
				sql += ` AND symbol = ANY($3)`
				args = append(args, f.Symbols)
			}
			sql += ` GROUP BY symbol, buy_pct, sell_pct ORDER BY score DESC LIMIT ` + strconv.Itoa(limit)

			rows, err := s.pool.Query(ctx, sql, args...)
			if err != nil {
				return nil, err
			}
			for rows.Next() {
				cand := selector.Candidate{Combination: model.Combination{Method: method, Session: session}}
				if err := rows.Scan(&cand.Combination.Symbol, &cand.Combination.BuyPct,
					&cand.Combination.SellPct, &cand.ApproxScore); err != nil {
					rows.Close()
					return nil, err
				}
				merged = append(merged, cand)
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return nil, err
			}
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].ApproxScore.GreaterThan(merged[j].ApproxScore)
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// EventsForCombination returns one combination's events in [start, end),
// ordered by timestamp, for the selector's step-2 replay.
func (s *EventStore) EventsForCombination(ctx context.Context, comb model.Combination, start, end time.Time) ([]model.Event, error) {
	table, err := eventPartition(comb.Method, comb.Session)
	if err != nil {
		return nil, err
	}
	start, end = filterWindow(selector.Filter{Start: start, End: end})

	rows, err := s.pool.Query(ctx, `
		SELECT time, event_type, tradable_price, reference_price, ratio, baseline, shares, cash_after, trade_roi_pct
		FROM `+table+`
		WHERE symbol = $1 AND buy_pct = $2 AND sell_pct = $3 AND time >= $4 AND time < $5
		ORDER BY time ASC`,
		comb.Symbol, comb.BuyPct, comb.SellPct, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		ev := model.Event{Combination: comb}
		if err := rows.Scan(&ev.Timestamp, &ev.Type, &ev.TradablePrice, &ev.ReferencePrice,
			&ev.Ratio, &ev.Baseline, &ev.Shares, &ev.CashAfter, &ev.TradeROIPct); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// filterWindow substitutes open bounds for zero times.
func filterWindow(f selector.Filter) (time.Time, time.Time) {
	start, end := f.Start, f.End
	if end.IsZero() {
		end = time.Now().AddDate(100, 0, 0)
	}
	return start, end
}
