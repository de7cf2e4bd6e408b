package baseline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ratio-backtester/internal/infrastructure"
	"ratio-backtester/internal/model"
)

// TickSource supplies one trading day's ticks for a (symbol, session).
type TickSource interface {
	FetchDay(ctx context.Context, symbol string, session model.Session, day time.Time) ([]model.Tick, error)
}

// Store persists computed baselines with upsert semantics.
type Store interface {
	Upsert(ctx context.Context, b model.Baseline) error
}

// Service runs the nightly baseline computation: it reads the prior trading
// day's ticks and writes one baseline per (symbol, session, method) for the
// day the signal will be evaluated on. Thresholds are always set against
// yesterday's baseline, never same-day.
type Service struct {
	ticks  TickSource
	store  Store
	logger *zap.Logger
}

func NewService(ticks TickSource, store Store, logger *zap.Logger) *Service {
	return &Service{ticks: ticks, store: store, logger: logger}
}

// ComputeFor computes and upserts the baselines that apply to tradingDay,
// sourced from priorDay's ticks, for every (symbol, session, method) triple.
// A method with insufficient data is skipped without blocking the other
// methods of the same (symbol, session) pair. Returns the number of
// baselines written.
func (s *Service) ComputeFor(ctx context.Context, symbols []string, priorDay, tradingDay time.Time) (int, error) {
	written := 0
	for _, symbol := range symbols {
		for _, session := range model.AllSessions() {
			ticks, err := s.ticks.FetchDay(ctx, symbol, session, priorDay)
			if err != nil {
				return written, fmt.Errorf("fetch ticks for %s/%s on %s: %w",
					symbol, session, model.DayKey(priorDay), err)
			}

			for _, method := range model.AllMethods() {
				est, err := Compute(method, ticks)
				if errors.Is(err, ErrInsufficientData) {
					s.logger.Debug("no baseline for method",
						zap.String("symbol", symbol),
						zap.String("session", string(session)),
						zap.String("method", string(method)),
						zap.String("day", model.DayKey(priorDay)))
					continue
				}
				if err != nil {
					return written, err
				}

				b := model.Baseline{
					TradingDay:  tradingDay,
					Session:     session,
					Symbol:      symbol,
					Method:      method,
					Value:       est.Value,
					SampleCount: est.SampleCount,
				}
				if err := s.store.Upsert(ctx, b); err != nil {
					return written, fmt.Errorf("upsert baseline %s/%s/%s: %w", symbol, session, method, err)
				}
				infrastructure.BaselinesComputed.WithLabelValues(string(method)).Inc()
				written++
			}
		}
	}
	return written, nil
}

// PrevTradingDay steps back one calendar day, skipping weekends.
func PrevTradingDay(day time.Time) time.Time {
	prev := day.AddDate(0, 0, -1)
	for prev.Weekday() == time.Saturday || prev.Weekday() == time.Sunday {
		prev = prev.AddDate(0, 0, -1)
	}
	return prev
}
