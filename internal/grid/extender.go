package grid

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ratio-backtester/internal/engine"
	"ratio-backtester/internal/infrastructure"
	"ratio-backtester/internal/model"
)

// ExtendConfig spans the grid for a one-day incremental extension.
type ExtendConfig struct {
	Symbols  []string
	Methods  []model.Method
	Sessions []model.Session
	BuyPcts  []decimal.Decimal
	SellPcts []decimal.Decimal

	// Day is the single new trading day to replay.
	Day time.Time

	InitialCash decimal.Decimal
	Workers     int
	Sim         engine.SimConfig
}

func (c ExtendConfig) gridConfig() Config {
	return Config{
		Symbols:     c.Symbols,
		Methods:     c.Methods,
		Sessions:    c.Sessions,
		BuyPcts:     c.BuyPcts,
		SellPcts:    c.SellPcts,
		InitialCash: c.InitialCash,
		Workers:     c.Workers,
	}.withDefaults()
}

// Extender appends exactly one new trading day to previously persisted event
// streams. History is never rescanned: each combination costs one last-event
// lookup plus a replay of the new day's ticks.
type Extender struct {
	ticks     TickSource
	baselines BaselineSource
	events    EventStore
	notifier  Notifier
	logger    *zap.Logger
}

func NewExtender(ticks TickSource, baselines BaselineSource, events EventStore, notifier Notifier, logger *zap.Logger) *Extender {
	return &Extender{
		ticks:     ticks,
		baselines: baselines,
		events:    events,
		notifier:  notifier,
		logger:    logger,
	}
}

// Run extends every combination of the grid by cfg.Day.
func (e *Extender) Run(ctx context.Context, runID string, cfg ExtendConfig) (model.RunSummary, error) {
	gc := cfg.gridConfig()
	summary := model.RunSummary{RunID: runID, StartedAt: time.Now()}

	dayStart := time.Date(cfg.Day.Year(), cfg.Day.Month(), cfg.Day.Day(), 0, 0, 0, 0, cfg.Day.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	units := gc.units()
	jobQueue := make(chan datasetUnit)
	var wg sync.WaitGroup
	var mu sync.Mutex
	doneUnits := 0

	for i := 0; i < gc.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for unit := range jobQueue {
				e.extendUnit(ctx, unit, gc, dayStart, dayEnd, &mu, &summary)
				mu.Lock()
				doneUnits++
				n := doneUnits
				mu.Unlock()
				if e.notifier != nil {
					e.notifier.Progress(runID, n, len(units))
				}
			}
		}()
	}

feed:
	for _, unit := range units {
		select {
		case <-ctx.Done():
			break feed
		case jobQueue <- unit:
		}
	}
	close(jobQueue)
	wg.Wait()

	summary.Attempted = summary.Succeeded + summary.Failed
	summary.Elapsed = time.Since(summary.StartedAt)
	e.logger.Info("incremental extension finished",
		zap.String("run_id", runID),
		zap.String("day", model.DayKey(dayStart)),
		zap.Int("attempted", summary.Attempted),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("events", summary.Events))
	if e.notifier != nil {
		e.notifier.Summary(summary)
	}
	return summary, ctx.Err()
}

func (e *Extender) extendUnit(ctx context.Context, unit datasetUnit, cfg Config, dayStart, dayEnd time.Time, mu *sync.Mutex, summary *model.RunSummary) {
	infrastructure.ActiveWorkers.Inc()
	defer infrastructure.ActiveWorkers.Dec()

	ticks, err := e.ticks.FetchRange(ctx, unit.Symbol, unit.Session, dayStart, dayEnd)
	if err != nil {
		e.failExtendUnit(unit, cfg, mu, summary, fmt.Errorf("fetch ticks: %w", err))
		return
	}
	lookup, err := e.baselines.LookupRange(ctx, unit.Symbol, unit.Method, dayStart, dayEnd)
	if err != nil {
		e.failExtendUnit(unit, cfg, mu, summary, fmt.Errorf("load baselines: %w", err))
		return
	}

	for _, buyPct := range cfg.BuyPcts {
		for _, sellPct := range cfg.SellPcts {
			if ctx.Err() != nil {
				return
			}

			comb := model.Combination{
				Symbol:  unit.Symbol,
				Method:  unit.Method,
				Session: unit.Session,
				BuyPct:  buyPct,
				SellPct: sellPct,
			}

			last, err := e.events.LastEventBefore(ctx, comb, dayStart)
			if err != nil {
				e.recordFailure(comb, mu, summary, err)
				continue
			}

			wallet := ReconstructWallet(last, cfg.InitialCash)
			events, _ := engine.Simulate(comb, ticks, lookup, wallet, cfg.Sim)

			// New events must be strictly later than the last persisted one.
			if last != nil {
				kept := events[:0]
				for _, ev := range events {
					if ev.Timestamp.After(last.Timestamp) {
						kept = append(kept, ev)
					}
				}
				events = kept
			}

			inserted := 0
			if len(events) > 0 {
				inserted, err = e.events.AppendEvents(ctx, comb, events)
				if err != nil {
					e.recordFailure(comb, mu, summary, err)
					continue
				}
				infrastructure.EventsPersisted.WithLabelValues("extend").Add(float64(inserted))
			}

			infrastructure.CombinationsProcessed.WithLabelValues("succeeded").Inc()
			mu.Lock()
			summary.Succeeded++
			summary.Events += inserted
			mu.Unlock()
		}
	}
}

func (e *Extender) recordFailure(comb model.Combination, mu *sync.Mutex, summary *model.RunSummary, err error) {
	key := comb.Key()
	e.logger.Error("failed to extend combination", zap.String("combination", key), zap.Error(err))
	infrastructure.CombinationsProcessed.WithLabelValues("failed").Inc()
	mu.Lock()
	summary.Failed++
	summary.FailedKeys = append(summary.FailedKeys, key)
	mu.Unlock()
}

func (e *Extender) failExtendUnit(unit datasetUnit, cfg Config, mu *sync.Mutex, summary *model.RunSummary, err error) {
	e.logger.Error("dataset unit failed",
		zap.String("symbol", unit.Symbol),
		zap.String("method", string(unit.Method)),
		zap.String("session", string(unit.Session)),
		zap.Error(err))

	mu.Lock()
	defer mu.Unlock()
	for _, buyPct := range cfg.BuyPcts {
		for _, sellPct := range cfg.SellPcts {
			comb := model.Combination{
				Symbol:  unit.Symbol,
				Method:  unit.Method,
				Session: unit.Session,
				BuyPct:  buyPct,
				SellPct: sellPct,
			}
			summary.Failed++
			summary.FailedKeys = append(summary.FailedKeys, comb.Key())
			infrastructure.CombinationsProcessed.WithLabelValues("failed").Inc()
		}
	}
}

// ReconstructWallet rebuilds a combination's wallet from its single most
// recent persisted event. No prior event means a fresh flat wallet. A last
// BUY means the position is still open. A last SELL carries forward the true
// sale proceeds: the wallet is continuous across nightly runs, it never
// resets to the initial stake.
func ReconstructWallet(last *model.Event, initialCash decimal.Decimal) model.WalletState {
	if last == nil {
		return model.NewWallet(initialCash)
	}
	if last.Type == model.EventBuy {
		return model.WalletState{
			Position:       model.PositionLong,
			Cash:           last.CashAfter,
			Shares:         last.Shares,
			EntryPrice:     last.TradablePrice,
			EntryBaseline:  last.Baseline,
			EntryTimestamp: last.Timestamp,
		}
	}
	return model.NewWallet(last.CashAfter)
}
