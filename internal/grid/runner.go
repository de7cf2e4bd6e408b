package grid

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"ratio-backtester/internal/engine"
	"ratio-backtester/internal/infrastructure"
	"ratio-backtester/internal/model"
)

// Runner executes the full grid for a date range. Combinations never share
// wallet state, so dataset units are processed by a worker pool; each worker
// owns one tick dataset and one wallet at a time.
type Runner struct {
	ticks       TickSource
	baselines   BaselineSource
	events      EventStore
	checkpoints CheckpointStore
	notifier    Notifier
	logger      *zap.Logger
}

func NewRunner(ticks TickSource, baselines BaselineSource, events EventStore, checkpoints CheckpointStore, notifier Notifier, logger *zap.Logger) *Runner {
	return &Runner{
		ticks:       ticks,
		baselines:   baselines,
		events:      events,
		checkpoints: checkpoints,
		notifier:    notifier,
		logger:      logger,
	}
}

// Run drives the whole grid once. Per-combination failures are logged and
// counted, never fatal; only a checkpoint-load failure (which would make
// resume semantics undefined) aborts up front. Cancellation stops intake
// between combinations and flushes completed keys first.
func (r *Runner) Run(ctx context.Context, runID string, cfg Config) (model.RunSummary, error) {
	cfg = cfg.withDefaults()
	summary := model.RunSummary{RunID: runID, StartedAt: time.Now()}

	done, err := r.checkpoints.Load(ctx, runID)
	if err != nil {
		return summary, fmt.Errorf("load checkpoint for run %s: %w", runID, err)
	}
	if len(done) > 0 {
		r.logger.Info("resuming grid run",
			zap.String("run_id", runID),
			zap.Int("completed_combinations", len(done)))
	}

	units := cfg.units()
	jobQueue := make(chan datasetUnit)
	var wg sync.WaitGroup
	var mu sync.Mutex
	doneUnits := 0

	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for unit := range jobQueue {
				r.runUnit(ctx, runID, unit, cfg, done, &mu, &summary)
				mu.Lock()
				doneUnits++
				n := doneUnits
				mu.Unlock()
				if r.notifier != nil {
					r.notifier.Progress(runID, n, len(units))
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

	// Keep the checkpoint around when anything failed or was cancelled so a
	// retry of the same run ID picks up the remainder.
	if summary.Failed == 0 && ctx.Err() == nil {
		if err := r.checkpoints.Clear(ctx, runID); err != nil {
			r.logger.Warn("failed to clear checkpoint", zap.String("run_id", runID), zap.Error(err))
		}
	}

	r.logger.Info("grid run finished",
		zap.String("run_id", runID),
		zap.Int("attempted", summary.Attempted),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("events", summary.Events),
		zap.Duration("elapsed", summary.Elapsed))
	if r.notifier != nil {
		r.notifier.Summary(summary)
	}
	return summary, ctx.Err()
}

// runUnit fetches the unit's tick dataset and baseline lookup once, then
// sweeps the whole buy% x sell% inner loop against them.
func (r *Runner) runUnit(ctx context.Context, runID string, unit datasetUnit, cfg Config, done map[string]struct{}, mu *sync.Mutex, summary *model.RunSummary) {
	infrastructure.ActiveWorkers.Inc()
	defer infrastructure.ActiveWorkers.Dec()

	fetchStart := time.Now()
	ticks, err := r.ticks.FetchRange(ctx, unit.Symbol, unit.Session, cfg.Start, cfg.End)
	if err != nil {
		r.failUnit(unit, cfg, done, mu, summary, fmt.Errorf("fetch ticks: %w", err))
		return
	}
	infrastructure.TickFetchLatency.
		WithLabelValues(unit.Symbol, string(unit.Session)).
		Observe(time.Since(fetchStart).Seconds())

	lookup, err := r.baselines.LookupRange(ctx, unit.Symbol, unit.Method, cfg.Start, cfg.End)
	if err != nil {
		r.failUnit(unit, cfg, done, mu, summary, fmt.Errorf("load baselines: %w", err))
		return
	}

	var completed []string
	flush := func() {
		if len(completed) == 0 {
			return
		}
		if err := r.checkpoints.Append(ctx, runID, completed); err != nil {
			r.logger.Warn("failed to flush checkpoint batch",
				zap.String("run_id", runID), zap.Error(err))
		}
		completed = completed[:0]
	}
	defer flush()

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
			key := comb.Key()
			if _, ok := done[key]; ok {
				mu.Lock()
				summary.Skipped++
				mu.Unlock()
				continue
			}

			events, _ := engine.Simulate(comb, ticks, lookup, model.NewWallet(cfg.InitialCash), cfg.Sim)

			inserted := 0
			if len(events) > 0 {
				inserted, err = r.events.AppendEvents(ctx, comb, events)
				if err != nil {
					r.logger.Error("failed to persist combination events",
						zap.String("combination", key), zap.Error(err))
					infrastructure.CombinationsProcessed.WithLabelValues("failed").Inc()
					mu.Lock()
					summary.Failed++
					summary.FailedKeys = append(summary.FailedKeys, key)
					mu.Unlock()
					continue
				}
				infrastructure.EventsPersisted.WithLabelValues("grid").Add(float64(inserted))
			}

			infrastructure.CombinationsProcessed.WithLabelValues("succeeded").Inc()
			mu.Lock()
			summary.Succeeded++
			summary.Events += inserted
			mu.Unlock()

			completed = append(completed, key)
			if len(completed) >= cfg.CheckpointEvery {
				flush()
			}
		}
	}
}

// failUnit records every not-yet-completed combination of a unit as failed
// after a dataset-level fetch error.
func (r *Runner) failUnit(unit datasetUnit, cfg Config, done map[string]struct{}, mu *sync.Mutex, summary *model.RunSummary, err error) {
	r.logger.Error("dataset unit failed",
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
			key := comb.Key()
			if _, ok := done[key]; ok {
				summary.Skipped++
				continue
			}
			summary.Failed++
			summary.FailedKeys = append(summary.FailedKeys, key)
			infrastructure.CombinationsProcessed.WithLabelValues("failed").Inc()
		}
	}
}
