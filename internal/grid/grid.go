// Package grid orchestrates threshold simulations across the full cartesian
// parameter space (symbols x methods x sessions x buy% x sell%) and its
// one-day incremental extension.
package grid

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"ratio-backtester/internal/engine"
	"ratio-backtester/internal/model"
)

// TickSource supplies time-ordered ticks for one (symbol, session) window.
type TickSource interface {
	FetchRange(ctx context.Context, symbol string, session model.Session, start, end time.Time) ([]model.Tick, error)
}

// BaselineSource builds the per-day baseline lookup for a (symbol, method)
// over a date range.
type BaselineSource interface {
	LookupRange(ctx context.Context, symbol string, method model.Method, start, end time.Time) (model.BaselineLookup, error)
}

// EventStore persists and reads back simulation events. AppendEvents must be
// idempotent on (combination, timestamp).
type EventStore interface {
	AppendEvents(ctx context.Context, comb model.Combination, events []model.Event) (int, error)
	LastEventBefore(ctx context.Context, comb model.Combination, before time.Time) (*model.Event, error)
}

// CheckpointStore tracks completed combination keys for a run so a crashed
// grid run resumes where it left off.
type CheckpointStore interface {
	Load(ctx context.Context, runID string) (map[string]struct{}, error)
	Append(ctx context.Context, runID string, keys []string) error
	Clear(ctx context.Context, runID string) error
}

// Notifier receives coarse progress while a run executes. Implementations
// must be safe for concurrent use; a nil Notifier is allowed.
type Notifier interface {
	Progress(runID string, doneUnits, totalUnits int)
	Summary(summary model.RunSummary)
}

// Config spans the grid for one run.
type Config struct {
	Symbols  []string
	Methods  []model.Method
	Sessions []model.Session
	BuyPcts  []decimal.Decimal
	SellPcts []decimal.Decimal

	Start time.Time
	End   time.Time

	InitialCash decimal.Decimal
	Workers     int
	// CheckpointEvery bounds how many completed combinations may be lost to
	// a crash: completed keys are flushed in batches of this size.
	CheckpointEvery int
	Sim             engine.SimConfig
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = 25
	}
	if c.InitialCash.IsZero() {
		c.InitialCash = decimal.NewFromInt(10000)
	}
	if len(c.Methods) == 0 {
		c.Methods = model.AllMethods()
	}
	if len(c.Sessions) == 0 {
		c.Sessions = model.AllSessions()
	}
	return c
}

// datasetUnit is the tick-fetch granularity: one tick dataset is fetched per
// unit and reused across every (buy%, sell%) pair inside it. Re-querying per
// pair is the dominant cost of a naive implementation.
type datasetUnit struct {
	Symbol  string
	Method  model.Method
	Session model.Session
}

func (c Config) units() []datasetUnit {
	units := make([]datasetUnit, 0, len(c.Symbols)*len(c.Methods)*len(c.Sessions))
	for _, symbol := range c.Symbols {
		for _, method := range c.Methods {
			for _, session := range c.Sessions {
				units = append(units, datasetUnit{Symbol: symbol, Method: method, Session: session})
			}
		}
	}
	return units
}

// pairsPerUnit is the size of the inner buy% x sell% loop.
func (c Config) pairsPerUnit() int {
	return len(c.BuyPcts) * len(c.SellPcts)
}
