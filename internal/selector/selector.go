// Package selector ranks grid combinations by true compounding return using
// a two-step scan: a cheap sum-of-ROI shortlist over persisted events,
// followed by a full wallet replay of only the shortlisted candidates.
package selector

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ratio-backtester/internal/model"
)

// minTopK floors the step-1 shortlist size. K = max(100, 5N) is a documented
// fidelity guarantee, not a tuning knob: K >> N is what makes the
// non-compounding pre-filter safe.
const minTopK = 100

var oneHundred = decimal.NewFromInt(100)

// Filter narrows which events a ranking considers.
type Filter struct {
	Start    time.Time
	End      time.Time
	Symbols  []string
	Methods  []model.Method
	Sessions []model.Session
}

// Candidate is a step-1 shortlist entry: a combination and its summed
// per-trade ROI. The sum ignores compounding and position sizing drift; it
// exists only to shortlist.
type Candidate struct {
	Combination model.Combination
	ApproxScore decimal.Decimal
}

// EventReader is the selector's view of the event store.
type EventReader interface {
	// TopByApproxROI aggregates SELL events per combination, summing
	// trade_roi_pct, and returns the highest-scoring combinations.
	TopByApproxROI(ctx context.Context, f Filter, limit int) ([]Candidate, error)
	// EventsForCombination returns one combination's events in the range,
	// ordered by timestamp.
	EventsForCombination(ctx context.Context, comb model.Combination, start, end time.Time) ([]model.Event, error)
}

type Selector struct {
	events      EventReader
	initialCash decimal.Decimal
	logger      *zap.Logger
}

func New(events EventReader, initialCash decimal.Decimal, logger *zap.Logger) *Selector {
	if initialCash.IsZero() {
		initialCash = decimal.NewFromInt(10000)
	}
	return &Selector{events: events, initialCash: initialCash, logger: logger}
}

// TopKFor sizes the step-1 shortlist for a requested top N.
func TopKFor(n int) int {
	if k := 5 * n; k > minTopK {
		return k
	}
	return minTopK
}

// TopPerformers returns the top-N combinations by true compounding ROI.
// Step 2 only ever reranks step 1's shortlist, so its output is always a
// subset of the step-1 candidates.
func (s *Selector) TopPerformers(ctx context.Context, f Filter, n int) ([]model.RankedCombination, error) {
	candidates, err := s.events.TopByApproxROI(ctx, f, TopKFor(n))
	if err != nil {
		return nil, err
	}

	ranked := make([]model.RankedCombination, 0, len(candidates))
	for _, cand := range candidates {
		seq, err := s.events.EventsForCombination(ctx, cand.Combination, f.Start, f.End)
		if err != nil {
			s.logger.Error("failed to fetch event sequence, dropping candidate",
				zap.String("combination", cand.Combination.Key()), zap.Error(err))
			continue
		}

		normalized, repairs := normalizeAlternating(seq)
		if repairs > 0 {
			s.logger.Warn("event sequence did not strictly alternate",
				zap.String("combination", cand.Combination.Key()),
				zap.Int("dropped", repairs))
		}

		roi, finalEquity, trades := replayWallet(normalized, s.initialCash)
		ranked = append(ranked, model.RankedCombination{
			Combination: cand.Combination,
			ApproxScore: cand.ApproxScore,
			TrueROIPct:  roi,
			FinalEquity: finalEquity,
			Trades:      trades,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].TrueROIPct.GreaterThan(ranked[j].TrueROIPct)
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked, nil
}

// normalizeAlternating filters a sequence to strict BUY/SELL alternation
// starting with BUY, keeping the first event of each same-type run. Returns
// the number of dropped events; any non-zero count is a data irregularity
// recovered locally, never surfaced as fatal.
func normalizeAlternating(events []model.Event) ([]model.Event, int) {
	kept := make([]model.Event, 0, len(events))
	want := model.EventBuy
	dropped := 0
	for _, ev := range events {
		if ev.Type != want {
			dropped++
			continue
		}
		kept = append(kept, ev)
		if want == model.EventBuy {
			want = model.EventSell
		} else {
			want = model.EventBuy
		}
	}
	return kept, dropped
}

// replayWallet runs a whole-share cash/shares wallet across an alternating
// event sequence and returns the true compounding ROI, the ending equity,
// and the number of completed round trips. A position still open at the end
// is marked at its entry price.
func replayWallet(events []model.Event, initialCash decimal.Decimal) (decimal.Decimal, decimal.Decimal, int) {
	cash := initialCash
	var shares int64
	lastPrice := decimal.Zero
	trades := 0

	for _, ev := range events {
		switch ev.Type {
		case model.EventBuy:
			if !ev.TradablePrice.IsPositive() {
				continue
			}
			shares = cash.Div(ev.TradablePrice).Floor().IntPart()
			cash = cash.Sub(decimal.NewFromInt(shares).Mul(ev.TradablePrice))
			lastPrice = ev.TradablePrice
		case model.EventSell:
			cash = cash.Add(decimal.NewFromInt(shares).Mul(ev.TradablePrice))
			shares = 0
			trades++
		}
	}

	equity := cash
	if shares > 0 {
		equity = equity.Add(decimal.NewFromInt(shares).Mul(lastPrice))
	}
	roi := equity.Sub(initialCash).Div(initialCash).Mul(oneHundred)
	return roi, equity, trades
}
