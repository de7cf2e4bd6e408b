package grid

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ratio-backtester/internal/model"
)

// boundaryFixture builds three days whose trades straddle day boundaries: a
// position opened at the end of day one is sold on day two, and the
// proceeds of day two's second trade fund day three.
func boundaryFixture() (*memTickSource, *memBaselineSource, time.Time) {
	ticks := newMemTickSource()
	baselines := &memBaselineSource{values: make(map[string]decimal.Decimal)}
	day1 := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)
	day3 := day1.AddDate(0, 0, 2)

	for _, d := range []time.Time{day1, day2, day3} {
		baselines.values[model.DayKey(d)+"|PRIMARY"] = decimal.NewFromInt(100)
	}

	ticks.add(gridTick(day1, 102, 50)) // BUY, held overnight
	ticks.add(gridTick(day2, 98, 51))  // SELL
	ticks.add(gridTick(day2.Add(time.Minute), 103, 52)) // BUY, held overnight
	ticks.add(gridTick(day3, 97, 53)) // SELL

	return ticks, baselines, day1
}

func extendConfig(day time.Time) ExtendConfig {
	return ExtendConfig{
		Symbols:  []string{"AAPL"},
		Methods:  []model.Method{model.MethodEqualMean},
		Sessions: []model.Session{model.SessionPrimary},
		BuyPcts:  pcts(1.0),
		SellPcts: pcts(1.0),
		Day:      day,
		Workers:  1,
	}
}

// Day-by-day extension must reproduce the exact event sequence of a single
// full-range grid run, wallet continuity included.
func TestExtender_DayByDayMatchesFullRange(t *testing.T) {
	ticks, baselines, day1 := boundaryFixture()

	fullStore := newMemEventStore()
	runner := NewRunner(ticks, baselines, fullStore, newMemCheckpointStore(), nil, zap.NewNop())
	cfg := testConfig(day1, 3)
	cfg.BuyPcts = pcts(1.0)
	cfg.SellPcts = pcts(1.0)
	_, err := runner.Run(context.Background(), "full", cfg)
	require.NoError(t, err)

	incStore := newMemEventStore()
	extender := NewExtender(ticks, baselines, incStore, nil, zap.NewNop())
	for d := 0; d < 3; d++ {
		_, err := extender.Run(context.Background(), "inc", extendConfig(day1.AddDate(0, 0, d)))
		require.NoError(t, err)
	}

	comb := model.Combination{
		Symbol: "AAPL", Method: model.MethodEqualMean, Session: model.SessionPrimary,
		BuyPct: decimal.NewFromFloat(1.0), SellPct: decimal.NewFromFloat(1.0),
	}
	full := fullStore.ordered(comb)
	inc := incStore.ordered(comb)

	require.Len(t, full, 4)
	require.Len(t, inc, len(full))
	for i := range full {
		assert.Equal(t, full[i].Type, inc[i].Type, "event %d", i)
		assert.Equal(t, full[i].Timestamp, inc[i].Timestamp, "event %d", i)
		assert.True(t, full[i].TradablePrice.Equal(inc[i].TradablePrice), "event %d fill", i)
		assert.Equal(t, full[i].Shares, inc[i].Shares, "event %d shares", i)
		assert.True(t, full[i].CashAfter.Equal(inc[i].CashAfter), "event %d cash", i)
		assert.Equal(t, full[i].TradeROIPct.Valid, inc[i].TradeROIPct.Valid, "event %d roi", i)
		if full[i].TradeROIPct.Valid {
			assert.True(t, full[i].TradeROIPct.Decimal.Equal(inc[i].TradeROIPct.Decimal), "event %d roi", i)
		}
	}

	// 10000 -> 200 shares @50, sold @51 = 10200; 196 shares @52, sold @53:
	// the final cash proves proceeds carried forward across nightly runs.
	final := inc[len(inc)-1]
	assert.True(t, final.CashAfter.Equal(decimal.NewFromInt(10396)), "final cash = %s", final.CashAfter)
}

func TestExtender_NoHistoryStartsFresh(t *testing.T) {
	ticks, baselines, day1 := boundaryFixture()
	store := newMemEventStore()
	extender := NewExtender(ticks, baselines, store, nil, zap.NewNop())

	summary, err := extender.Run(context.Background(), "inc", extendConfig(day1))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)

	comb := model.Combination{
		Symbol: "AAPL", Method: model.MethodEqualMean, Session: model.SessionPrimary,
		BuyPct: decimal.NewFromFloat(1.0), SellPct: decimal.NewFromFloat(1.0),
	}
	events := store.ordered(comb)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventBuy, events[0].Type)
	assert.Equal(t, int64(200), events[0].Shares)
}

func TestReconstructWallet(t *testing.T) {
	initial := decimal.NewFromInt(10000)

	t.Run("no history", func(t *testing.T) {
		w := ReconstructWallet(nil, initial)
		assert.Equal(t, model.PositionFlat, w.Position)
		assert.True(t, w.Cash.Equal(initial))
	})

	t.Run("last event buy reopens position", func(t *testing.T) {
		last := &model.Event{
			Type:          model.EventBuy,
			Timestamp:     time.Date(2024, 3, 4, 15, 59, 0, 0, time.UTC),
			TradablePrice: decimal.NewFromInt(50),
			Baseline:      decimal.NewFromInt(100),
			Shares:        200,
			CashAfter:     decimal.NewFromInt(0),
		}
		w := ReconstructWallet(last, initial)
		assert.Equal(t, model.PositionLong, w.Position)
		assert.Equal(t, int64(200), w.Shares)
		assert.True(t, w.EntryPrice.Equal(decimal.NewFromInt(50)))
		assert.Equal(t, last.Timestamp, w.EntryTimestamp)
	})

	t.Run("last event sell carries forward proceeds", func(t *testing.T) {
		last := &model.Event{
			Type:      model.EventSell,
			CashAfter: decimal.NewFromInt(10200),
		}
		w := ReconstructWallet(last, initial)
		assert.Equal(t, model.PositionFlat, w.Position)
		assert.Equal(t, int64(0), w.Shares)
		assert.True(t, w.Cash.Equal(decimal.NewFromInt(10200)), "cash = %s", w.Cash)
	})
}
