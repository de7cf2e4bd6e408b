package baseline

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratio-backtester/internal/model"
)

func ratioTick(ratio, tradVol, refVol float64) model.Tick {
	r := decimal.NewFromFloat(ratio)
	return model.Tick{
		Symbol:          "AAPL",
		Session:         model.SessionPrimary,
		TradablePrice:   decimal.NewFromInt(1),
		ReferencePrice:  r,
		Ratio:           r,
		TradableVolume:  decimal.NewFromFloat(tradVol),
		ReferenceVolume: decimal.NewFromFloat(refVol),
		Timestamp:       time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
	}
}

func TestEqualMean(t *testing.T) {
	ticks := []model.Tick{
		ratioTick(100, 1, 1),
		ratioTick(102, 1, 1),
		ratioTick(104, 1, 1),
	}

	est, err := Compute(model.MethodEqualMean, ticks)
	require.NoError(t, err)
	assert.True(t, est.Value.Equal(decimal.NewFromInt(102)), "got %s", est.Value)
	assert.Equal(t, 3, est.SampleCount)
}

func TestEqualMean_NoTicks(t *testing.T) {
	_, err := Compute(model.MethodEqualMean, nil)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestWinsorized_TrimsFivePercentEachSide(t *testing.T) {
	// 100 ticks: 5 extreme lows, 90 at 10, 5 extreme highs. The trimmed mean
	// must discard exactly the 5 lowest and 5 highest by rank, leaving 10.
	ticks := make([]model.Tick, 0, 100)
	for i := 0; i < 5; i++ {
		ticks = append(ticks, ratioTick(0.001, 1, 1))
	}
	for i := 0; i < 90; i++ {
		ticks = append(ticks, ratioTick(10, 1, 1))
	}
	for i := 0; i < 5; i++ {
		ticks = append(ticks, ratioTick(99999, 1, 1))
	}

	est, err := Compute(model.MethodWinsorized, ticks)
	require.NoError(t, err)
	assert.True(t, est.Value.Equal(decimal.NewFromInt(10)), "got %s", est.Value)
	assert.Equal(t, 90, est.SampleCount)
}

func TestWinsorized_SmallSampleKeepsEverything(t *testing.T) {
	// With fewer than 20 ticks the 5% trim rounds down to zero.
	ticks := []model.Tick{
		ratioTick(1, 1, 1),
		ratioTick(2, 1, 1),
		ratioTick(3, 1, 1),
	}

	est, err := Compute(model.MethodWinsorized, ticks)
	require.NoError(t, err)
	assert.True(t, est.Value.Equal(decimal.NewFromInt(2)), "got %s", est.Value)
	assert.Equal(t, 3, est.SampleCount)
}

func TestVWAPRatio_IndependentVWAPs(t *testing.T) {
	// Tradable: 10@100 + 30@200 -> VWAP 175.
	// Reference: 20@50000 + 20@70000 -> VWAP 60000.
	ticks := []model.Tick{
		{
			TradablePrice:   decimal.NewFromInt(100),
			ReferencePrice:  decimal.NewFromInt(50000),
			Ratio:           decimal.NewFromInt(500),
			TradableVolume:  decimal.NewFromInt(10),
			ReferenceVolume: decimal.NewFromInt(20),
		},
		{
			TradablePrice:   decimal.NewFromInt(200),
			ReferencePrice:  decimal.NewFromInt(70000),
			Ratio:           decimal.NewFromInt(350),
			TradableVolume:  decimal.NewFromInt(30),
			ReferenceVolume: decimal.NewFromInt(20),
		},
	}

	est, err := Compute(model.MethodVWAPRatio, ticks)
	require.NoError(t, err)

	want := decimal.NewFromInt(60000).Div(decimal.NewFromInt(175))
	assert.True(t, est.Value.Equal(want), "got %s want %s", est.Value, want)

	// Averaging per-tick ratios would give 425; the two-VWAP construction
	// must not.
	assert.False(t, est.Value.Equal(decimal.NewFromInt(425)))
}

func TestVWAPRatio_ZeroVolume(t *testing.T) {
	ticks := []model.Tick{ratioTick(100, 0, 0)}
	_, err := Compute(model.MethodVWAPRatio, ticks)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestVolWeighted(t *testing.T) {
	// (100*1 + 200*3) / 4 = 175, weighted by reference volume.
	ticks := []model.Tick{
		ratioTick(100, 5, 1),
		ratioTick(200, 5, 3),
	}

	est, err := Compute(model.MethodVolWeighted, ticks)
	require.NoError(t, err)
	assert.True(t, est.Value.Equal(decimal.NewFromInt(175)), "got %s", est.Value)
}

func TestVolWeighted_ZeroVolume(t *testing.T) {
	_, err := Compute(model.MethodVolWeighted, []model.Tick{ratioTick(100, 1, 0)})
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestWeightedMedian(t *testing.T) {
	// Sorted by ratio with tradable volumes 10/10/80: cumulative volume
	// first reaches 50% of 100 at the third tick.
	ticks := []model.Tick{
		ratioTick(300, 80, 1),
		ratioTick(100, 10, 1),
		ratioTick(200, 10, 1),
	}

	est, err := Compute(model.MethodWeightedMedian, ticks)
	require.NoError(t, err)
	assert.True(t, est.Value.Equal(decimal.NewFromInt(300)), "got %s", est.Value)
}

func TestWeightedMedian_BalancedVolume(t *testing.T) {
	// Two equal-volume ticks: cumulative hits exactly 50% on the lower one.
	ticks := []model.Tick{
		ratioTick(200, 10, 1),
		ratioTick(100, 10, 1),
	}

	est, err := Compute(model.MethodWeightedMedian, ticks)
	require.NoError(t, err)
	assert.True(t, est.Value.Equal(decimal.NewFromInt(100)), "got %s", est.Value)
}

func TestCompute_UnknownMethod(t *testing.T) {
	_, err := Compute(model.Method("BOGUS"), []model.Tick{ratioTick(1, 1, 1)})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInsufficientData)
}
