package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"ratio-backtester/internal/model"
)

func TestSimConfig_CarriesPricingKnobs(t *testing.T) {
	cfg := Config{
		Slippage:     0.001,
		TickSize:     0.01,
		Conservative: true,
	}

	sim := cfg.SimConfig()
	assert.True(t, sim.Slippage.Equal(decimal.NewFromFloat(0.001)))
	assert.True(t, sim.TickSize.Equal(decimal.NewFromFloat(0.01)))
	assert.True(t, sim.Conservative)

	// Configured slippage must actually move the fill price: a batch run
	// and an API run with the same settings fill at the same prices.
	fill := sim.FillPrice(decimal.NewFromInt(100), model.EventBuy)
	assert.True(t, fill.Equal(decimal.NewFromFloat(100.1)), "got %s", fill)
}

func TestSimConfig_ZeroValueFillsAtQuote(t *testing.T) {
	sim := Config{}.SimConfig()
	fill := sim.FillPrice(decimal.NewFromFloat(50.03), model.EventSell)
	assert.True(t, fill.Equal(decimal.NewFromFloat(50.03)))
}

func TestPctRange_InclusiveOfBothEnds(t *testing.T) {
	got := PctRange(0.1, 0.5, 0.1)
	assert.Len(t, got, 5)
	assert.InDelta(t, 0.1, got[0], 1e-9)
	assert.InDelta(t, 0.5, got[len(got)-1], 1e-9)
}

func TestPctRange_NonPositiveStep(t *testing.T) {
	assert.Equal(t, []float64{1.5}, PctRange(1.5, 3, 0))
}
