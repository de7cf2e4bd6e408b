package engine

import (
	"github.com/shopspring/decimal"

	"ratio-backtester/internal/model"
)

// SimConfig carries the optional pricing-realism modifiers. The zero value
// fills at the raw tick price.
type SimConfig struct {
	// Slippage is a fractional price penalty (e.g. 0.0005) applied in the
	// unfavorable direction before rounding.
	Slippage decimal.Decimal
	// TickSize is the smallest price increment used by conservative
	// rounding. Ignored unless Conservative is set and TickSize > 0.
	TickSize decimal.Decimal
	// Conservative rounds fill prices up on buys and down on sells.
	Conservative bool
}

// FillPrice converts a quoted tradable price into the simulated execution
// price: slippage first, then conservative rounding to the tick increment.
func (c SimConfig) FillPrice(price decimal.Decimal, side model.EventType) decimal.Decimal {
	if !c.Slippage.IsZero() {
		penalty := price.Mul(c.Slippage)
		if side == model.EventBuy {
			price = price.Add(penalty)
		} else {
			price = price.Sub(penalty)
		}
	}
	if c.Conservative && c.TickSize.IsPositive() {
		steps := price.Div(c.TickSize)
		if side == model.EventBuy {
			steps = steps.Ceil()
		} else {
			steps = steps.Floor()
		}
		price = steps.Mul(c.TickSize)
	}
	return price
}
