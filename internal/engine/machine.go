// Package engine holds the threshold state machine at the heart of the
// backtester. The machine itself is a pure function: callers own the loop
// and any persistence, which keeps a replay deterministic, resumable from
// any tick boundary, and safe to run for thousands of combinations in
// parallel.
package engine

import (
	"github.com/shopspring/decimal"

	"ratio-backtester/internal/model"
)

var oneHundred = decimal.NewFromInt(100)

// Step advances the wallet by one tick against the day's baseline.
//
// With the wallet flat, a ratio at or above baseline*(1+buyPct/100) buys the
// maximum whole number of shares affordable at the fill price. With the
// wallet long, a ratio at or below baseline*(1-sellPct/100) sells the whole
// position and prices the trade's ROI against the paired buy fill. A tick
// triggers at most one transition; an unaffordable buy is a no-op.
func Step(state model.WalletState, tick model.Tick, baseline, buyPct, sellPct decimal.Decimal, cfg SimConfig) (model.WalletState, *model.Event) {
	switch state.Position {
	case model.PositionFlat:
		buyThreshold := baseline.Mul(oneHundred.Add(buyPct)).Div(oneHundred)
		if tick.Ratio.LessThan(buyThreshold) || !state.Cash.IsPositive() {
			return state, nil
		}

		fill := cfg.FillPrice(tick.TradablePrice, model.EventBuy)
		if !fill.IsPositive() {
			return state, nil
		}
		shares := state.Cash.Div(fill).Floor().IntPart()
		if shares == 0 {
			return state, nil
		}

		cost := decimal.NewFromInt(shares).Mul(fill)
		next := state
		next.Position = model.PositionLong
		next.Cash = state.Cash.Sub(cost)
		next.Shares = shares
		next.EntryPrice = fill
		next.EntryBaseline = baseline
		next.EntryTimestamp = tick.Timestamp

		return next, &model.Event{
			Timestamp:      tick.Timestamp,
			Type:           model.EventBuy,
			TradablePrice:  fill,
			ReferencePrice: tick.ReferencePrice,
			Ratio:          tick.Ratio,
			Baseline:       baseline,
			Shares:         shares,
			CashAfter:      next.Cash,
		}

	case model.PositionLong:
		sellThreshold := baseline.Mul(oneHundred.Sub(sellPct)).Div(oneHundred)
		if tick.Ratio.GreaterThan(sellThreshold) {
			return state, nil
		}

		fill := cfg.FillPrice(tick.TradablePrice, model.EventSell)
		shares := decimal.NewFromInt(state.Shares)
		proceeds := shares.Mul(fill)
		costBasis := shares.Mul(state.EntryPrice)
		roi := proceeds.Sub(costBasis).Div(costBasis).Mul(oneHundred)

		next := state
		next.Position = model.PositionFlat
		next.Cash = state.Cash.Add(proceeds)
		next.Shares = 0
		next.EntryPrice = decimal.Zero
		next.EntryBaseline = decimal.Zero

		return next, &model.Event{
			Timestamp:      tick.Timestamp,
			Type:           model.EventSell,
			TradablePrice:  fill,
			ReferencePrice: tick.ReferencePrice,
			Ratio:          tick.Ratio,
			Baseline:       baseline,
			Shares:         state.Shares,
			CashAfter:      next.Cash,
			TradeROIPct:    decimal.NullDecimal{Decimal: roi, Valid: true},
		}
	}

	return state, nil
}

// Simulate replays an ordered tick sequence through Step for one
// combination. Ticks whose (day, session) has no baseline are skipped.
// Positions still open after the last tick are left open; the event stream
// only ever contains true threshold crossings.
func Simulate(comb model.Combination, ticks []model.Tick, lookup model.BaselineLookup, initial model.WalletState, cfg SimConfig) ([]model.Event, model.WalletState) {
	state := initial
	var events []model.Event

	for _, tick := range ticks {
		baseline, ok := lookup(tick.TradingDay(), tick.Session)
		if !ok {
			continue
		}

		var ev *model.Event
		state, ev = Step(state, tick, baseline, comb.BuyPct, comb.SellPct, cfg)
		if ev != nil {
			ev.Combination = comb
			events = append(events, *ev)
		}
	}
	return events, state
}
