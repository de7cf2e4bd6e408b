package baseline

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"ratio-backtester/internal/model"
)

// ErrInsufficientData means a method had zero qualifying ticks (or a zero
// denominator) for the day. Non-fatal: that (method, day) pair is simply
// absent downstream.
var ErrInsufficientData = errors.New("baseline: insufficient data")

// winsorTrimPct is the rank fraction discarded from each tail by WINSORIZED.
const winsorTrimPct = 0.05

var two = decimal.NewFromInt(2)

// Estimate is one computed baseline value and the number of ticks behind it.
type Estimate struct {
	Value       decimal.Decimal
	SampleCount int
}

// Compute summarizes one prior trading day's ticks into a single baseline
// value using the given method. All methods operate on the tick ratio
// (reference price / tradable price) so the result is directly comparable
// with per-tick ratios during a replay.
func Compute(method model.Method, ticks []model.Tick) (Estimate, error) {
	if len(ticks) == 0 {
		return Estimate{}, ErrInsufficientData
	}

	switch method {
	case model.MethodEqualMean:
		return equalMean(ticks)
	case model.MethodVWAPRatio:
		return vwapRatio(ticks)
	case model.MethodVolWeighted:
		return volWeighted(ticks)
	case model.MethodWinsorized:
		return winsorized(ticks)
	case model.MethodWeightedMedian:
		return weightedMedian(ticks)
	default:
		return Estimate{}, fmt.Errorf("baseline: unknown method %q", method)
	}
}

// equalMean is the arithmetic mean of the per-tick ratio.
func equalMean(ticks []model.Tick) (Estimate, error) {
	sum := decimal.Zero
	for _, t := range ticks {
		sum = sum.Add(t.Ratio)
	}
	n := decimal.NewFromInt(int64(len(ticks)))
	return Estimate{Value: sum.Div(n), SampleCount: len(ticks)}, nil
}

// vwapRatio computes two independent VWAPs and divides them. This is not the
// same as averaging per-tick ratios: each asset's VWAP is weighted by its own
// volume. Returned in ratio units, reference VWAP over tradable VWAP.
func vwapRatio(ticks []model.Tick) (Estimate, error) {
	tradNotional, tradVolume := decimal.Zero, decimal.Zero
	refNotional, refVolume := decimal.Zero, decimal.Zero
	for _, t := range ticks {
		tradNotional = tradNotional.Add(t.TradablePrice.Mul(t.TradableVolume))
		tradVolume = tradVolume.Add(t.TradableVolume)
		refNotional = refNotional.Add(t.ReferencePrice.Mul(t.ReferenceVolume))
		refVolume = refVolume.Add(t.ReferenceVolume)
	}
	if tradVolume.IsZero() || refVolume.IsZero() {
		return Estimate{}, ErrInsufficientData
	}
	tradVWAP := tradNotional.Div(tradVolume)
	refVWAP := refNotional.Div(refVolume)
	if tradVWAP.IsZero() {
		return Estimate{}, ErrInsufficientData
	}
	return Estimate{Value: refVWAP.Div(tradVWAP), SampleCount: len(ticks)}, nil
}

// volWeighted is the mean of the per-tick ratio weighted by the reference
// asset's volume.
func volWeighted(ticks []model.Tick) (Estimate, error) {
	weighted, totalVolume := decimal.Zero, decimal.Zero
	for _, t := range ticks {
		weighted = weighted.Add(t.Ratio.Mul(t.ReferenceVolume))
		totalVolume = totalVolume.Add(t.ReferenceVolume)
	}
	if totalVolume.IsZero() {
		return Estimate{}, ErrInsufficientData
	}
	return Estimate{Value: weighted.Div(totalVolume), SampleCount: len(ticks)}, nil
}

// winsorized is a trimmed mean: the lowest and highest 5% of ticks by ratio
// rank are discarded entirely (not clamped) before averaging.
func winsorized(ticks []model.Tick) (Estimate, error) {
	ratios := make([]decimal.Decimal, len(ticks))
	for i, t := range ticks {
		ratios[i] = t.Ratio
	}
	sort.Slice(ratios, func(i, j int) bool { return ratios[i].LessThan(ratios[j]) })

	trim := int(float64(len(ratios)) * winsorTrimPct)
	kept := ratios[trim : len(ratios)-trim]
	if len(kept) == 0 {
		return Estimate{}, ErrInsufficientData
	}

	sum := decimal.Zero
	for _, r := range kept {
		sum = sum.Add(r)
	}
	return Estimate{
		Value:       sum.Div(decimal.NewFromInt(int64(len(kept)))),
		SampleCount: len(kept),
	}, nil
}

// weightedMedian sorts ticks by ratio and returns the ratio at which
// cumulative tradable-asset volume first reaches half the day's total.
func weightedMedian(ticks []model.Tick) (Estimate, error) {
	sorted := make([]model.Tick, len(ticks))
	copy(sorted, ticks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ratio.LessThan(sorted[j].Ratio) })

	total := decimal.Zero
	for _, t := range sorted {
		total = total.Add(t.TradableVolume)
	}
	if total.IsZero() {
		return Estimate{}, ErrInsufficientData
	}

	half := total.Div(two)
	cumulative := decimal.Zero
	for _, t := range sorted {
		cumulative = cumulative.Add(t.TradableVolume)
		if cumulative.GreaterThanOrEqual(half) {
			return Estimate{Value: t.Ratio, SampleCount: len(ticks)}, nil
		}
	}
	// Unreachable with a positive total, but keep the compiler honest.
	return Estimate{}, ErrInsufficientData
}
