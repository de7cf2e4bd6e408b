package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Session is the trading-day sub-window a tick belongs to.
type Session string

const (
	SessionPrimary  Session = "PRIMARY"
	SessionExtended Session = "EXTENDED"
)

// Method names one of the baseline aggregation methods.
type Method string

const (
	MethodEqualMean      Method = "EQUAL_MEAN"
	MethodVWAPRatio      Method = "VWAP_RATIO"
	MethodVolWeighted    Method = "VOL_WEIGHTED"
	MethodWinsorized     Method = "WINSORIZED"
	MethodWeightedMedian Method = "WEIGHTED_MEDIAN"
)

func AllMethods() []Method {
	return []Method{
		MethodEqualMean,
		MethodVWAPRatio,
		MethodVolWeighted,
		MethodWinsorized,
		MethodWeightedMedian,
	}
}

func AllSessions() []Session {
	return []Session{SessionPrimary, SessionExtended}
}

// ParseMethod validates an external method name.
func ParseMethod(raw string) (Method, error) {
	m := Method(strings.ToUpper(raw))
	for _, known := range AllMethods() {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown baseline method %q", raw)
}

// ParseSession validates an external session name.
func ParseSession(raw string) (Session, error) {
	s := Session(strings.ToUpper(raw))
	for _, known := range AllSessions() {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown session %q", raw)
}

// Tick is a single minute-bar observation of the tradable and reference
// assets. Ratio is always reference price divided by tradable price.
type Tick struct {
	Symbol          string          `json:"symbol" db:"symbol"`
	Session         Session         `json:"session" db:"session"`
	TradablePrice   decimal.Decimal `json:"tradable_price" db:"tradable_price"`
	ReferencePrice  decimal.Decimal `json:"reference_price" db:"reference_price"`
	Ratio           decimal.Decimal `json:"ratio" db:"ratio"`
	TradableVolume  decimal.Decimal `json:"tradable_volume" db:"tradable_volume"`
	ReferenceVolume decimal.Decimal `json:"reference_volume" db:"reference_volume"`
	Timestamp       time.Time       `json:"ts" db:"time"`
}

// Leg identifies which side of a ratio pair an upstream bar belongs to.
type Leg string

const (
	LegTradable  Leg = "TRADABLE"
	LegReference Leg = "REFERENCE"
)

// LegBar is one upstream minute bar for a single leg of a ratio pair. Two
// legs of the same (symbol, session, minute) assemble into one Tick.
type LegBar struct {
	Symbol    string          `json:"symbol"`
	Session   Session         `json:"session"`
	Leg       Leg             `json:"leg"`
	Price     decimal.Decimal `json:"price"`
	Volume    decimal.Decimal `json:"volume"`
	Timestamp time.Time       `json:"ts"`
}

// DayKey formats a timestamp as the canonical trading-day key.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// TradingDay returns the tick's trading-day key.
func (t Tick) TradingDay() string {
	return DayKey(t.Timestamp)
}

// Baseline is one day's reference ratio for a (day, session, symbol, method)
// key, computed from the previous trading day's ticks. One row per key;
// rewritten only by an idempotent recompute.
type Baseline struct {
	TradingDay  time.Time       `json:"trading_day" db:"trading_day"`
	Session     Session         `json:"session" db:"session"`
	Symbol      string          `json:"symbol" db:"symbol"`
	Method      Method          `json:"method" db:"method"`
	Value       decimal.Decimal `json:"value" db:"value"`
	SampleCount int             `json:"sample_count" db:"sample_count"`
}

// BaselineLookup resolves the baseline for a (trading day, session) pair
// during a replay. The second return is false when no baseline exists, in
// which case that day's ticks carry no signal and are skipped.
type BaselineLookup func(day string, session Session) (decimal.Decimal, bool)
