package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EventType marks the direction of a persisted state transition.
type EventType string

const (
	EventBuy  EventType = "BUY"
	EventSell EventType = "SELL"
)

// Combination is one grid coordinate: which symbol to trade, how the
// baseline is computed, which session window applies, and the buy/sell
// threshold percentages.
type Combination struct {
	Symbol  string          `json:"symbol" db:"symbol"`
	Method  Method          `json:"method" db:"method"`
	Session Session         `json:"session" db:"session"`
	BuyPct  decimal.Decimal `json:"buy_pct" db:"buy_pct"`
	SellPct decimal.Decimal `json:"sell_pct" db:"sell_pct"`
}

// Key is the canonical checkpoint identity for a combination.
func (c Combination) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", c.Symbol, c.Method, c.Session, c.BuyPct.String(), c.SellPct.String())
}

// Event is an append-only BUY or SELL transition with full tick context.
// Unique per (combination, timestamp); types strictly alternate within one
// combination's stream. TradeROIPct is set only on SELL, against the paired
// BUY's fill price. Shares and CashAfter snapshot the wallet as of the
// transition so that the most recent event alone fully reconstructs the
// wallet for incremental extension.
type Event struct {
	Combination
	Timestamp      time.Time           `json:"ts" db:"time"`
	Type           EventType           `json:"event_type" db:"event_type"`
	TradablePrice  decimal.Decimal     `json:"tradable_price" db:"tradable_price"`
	ReferencePrice decimal.Decimal     `json:"reference_price" db:"reference_price"`
	Ratio          decimal.Decimal     `json:"ratio" db:"ratio"`
	Baseline       decimal.Decimal     `json:"baseline" db:"baseline"`
	Shares         int64               `json:"shares" db:"shares"`
	CashAfter      decimal.Decimal     `json:"cash_after" db:"cash_after"`
	TradeROIPct    decimal.NullDecimal `json:"trade_roi_pct" db:"trade_roi_pct"`
}

// Position is the state machine's side: flat or long.
type Position string

const (
	PositionFlat Position = "FLAT"
	PositionLong Position = "LONG"
)

// WalletState is the transient account of one combination. It is never
// persisted: it lives in memory during a replay, or is reconstructed from
// the single most recent persisted event.
type WalletState struct {
	Position       Position
	Cash           decimal.Decimal
	Shares         int64
	EntryPrice     decimal.Decimal
	EntryBaseline  decimal.Decimal
	EntryTimestamp time.Time
}

// NewWallet returns a flat wallet holding the given cash.
func NewWallet(cash decimal.Decimal) WalletState {
	return WalletState{Position: PositionFlat, Cash: cash}
}

// Equity values the wallet at the given tradable price.
func (w WalletState) Equity(price decimal.Decimal) decimal.Decimal {
	if w.Position == PositionLong {
		return w.Cash.Add(decimal.NewFromInt(w.Shares).Mul(price))
	}
	return w.Cash
}

// RunSummary is the end-of-run report of a grid or extension run.
type RunSummary struct {
	RunID      string        `json:"run_id"`
	Attempted  int           `json:"attempted"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Events     int           `json:"events"`
	FailedKeys []string      `json:"failed_keys,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Elapsed    time.Duration `json:"elapsed"`
}

// RankedCombination is one row of the top-performer report. ApproxScore is
// the step-1 summed per-trade ROI; TrueROIPct and FinalEquity come from the
// step-2 wallet replay.
type RankedCombination struct {
	Combination
	ApproxScore decimal.Decimal `json:"approx_score"`
	TrueROIPct  decimal.Decimal `json:"true_roi_pct"`
	FinalEquity decimal.Decimal `json:"final_equity"`
	Trades      int             `json:"trades"`
}
