/**
 * @description
 * Per-user activity entities. These are recomputed wholesale on every refresh
 * cycle (they derive from a bounded history fetch), never mutated incrementally.
 */

package models

import "time"

// ActivityEvent is a normalized trade attributable to one user.
type ActivityEvent struct {
	Instrument  string    `json:"instrument"`
	Market      string    `json:"market"`
	Side        string    `json:"side"`
	Size        float64   `json:"size"`
	Price       float64   `json:"price"`
	NotionalUSD float64   `json:"notional_usd"`
	RealizedPnl float64   `json:"realized_pnl"`
	Fee         float64   `json:"fee"`
	Timestamp   time.Time `json:"timestamp"`
}

// TradingSummary aggregates statistics over a user's activity events.
type TradingSummary struct {
	TotalTrades    int     `json:"total_trades"`
	WinRatePct     int     `json:"win_rate_pct"`
	AvgNotionalUSD float64 `json:"avg_notional_usd"`
	BestTradePnl   float64 `json:"best_trade_pnl"`
	WorstTradePnl  float64 `json:"worst_trade_pnl"`
	TotalFees      float64 `json:"total_fees"`
}

// VolumeByMarket is one instrument's share of a user's total volume.
type VolumeByMarket struct {
	Instrument string  `json:"instrument"`
	Market     string  `json:"market"`
	VolumeUSD  float64 `json:"volume_usd"`
	Pct        float64 `json:"pct"`
}

// AccountOverview is the venue's account summary for one user.
// A failed overview fetch yields a nil pointer, never a zeroed struct.
type AccountOverview struct {
	AccountValue  float64 `json:"account_value"`
	MarginUsed    float64 `json:"margin_used"`
	Withdrawable  float64 `json:"withdrawable"`
	OpenPositions int     `json:"open_positions"`
}

// ActivityBundle is the full read-only output of one aggregation run.
type ActivityBundle struct {
	Address        string           `json:"address"`
	Events         []ActivityEvent  `json:"events"`
	Summary        TradingSummary   `json:"summary"`
	Account        *AccountOverview `json:"account"`
	VolumeByMarket []VolumeByMarket `json:"volume_by_market"`
	RefreshedAt    time.Time        `json:"refreshed_at"`
}
