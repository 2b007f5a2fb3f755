/**
 * @description
 * Type definitions for the trading venue's public info API responses.
 * These structs map to the JSON returned by endpoints like /info/contexts,
 * /info/candles and /info/userFills. The venue is an opaque collaborator: only
 * the fields the analytics pipeline consumes are mapped.
 */

package venue

import (
	"time"

	"github.com/veristat-project/backend/internal/models"
)

// ContextEntry is one instrument's live context from /info/contexts.
type ContextEntry struct {
	Address       string  `json:"address"`
	MarkPrice     float64 `json:"markPrice"`
	PrevDayPrice  float64 `json:"prevDayPrice"`
	DayBaseVolume float64 `json:"dayBaseVolume"`
	FundingRate   float64 `json:"fundingRate"`
	OpenInterest  float64 `json:"openInterest"`
}

// MetaEntry is one instrument's static metadata from /info/meta.
type MetaEntry struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// LeaderboardEntry is one row of /info/leaderboard.
type LeaderboardEntry struct {
	Address      string  `json:"address"`
	AccountValue float64 `json:"accountValue"`
	Pnl          float64 `json:"pnl"`
}

// Fill is one executed trade from /info/trades or /info/userFills.
type Fill struct {
	Market    string  `json:"market"` // instrument address
	User      string  `json:"user"`
	Side      string  `json:"side"` // "buy" or "sell"
	Size      float64 `json:"size"`
	Price     float64 `json:"price"`
	Fee       float64 `json:"fee"`
	ClosedPnl float64 `json:"closedPnl"`
	Time      int64   `json:"time"` // ms since epoch
}

// ToTrade converts a fill to the internal trade model. The display name is
// resolved later against the instrument directory.
func (f Fill) ToTrade() models.Trade {
	return models.Trade{
		Instrument:  f.Market,
		Trader:      f.User,
		Side:        f.Side,
		Size:        f.Size,
		Price:       f.Price,
		Fee:         f.Fee,
		RealizedPnl: f.ClosedPnl,
		Timestamp:   time.UnixMilli(f.Time).UTC(),
	}
}

// CandleEntry is one hourly candle from /info/candles.
type CandleEntry struct {
	Time       int64   `json:"t"` // bucket open, ms since epoch
	Open       float64 `json:"o"`
	Close      float64 `json:"c"`
	BaseVolume float64 `json:"v"`
}

// AccountResponse is the /info/account overview for one user.
type AccountResponse struct {
	AccountValue  float64 `json:"accountValue"`
	MarginUsed    float64 `json:"marginUsed"`
	Withdrawable  float64 `json:"withdrawable"`
	OpenPositions int     `json:"openPositions"`
}

// ToOverview converts the wire account to the internal model.
func (a AccountResponse) ToOverview() *models.AccountOverview {
	return &models.AccountOverview{
		AccountValue:  a.AccountValue,
		MarginUsed:    a.MarginUsed,
		Withdrawable:  a.Withdrawable,
		OpenPositions: a.OpenPositions,
	}
}
