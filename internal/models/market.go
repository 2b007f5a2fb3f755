/**
 * @description
 * Market data entities for the analytics pipeline.
 * These are session-scoped, in-memory aggregates: created empty at session start,
 * filled by the snapshot fetcher, then mutated by the stream ingestor.
 *
 * @notes
 * - Instrument addresses are the join key used by every other entity.
 * - Trade identity is (Trader, Instrument, Timestamp); the feed deduplicates on it.
 */

package models

import (
	"fmt"
	"time"
)

// SparklineCapacity bounds the per-row price history ring. The ring exists only to
// feed the sparkline renderer, so the bound is a UI concern, not a data one.
const SparklineCapacity = 48

// TradeFeedLimit bounds the live trade feed after any merge.
const TradeFeedLimit = 50

// HistogramBuckets is the number of hourly buckets in the trailing volume window.
const HistogramBuckets = 24

// Instrument identifies a single tradable market on the venue.
type Instrument struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// MarketRow is the current aggregated state of one instrument.
type MarketRow struct {
	Address       string    `json:"address"`
	Name          string    `json:"name"`
	MarkPrice     float64   `json:"mark_price"`
	Change24hPct  float64   `json:"change_24h_pct"`
	BaseVolume24h float64   `json:"base_volume_24h"`
	FundingRate   float64   `json:"funding_rate"`
	OpenInterest  float64   `json:"open_interest"`
	Sparkline     []float64 `json:"sparkline"`
}

// VolumeUSD values the row's 24h base-unit volume at the current mark price.
func (r *MarketRow) VolumeUSD() float64 {
	return r.BaseVolume24h * r.MarkPrice
}

// PriceUpdate is a streamed tick. Applied by replacing, never accumulating,
// the matching MarketRow fields.
type PriceUpdate struct {
	Address     string  `json:"address"`
	MarkPrice   float64 `json:"mark_price"`
	FundingRate float64 `json:"funding_rate"`
}

// Candle is one hourly OHLV bucket for one instrument. Only the volume component
// participates in aggregation; BucketStart is always hour-aligned.
type Candle struct {
	Address     string    `json:"address"`
	BucketStart time.Time `json:"bucket_start"`
	BaseVolume  float64   `json:"base_volume"`
}

// VolumeBucket is one hour of USD volume aggregated across all instruments.
type VolumeBucket struct {
	Start     time.Time `json:"start"`
	VolumeUSD float64   `json:"volume_usd"`
}

// Trade is a single executed fill from the public feed or a user's history.
type Trade struct {
	Instrument  string    `json:"instrument"`
	Market      string    `json:"market"` // display name, resolved from the instrument directory
	Trader      string    `json:"trader"`
	Side        string    `json:"side"` // "buy" or "sell"
	Size        float64   `json:"size"`
	Price       float64   `json:"price"`
	Fee         float64   `json:"fee"`
	RealizedPnl float64   `json:"realized_pnl"`
	Timestamp   time.Time `json:"timestamp"`
}

// Key returns the trade's dedupe identity.
func (t Trade) Key() string {
	return fmt.Sprintf("%s|%s|%d", t.Trader, t.Instrument, t.Timestamp.UnixMilli())
}

// MarketStats are derived read-only metrics, computed on demand from the row table.
type MarketStats struct {
	TotalVolumeUSD    float64 `json:"total_volume_usd"`
	TotalOpenInterest float64 `json:"total_open_interest"`
	ActiveMarkets     int     `json:"active_markets"`
	ActiveTraders     int     `json:"active_traders"`
}

// MarketSnapshot is an immutable copy of the aggregation store's state.
// Readers never observe a row mid-update.
type MarketSnapshot struct {
	Rows      []MarketRow    `json:"rows"`
	Histogram []VolumeBucket `json:"histogram"`
	Feed      []Trade        `json:"feed"`
	Stats     MarketStats    `json:"stats"`
	TakenAt   time.Time      `json:"taken_at"`
}
