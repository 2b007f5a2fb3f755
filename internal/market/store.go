/**
 * @description
 * Aggregation store: the single logical owner of the market row table, the
 * trailing 24h volume histogram, and the bounded live trade feed.
 *
 * All mutation from the snapshot fill and the stream ingestor lands here, behind
 * one mutex. Reads return deep copies so concurrent readers never observe a row
 * mid-update.
 *
 * @notes
 * - Price updates replace fields, never accumulate. Reapplying the same update
 *   is a no-op, which keeps duplicate stream delivery idempotent.
 * - Candle volume is additive within its hour bucket and only ever increases.
 * - The trade feed deduplicates on (trader, instrument, timestamp).
 */

package market

import (
	"sort"
	"sync"
	"time"

	"github.com/veristat-project/backend/internal/models"
)

// Store holds one session's aggregated market state.
type Store struct {
	mu sync.RWMutex

	rows  map[string]*models.MarketRow
	names map[string]string // instrument directory: address -> display name

	histogram map[int64]float64 // hour-bucket start (unix sec) -> USD volume

	feed     []models.Trade
	feedKeys map[string]struct{}

	activeTraders int

	now func() time.Time
}

// NewStore creates an empty store. State is session-scoped and discarded on
// session end; there is no persistence.
func NewStore() *Store {
	return &Store{
		rows:      make(map[string]*models.MarketRow),
		names:     make(map[string]string),
		histogram: make(map[int64]float64),
		feedKeys:  make(map[string]struct{}),
		now:       time.Now,
	}
}

// SetInstruments installs the instrument directory used to resolve display names.
func (s *Store) SetInstruments(instruments []models.Instrument) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, inst := range instruments {
		s.names[inst.Address] = inst.Name
	}
}

// Instruments returns the known instrument directory.
func (s *Store) Instruments() []models.Instrument {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Instrument, 0, len(s.names))
	for addr, name := range s.names {
		out = append(out, models.Instrument{Address: addr, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// DisplayName resolves an instrument address, falling back to the address itself.
func (s *Store) DisplayName(address string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if name, ok := s.names[address]; ok && name != "" {
		return name
	}
	return address
}

// UpsertRow installs or replaces one market row during the snapshot fill.
func (s *Store) UpsertRow(row models.MarketRow) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if row.Name == "" {
		if name, ok := s.names[row.Address]; ok {
			row.Name = name
		} else {
			row.Name = row.Address
		}
	}
	if len(row.Sparkline) == 0 && row.MarkPrice > 0 {
		row.Sparkline = []float64{row.MarkPrice}
	}
	copied := row
	copied.Sparkline = append([]float64(nil), row.Sparkline...)
	s.rows[row.Address] = &copied
}

// ApplyPriceUpdate replaces the mark price and funding rate of the matching row.
// Updates for unknown instruments are ignored, not errors.
func (s *Store) ApplyPriceUpdate(update models.PriceUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[update.Address]
	if !ok {
		return
	}

	if update.MarkPrice > 0 && update.MarkPrice != row.MarkPrice {
		row.MarkPrice = update.MarkPrice
		row.Sparkline = append(row.Sparkline, update.MarkPrice)
		if len(row.Sparkline) > models.SparklineCapacity {
			row.Sparkline = row.Sparkline[len(row.Sparkline)-models.SparklineCapacity:]
		}
	}
	row.FundingRate = update.FundingRate
}

// SetActiveTraders replaces the active-trader count with the cardinality of the
// latest received user set.
func (s *Store) SetActiveTraders(count int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if count < 0 {
		count = 0
	}
	s.activeTraders = count
}

// AddCandleVolume folds one candle's incremental base volume into its hour
// bucket, valued in USD at the instrument's current mark price. Buckets that
// have scrolled out of the trailing 24h window are discarded.
func (s *Store) AddCandleVolume(address string, bucketStart time.Time, baseVolume float64) {
	if baseVolume <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[address]
	if !ok || row.MarkPrice <= 0 {
		return
	}

	bucket := bucketStart.UTC().Truncate(time.Hour)
	currentHour := s.now().UTC().Truncate(time.Hour)
	windowStart := currentHour.Add(-time.Duration(models.HistogramBuckets-1) * time.Hour)

	if bucket.Before(windowStart) || bucket.After(currentHour) {
		return
	}

	s.histogram[bucket.Unix()] += baseVolume * row.MarkPrice

	// Drop buckets that fell out of the window so the map stays bounded.
	cutoff := windowStart.Unix()
	for ts := range s.histogram {
		if ts < cutoff {
			delete(s.histogram, ts)
		}
	}
}

// MergeTrades unions new trades into the live feed: dedupe on identity, resolve
// display names, sort by timestamp descending, truncate to the feed limit.
func (s *Store) MergeTrades(trades []models.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, trade := range trades {
		key := trade.Key()
		if _, seen := s.feedKeys[key]; seen {
			continue
		}
		if trade.Market == "" {
			if name, ok := s.names[trade.Instrument]; ok && name != "" {
				trade.Market = name
			} else {
				trade.Market = trade.Instrument
			}
		}
		s.feedKeys[key] = struct{}{}
		s.feed = append(s.feed, trade)
	}

	sort.Slice(s.feed, func(i, j int) bool {
		return s.feed[i].Timestamp.After(s.feed[j].Timestamp)
	})

	if len(s.feed) > models.TradeFeedLimit {
		for _, dropped := range s.feed[models.TradeFeedLimit:] {
			delete(s.feedKeys, dropped.Key())
		}
		s.feed = s.feed[:models.TradeFeedLimit]
	}
}

// Snapshot returns an immutable copy of the store's state plus the derived
// metrics, computed on demand from the row table.
func (s *Store) Snapshot() models.MarketSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now().UTC()

	snap := models.MarketSnapshot{
		Rows:      make([]models.MarketRow, 0, len(s.rows)),
		Histogram: s.windowedHistogram(now),
		Feed:      append([]models.Trade(nil), s.feed...),
		TakenAt:   now,
	}

	for _, row := range s.rows {
		copied := *row
		copied.Sparkline = append([]float64(nil), row.Sparkline...)
		snap.Rows = append(snap.Rows, copied)

		snap.Stats.TotalVolumeUSD += row.VolumeUSD()
		snap.Stats.TotalOpenInterest += row.OpenInterest
		if row.BaseVolume24h > 0 {
			snap.Stats.ActiveMarkets++
		}
	}
	snap.Stats.ActiveTraders = s.activeTraders

	sort.Slice(snap.Rows, func(i, j int) bool {
		return snap.Rows[i].VolumeUSD() > snap.Rows[j].VolumeUSD()
	})

	return snap
}

// windowedHistogram materializes exactly 24 hour buckets covering the trailing
// 24h window ending at the current hour. Caller must hold at least a read lock.
func (s *Store) windowedHistogram(now time.Time) []models.VolumeBucket {
	currentHour := now.Truncate(time.Hour)
	buckets := make([]models.VolumeBucket, models.HistogramBuckets)

	for i := 0; i < models.HistogramBuckets; i++ {
		start := currentHour.Add(-time.Duration(models.HistogramBuckets-1-i) * time.Hour)
		buckets[i] = models.VolumeBucket{
			Start:     start,
			VolumeUSD: s.histogram[start.Unix()],
		}
	}
	return buckets
}
