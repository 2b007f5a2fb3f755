/**
 * @description
 * Snapshot fetcher: pulls the venue's REST resources and normalizes them into
 * the aggregation store. Pure with respect to the store's streaming state -
 * rows are replaced, the histogram and feed are seeded additively.
 *
 * Degradation rules:
 * - contexts are the backbone; a contexts failure fails the whole fill (it is
 *   retried on the next refresh cycle).
 * - meta, price feed and leaderboard failures degrade to fallbacks (addresses
 *   as names, context prices, zero active traders).
 * - candle and trade seeding is isolated per instrument; one bad instrument
 *   never blocks the rest.
 */

package market

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/veristat-project/backend/internal/logger"
	"github.com/veristat-project/backend/internal/models"
	"github.com/veristat-project/backend/internal/venue"
)

const (
	// Initial feed: top feedSeedMarkets instruments x feedSeedPerMarket trades,
	// merged and truncated to feedSeedLimit.
	feedSeedMarkets   = 5
	feedSeedPerMarket = 5
	feedSeedLimit     = 20
)

// VenueAPI is the slice of the venue client the snapshotter needs.
type VenueAPI interface {
	GetContexts(ctx context.Context) ([]venue.ContextEntry, error)
	GetMeta(ctx context.Context) ([]venue.MetaEntry, error)
	GetPrices(ctx context.Context) (map[string]float64, error)
	GetLeaderboard(ctx context.Context) ([]venue.LeaderboardEntry, error)
	GetTrades(ctx context.Context, market string, limit int) ([]venue.Fill, error)
	GetCandles(ctx context.Context, market string, start, end time.Time) ([]venue.CandleEntry, error)
}

// Snapshotter fills a store from REST snapshots.
type Snapshotter struct {
	client VenueAPI
	store  *Store
}

// NewSnapshotter wires a venue client to a store.
func NewSnapshotter(client VenueAPI, store *Store) *Snapshotter {
	return &Snapshotter{client: client, store: store}
}

// Fill performs one full snapshot: rows, histogram seed, feed seed.
func (s *Snapshotter) Fill(ctx context.Context) error {
	if err := s.fillRows(ctx); err != nil {
		return err
	}
	s.seedHistogram(ctx)
	s.seedFeed(ctx)
	return nil
}

// fillRows normalizes contexts + meta + prices + leaderboard into market rows.
func (s *Snapshotter) fillRows(ctx context.Context) error {
	contexts, err := s.client.GetContexts(ctx)
	if err != nil {
		return fmt.Errorf("fetch contexts: %w", err)
	}

	names := make(map[string]string)
	if meta, err := s.client.GetMeta(ctx); err != nil {
		logger.Error("snapshot: meta fetch failed, using addresses as names: %v", err)
	} else {
		for _, m := range meta {
			names[m.Address] = m.Name
		}
	}

	prices, err := s.client.GetPrices(ctx)
	if err != nil {
		logger.Error("snapshot: price feed unavailable, using context prices: %v", err)
		prices = nil
	}

	instruments := make([]models.Instrument, 0, len(contexts))
	for _, entry := range contexts {
		name := names[entry.Address]
		if name == "" {
			name = entry.Address
		}
		instruments = append(instruments, models.Instrument{Address: entry.Address, Name: name})
	}
	s.store.SetInstruments(instruments)

	for _, entry := range contexts {
		mark := entry.MarkPrice
		if p, ok := prices[entry.Address]; ok && p > 0 {
			mark = p
		}

		var changePct float64
		if entry.PrevDayPrice > 0 {
			changePct = (mark - entry.PrevDayPrice) / entry.PrevDayPrice * 100
		}

		s.store.UpsertRow(models.MarketRow{
			Address:       entry.Address,
			Name:          names[entry.Address],
			MarkPrice:     mark,
			Change24hPct:  changePct,
			BaseVolume24h: entry.DayBaseVolume,
			FundingRate:   entry.FundingRate,
			OpenInterest:  entry.OpenInterest,
		})
	}

	if leaderboard, err := s.client.GetLeaderboard(ctx); err != nil {
		logger.Error("snapshot: leaderboard unavailable: %v", err)
	} else {
		s.store.SetActiveTraders(len(leaderboard))
	}

	return nil
}

// seedHistogram pulls each instrument's trailing 24h of hourly candles. Fetches
// are joined on the instrument address; one instrument's failure is isolated.
func (s *Snapshotter) seedHistogram(ctx context.Context) {
	end := time.Now().UTC()
	start := end.Add(-models.HistogramBuckets * time.Hour)

	for _, inst := range s.store.Instruments() {
		candles, err := s.client.GetCandles(ctx, inst.Address, start, end)
		if err != nil {
			logger.Error("snapshot: candles for %s failed: %v", inst.Address, err)
			continue
		}
		for _, candle := range candles {
			s.store.AddCandleVolume(inst.Address, time.UnixMilli(candle.Time).UTC(), candle.BaseVolume)
		}
	}
}

// seedFeed builds the initial trade feed from the top instruments by volume.
func (s *Snapshotter) seedFeed(ctx context.Context) {
	snap := s.store.Snapshot()

	top := snap.Rows
	if len(top) > feedSeedMarkets {
		top = top[:feedSeedMarkets]
	}

	var merged []models.Trade
	for _, row := range top {
		fills, err := s.client.GetTrades(ctx, row.Address, feedSeedPerMarket)
		if err != nil {
			logger.Error("snapshot: trades for %s failed: %v", row.Address, err)
			continue
		}
		for _, fill := range fills {
			merged = append(merged, fill.ToTrade())
		}
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp.After(merged[j].Timestamp)
	})
	if len(merged) > feedSeedLimit {
		merged = merged[:feedSeedLimit]
	}

	s.store.MergeTrades(merged)
}
