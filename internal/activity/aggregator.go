/**
 * @description
 * Activity aggregator: folds one user's venue trade history and account
 * overview into a trading summary and per-market volume breakdown.
 *
 * Each aggregation run recomputes everything wholesale from a bounded history
 * fetch; nothing is merged incrementally with a previous run.
 *
 * Degradation rules:
 * - account overview failure -> nil account, aggregation proceeds.
 * - trade history failure -> empty event list, aggregation proceeds.
 * Both fetches run concurrently under one bounded timeout.
 *
 * @dependencies
 * - golang.org/x/sync/errgroup
 * - backend/internal/venue
 */

package activity

import (
	"context"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/veristat-project/backend/internal/logger"
	"github.com/veristat-project/backend/internal/models"
	"github.com/veristat-project/backend/internal/venue"
)

const (
	// HistoryLimit bounds the trade-history fetch per aggregation run.
	HistoryLimit = 200

	// TopMarkets bounds the per-market volume breakdown.
	TopMarkets = 6
)

// UserAPI is the slice of the venue client the aggregator needs.
type UserAPI interface {
	GetUserFills(ctx context.Context, user string, limit int) ([]venue.Fill, error)
	GetAccount(ctx context.Context, user string) (*venue.AccountResponse, error)
}

// Aggregator computes per-user activity bundles.
type Aggregator struct {
	client  UserAPI
	timeout time.Duration
}

// NewAggregator wires a venue client with a per-run fetch timeout.
func NewAggregator(client UserAPI, timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Aggregator{client: client, timeout: timeout}
}

// Aggregate fetches and folds one user's activity. instruments maps addresses
// to display names; unresolved addresses fall back to the raw address.
func (a *Aggregator) Aggregate(ctx context.Context, user string, instruments map[string]string) models.ActivityBundle {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var (
		fills   []venue.Fill
		account *venue.AccountResponse
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		f, err := a.client.GetUserFills(gctx, user, HistoryLimit)
		if err != nil {
			logger.Error("activity: trade history for %s failed: %v", user, err)
			return nil
		}
		fills = f
		return nil
	})
	g.Go(func() error {
		acct, err := a.client.GetAccount(gctx, user)
		if err != nil {
			logger.Error("activity: account overview for %s failed: %v", user, err)
			return nil
		}
		account = acct
		return nil
	})
	_ = g.Wait()

	events := normalizeEvents(fills, instruments)

	bundle := models.ActivityBundle{
		Address:        user,
		Events:         events,
		Summary:        Summarize(events),
		VolumeByMarket: VolumeBreakdown(events),
		RefreshedAt:    time.Now().UTC(),
	}
	if account != nil {
		bundle.Account = account.ToOverview()
	}
	return bundle
}

// normalizeEvents maps raw fills to activity events, newest first.
func normalizeEvents(fills []venue.Fill, instruments map[string]string) []models.ActivityEvent {
	events := make([]models.ActivityEvent, 0, len(fills))
	for _, fill := range fills {
		name := instruments[fill.Market]
		if name == "" {
			name = fill.Market
		}
		events = append(events, models.ActivityEvent{
			Instrument:  fill.Market,
			Market:      name,
			Side:        fill.Side,
			Size:        fill.Size,
			Price:       fill.Price,
			NotionalUSD: fill.Size * fill.Price,
			RealizedPnl: fill.ClosedPnl,
			Fee:         fill.Fee,
			Timestamp:   time.UnixMilli(fill.Time).UTC(),
		})
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	return events
}

// Summarize reduces events to aggregate statistics. All fields are zero for an
// empty event list, including the win rate.
func Summarize(events []models.ActivityEvent) models.TradingSummary {
	var summary models.TradingSummary
	if len(events) == 0 {
		return summary
	}

	var wins int
	var totalNotional float64
	summary.BestTradePnl = events[0].RealizedPnl
	summary.WorstTradePnl = events[0].RealizedPnl

	for _, event := range events {
		if event.RealizedPnl > 0 {
			wins++
		}
		totalNotional += event.NotionalUSD
		summary.TotalFees += event.Fee
		if event.RealizedPnl > summary.BestTradePnl {
			summary.BestTradePnl = event.RealizedPnl
		}
		if event.RealizedPnl < summary.WorstTradePnl {
			summary.WorstTradePnl = event.RealizedPnl
		}
	}

	summary.TotalTrades = len(events)
	summary.WinRatePct = int(math.Round(100 * float64(wins) / float64(len(events))))
	summary.AvgNotionalUSD = totalNotional / float64(len(events))
	return summary
}

// VolumeBreakdown groups events by instrument, sums notional, and returns the
// top markets by volume. Percentages are shares of the shown set, so the
// returned entries always sum to 100 (modulo rounding).
func VolumeBreakdown(events []models.ActivityEvent) []models.VolumeByMarket {
	if len(events) == 0 {
		return nil
	}

	byInstrument := make(map[string]*models.VolumeByMarket)
	for _, event := range events {
		entry, ok := byInstrument[event.Instrument]
		if !ok {
			entry = &models.VolumeByMarket{Instrument: event.Instrument, Market: event.Market}
			byInstrument[event.Instrument] = entry
		}
		entry.VolumeUSD += event.NotionalUSD
	}

	out := make([]models.VolumeByMarket, 0, len(byInstrument))
	for _, entry := range byInstrument {
		out = append(out, *entry)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].VolumeUSD > out[j].VolumeUSD })
	if len(out) > TopMarkets {
		out = out[:TopMarkets]
	}

	var shownTotal float64
	for _, entry := range out {
		shownTotal += entry.VolumeUSD
	}
	if shownTotal > 0 {
		for i := range out {
			out[i].Pct = out[i].VolumeUSD / shownTotal * 100
		}
	}
	return out
}
