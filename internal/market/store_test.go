package market

import (
	"fmt"
	"testing"
	"time"

	"github.com/veristat-project/backend/internal/models"
)

func fixedNow() time.Time {
	// Mid-hour so bucket alignment is visible
	return time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)
}

func newTestStore() *Store {
	s := NewStore()
	s.now = fixedNow
	s.SetInstruments([]models.Instrument{
		{Address: "0xaaa", Name: "ETH-PERP"},
		{Address: "0xbbb", Name: "BTC-PERP"},
	})
	s.UpsertRow(models.MarketRow{Address: "0xaaa", MarkPrice: 2, BaseVolume24h: 100, OpenInterest: 50})
	s.UpsertRow(models.MarketRow{Address: "0xbbb", MarkPrice: 50000, BaseVolume24h: 0, OpenInterest: 10})
	return s
}

func TestApplyPriceUpdateReplacesFields(t *testing.T) {
	s := newTestStore()

	s.ApplyPriceUpdate(models.PriceUpdate{Address: "0xaaa", MarkPrice: 3, FundingRate: 0.0001})

	snap := s.Snapshot()
	for _, row := range snap.Rows {
		if row.Address == "0xaaa" {
			if row.MarkPrice != 3 {
				t.Fatalf("mark price not replaced: %v", row.MarkPrice)
			}
			if row.FundingRate != 0.0001 {
				t.Fatalf("funding rate not replaced: %v", row.FundingRate)
			}
			return
		}
	}
	t.Fatal("row 0xaaa missing from snapshot")
}

func TestApplyPriceUpdateIdempotent(t *testing.T) {
	s := newTestStore()
	update := models.PriceUpdate{Address: "0xaaa", MarkPrice: 3, FundingRate: 0.0001}

	s.ApplyPriceUpdate(update)
	first := s.Snapshot()

	s.ApplyPriceUpdate(update)
	second := s.Snapshot()

	row1 := findRow(t, first, "0xaaa")
	row2 := findRow(t, second, "0xaaa")
	if row1.MarkPrice != row2.MarkPrice || len(row1.Sparkline) != len(row2.Sparkline) {
		t.Fatalf("duplicate update changed state: %+v vs %+v", row1, row2)
	}
}

func TestApplyPriceUpdateUnknownInstrumentIgnored(t *testing.T) {
	s := newTestStore()
	before := s.Snapshot()

	s.ApplyPriceUpdate(models.PriceUpdate{Address: "0xzzz", MarkPrice: 99})

	after := s.Snapshot()
	if len(after.Rows) != len(before.Rows) {
		t.Fatal("unknown instrument created a row")
	}
}

func TestSparklineBounded(t *testing.T) {
	s := newTestStore()

	for i := 0; i < models.SparklineCapacity*2; i++ {
		s.ApplyPriceUpdate(models.PriceUpdate{Address: "0xaaa", MarkPrice: float64(i + 1)})
	}

	row := findRow(t, s.Snapshot(), "0xaaa")
	if len(row.Sparkline) != models.SparklineCapacity {
		t.Fatalf("sparkline not bounded: %d", len(row.Sparkline))
	}
	if row.Sparkline[len(row.Sparkline)-1] != float64(models.SparklineCapacity*2) {
		t.Fatalf("sparkline lost the newest point: %v", row.Sparkline[len(row.Sparkline)-1])
	}
}

func TestCandleVolumeAccumulates(t *testing.T) {
	s := newTestStore()
	bucket := fixedNow().Truncate(time.Hour)

	// Mark price for 0xaaa is $2: volumes 10 and 15 should add $20 then $30.
	s.AddCandleVolume("0xaaa", bucket, 10)
	if got := bucketVolume(s, bucket); got != 20 {
		t.Fatalf("expected $20 after first candle, got %v", got)
	}

	s.AddCandleVolume("0xaaa", bucket, 15)
	if got := bucketVolume(s, bucket); got != 50 {
		t.Fatalf("expected $50 total, got %v", got)
	}
}

func TestCandleVolumeMonotonic(t *testing.T) {
	s := newTestStore()
	bucket := fixedNow().Truncate(time.Hour)

	last := 0.0
	for i := 0; i < 10; i++ {
		s.AddCandleVolume("0xaaa", bucket, float64(i))
		got := bucketVolume(s, bucket)
		if got < last {
			t.Fatalf("bucket volume decreased: %v -> %v", last, got)
		}
		last = got
	}
}

func TestCandleOutsideWindowDiscarded(t *testing.T) {
	s := newTestStore()
	stale := fixedNow().Add(-25 * time.Hour)

	s.AddCandleVolume("0xaaa", stale, 100)

	for _, b := range s.Snapshot().Histogram {
		if b.VolumeUSD != 0 {
			t.Fatalf("stale candle landed in bucket %v", b.Start)
		}
	}
}

func TestHistogramWindowInvariant(t *testing.T) {
	s := newTestStore()

	// Sprinkle volume across several hours, including out-of-window ones.
	for h := -30; h <= 0; h++ {
		s.AddCandleVolume("0xaaa", fixedNow().Add(time.Duration(h)*time.Hour), 1)
	}

	snap := s.Snapshot()
	if len(snap.Histogram) != models.HistogramBuckets {
		t.Fatalf("expected %d buckets, got %d", models.HistogramBuckets, len(snap.Histogram))
	}

	currentHour := fixedNow().Truncate(time.Hour)
	for i, b := range snap.Histogram {
		want := currentHour.Add(-time.Duration(models.HistogramBuckets-1-i) * time.Hour)
		if !b.Start.Equal(want) {
			t.Fatalf("bucket %d start = %v, want %v", i, b.Start, want)
		}
	}
}

func TestMergeTradesDedupesAndOrders(t *testing.T) {
	s := newTestStore()
	base := fixedNow()

	trades := []models.Trade{
		{Instrument: "0xaaa", Trader: "0x1", Size: 1, Price: 2, Timestamp: base.Add(-time.Minute)},
		{Instrument: "0xaaa", Trader: "0x1", Size: 1, Price: 2, Timestamp: base.Add(-time.Minute)}, // duplicate
		{Instrument: "0xbbb", Trader: "0x2", Size: 1, Price: 50000, Timestamp: base},
	}
	s.MergeTrades(trades)
	// Apply the whole batch again: must be a no-op.
	s.MergeTrades(trades)

	feed := s.Snapshot().Feed
	if len(feed) != 2 {
		t.Fatalf("expected 2 deduplicated trades, got %d", len(feed))
	}
	if !feed[0].Timestamp.After(feed[1].Timestamp) {
		t.Fatal("feed not sorted newest first")
	}
	if feed[0].Market != "BTC-PERP" {
		t.Fatalf("display name not resolved: %q", feed[0].Market)
	}
}

func TestFeedBounded(t *testing.T) {
	s := newTestStore()
	base := fixedNow()

	var trades []models.Trade
	for i := 0; i < models.TradeFeedLimit*2; i++ {
		trades = append(trades, models.Trade{
			Instrument: "0xaaa",
			Trader:     fmt.Sprintf("0x%d", i),
			Size:       1,
			Price:      2,
			Timestamp:  base.Add(-time.Duration(i) * time.Second),
		})
	}
	s.MergeTrades(trades)

	feed := s.Snapshot().Feed
	if len(feed) != models.TradeFeedLimit {
		t.Fatalf("feed exceeded bound: %d", len(feed))
	}
	for i := 1; i < len(feed); i++ {
		if feed[i].Timestamp.After(feed[i-1].Timestamp) {
			t.Fatal("feed order broken after truncation")
		}
	}
	// The newest trades survived the cut.
	if feed[0].Trader != "0x0" {
		t.Fatalf("newest trade dropped: %q", feed[0].Trader)
	}
}

func TestSnapshotDerivedStats(t *testing.T) {
	s := newTestStore()
	s.SetActiveTraders(7)

	stats := s.Snapshot().Stats
	// 0xaaa: 100 base * $2 = $200; 0xbbb has zero volume.
	if stats.TotalVolumeUSD != 200 {
		t.Fatalf("total volume = %v, want 200", stats.TotalVolumeUSD)
	}
	if stats.TotalOpenInterest != 60 {
		t.Fatalf("open interest = %v, want 60", stats.TotalOpenInterest)
	}
	if stats.ActiveMarkets != 1 {
		t.Fatalf("active markets = %d, want 1", stats.ActiveMarkets)
	}
	if stats.ActiveTraders != 7 {
		t.Fatalf("active traders = %d, want 7", stats.ActiveTraders)
	}
}

func TestSetActiveTradersReplaces(t *testing.T) {
	s := newTestStore()

	s.SetActiveTraders(10)
	s.SetActiveTraders(3)

	if got := s.Snapshot().Stats.ActiveTraders; got != 3 {
		t.Fatalf("active traders accumulated: %d", got)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := newTestStore()

	snap := s.Snapshot()
	row := findRow(t, snap, "0xaaa")
	row.MarkPrice = 999
	if len(row.Sparkline) > 0 {
		row.Sparkline[0] = 999
	}

	fresh := findRow(t, s.Snapshot(), "0xaaa")
	if fresh.MarkPrice == 999 {
		t.Fatal("snapshot shares row memory with the store")
	}
	if len(fresh.Sparkline) > 0 && fresh.Sparkline[0] == 999 {
		t.Fatal("snapshot shares sparkline memory with the store")
	}
}

func findRow(t *testing.T, snap models.MarketSnapshot, address string) models.MarketRow {
	t.Helper()
	for _, row := range snap.Rows {
		if row.Address == address {
			return row
		}
	}
	t.Fatalf("row %s not found", address)
	return models.MarketRow{}
}

func bucketVolume(s *Store, bucket time.Time) float64 {
	for _, b := range s.Snapshot().Histogram {
		if b.Start.Equal(bucket.Truncate(time.Hour)) {
			return b.VolumeUSD
		}
	}
	return 0
}
