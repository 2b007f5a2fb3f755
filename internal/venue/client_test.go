package venue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/veristat-project/backend/internal/cache"
	"github.com/veristat-project/backend/internal/config"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		Venue: config.VenueConfig{
			RestURL:      baseURL,
			MetaCacheTTL: time.Minute,
		},
	}
}

func TestGetContexts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/info/contexts" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode([]ContextEntry{
			{Address: "0xaaa", MarkPrice: 2, DayBaseVolume: 100},
		})
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), nil)
	entries, err := client.GetContexts(context.Background())
	if err != nil {
		t.Fatalf("GetContexts failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Address != "0xaaa" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestGetMetaUsesCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		json.NewEncoder(w).Encode([]MetaEntry{{Address: "0xaaa", Name: "ETH-PERP"}})
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), cache.New(cache.NewMemoryBackend()))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		meta, err := client.GetMeta(ctx)
		if err != nil {
			t.Fatalf("GetMeta failed: %v", err)
		}
		if len(meta) != 1 || meta[0].Name != "ETH-PERP" {
			t.Fatalf("unexpected meta: %+v", meta)
		}
	}

	if hits.Load() != 1 {
		t.Fatalf("expected one upstream hit, got %d", hits.Load())
	}
}

func TestGetUserFillsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("user"); got != "0xabc" {
			t.Errorf("user param = %q, want lowercased address", got)
		}
		if got := r.URL.Query().Get("limit"); got != "200" {
			t.Errorf("limit param = %q", got)
		}
		json.NewEncoder(w).Encode([]Fill{{Market: "0xaaa", User: "0xabc", Size: 1, Price: 2}})
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), nil)
	fills, err := client.GetUserFills(context.Background(), "0xABC", 200)
	if err != nil {
		t.Fatalf("GetUserFills failed: %v", err)
	}
	if len(fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(fills))
	}
}

func TestGetCandlesSendsJoinKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("market") != "0xaaa" {
			t.Errorf("market param = %q", q.Get("market"))
		}
		if q.Get("interval") != "1h" {
			t.Errorf("interval param = %q", q.Get("interval"))
		}
		if q.Get("start") == "" || q.Get("end") == "" {
			t.Error("missing start/end params")
		}
		json.NewEncoder(w).Encode([]CandleEntry{{Time: 1750000000000, BaseVolume: 10}})
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), nil)
	end := time.Now()
	candles, err := client.GetCandles(context.Background(), "0xaaa", end.Add(-24*time.Hour), end)
	if err != nil {
		t.Fatalf("GetCandles failed: %v", err)
	}
	if len(candles) != 1 || candles[0].BaseVolume != 10 {
		t.Fatalf("unexpected candles: %+v", candles)
	}
}

func TestErrorStatusSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), nil)
	if _, err := client.GetContexts(context.Background()); err == nil {
		t.Fatal("expected error on 502")
	}
	if _, err := client.GetAccount(context.Background(), "0xabc"); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestFillToTrade(t *testing.T) {
	fill := Fill{
		Market:    "0xaaa",
		User:      "0x1",
		Side:      "buy",
		Size:      2,
		Price:     3,
		Fee:       0.01,
		ClosedPnl: 5,
		Time:      1750000000000,
	}

	trade := fill.ToTrade()
	if trade.Instrument != "0xaaa" || trade.Trader != "0x1" {
		t.Fatalf("unexpected trade: %+v", trade)
	}
	if trade.RealizedPnl != 5 || trade.Fee != 0.01 {
		t.Fatalf("pnl/fee not mapped: %+v", trade)
	}
	if trade.Timestamp.UnixMilli() != fill.Time {
		t.Fatalf("timestamp not mapped: %v", trade.Timestamp)
	}
}
