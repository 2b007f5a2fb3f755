/**
 * @description
 * HTTP Client for the trading venue's public info API.
 * Fetches instrument contexts, metadata, the price feed, leaderboard, trades,
 * account overviews and hourly candles.
 *
 * @dependencies
 * - net/http
 * - encoding/json
 * - backend/internal/cache (instrument metadata TTL cache)
 * - backend/internal/config
 */

package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/veristat-project/backend/internal/cache"
	"github.com/veristat-project/backend/internal/config"
)

const (
	DefaultTimeout = 15 * time.Second

	metaCacheKey = "venue:meta"
)

// Client for the venue info API
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	metaCache    *cache.Cache
	metaCacheTTL time.Duration
}

// NewClient creates a new venue API client. The cache is used only for the
// instrument metadata endpoint; pass nil to disable caching.
func NewClient(cfg *config.Config, metaCache *cache.Cache) *Client {
	return &Client{
		BaseURL:      cfg.Venue.RestURL,
		metaCache:    metaCache,
		metaCacheTTL: cfg.Venue.MetaCacheTTL,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// getJSON performs a GET against path with query params and decodes into out.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	u, err := url.Parse(c.BaseURL + path)
	if err != nil {
		return err
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("venue api error: %s: status %d", path, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// GetContexts fetches live per-instrument context rows.
// GET /info/contexts
func (c *Client) GetContexts(ctx context.Context) ([]ContextEntry, error) {
	var entries []ContextEntry
	if err := c.getJSON(ctx, "/info/contexts", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetMeta fetches instrument metadata, served from the TTL cache when fresh.
// GET /info/meta
func (c *Client) GetMeta(ctx context.Context) ([]MetaEntry, error) {
	if c.metaCache != nil {
		var cached []MetaEntry
		if _, ok, err := c.metaCache.Get(ctx, metaCacheKey, &cached); err == nil && ok {
			return cached, nil
		}
	}

	var entries []MetaEntry
	if err := c.getJSON(ctx, "/info/meta", nil, &entries); err != nil {
		return nil, err
	}

	if c.metaCache != nil {
		// Cache failures are non-fatal; the next call just refetches.
		_ = c.metaCache.Put(ctx, metaCacheKey, entries, c.metaCacheTTL)
	}
	return entries, nil
}

// GetPrices fetches the current mark price feed keyed by instrument address.
// GET /info/prices
func (c *Client) GetPrices(ctx context.Context) (map[string]float64, error) {
	prices := make(map[string]float64)
	if err := c.getJSON(ctx, "/info/prices", nil, &prices); err != nil {
		return nil, err
	}
	return prices, nil
}

// GetLeaderboard fetches the venue leaderboard.
// GET /info/leaderboard
func (c *Client) GetLeaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	var entries []LeaderboardEntry
	if err := c.getJSON(ctx, "/info/leaderboard", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetTrades fetches recent public fills for one instrument.
// GET /info/trades?market={address}&limit={n}
func (c *Client) GetTrades(ctx context.Context, market string, limit int) ([]Fill, error) {
	if market == "" {
		return nil, fmt.Errorf("market is required")
	}

	q := url.Values{}
	q.Set("market", market)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var fills []Fill
	if err := c.getJSON(ctx, "/info/trades", q, &fills); err != nil {
		return nil, err
	}
	return fills, nil
}

// GetUserFills fetches a user's trade history, newest first.
// GET /info/userFills?user={address}&limit={n}
func (c *Client) GetUserFills(ctx context.Context, user string, limit int) ([]Fill, error) {
	if user == "" {
		return nil, fmt.Errorf("user is required")
	}

	q := url.Values{}
	q.Set("user", strings.ToLower(user))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var fills []Fill
	if err := c.getJSON(ctx, "/info/userFills", q, &fills); err != nil {
		return nil, err
	}
	return fills, nil
}

// GetAccount fetches a user's account overview.
// GET /info/account?user={address}
func (c *Client) GetAccount(ctx context.Context, user string) (*AccountResponse, error) {
	if user == "" {
		return nil, fmt.Errorf("user is required")
	}

	q := url.Values{}
	q.Set("user", strings.ToLower(user))

	var account AccountResponse
	if err := c.getJSON(ctx, "/info/account", q, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// GetCandles fetches hourly candles for one instrument over [start, end].
// The market address is an explicit join key: every candle returned here is
// attributed to the instrument it was requested for.
// GET /info/candles?market={address}&interval=1h&start={ms}&end={ms}
func (c *Client) GetCandles(ctx context.Context, market string, start, end time.Time) ([]CandleEntry, error) {
	if market == "" {
		return nil, fmt.Errorf("market is required")
	}

	q := url.Values{}
	q.Set("market", market)
	q.Set("interval", "1h")
	q.Set("start", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("end", strconv.FormatInt(end.UnixMilli(), 10))

	var candles []CandleEntry
	if err := c.getJSON(ctx, "/info/candles", q, &candles); err != nil {
		return nil, err
	}
	return candles, nil
}
