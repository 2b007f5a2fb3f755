/**
 * @description
 * Market API Handlers.
 * Read-only views over a session's aggregation store: row table, derived
 * metrics, volume histogram, live trade feed, and stream status.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/session
 */

package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/veristat-project/backend/internal/session"
)

type MarketHandler struct {
	Sessions *session.Manager
}

func NewMarketHandler(sessions *session.Manager) *MarketHandler {
	return &MarketHandler{Sessions: sessions}
}

// session resolves the caller's session from the address query param.
func (h *MarketHandler) session(c *fiber.Ctx) (*session.Session, error) {
	address := c.Query("address")
	if address == "" {
		return nil, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "address query parameter is required",
		})
	}
	return h.Sessions.Open(c.Context(), address), nil
}

// GetMarkets returns the full market snapshot: rows sorted by volume plus the
// derived totals.
// GET /api/v1/markets?address={user}
func (h *MarketHandler) GetMarkets(c *fiber.Ctx) error {
	sess, err := h.session(c)
	if sess == nil {
		return err
	}

	snap := sess.Store.Snapshot()
	return c.JSON(fiber.Map{
		"rows":     snap.Rows,
		"stats":    snap.Stats,
		"taken_at": snap.TakenAt,
	})
}

// GetHistogram returns the trailing 24h hourly USD volume histogram.
// GET /api/v1/markets/histogram?address={user}
func (h *MarketHandler) GetHistogram(c *fiber.Ctx) error {
	sess, err := h.session(c)
	if sess == nil {
		return err
	}

	snap := sess.Store.Snapshot()
	return c.JSON(snap.Histogram)
}

// GetFeed returns the live trade feed, newest first.
// GET /api/v1/markets/feed?address={user}
func (h *MarketHandler) GetFeed(c *fiber.Ctx) error {
	sess, err := h.session(c)
	if sess == nil {
		return err
	}

	snap := sess.Store.Snapshot()
	return c.JSON(snap.Feed)
}

// GetStreamStatus reports the ingestor's connection state.
// GET /api/v1/markets/status?address={user}
func (h *MarketHandler) GetStreamStatus(c *fiber.Ctx) error {
	sess, err := h.session(c)
	if sess == nil {
		return err
	}

	return c.JSON(fiber.Map{
		"state": sess.StreamState(),
	})
}
