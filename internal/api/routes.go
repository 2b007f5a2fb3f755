/**
 * @description
 * API Route definitions.
 * Sets up the router groups and assigns handlers. Every route is read-only
 * over per-session aggregated state; there are no mutation endpoints beyond
 * the explicit activity refresh trigger.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/api/handlers
 * - backend/internal/session
 */

package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/veristat-project/backend/internal/api/handlers"
	"github.com/veristat-project/backend/internal/session"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, sessions *session.Manager) {
	marketHandler := handlers.NewMarketHandler(sessions)
	activityHandler := handlers.NewActivityHandler(sessions)

	api := app.Group("/api")
	v1 := api.Group("/v1")

	v1.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	markets := v1.Group("/markets")
	markets.Get("/", marketHandler.GetMarkets)
	markets.Get("/histogram", marketHandler.GetHistogram)
	markets.Get("/feed", marketHandler.GetFeed)
	markets.Get("/status", marketHandler.GetStreamStatus)

	activity := v1.Group("/activity")
	activity.Get("/:address", activityHandler.GetActivity)
	activity.Get("/:address/tasks", activityHandler.GetTasks)
	activity.Get("/:address/badges", activityHandler.GetBadges)
	activity.Post("/:address/refresh", activityHandler.Refresh)
}
