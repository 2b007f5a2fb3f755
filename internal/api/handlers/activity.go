/**
 * @description
 * Activity API Handlers.
 * Read-only views over a user's activity bundle, tasks, and badges.
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

type ActivityHandler struct {
	Sessions *session.Manager
}

func NewActivityHandler(sessions *session.Manager) *ActivityHandler {
	return &ActivityHandler{Sessions: sessions}
}

// GetActivity returns the latest activity bundle for a user.
// GET /api/v1/activity/:address
func (h *ActivityHandler) GetActivity(c *fiber.Ctx) error {
	address := c.Params("address")
	if address == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "address is required",
		})
	}

	sess := h.Sessions.Open(c.Context(), address)
	return c.JSON(sess.Runner.Bundle())
}

// GetTasks returns the latest task evaluation for a user.
// GET /api/v1/activity/:address/tasks
func (h *ActivityHandler) GetTasks(c *fiber.Ctx) error {
	address := c.Params("address")
	if address == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "address is required",
		})
	}

	sess := h.Sessions.Open(c.Context(), address)
	return c.JSON(sess.Runner.Tasks())
}

// GetBadges returns the user's badge set, earned flags included.
// GET /api/v1/activity/:address/badges
func (h *ActivityHandler) GetBadges(c *fiber.Ctx) error {
	address := c.Params("address")
	if address == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "address is required",
		})
	}

	sess := h.Sessions.Open(c.Context(), address)
	return c.JSON(sess.Runner.Badges())
}

// Refresh triggers an immediate re-aggregation for a user.
// POST /api/v1/activity/:address/refresh
func (h *ActivityHandler) Refresh(c *fiber.Ctx) error {
	address := c.Params("address")
	if address == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "address is required",
		})
	}

	sess := h.Sessions.Open(c.Context(), address)
	sess.Runner.Invalidate()
	return c.JSON(fiber.Map{"status": "refreshing"})
}
