package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/postpulse/postpulse/internal/service"
)

type AnalyticsHandler struct {
	s service.AnalyticsService
}

func NewAnalyticsHandler(service service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{s: service}
}

func (h *AnalyticsHandler) Overview(c *fiber.Ctx) error {
	userID := GetUserID(c)
	days := c.QueryInt("days", 30)
	platform := c.Query("platform")

	overview, err := h.s.Overview(c.Context(), userID, days, platform)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(overview)
}

func (h *AnalyticsHandler) ListPublished(c *fiber.Ctx) error {
	userID := GetUserID(c)
	platform := c.Query("platform")
	sortBy := c.Query("sort")
	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)

	posts, err := h.s.PublishedPosts(c.Context(), userID, platform, sortBy, limit, offset)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *AnalyticsHandler) PostDetail(c *fiber.Ctx) error {
	userID := GetUserID(c)
	platform := c.Params("platform")
	platformPostID := c.Params("post_id")
	limit := c.QueryInt("limit", 0)

	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid since date",
			})
		}
		since = &t
	}

	detail, err := h.s.PostDetail(c.Context(), userID, platform, platformPostID, limit, since)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(detail)
}

func (h *AnalyticsHandler) FollowerGrowth(c *fiber.Ctx) error {
	userID := GetUserID(c)
	platform := c.Params("platform")
	days := c.QueryInt("days", 30)

	growth, err := h.s.FollowerGrowth(c.Context(), userID, platform, days)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(growth)
}
