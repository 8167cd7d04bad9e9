package handlers

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/postpulse/postpulse/internal/transfer"
)

// MetricsCollector runs one metrics pass and reports what happened.
type MetricsCollector interface {
	Collect(ctx context.Context) (*transfer.CollectSummary, error)
}

// FollowerSnapshotter records one follower count per active connection.
// Per-connection failures are logged inside the job, not surfaced here.
type FollowerSnapshotter interface {
	Snapshot(ctx context.Context)
}

// JobsHandler exposes the batch jobs behind a shared-secret bearer token,
// for external schedulers that prefer hitting an endpoint over running
// in-process cron.
type JobsHandler struct {
	mj         MetricsCollector
	fj         FollowerSnapshotter
	cronSecret string
}

func NewJobsHandler(mj MetricsCollector, fj FollowerSnapshotter, cronSecret string) *JobsHandler {
	return &JobsHandler{mj: mj, fj: fj, cronSecret: cronSecret}
}

func (h *JobsHandler) authorized(c *fiber.Ctx) bool {
	if h.cronSecret == "" {
		return false
	}
	header := c.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.cronSecret)) == 1
}

func (h *JobsHandler) CollectMetrics(c *fiber.Ctx) error {
	if !h.authorized(c) {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	summary, err := h.mj.Collect(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "metrics run failed",
		})
	}

	return c.Status(fiber.StatusOK).JSON(summary)
}

func (h *JobsHandler) SnapshotFollowers(c *fiber.Ctx) error {
	if !h.authorized(c) {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	h.fj.Snapshot(c.Context())

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "completed"})
}
