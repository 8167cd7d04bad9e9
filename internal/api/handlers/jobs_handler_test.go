package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/postpulse/postpulse/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCollector struct {
	summary *transfer.CollectSummary
	err     error
	calls   int
}

func (c *stubCollector) Collect(ctx context.Context) (*transfer.CollectSummary, error) {
	c.calls++
	return c.summary, c.err
}

type stubSnapshotter struct {
	calls int
}

func (s *stubSnapshotter) Snapshot(ctx context.Context) {
	s.calls++
}

func newJobsApp(collector *stubCollector, snapshotter *stubSnapshotter, secret string) *fiber.App {
	app := fiber.New()
	handler := NewJobsHandler(collector, snapshotter, secret)
	app.Post("/jobs/metrics/collect", handler.CollectMetrics)
	app.Post("/jobs/followers/snapshot", handler.SnapshotFollowers)
	return app
}

func TestCollectMetricsAuth(t *testing.T) {
	collector := &stubCollector{summary: &transfer.CollectSummary{RunID: "run-1"}}
	app := newJobsApp(collector, &stubSnapshotter{}, "topsecret")

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/jobs/metrics/collect", nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("wrong token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/jobs/metrics/collect", nil)
		req.Header.Set("Authorization", "Bearer nope")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("not a bearer scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/jobs/metrics/collect", nil)
		req.Header.Set("Authorization", "topsecret")
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	// An unauthorized request must not trigger a run.
	assert.Zero(t, collector.calls)
}

func TestCollectMetricsRuns(t *testing.T) {
	collector := &stubCollector{summary: &transfer.CollectSummary{
		RunID:      "run-1",
		StartedAt:  time.Now(),
		FinishedAt: time.Now(),
		Processed:  3,
		Failed:     1,
		Errors: []*transfer.CollectError{
			{PublicationID: 2, Platform: "twitter", Reason: "fetch failed"},
		},
	}}
	app := newJobsApp(collector, &stubSnapshotter{}, "topsecret")

	req := httptest.NewRequest(http.MethodPost, "/jobs/metrics/collect", nil)
	req.Header.Set("Authorization", "Bearer topsecret")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, collector.calls)

	var summary transfer.CollectSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Errors, 1)
}

func TestCollectMetricsRunFailure(t *testing.T) {
	collector := &stubCollector{err: errors.New("listing failed")}
	app := newJobsApp(collector, &stubSnapshotter{}, "topsecret")

	req := httptest.NewRequest(http.MethodPost, "/jobs/metrics/collect", nil)
	req.Header.Set("Authorization", "Bearer topsecret")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestSnapshotFollowers(t *testing.T) {
	snapshotter := &stubSnapshotter{}
	app := newJobsApp(&stubCollector{}, snapshotter, "topsecret")

	req := httptest.NewRequest(http.MethodPost, "/jobs/followers/snapshot", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, snapshotter.calls)

	req = httptest.NewRequest(http.MethodPost, "/jobs/followers/snapshot", nil)
	req.Header.Set("Authorization", "Bearer topsecret")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, snapshotter.calls)
}

func TestCollectMetricsEmptySecretAlwaysDenied(t *testing.T) {
	collector := &stubCollector{summary: &transfer.CollectSummary{}}
	app := newJobsApp(collector, &stubSnapshotter{}, "")

	req := httptest.NewRequest(http.MethodPost, "/jobs/metrics/collect", nil)
	req.Header.Set("Authorization", "Bearer ")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, collector.calls)
}
