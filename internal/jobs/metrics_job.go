package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/postpulse/postpulse/internal/models"
	"github.com/postpulse/postpulse/internal/platforms"
	"github.com/postpulse/postpulse/internal/repository"
	"github.com/postpulse/postpulse/internal/service"
	"github.com/postpulse/postpulse/internal/transfer"
)

// MetricsJob polls the platforms for fresh engagement numbers and appends one
// snapshot per reachable post. A single unreachable post never stops the run.
type MetricsJob struct {
	pub      repository.PublicationRepository
	sr       repository.SnapshotRepository
	cs       service.ConnectionService
	registry *platforms.Registry
}

func NewMetricsJob(
	pub repository.PublicationRepository,
	sr repository.SnapshotRepository,
	cs service.ConnectionService,
	registry *platforms.Registry) *MetricsJob {
	return &MetricsJob{
		pub:      pub,
		sr:       sr,
		cs:       cs,
		registry: registry,
	}
}

type collectResult struct {
	failure *transfer.CollectError
}

// Collect runs one metrics pass over every publication still inside its
// platform's polling window. The returned summary counts every attempted item;
// only a failure to list the work at all fails the run itself.
func (j *MetricsJob) Collect(ctx context.Context) (*transfer.CollectSummary, error) {
	runID, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	summary := &transfer.CollectSummary{
		RunID:     runID,
		StartedAt: time.Now(),
		Errors:    []*transfer.CollectError{},
	}

	// The widest window of any platform bounds the query; per-item filtering
	// below applies each platform's own window.
	var maxWindow time.Duration
	for _, name := range j.registry.Names() {
		if adapter, ok := j.registry.Get(name); ok && adapter.MetricsWindow() > maxWindow {
			maxWindow = adapter.MetricsWindow()
		}
	}

	publications, err := j.pub.ListEligibleForMetrics(ctx, summary.StartedAt.Add(-maxWindow))
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	var eligible []*models.Publication
	for _, publication := range publications {
		adapter, ok := j.registry.Get(publication.Platform)
		if !ok || publication.PublishedAt == nil || publication.PlatformPostID == "" {
			continue
		}
		if summary.StartedAt.Sub(*publication.PublishedAt) > adapter.MetricsWindow() {
			continue
		}
		eligible = append(eligible, publication)
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, 10)
	results := make(chan collectResult, len(eligible))

	for _, publication := range eligible {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(publication *models.Publication) {
			defer wg.Done()
			defer func() { <-semaphore }()

			results <- collectResult{failure: j.collectOne(ctx, publication)}
		}(publication)
	}

	wg.Wait()
	close(results)

	for result := range results {
		summary.Processed++
		if result.failure != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, result.failure)
		}
	}

	summary.FinishedAt = time.Now()
	slog.Info("metrics run finished", "run_id", summary.RunID,
		"processed", summary.Processed, "failed", summary.Failed)

	return summary, nil
}

// collectOne fetches and stores one snapshot. A non-nil return describes the
// failure without aborting the run.
func (j *MetricsJob) collectOne(ctx context.Context, publication *models.Publication) *transfer.CollectError {
	fail := func(reason string) *transfer.CollectError {
		return &transfer.CollectError{
			PublicationID:  publication.ID,
			Platform:       publication.Platform,
			PlatformPostID: publication.PlatformPostID,
			Reason:         reason,
		}
	}

	adapter, ok := j.registry.Get(publication.Platform)
	if !ok {
		return fail("unsupported platform")
	}

	conn, err := j.cs.GetActiveConnection(ctx, publication.UserID, publication.Platform)
	if err != nil {
		return fail("no active connection")
	}

	token, err := j.cs.AccessToken(ctx, conn)
	if err != nil {
		return fail("could not obtain access token: " + err.Error())
	}

	metrics, err := adapter.FetchPostMetrics(ctx, token, publication.PlatformPostID)
	if err != nil {
		slog.Info("metrics fetch failed", "platform", publication.Platform,
			"platform_post_id", publication.PlatformPostID, "error", err)
		return fail("fetch failed: " + err.Error())
	}

	snapshot := models.MetricSnapshot{
		UserID:         publication.UserID,
		Platform:       publication.Platform,
		PlatformPostID: publication.PlatformPostID,
		Impressions:    metrics.Impressions,
		Reactions:      metrics.Reactions,
		Comments:       metrics.Comments,
		Shares:         metrics.Shares,
		Quotes:         metrics.Quotes,
		Bookmarks:      metrics.Bookmarks,
		UniqueReach:    metrics.UniqueReach,
		VideoViews:     metrics.VideoViews,
		FetchedAt:      metrics.ObservedAt,
	}
	if snapshot.FetchedAt.IsZero() {
		snapshot.FetchedAt = time.Now()
	}

	if _, err := j.sr.Create(ctx, &snapshot); err != nil {
		return fail("store failed: " + err.Error())
	}

	return nil
}

// Run is the cron entrypoint; failures are logged, not propagated.
func (j *MetricsJob) Run() {
	if _, err := j.Collect(context.Background()); err != nil {
		slog.Info("metrics run failed", "error", err)
	}
}
