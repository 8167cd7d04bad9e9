package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/postpulse/postpulse/internal/models"
	"github.com/postpulse/postpulse/internal/platforms"
	"github.com/postpulse/postpulse/internal/repository"
	"github.com/postpulse/postpulse/internal/service"
)

// FollowerJob records one follower count per connection per day. Running twice
// on the same day replaces that day's row instead of duplicating it.
type FollowerJob struct {
	cr       repository.ConnectionRepository
	fr       repository.FollowerRepository
	cs       service.ConnectionService
	registry *platforms.Registry
}

func NewFollowerJob(
	cr repository.ConnectionRepository,
	fr repository.FollowerRepository,
	cs service.ConnectionService,
	registry *platforms.Registry) *FollowerJob {
	return &FollowerJob{
		cr:       cr,
		fr:       fr,
		cs:       cs,
		registry: registry,
	}
}

func (j *FollowerJob) Snapshot(ctx context.Context) {
	connections, err := j.cr.ListActive(ctx)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, 10)

	for _, conn := range connections {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(conn *models.Connection) {
			defer wg.Done()
			defer func() { <-semaphore }()

			j.snapshotOne(ctx, conn, today)
		}(conn)
	}

	wg.Wait()
}

func (j *FollowerJob) snapshotOne(ctx context.Context, conn *models.Connection, day time.Time) {
	adapter, ok := j.registry.Get(conn.Platform)
	if !ok {
		return
	}

	token, err := j.cs.AccessToken(ctx, conn)
	if err != nil {
		slog.Info("skipping follower snapshot", "platform", conn.Platform, "connection_id", conn.ID, "error", err)
		return
	}

	info, err := adapter.FetchAccountInfo(ctx, token)
	if err != nil {
		slog.Info("follower fetch failed", "platform", conn.Platform, "connection_id", conn.ID, "error", err)
		return
	}

	snapshot := models.FollowerSnapshot{
		UserID:        conn.UserID,
		Platform:      conn.Platform,
		SnapshotDate:  day,
		FollowerCount: info.FollowerCount,
	}

	// The delta against the most recent prior day; nil on the first ever
	// observation, where no baseline exists. A failed baseline read skips the
	// whole row: writing a nil delta here would claim there was no prior day.
	previous, err := j.fr.GetLatestBefore(ctx, conn.UserID, conn.Platform, day)
	if err != nil {
		slog.Info("follower baseline read failed", "platform", conn.Platform, "connection_id", conn.ID, "error", err)
		return
	}
	if previous != nil {
		delta := info.FollowerCount - previous.FollowerCount
		snapshot.NewFollowers = &delta
	}

	if err := j.fr.Upsert(ctx, &snapshot); err != nil {
		slog.Info("follower snapshot store failed", "platform", conn.Platform, "connection_id", conn.ID, "error", err)
	}
}

// Run is the cron entrypoint.
func (j *FollowerJob) Run() {
	j.Snapshot(context.Background())
}
