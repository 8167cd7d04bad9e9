package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
	"github.com/postpulse/postpulse/internal/models"
)

// SnapshotRepository is append-only: snapshots are never updated or deleted,
// and "latest" always means greatest fetched_at.
type SnapshotRepository interface {
	Create(ctx context.Context, s *models.MetricSnapshot) (int64, error)
	GetLatest(ctx context.Context, userID int64, platform, platformPostID string) (*models.MetricSnapshot, error)
	GetLatestBatch(ctx context.Context, userID int64, platformPostIDs []string) (map[string]*models.MetricSnapshot, error)
	ListForPost(ctx context.Context, userID int64, platform, platformPostID string, limit int, since *time.Time) ([]*models.MetricSnapshot, error)
}

type snapshotRepository struct {
	db *sql.DB
}

func NewSnapshotRepository(db *sql.DB) SnapshotRepository {
	return &snapshotRepository{db: db}
}

const snapshotColumns = `id, user_id, platform, platform_post_id, impressions, reactions, comments, shares, quotes, bookmarks, unique_reach, video_views, fetched_at`

func scanSnapshot(row interface{ Scan(...any) error }) (*models.MetricSnapshot, error) {
	var s models.MetricSnapshot
	err := row.Scan(&s.ID, &s.UserID, &s.Platform, &s.PlatformPostID, &s.Impressions,
		&s.Reactions, &s.Comments, &s.Shares, &s.Quotes, &s.Bookmarks,
		&s.UniqueReach, &s.VideoViews, &s.FetchedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *snapshotRepository) Create(ctx context.Context, s *models.MetricSnapshot) (int64, error) {
	query := `
		INSERT INTO metric_snapshots (user_id, platform, platform_post_id, impressions, reactions,
			comments, shares, quotes, bookmarks, unique_reach, video_views, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, s.UserID, s.Platform, s.PlatformPostID,
		s.Impressions, s.Reactions, s.Comments, s.Shares, s.Quotes, s.Bookmarks,
		s.UniqueReach, s.VideoViews, s.FetchedAt).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *snapshotRepository) GetLatest(ctx context.Context, userID int64, platform, platformPostID string) (*models.MetricSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM metric_snapshots
		WHERE user_id = $1 AND platform = $2 AND platform_post_id = $3
		ORDER BY fetched_at DESC
		LIMIT 1
	`
	snapshot, err := scanSnapshot(r.db.QueryRowContext(ctx, query, userID, platform, platformPostID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return snapshot, nil
}

// GetLatestBatch resolves the latest snapshot for many posts in one query.
// Ids with no snapshot are simply absent from the map.
func (r *snapshotRepository) GetLatestBatch(ctx context.Context, userID int64, platformPostIDs []string) (map[string]*models.MetricSnapshot, error) {
	result := make(map[string]*models.MetricSnapshot, len(platformPostIDs))
	if len(platformPostIDs) == 0 {
		return result, nil
	}

	query := `
		SELECT DISTINCT ON (platform_post_id) ` + snapshotColumns + `
		FROM metric_snapshots
		WHERE user_id = $1 AND platform_post_id = ANY($2)
		ORDER BY platform_post_id, fetched_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID, pq.Array(platformPostIDs))
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		result[snapshot.PlatformPostID] = snapshot
	}
	return result, rows.Err()
}

func (r *snapshotRepository) ListForPost(ctx context.Context, userID int64, platform, platformPostID string, limit int, since *time.Time) ([]*models.MetricSnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM metric_snapshots
		WHERE user_id = $1 AND platform = $2 AND platform_post_id = $3
	`
	args := []any{userID, platform, platformPostID}
	if since != nil {
		query += ` AND fetched_at >= $4`
		args = append(args, *since)
	}
	query += ` ORDER BY fetched_at ASC`
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var snapshots []*models.MetricSnapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, rows.Err()
}
