package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/postpulse/postpulse/internal/models"
)

type FollowerRepository interface {
	Upsert(ctx context.Context, s *models.FollowerSnapshot) error
	GetLatestBefore(ctx context.Context, userID int64, platform string, before time.Time) (*models.FollowerSnapshot, error)
	ListRange(ctx context.Context, userID int64, platform string, from time.Time) ([]*models.FollowerSnapshot, error)
}

type followerRepository struct {
	db *sql.DB
}

func NewFollowerRepository(db *sql.DB) FollowerRepository {
	return &followerRepository{db: db}
}

const followerColumns = `id, user_id, platform, snapshot_date, follower_count, new_followers`

func scanFollower(row interface{ Scan(...any) error }) (*models.FollowerSnapshot, error) {
	var s models.FollowerSnapshot
	err := row.Scan(&s.ID, &s.UserID, &s.Platform, &s.SnapshotDate, &s.FollowerCount, &s.NewFollowers)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Upsert keeps the one-row-per-day invariant: a rerun on the same day
// replaces that day's observation instead of adding a second one.
func (r *followerRepository) Upsert(ctx context.Context, s *models.FollowerSnapshot) error {
	query := `
		INSERT INTO follower_snapshots (user_id, platform, snapshot_date, follower_count, new_followers)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, platform, snapshot_date)
		DO UPDATE SET follower_count = EXCLUDED.follower_count, new_followers = EXCLUDED.new_followers
	`
	_, err := r.db.ExecContext(ctx, query, s.UserID, s.Platform, s.SnapshotDate, s.FollowerCount, s.NewFollowers)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *followerRepository) GetLatestBefore(ctx context.Context, userID int64, platform string, before time.Time) (*models.FollowerSnapshot, error) {
	query := `
		SELECT ` + followerColumns + `
		FROM follower_snapshots
		WHERE user_id = $1 AND platform = $2 AND snapshot_date < $3
		ORDER BY snapshot_date DESC
		LIMIT 1
	`
	snapshot, err := scanFollower(r.db.QueryRowContext(ctx, query, userID, platform, before))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return snapshot, nil
}

func (r *followerRepository) ListRange(ctx context.Context, userID int64, platform string, from time.Time) ([]*models.FollowerSnapshot, error) {
	query := `
		SELECT ` + followerColumns + `
		FROM follower_snapshots
		WHERE user_id = $1 AND platform = $2 AND snapshot_date >= $3
		ORDER BY snapshot_date ASC
	`
	rows, err := r.db.QueryContext(ctx, query, userID, platform, from)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var snapshots []*models.FollowerSnapshot
	for rows.Next() {
		snapshot, err := scanFollower(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, rows.Err()
}
