package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/postpulse/postpulse/internal/models"
)

type PublicationRepository interface {
	Create(ctx context.Context, tx *sql.Tx, pub *models.Publication) (int64, error)
	ListByPostID(ctx context.Context, postID int64) ([]*models.Publication, error)
	MarkPublished(ctx context.Context, id int64, platformPostID string, publishedAt time.Time) error
	MarkFailed(ctx context.Context, id int64, errorMessage string) error
	ResetForRetry(ctx context.Context, postID int64) error
	ListEligibleForMetrics(ctx context.Context, publishedSince time.Time) ([]*models.Publication, error)
	ListPublishedInWindow(ctx context.Context, userID int64, since time.Time, platform string) ([]*models.PublishedItem, error)
	ListPublishedByUser(ctx context.Context, userID int64, platform string, limit, offset int) ([]*models.PublishedItem, error)
	GetPublished(ctx context.Context, userID int64, platform, platformPostID string) (*models.Publication, error)
}

type publicationRepository struct {
	db *sql.DB
}

func NewPublicationRepository(db *sql.DB) PublicationRepository {
	return &publicationRepository{db: db}
}

const publicationColumns = `id, post_id, user_id, platform, platform_post_id, status, error_message, published_at, created_at, updated_at`

func scanPublication(row interface{ Scan(...any) error }) (*models.Publication, error) {
	var pub models.Publication
	err := row.Scan(&pub.ID, &pub.PostID, &pub.UserID, &pub.Platform, &pub.PlatformPostID,
		&pub.Status, &pub.ErrorMessage, &pub.PublishedAt, &pub.CreatedAt, &pub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &pub, nil
}

func (r *publicationRepository) Create(ctx context.Context, tx *sql.Tx, pub *models.Publication) (int64, error) {
	query := `
		INSERT INTO publications (post_id, user_id, platform, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	var id int64
	var err error

	if tx != nil {
		err = tx.QueryRowContext(ctx, query, pub.PostID, pub.UserID, pub.Platform, pub.Status).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, pub.PostID, pub.UserID, pub.Platform, pub.Status).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *publicationRepository) ListByPostID(ctx context.Context, postID int64) ([]*models.Publication, error) {
	query := `SELECT ` + publicationColumns + ` FROM publications WHERE post_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, postID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var pubs []*models.Publication
	for rows.Next() {
		pub, err := scanPublication(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		pubs = append(pubs, pub)
	}
	return pubs, rows.Err()
}

// MarkPublished flips a publication to published exactly once; the guard on
// status keeps a duplicate delivery from overwriting the platform id.
func (r *publicationRepository) MarkPublished(ctx context.Context, id int64, platformPostID string, publishedAt time.Time) error {
	query := `
		UPDATE publications
		SET status = $2, platform_post_id = $3, error_message = '', published_at = $4, updated_at = $4
		WHERE id = $1 AND status <> $2
	`
	if _, err := r.db.ExecContext(ctx, query, id, models.PublicationStatusPublished, platformPostID, publishedAt); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *publicationRepository) MarkFailed(ctx context.Context, id int64, errorMessage string) error {
	query := `
		UPDATE publications
		SET status = $2, error_message = $3, updated_at = $4
		WHERE id = $1 AND status <> $5
	`
	_, err := r.db.ExecContext(ctx, query, id, models.PublicationStatusFailed, errorMessage,
		time.Now(), models.PublicationStatusPublished)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// ResetForRetry re-arms failed deliveries on the existing rows; published
// siblings are left untouched.
func (r *publicationRepository) ResetForRetry(ctx context.Context, postID int64) error {
	query := `
		UPDATE publications
		SET status = $2, error_message = '', updated_at = $3
		WHERE post_id = $1 AND status = $4
	`
	_, err := r.db.ExecContext(ctx, query, postID, models.PublicationStatusPending,
		time.Now(), models.PublicationStatusFailed)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// ListEligibleForMetrics returns published deliveries young enough to re-poll,
// skipping soft-deleted posts.
func (r *publicationRepository) ListEligibleForMetrics(ctx context.Context, publishedSince time.Time) ([]*models.Publication, error) {
	query := `
		SELECT p.id, p.post_id, p.user_id, p.platform, p.platform_post_id, p.status,
			p.error_message, p.published_at, p.created_at, p.updated_at
		FROM publications p
		JOIN posts ON posts.id = p.post_id
		WHERE p.status = $1
			AND p.published_at >= $2
			AND posts.deleted_at IS NULL
		ORDER BY p.id
	`
	rows, err := r.db.QueryContext(ctx, query, models.PublicationStatusPublished, publishedSince)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var pubs []*models.Publication
	for rows.Next() {
		pub, err := scanPublication(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		pubs = append(pubs, pub)
	}
	return pubs, rows.Err()
}

func (r *publicationRepository) ListPublishedInWindow(ctx context.Context, userID int64, since time.Time, platform string) ([]*models.PublishedItem, error) {
	query := `
		SELECT p.id, p.post_id, p.user_id, p.platform, p.platform_post_id, p.status,
			p.error_message, p.published_at, p.created_at, p.updated_at, posts.body
		FROM publications p
		JOIN posts ON posts.id = p.post_id
		WHERE p.user_id = $1 AND p.status = $2 AND p.published_at >= $3
			AND posts.deleted_at IS NULL
	`
	args := []any{userID, models.PublicationStatusPublished, since}
	if platform != "" {
		query += ` AND p.platform = $4`
		args = append(args, platform)
	}
	query += ` ORDER BY p.published_at DESC`

	return r.queryItems(ctx, query, args...)
}

func (r *publicationRepository) ListPublishedByUser(ctx context.Context, userID int64, platform string, limit, offset int) ([]*models.PublishedItem, error) {
	query := `
		SELECT p.id, p.post_id, p.user_id, p.platform, p.platform_post_id, p.status,
			p.error_message, p.published_at, p.created_at, p.updated_at, posts.body
		FROM publications p
		JOIN posts ON posts.id = p.post_id
		WHERE p.user_id = $1 AND p.status = $2 AND posts.deleted_at IS NULL
	`
	args := []any{userID, models.PublicationStatusPublished}
	if platform != "" {
		args = append(args, platform)
		query += ` AND p.platform = $3`
	}
	query += ` ORDER BY p.published_at DESC`
	args = append(args, limit, offset)
	query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	return r.queryItems(ctx, query, args...)
}

func (r *publicationRepository) queryItems(ctx context.Context, query string, args ...any) ([]*models.PublishedItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var items []*models.PublishedItem
	for rows.Next() {
		var item models.PublishedItem
		err := rows.Scan(&item.ID, &item.PostID, &item.UserID, &item.Platform, &item.PlatformPostID,
			&item.Status, &item.ErrorMessage, &item.PublishedAt, &item.CreatedAt, &item.UpdatedAt, &item.Body)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

func (r *publicationRepository) GetPublished(ctx context.Context, userID int64, platform, platformPostID string) (*models.Publication, error) {
	query := `
		SELECT p.id, p.post_id, p.user_id, p.platform, p.platform_post_id, p.status,
			p.error_message, p.published_at, p.created_at, p.updated_at
		FROM publications p
		JOIN posts ON posts.id = p.post_id
		WHERE p.user_id = $1 AND p.platform = $2 AND p.platform_post_id = $3
			AND posts.deleted_at IS NULL
	`
	pub, err := scanPublication(r.db.QueryRowContext(ctx, query, userID, platform, platformPostID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return pub, nil
}
