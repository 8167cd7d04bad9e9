package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/postpulse/postpulse/internal/models"
)

type PostRepository interface {
	Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error)
	GetByID(ctx context.Context, postID int64) (*models.Post, error)
	GetByUser(ctx context.Context, postID, userID int64) (*models.Post, error)
	ListByUser(ctx context.Context, userID int64, status string, limit, offset int) ([]*models.Post, error)
	Update(ctx context.Context, post *models.Post) error
	ApplyEdit(ctx context.Context, postID, userID int64, body string, maxEdits int) (*models.Post, error)
	MarkPublished(ctx context.Context, postID int64, publishedAt, editableUntil time.Time) (*models.Post, error)
	MarkFailed(ctx context.Context, postID int64) error
	SoftDelete(ctx context.Context, postID, userID int64) (bool, error)
}

type postRepository struct {
	db *sql.DB
}

func NewPostRepository(db *sql.DB) PostRepository {
	return &postRepository{db: db}
}

const postColumns = `id, user_id, body, status, scheduled_at, published_at, first_published_at, editable_until, edit_count, created_at, updated_at, deleted_at`

func scanPost(row interface{ Scan(...any) error }) (*models.Post, error) {
	var post models.Post
	err := row.Scan(&post.ID, &post.UserID, &post.Body, &post.Status, &post.ScheduledAt,
		&post.PublishedAt, &post.FirstPublishedAt, &post.EditableUntil, &post.EditCount,
		&post.CreatedAt, &post.UpdatedAt, &post.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	query := `
		INSERT INTO posts (user_id, body, status, scheduled_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	var id int64
	var err error

	if tx != nil {
		err = tx.QueryRowContext(ctx, query, post.UserID, post.Body, post.Status, post.ScheduledAt).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, query, post.UserID, post.Body, post.Status, post.ScheduledAt).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *postRepository) GetByID(ctx context.Context, postID int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1 AND deleted_at IS NULL`
	post, err := scanPost(r.db.QueryRowContext(ctx, query, postID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *postRepository) GetByUser(ctx context.Context, postID, userID int64) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`
	post, err := scanPost(r.db.QueryRowContext(ctx, query, postID, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *postRepository) ListByUser(ctx context.Context, userID int64, status string, limit, offset int) ([]*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE user_id = $1 AND deleted_at IS NULL`
	args := []any{userID}

	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		args = append(args, limit, offset)
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// Update rewrites the mutable draft/schedule fields. The row lock serializes
// concurrent schedule mutations on the same post so cancel/schedule signal
// pairs cannot interleave against a half-applied state.
func (r *postRepository) Update(ctx context.Context, post *models.Post) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	var locked int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM posts WHERE id = $1 FOR UPDATE`, post.ID).Scan(&locked); err != nil {
		slog.Info(err.Error())
		return err
	}

	query := `
		UPDATE posts
		SET body = $1,
			status = $2,
			scheduled_at = $3,
			updated_at = $4
		WHERE id = $5
	`
	if _, err := tx.ExecContext(ctx, query, post.Body, post.Status, post.ScheduledAt, time.Now(), post.ID); err != nil {
		slog.Info(err.Error())
		return err
	}

	return tx.Commit()
}

// ApplyEdit is the conditional write behind the edit window: the status,
// budget and deadline checks run inside the UPDATE itself so two concurrent
// edits cannot both pass a stale read. Returns (nil, nil) when the condition
// admitted no row.
func (r *postRepository) ApplyEdit(ctx context.Context, postID, userID int64, body string, maxEdits int) (*models.Post, error) {
	query := `
		UPDATE posts
		SET body = $1,
			edit_count = edit_count + 1,
			updated_at = NOW()
		WHERE id = $2 AND user_id = $3 AND deleted_at IS NULL
			AND status = $4
			AND edit_count < $5
			AND editable_until > NOW()
		RETURNING ` + postColumns

	post, err := scanPost(r.db.QueryRowContext(ctx, query, body, postID, userID, models.PostStatusPublished, maxEdits))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

// MarkPublished sets the published timestamps. COALESCE keeps
// first_published_at and editable_until from a previous publish, so a retry
// after a failure never widens the edit window.
func (r *postRepository) MarkPublished(ctx context.Context, postID int64, publishedAt, editableUntil time.Time) (*models.Post, error) {
	query := `
		UPDATE posts
		SET status = $2,
			published_at = $3,
			first_published_at = COALESCE(first_published_at, $3),
			editable_until = COALESCE(editable_until, $4),
			updated_at = $3
		WHERE id = $1
		RETURNING ` + postColumns

	post, err := scanPost(r.db.QueryRowContext(ctx, query, postID, models.PostStatusPublished, publishedAt, editableUntil))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return post, nil
}

func (r *postRepository) MarkFailed(ctx context.Context, postID int64) error {
	query := `UPDATE posts SET status = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, models.PostStatusFailed, time.Now(), postID); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *postRepository) SoftDelete(ctx context.Context, postID, userID int64) (bool, error) {
	query := `
		UPDATE posts
		SET deleted_at = $1, updated_at = $1
		WHERE id = $2 AND user_id = $3 AND deleted_at IS NULL
	`
	result, err := r.db.ExecContext(ctx, query, time.Now(), postID, userID)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return affected == 1, nil
}
