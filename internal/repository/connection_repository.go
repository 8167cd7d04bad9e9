package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/postpulse/postpulse/internal/models"
)

type ConnectionRepository interface {
	Create(ctx context.Context, tx *sql.Tx, conn *models.Connection) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Connection, error)
	GetActive(ctx context.Context, userID int64, platform string) (*models.Connection, error)
	ListActive(ctx context.Context) ([]*models.Connection, error)
	ListInfoByUserID(ctx context.Context, userID int64) ([]*models.Connection, error)
	ListExpiring(ctx context.Context, initialTime, finalTime time.Time) ([]*models.Connection, error)
	CheckByUserID(ctx context.Context, connectionID, userID int64) (bool, error)
	SetToken(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time) error
	Remove(ctx context.Context, id int64) error
}

type connectionRepository struct {
	db *sql.DB
}

func NewConnectionRepository(db *sql.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

const connectionColumns = `id, user_id, platform, account_id, account_name, account_username, profile_picture_url, access_token, refresh_token, token_expires_at, status, created_at, updated_at`

func scanConnection(row interface{ Scan(...any) error }) (*models.Connection, error) {
	var c models.Connection
	err := row.Scan(&c.ID, &c.UserID, &c.Platform, &c.AccountID, &c.AccountName,
		&c.AccountUsername, &c.ProfilePicture, &c.AccessToken, &c.RefreshToken,
		&c.TokenExpiresAt, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *connectionRepository) Create(ctx context.Context, tx *sql.Tx, conn *models.Connection) (int64, error) {
	insertQuery := `
		INSERT INTO connections(
			user_id,
			platform,
			account_id,
			account_name,
			account_username,
			profile_picture_url,
			access_token,
			refresh_token,
			token_expires_at,
			status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	var id int64
	var err error

	args := []any{conn.UserID, conn.Platform, conn.AccountID, conn.AccountName,
		conn.AccountUsername, conn.ProfilePicture, conn.AccessToken, conn.RefreshToken,
		conn.TokenExpiresAt, models.ConnectionStatusActive}

	if tx != nil {
		err = tx.QueryRowContext(ctx, insertQuery, args...).Scan(&id)
	} else {
		err = r.db.QueryRowContext(ctx, insertQuery, args...).Scan(&id)
	}
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	return id, nil
}

func (r *connectionRepository) GetByID(ctx context.Context, id int64) (*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1`
	conn, err := scanConnection(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return conn, nil
}

func (r *connectionRepository) GetActive(ctx context.Context, userID int64, platform string) (*models.Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM connections
		WHERE user_id = $1 AND platform = $2 AND status = $3
		ORDER BY created_at DESC
		LIMIT 1
	`
	conn, err := scanConnection(r.db.QueryRowContext(ctx, query, userID, platform, models.ConnectionStatusActive))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return conn, nil
}

func (r *connectionRepository) ListActive(ctx context.Context) ([]*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE status = $1`
	rows, err := r.db.QueryContext(ctx, query, models.ConnectionStatusActive)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var connections []*models.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		connections = append(connections, conn)
	}
	return connections, rows.Err()
}

func (r *connectionRepository) ListInfoByUserID(ctx context.Context, userID int64) ([]*models.Connection, error) {
	query := `SELECT id, platform, account_name, account_username, profile_picture_url FROM connections WHERE user_id = $1`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var connections []*models.Connection
	for rows.Next() {
		var c models.Connection
		err := rows.Scan(&c.ID, &c.Platform, &c.AccountName, &c.AccountUsername, &c.ProfilePicture)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		connections = append(connections, &c)
	}
	return connections, rows.Err()
}

func (r *connectionRepository) ListExpiring(ctx context.Context, initialTime, finalTime time.Time) ([]*models.Connection, error) {
	query := `
		SELECT ` + connectionColumns + `
		FROM connections
		WHERE status = $1
			AND ((token_expires_at BETWEEN $2 AND $3) OR token_expires_at < $2)
	`
	rows, err := r.db.QueryContext(ctx, query, models.ConnectionStatusActive, initialTime, finalTime)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var connections []*models.Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		connections = append(connections, conn)
	}
	return connections, rows.Err()
}

func (r *connectionRepository) CheckByUserID(ctx context.Context, connectionID, userID int64) (bool, error) {
	query := `SELECT 1 FROM connections WHERE id = $1 AND user_id = $2`

	var result int
	err := r.db.QueryRowContext(ctx, query, connectionID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}

	return result == 1, nil
}

// SetToken persists refreshed credentials. Empty strings leave the stored
// value alone so a refresh that returns no new refresh token keeps the old one.
func (r *connectionRepository) SetToken(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	updateQuery := `
		UPDATE connections
		SET
			access_token = COALESCE(NULLIF($2, ''), access_token),
			refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
			token_expires_at = $4,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	result, err := tx.ExecContext(ctx, updateQuery, id, accessToken, refreshToken, expiresAt)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	if affected != 1 {
		slog.Info("no rows affected; connection may not exist")
		return errors.New("no rows affected; connection may not exist")
	}

	return tx.Commit()
}

func (r *connectionRepository) Remove(ctx context.Context, id int64) error {
	query := `DELETE FROM connections WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
