package service

import (
	"context"
	"log/slog"
	"time"

	config "github.com/postpulse/postpulse/configs"
	"github.com/postpulse/postpulse/internal/apperr"
	"github.com/postpulse/postpulse/internal/models"
	"github.com/postpulse/postpulse/internal/platforms"
	"github.com/postpulse/postpulse/internal/repository"
	"github.com/postpulse/postpulse/pkg/utils"
)

// refreshSkew refreshes tokens slightly before expiry so a platform call never
// goes out with a token that dies mid-flight.
const refreshSkew = 5 * time.Minute

type ConnectionService interface {
	Connect(ctx context.Context, userID int64, platform, code string) (*models.Connection, error)
	List(ctx context.Context, userID int64) ([]*models.Connection, error)
	Remove(ctx context.Context, userID, connectionID int64) error
	GetActiveConnection(ctx context.Context, userID int64, platform string) (*models.Connection, error)
	AccessToken(ctx context.Context, conn *models.Connection) (string, error)
	RefreshConnection(ctx context.Context, conn *models.Connection) error
}

type connectionService struct {
	cr       repository.ConnectionRepository
	registry *platforms.Registry
	cfg      *config.Config
}

func NewConnectionService(cr repository.ConnectionRepository, registry *platforms.Registry, cfg *config.Config) ConnectionService {
	return &connectionService{cr: cr, registry: registry, cfg: cfg}
}

// Connect exchanges the OAuth code, fetches the account profile and stores the
// connection with encrypted tokens.
func (s *connectionService) Connect(ctx context.Context, userID int64, platform, code string) (*models.Connection, error) {
	adapter, ok := s.registry.Get(platform)
	if !ok {
		return nil, &apperr.ValidationError{Field: "platform", Message: "unsupported platform " + platform}
	}
	if code == "" {
		return nil, &apperr.ValidationError{Field: "code", Message: "authorization code is required"}
	}

	tokens, err := adapter.ExchangeCode(ctx, code)
	if err != nil {
		return nil, &apperr.ExternalFetchError{Platform: platform, Err: err}
	}

	info, err := adapter.FetchAccountInfo(ctx, tokens.AccessToken)
	if err != nil {
		return nil, &apperr.ExternalFetchError{Platform: platform, Err: err}
	}

	encryptedAccess, err := utils.Encrypt([]byte(tokens.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "encrypt token", Err: err}
	}
	encryptedRefresh := ""
	if tokens.RefreshToken != "" {
		encryptedRefresh, err = utils.Encrypt([]byte(tokens.RefreshToken), []byte(s.cfg.SecretKey))
		if err != nil {
			return nil, &apperr.PersistenceError{Op: "encrypt token", Err: err}
		}
	}

	conn := models.Connection{
		UserID:          userID,
		Platform:        platform,
		AccountID:       info.ID,
		AccountName:     info.Name,
		AccountUsername: info.Username,
		ProfilePicture:  info.ProfilePicture,
		AccessToken:     encryptedAccess,
		RefreshToken:    encryptedRefresh,
		TokenExpiresAt:  tokens.ExpiresAt,
		Status:          models.ConnectionStatusActive,
	}

	id, err := s.cr.Create(ctx, nil, &conn)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "create connection", Err: err}
	}
	conn.ID = id

	return &conn, nil
}

func (s *connectionService) List(ctx context.Context, userID int64) ([]*models.Connection, error) {
	connections, err := s.cr.ListInfoByUserID(ctx, userID)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "list connections", Err: err}
	}
	return connections, nil
}

func (s *connectionService) Remove(ctx context.Context, userID, connectionID int64) error {
	owned, err := s.cr.CheckByUserID(ctx, connectionID, userID)
	if err != nil {
		return &apperr.PersistenceError{Op: "check connection", Err: err}
	}
	if !owned {
		return &apperr.NotFoundError{Resource: "connection"}
	}

	if err := s.cr.Remove(ctx, connectionID); err != nil {
		return &apperr.PersistenceError{Op: "remove connection", Err: err}
	}
	return nil
}

func (s *connectionService) GetActiveConnection(ctx context.Context, userID int64, platform string) (*models.Connection, error) {
	conn, err := s.cr.GetActive(ctx, userID, platform)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "get connection", Err: err}
	}
	if conn == nil {
		return nil, &apperr.ConnectionRequiredError{Platform: platform}
	}
	return conn, nil
}

// AccessToken returns a usable plaintext access token for the connection,
// refreshing it first when it is expired or about to be. The plaintext never
// goes back into the model.
func (s *connectionService) AccessToken(ctx context.Context, conn *models.Connection) (string, error) {
	if time.Now().Add(refreshSkew).Before(conn.TokenExpiresAt) {
		token, err := utils.Decrypt(conn.AccessToken, []byte(s.cfg.SecretKey))
		if err != nil {
			return "", &apperr.PersistenceError{Op: "decrypt token", Err: err}
		}
		return token, nil
	}

	if err := s.RefreshConnection(ctx, conn); err != nil {
		return "", err
	}

	token, err := utils.Decrypt(conn.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return "", &apperr.PersistenceError{Op: "decrypt token", Err: err}
	}
	return token, nil
}

// RefreshConnection rotates the connection's tokens through the platform and
// persists the new ciphertext. The passed connection is updated in place so
// callers can keep using it.
func (s *connectionService) RefreshConnection(ctx context.Context, conn *models.Connection) error {
	adapter, ok := s.registry.Get(conn.Platform)
	if !ok {
		return &apperr.ValidationError{Field: "platform", Message: "unsupported platform " + conn.Platform}
	}

	refreshToken := ""
	if conn.RefreshToken != "" {
		token, err := utils.Decrypt(conn.RefreshToken, []byte(s.cfg.SecretKey))
		if err != nil {
			return &apperr.PersistenceError{Op: "decrypt token", Err: err}
		}
		refreshToken = token
	}

	tokens, err := adapter.RefreshToken(ctx, refreshToken)
	if err != nil {
		slog.Info("token refresh failed", "platform", conn.Platform, "connection_id", conn.ID, "error", err)
		return &apperr.ExternalFetchError{Platform: conn.Platform, Err: err}
	}

	encryptedAccess, err := utils.Encrypt([]byte(tokens.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return &apperr.PersistenceError{Op: "encrypt token", Err: err}
	}
	encryptedRefresh := ""
	if tokens.RefreshToken != "" {
		encryptedRefresh, err = utils.Encrypt([]byte(tokens.RefreshToken), []byte(s.cfg.SecretKey))
		if err != nil {
			return &apperr.PersistenceError{Op: "encrypt token", Err: err}
		}
	}

	if err := s.cr.SetToken(ctx, conn.ID, encryptedAccess, encryptedRefresh, tokens.ExpiresAt); err != nil {
		return &apperr.PersistenceError{Op: "store token", Err: err}
	}

	conn.AccessToken = encryptedAccess
	if encryptedRefresh != "" {
		conn.RefreshToken = encryptedRefresh
	}
	conn.TokenExpiresAt = tokens.ExpiresAt

	return nil
}
