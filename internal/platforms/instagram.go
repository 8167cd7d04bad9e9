package platforms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	config "github.com/postpulse/postpulse/configs"
	"github.com/postpulse/postpulse/internal/transfer"
)

const (
	instagramGraphBase = "https://graph.instagram.com/v21.0"
	instagramTokenURL  = "https://api.instagram.com/oauth/access_token"
	instagramLimit     = 2200
)

type InstagramAdapter struct {
	cfg     config.Config
	baseURL string
	client  *http.Client
}

func NewInstagramAdapter(cfg config.Config) *InstagramAdapter {
	return &InstagramAdapter{
		cfg:     cfg,
		baseURL: instagramGraphBase,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *InstagramAdapter) Name() string                 { return "instagram" }
func (a *InstagramAdapter) CharLimit() int               { return instagramLimit }
func (a *InstagramAdapter) MetricsWindow() time.Duration { return defaultMetricsWindow }

func (a *InstagramAdapter) FetchPostMetrics(ctx context.Context, accessToken, platformPostID string) (*RawMetrics, error) {
	endpoint := fmt.Sprintf("%s/%s/insights?metric=impressions,reach,likes,comments,shares,saved&access_token=%s",
		a.baseURL, platformPostID, url.QueryEscape(accessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	var insights transfer.InstagramInsightsResponse
	if err := json.NewDecoder(resp.Body).Decode(&insights); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	if insights.Error != nil {
		return nil, fmt.Errorf("instagram insights: %s", insights.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("instagram insights returned %d", resp.StatusCode)
	}

	metrics := RawMetrics{ObservedAt: time.Now()}
	for _, entry := range insights.Data {
		if len(entry.Values) == 0 {
			continue
		}
		value := entry.Values[0].Value
		switch entry.Name {
		case "impressions":
			metrics.Impressions = value
		case "reach":
			metrics.UniqueReach = value
		case "likes":
			metrics.Reactions = value
		case "comments":
			metrics.Comments = value
		case "shares":
			metrics.Shares = value
		case "saved":
			metrics.Bookmarks = value
		}
	}
	return &metrics, nil
}

func (a *InstagramAdapter) FetchAccountInfo(ctx context.Context, accessToken string) (*AccountInfo, error) {
	endpoint := fmt.Sprintf("%s/me?fields=id,username,name,profile_picture_url,followers_count&access_token=%s",
		a.baseURL, url.QueryEscape(accessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("instagram me returned %d", resp.StatusCode)
	}

	var user transfer.InstagramUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &AccountInfo{
		ID:             user.UserID,
		Name:           user.Name,
		Username:       user.Username,
		ProfilePicture: user.ProfilePicture,
		FollowerCount:  user.FollowersCount,
	}, nil
}

func (a *InstagramAdapter) ExchangeCode(ctx context.Context, code string) (*Tokens, error) {
	if code == "" {
		return nil, errors.New("code is empty")
	}

	data := url.Values{}
	data.Set("client_id", a.cfg.InstagramClientID)
	data.Set("client_secret", a.cfg.InstagramClientSecret)
	data.Set("grant_type", "authorization_code")
	data.Set("redirect_uri", a.cfg.InstagramRedirectURI)
	data.Set("code", code)

	resp, err := a.client.Post(instagramTokenURL, "application/x-www-form-urlencoded", strings.NewReader(data.Encode()))
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		slog.Info("instagram token endpoint returned non-200 status")
		return nil, fmt.Errorf("instagram token endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var short transfer.InstagramTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&short); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	// Swap the short-lived token for a 60-day one straight away; only the
	// long-lived token is persisted.
	return a.exchangeLongLived(ctx, short.AccessToken)
}

func (a *InstagramAdapter) exchangeLongLived(ctx context.Context, shortToken string) (*Tokens, error) {
	endpoint := fmt.Sprintf("%s/access_token?grant_type=ig_exchange_token&client_secret=%s&access_token=%s",
		a.baseURL, url.QueryEscape(a.cfg.InstagramClientSecret), url.QueryEscape(shortToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("instagram long-lived exchange returned %d", resp.StatusCode)
	}

	var tr transfer.InstagramTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	// Instagram has no separate refresh token; the long-lived token refreshes
	// itself, so it is stored in both slots.
	return &Tokens{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.AccessToken,
		ExpiresAt:    time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}

func (a *InstagramAdapter) RefreshToken(ctx context.Context, refreshToken string) (*Tokens, error) {
	endpoint := fmt.Sprintf("%s/refresh_access_token?grant_type=ig_refresh_token&access_token=%s",
		a.baseURL, url.QueryEscape(refreshToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("instagram token refresh returned %d: %s", resp.StatusCode, string(body))
	}

	var tr transfer.InstagramTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &Tokens{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.AccessToken,
		ExpiresAt:    time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}

func (a *InstagramAdapter) PublishPost(ctx context.Context, accessToken, body string) (string, error) {
	container, err := a.createContainer(ctx, accessToken, body)
	if err != nil {
		return "", err
	}

	data := url.Values{}
	data.Set("creation_id", container)
	data.Set("access_token", accessToken)

	resp, err := a.client.Post(a.baseURL+"/me/media_publish", "application/x-www-form-urlencoded", strings.NewReader(data.Encode()))
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	defer resp.Body.Close()

	var media transfer.InstagramMediaResponse
	if err := json.NewDecoder(resp.Body).Decode(&media); err != nil {
		slog.Info(err.Error())
		return "", err
	}
	if media.Error != nil {
		return "", fmt.Errorf("instagram media publish: %s", media.Error.Message)
	}
	if media.ID == "" {
		return "", errors.New("instagram media publish returned no id")
	}

	return media.ID, nil
}

func (a *InstagramAdapter) createContainer(ctx context.Context, accessToken, caption string) (string, error) {
	data := url.Values{}
	data.Set("caption", caption)
	data.Set("access_token", accessToken)

	resp, err := a.client.Post(a.baseURL+"/me/media", "application/x-www-form-urlencoded", strings.NewReader(data.Encode()))
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	defer resp.Body.Close()

	var media transfer.InstagramMediaResponse
	if err := json.NewDecoder(resp.Body).Decode(&media); err != nil {
		slog.Info(err.Error())
		return "", err
	}
	if media.Error != nil {
		return "", fmt.Errorf("instagram media container: %s", media.Error.Message)
	}
	if media.ID == "" {
		return "", errors.New("instagram media container returned no id")
	}

	return media.ID, nil
}
