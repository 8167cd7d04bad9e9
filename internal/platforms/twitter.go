package platforms

import (
	"bytes"
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
	twitterAPIBase  = "https://api.twitter.com/2"
	twitterTokenURL = "https://api.twitter.com/2/oauth2/token"
	twitterLimit    = 280
)

type TwitterAdapter struct {
	cfg     config.Config
	baseURL string
	client  *http.Client
}

func NewTwitterAdapter(cfg config.Config) *TwitterAdapter {
	return &TwitterAdapter{
		cfg:     cfg,
		baseURL: twitterAPIBase,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *TwitterAdapter) Name() string                 { return "twitter" }
func (a *TwitterAdapter) CharLimit() int               { return twitterLimit }
func (a *TwitterAdapter) MetricsWindow() time.Duration { return defaultMetricsWindow }

func (a *TwitterAdapter) FetchPostMetrics(ctx context.Context, accessToken, platformPostID string) (*RawMetrics, error) {
	endpoint := fmt.Sprintf("%s/tweets/%s?tweet.fields=public_metrics", a.baseURL, platformPostID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("twitter tweet lookup returned %d: %s", resp.StatusCode, string(body))
	}

	var tweet transfer.TwitterTweetResponse
	if err := json.NewDecoder(resp.Body).Decode(&tweet); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	if len(tweet.Errors) > 0 {
		return nil, fmt.Errorf("twitter tweet lookup: %s", tweet.Errors[0].Detail)
	}

	pm := tweet.Data.PublicMetrics
	return &RawMetrics{
		Impressions: pm.ImpressionCount,
		Reactions:   pm.LikeCount,
		Comments:    pm.ReplyCount,
		Shares:      pm.RetweetCount,
		Quotes:      pm.QuoteCount,
		Bookmarks:   pm.BookmarkCount,
		ObservedAt:  time.Now(),
	}, nil
}

func (a *TwitterAdapter) FetchAccountInfo(ctx context.Context, accessToken string) (*AccountInfo, error) {
	endpoint := a.baseURL + "/users/me?user.fields=public_metrics,profile_image_url"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("twitter users/me returned %d", resp.StatusCode)
	}

	var user transfer.TwitterUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &AccountInfo{
		ID:             user.Data.ID,
		Name:           user.Data.Name,
		Username:       user.Data.Username,
		ProfilePicture: user.Data.ProfileImage,
		FollowerCount:  user.Data.PublicMetrics.FollowersCount,
	}, nil
}

func (a *TwitterAdapter) ExchangeCode(ctx context.Context, code string) (*Tokens, error) {
	if code == "" {
		return nil, errors.New("code is empty")
	}

	data := url.Values{}
	data.Set("client_id", a.cfg.TwitterClientID)
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", a.cfg.TwitterRedirectURI)
	data.Set("code_verifier", "challenge")

	return a.tokenRequest(ctx, data)
}

func (a *TwitterAdapter) RefreshToken(ctx context.Context, refreshToken string) (*Tokens, error) {
	data := url.Values{}
	data.Set("client_id", a.cfg.TwitterClientID)
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	return a.tokenRequest(ctx, data)
}

func (a *TwitterAdapter) tokenRequest(ctx context.Context, data url.Values) (*Tokens, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, twitterTokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(a.cfg.TwitterClientID, a.cfg.TwitterClientSecret)

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		slog.Info("twitter token endpoint returned non-200 status")
		return nil, fmt.Errorf("twitter token endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var tr transfer.TwitterTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	return &Tokens{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}

func (a *TwitterAdapter) PublishPost(ctx context.Context, accessToken, body string) (string, error) {
	payload, err := json.Marshal(map[string]string{"text": body})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/tweets", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("twitter create tweet returned %d: %s", resp.StatusCode, string(respBody))
	}

	var created transfer.TwitterTweetResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		slog.Info(err.Error())
		return "", err
	}
	if created.Data.ID == "" {
		return "", errors.New("twitter create tweet returned no id")
	}

	return created.Data.ID, nil
}
