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
	"time"

	config "github.com/postpulse/postpulse/configs"
	"github.com/postpulse/postpulse/internal/transfer"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/linkedin"
)

const (
	linkedinAPIBase = "https://api.linkedin.com/v2"
	linkedinLimit   = 3000
)

type LinkedinAdapter struct {
	cfg     config.Config
	baseURL string
	client  *http.Client
}

func NewLinkedinAdapter(cfg config.Config) *LinkedinAdapter {
	return &LinkedinAdapter{
		cfg:     cfg,
		baseURL: linkedinAPIBase,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *LinkedinAdapter) Name() string                 { return "linkedin" }
func (a *LinkedinAdapter) CharLimit() int               { return linkedinLimit }
func (a *LinkedinAdapter) MetricsWindow() time.Duration { return defaultMetricsWindow }

func (a *LinkedinAdapter) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     a.cfg.LinkedinClientID,
		ClientSecret: a.cfg.LinkedinClientSecret,
		RedirectURL:  a.cfg.LinkedinRedirectURI,
		Scopes:       []string{"openid", "profile", "email", "w_member_social"},
		Endpoint:     linkedin.Endpoint,
	}
}

func (a *LinkedinAdapter) FetchPostMetrics(ctx context.Context, accessToken, platformPostID string) (*RawMetrics, error) {
	endpoint := fmt.Sprintf("%s/socialActions/%s", a.baseURL, url.PathEscape(platformPostID))
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
		return nil, fmt.Errorf("linkedin socialActions returned %d: %s", resp.StatusCode, string(body))
	}

	var actions transfer.LinkedinSocialActions
	if err := json.NewDecoder(resp.Body).Decode(&actions); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	// LinkedIn exposes no impression counts for member posts.
	return &RawMetrics{
		Reactions:  actions.LikesSummary.TotalLikes,
		Comments:   actions.CommentsSummary.AggregatedTotalComments,
		ObservedAt: time.Now(),
	}, nil
}

func (a *LinkedinAdapter) FetchAccountInfo(ctx context.Context, accessToken string) (*AccountInfo, error) {
	user, err := a.userInfo(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	info := &AccountInfo{
		ID:             user.Sub,
		Name:           user.Name,
		Username:       user.Email,
		ProfilePicture: user.Picture,
	}

	// Connection count is served from a separate endpoint and is not worth
	// failing the whole lookup over.
	endpoint := fmt.Sprintf("%s/networkSizes/urn:li:person:%s?edgeType=CONNECTIONS", a.baseURL, url.PathEscape(user.Sub))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return info, nil
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return info, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var size transfer.LinkedinNetworkSize
		if err := json.NewDecoder(resp.Body).Decode(&size); err == nil {
			info.FollowerCount = size.FirstDegreeSize
		}
	}

	return info, nil
}

func (a *LinkedinAdapter) userInfo(ctx context.Context, accessToken string) (*transfer.LinkedinUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/userinfo", nil)
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
		return nil, fmt.Errorf("linkedin userinfo returned %d", resp.StatusCode)
	}

	var user transfer.LinkedinUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return &user, nil
}

func (a *LinkedinAdapter) ExchangeCode(ctx context.Context, code string) (*Tokens, error) {
	if code == "" {
		return nil, errors.New("code is empty")
	}

	token, err := a.oauthConfig().Exchange(ctx, code)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &Tokens{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}, nil
}

func (a *LinkedinAdapter) RefreshToken(ctx context.Context, refreshToken string) (*Tokens, error) {
	source := a.oauthConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	refreshed := token.RefreshToken
	if refreshed == "" {
		refreshed = refreshToken
	}

	return &Tokens{
		AccessToken:  token.AccessToken,
		RefreshToken: refreshed,
		ExpiresAt:    token.Expiry,
	}, nil
}

func (a *LinkedinAdapter) PublishPost(ctx context.Context, accessToken, body string) (string, error) {
	user, err := a.userInfo(ctx, accessToken)
	if err != nil {
		return "", err
	}

	payload := map[string]any{
		"author":         "urn:li:person:" + user.Sub,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": map[string]any{
				"shareCommentary":    map[string]string{"text": body},
				"shareMediaCategory": "NONE",
			},
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/ugcPosts", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := a.client.Do(req)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("linkedin ugcPosts returned %d: %s", resp.StatusCode, string(respBody))
	}

	var share transfer.LinkedinShareResponse
	if err := json.NewDecoder(resp.Body).Decode(&share); err != nil {
		slog.Info(err.Error())
		return "", err
	}
	if share.ID == "" {
		return "", errors.New("linkedin ugcPosts returned no id")
	}

	return share.ID, nil
}
