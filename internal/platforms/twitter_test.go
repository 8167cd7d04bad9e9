package platforms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	config "github.com/postpulse/postpulse/configs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTwitterAdapter(serverURL string) *TwitterAdapter {
	return &TwitterAdapter{
		cfg:     config.Config{TwitterClientID: "client", TwitterClientSecret: "secret"},
		baseURL: serverURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func TestTwitterFetchPostMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tweets/1234", r.URL.Path)
		assert.Equal(t, "public_metrics", r.URL.Query().Get("tweet.fields"))
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"id":   "1234",
				"text": "hello",
				"public_metrics": map[string]int64{
					"impression_count": 1000,
					"like_count":       30,
					"reply_count":      5,
					"retweet_count":    8,
					"quote_count":      2,
					"bookmark_count":   4,
				},
			},
		})
	}))
	defer server.Close()

	adapter := testTwitterAdapter(server.URL)

	metrics, err := adapter.FetchPostMetrics(context.Background(), "token", "1234")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), metrics.Impressions)
	assert.Equal(t, int64(30), metrics.Reactions)
	assert.Equal(t, int64(5), metrics.Comments)
	assert.Equal(t, int64(8), metrics.Shares)
	assert.Equal(t, int64(2), metrics.Quotes)
	assert.Equal(t, int64(4), metrics.Bookmarks)
	assert.False(t, metrics.ObservedAt.IsZero())
}

func TestTwitterFetchPostMetricsNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	adapter := testTwitterAdapter(server.URL)

	_, err := adapter.FetchPostMetrics(context.Background(), "token", "gone")
	require.Error(t, err)
}

func TestTwitterFetchAccountInfo(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/me", r.URL.Path)

		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"id":                "42",
				"name":              "Test User",
				"username":          "testuser",
				"profile_image_url": "https://example.com/pic.png",
				"public_metrics": map[string]int64{
					"followers_count": 1500,
				},
			},
		})
	}))
	defer server.Close()

	adapter := testTwitterAdapter(server.URL)

	info, err := adapter.FetchAccountInfo(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, "42", info.ID)
	assert.Equal(t, "testuser", info.Username)
	assert.Equal(t, int64(1500), info.FollowerCount)
}

func TestTwitterPublishPost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/tweets", r.URL.Path)

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "hello world", payload["text"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"id": "999", "text": "hello world"},
		})
	}))
	defer server.Close()

	adapter := testTwitterAdapter(server.URL)

	id, err := adapter.PublishPost(context.Background(), "token", "hello world")
	require.NoError(t, err)
	assert.Equal(t, "999", id)
}

func TestTwitterPublishPostRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	adapter := testTwitterAdapter(server.URL)

	_, err := adapter.PublishPost(context.Background(), "token", "hello")
	require.Error(t, err)
}
