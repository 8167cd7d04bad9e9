// Package platforms holds the per-platform adapter capability. The collector,
// publisher and credential code depend only on the Adapter interface; adding a
// platform means adding one implementation here.
package platforms

import (
	"context"
	"time"
)

// RawMetrics is one engagement observation as reported by a platform. Counters
// a platform cannot report stay zero.
type RawMetrics struct {
	Impressions int64
	Reactions   int64
	Comments    int64
	Shares      int64
	Quotes      int64
	Bookmarks   int64
	UniqueReach int64
	VideoViews  int64
	ObservedAt  time.Time
}

type AccountInfo struct {
	ID             string
	Name           string
	Username       string
	ProfilePicture string
	FollowerCount  int64
}

type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type Adapter interface {
	Name() string
	// CharLimit is the platform's maximum post body length.
	CharLimit() int
	// MetricsWindow is how long after publish a post keeps being re-polled.
	MetricsWindow() time.Duration

	FetchPostMetrics(ctx context.Context, accessToken, platformPostID string) (*RawMetrics, error)
	FetchAccountInfo(ctx context.Context, accessToken string) (*AccountInfo, error)
	ExchangeCode(ctx context.Context, code string) (*Tokens, error)
	RefreshToken(ctx context.Context, refreshToken string) (*Tokens, error)
	PublishPost(ctx context.Context, accessToken, body string) (string, error)
}

type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Name()] = a
	}
	return &Registry{adapters: m}
}

func (r *Registry) Get(platform string) (Adapter, bool) {
	a, ok := r.adapters[platform]
	return a, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}

// defaultMetricsWindow bounds re-polling; platform APIs stop returning useful
// deltas for old posts long before their data disappears.
const defaultMetricsWindow = 30 * 24 * time.Hour
