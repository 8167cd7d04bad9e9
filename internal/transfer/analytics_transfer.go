package transfer

import (
	"time"

	"github.com/postpulse/postpulse/internal/models"
)

type PlatformOverview struct {
	Platform          string  `json:"platform"`
	PostsCount        int     `json:"posts_count"`
	TotalImpressions  int64   `json:"total_impressions"`
	TotalReach        int64   `json:"total_reach"`
	TotalReactions    int64   `json:"total_reactions"`
	TotalComments     int64   `json:"total_comments"`
	TotalShares       int64   `json:"total_shares"`
	TotalQuotes       int64   `json:"total_quotes"`
	TotalBookmarks    int64   `json:"total_bookmarks"`
	AvgEngagementRate float64 `json:"avg_engagement_rate"`
}

type CombinedOverview struct {
	PostsCount        int     `json:"posts_count"`
	TotalImpressions  int64   `json:"total_impressions"`
	TotalReach        int64   `json:"total_reach"`
	TotalReactions    int64   `json:"total_reactions"`
	TotalComments     int64   `json:"total_comments"`
	TotalShares       int64   `json:"total_shares"`
	TotalQuotes       int64   `json:"total_quotes"`
	TotalBookmarks    int64   `json:"total_bookmarks"`
	AvgEngagementRate float64 `json:"avg_engagement_rate"`
}

type Overview struct {
	WindowDays int                 `json:"window_days"`
	Platforms  []*PlatformOverview `json:"platforms"`
	Combined   *CombinedOverview   `json:"combined"`
}

type PublishedPost struct {
	Publication    *models.Publication    `json:"publication"`
	Body           string                 `json:"body"`
	Snapshot       *models.MetricSnapshot `json:"snapshot,omitempty"`
	EngagementRate float64                `json:"engagement_rate"`
}

type PostDetail struct {
	Publication *models.Publication      `json:"publication"`
	Latest      *models.MetricSnapshot   `json:"latest,omitempty"`
	History     []*models.MetricSnapshot `json:"history"`
}

type FollowerDay struct {
	Date          string `json:"date"`
	FollowerCount int64  `json:"follower_count"`
	NewFollowers  *int64 `json:"new_followers,omitempty"`
}

type FollowerGrowth struct {
	Platform     string         `json:"platform"`
	WindowDays   int            `json:"window_days"`
	CurrentCount int64          `json:"current_count"`
	StartCount   int64          `json:"start_count"`
	NetGrowth    int64          `json:"net_growth"`
	GrowthRate   float64        `json:"growth_rate"`
	Daily        []*FollowerDay `json:"daily"`
}

type CollectError struct {
	PublicationID  int64  `json:"publication_id"`
	Platform       string `json:"platform"`
	PlatformPostID string `json:"platform_post_id"`
	Reason         string `json:"reason"`
}

// CollectSummary is the metrics batch result. Processed counts every attempted
// item, success or failure.
type CollectSummary struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Processed  int             `json:"processed"`
	Failed     int             `json:"failed"`
	Errors     []*CollectError `json:"errors"`
}
