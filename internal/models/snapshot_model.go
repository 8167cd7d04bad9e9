package models

import "time"

// MetricSnapshot is one immutable observation of a publication's performance.
// Rows are append-only; "latest" means greatest fetched_at.
type MetricSnapshot struct {
	ID             int64     `db:"id" json:"id"`
	UserID         int64     `db:"user_id" json:"user_id"`
	Platform       string    `db:"platform" json:"platform"`
	PlatformPostID string    `db:"platform_post_id" json:"platform_post_id"`
	Impressions    int64     `db:"impressions" json:"impressions"`
	Reactions      int64     `db:"reactions" json:"reactions"`
	Comments       int64     `db:"comments" json:"comments"`
	Shares         int64     `db:"shares" json:"shares"`
	Quotes         int64     `db:"quotes" json:"quotes"`
	Bookmarks      int64     `db:"bookmarks" json:"bookmarks"`
	UniqueReach    int64     `db:"unique_reach" json:"unique_reach"`
	VideoViews     int64     `db:"video_views" json:"video_views"`
	FetchedAt      time.Time `db:"fetched_at" json:"fetched_at"`
}

// FollowerSnapshot holds one follower count per (user, platform, day).
// NewFollowers is nil on the first recorded day for an account.
type FollowerSnapshot struct {
	ID            int64     `db:"id" json:"id"`
	UserID        int64     `db:"user_id" json:"user_id"`
	Platform      string    `db:"platform" json:"platform"`
	SnapshotDate  time.Time `db:"snapshot_date" json:"snapshot_date"`
	FollowerCount int64     `db:"follower_count" json:"follower_count"`
	NewFollowers  *int64    `db:"new_followers" json:"new_followers,omitempty"`
}
