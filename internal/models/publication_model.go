package models

import "time"

// Publication is the per-platform delivery record for a Post. A retry re-attempts
// delivery on the existing row, it never creates a second one.
type Publication struct {
	ID             int64      `db:"id" json:"id"`
	PostID         int64      `db:"post_id" json:"post_id"`
	UserID         int64      `db:"user_id" json:"user_id"`
	Platform       string     `db:"platform" json:"platform"`
	PlatformPostID string     `db:"platform_post_id" json:"platform_post_id,omitempty"`
	Status         string     `db:"status" json:"status"` // pending, published, failed
	ErrorMessage   string     `db:"error_message" json:"error_message,omitempty"`
	PublishedAt    *time.Time `db:"published_at" json:"published_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// PublishedItem is a publication row joined with its post body for listing.
type PublishedItem struct {
	Publication
	Body string `db:"body" json:"body"`
}

const (
	PublicationStatusPending   = "pending"
	PublicationStatusPublished = "published"
	PublicationStatusFailed    = "failed"
)
