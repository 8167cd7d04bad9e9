package models

import "time"

type Post struct {
	ID               int64      `db:"id" json:"id"`
	UserID           int64      `db:"user_id" json:"user_id"`
	Body             string     `db:"body" json:"body"`
	Status           string     `db:"status" json:"status"` // draft, scheduled, published, failed
	ScheduledAt      *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	PublishedAt      *time.Time `db:"published_at" json:"published_at,omitempty"`
	FirstPublishedAt *time.Time `db:"first_published_at" json:"first_published_at,omitempty"`
	EditableUntil    *time.Time `db:"editable_until" json:"editable_until,omitempty"`
	EditCount        int        `db:"edit_count" json:"edit_count"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt        *time.Time `db:"deleted_at" json:"-"`
}

const (
	PostStatusDraft     = "draft"
	PostStatusScheduled = "scheduled"
	PostStatusPublished = "published"
	PostStatusFailed    = "failed"
)

const (
	// MaxPostEdits is the total edit budget after first publish. It never resets.
	MaxPostEdits = 5

	// EditWindow is fixed from first_published_at and never extended by later edits.
	EditWindow = 30 * time.Minute
)
