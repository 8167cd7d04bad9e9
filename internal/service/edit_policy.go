package service

import (
	"time"

	"github.com/postpulse/postpulse/internal/models"
)

// Denial reasons surfaced through NotEditableError so callers can tell an
// expired window from an exhausted budget.
const (
	ReasonNotPublished    = "only published posts can be edited"
	ReasonNoEditWindow    = "post has no edit window recorded"
	ReasonWindowExpired   = "edit window has expired"
	ReasonBudgetExhausted = "edit limit reached"
)

type EditDecision struct {
	Allowed        bool
	Reason         string
	RemainingEdits int
	Deadline       *time.Time
}

// CanEdit is the pure edit-window decision. It reads only the post's status,
// edit counter and publish timestamps; the authoritative check happens again
// inside the conditional update that applies the edit.
func CanEdit(post *models.Post, now time.Time) EditDecision {
	if post.Status != models.PostStatusPublished {
		return EditDecision{Reason: ReasonNotPublished}
	}
	// A published post must always carry both timestamps; treat a missing one
	// as not editable rather than guessing a window.
	if post.FirstPublishedAt == nil || post.EditableUntil == nil {
		return EditDecision{Reason: ReasonNoEditWindow}
	}
	if !now.Before(*post.EditableUntil) {
		return EditDecision{Reason: ReasonWindowExpired, Deadline: post.EditableUntil}
	}
	if post.EditCount >= models.MaxPostEdits {
		return EditDecision{Reason: ReasonBudgetExhausted, Deadline: post.EditableUntil}
	}

	return EditDecision{
		Allowed:        true,
		RemainingEdits: models.MaxPostEdits - post.EditCount,
		Deadline:       post.EditableUntil,
	}
}
