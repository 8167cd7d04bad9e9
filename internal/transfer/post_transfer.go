package transfer

import (
	"github.com/golang-jwt/jwt/v5"
)

type PostCreation struct {
	Body        string   `json:"body"`
	Platforms   []string `json:"platforms"`
	ScheduledAt string   `json:"scheduled_at,omitempty"`
}

// PostPatch distinguishes "field absent" from "field set to null" for
// scheduled_at: RemoveSchedule unschedules, ScheduledAt reschedules.
type PostPatch struct {
	Body           *string `json:"body,omitempty"`
	ScheduledAt    *string `json:"scheduled_at,omitempty"`
	RemoveSchedule bool    `json:"remove_schedule,omitempty"`
}

type PostEdit struct {
	Body string `json:"body"`
}

type CustomClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}
