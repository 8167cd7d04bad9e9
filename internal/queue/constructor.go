package queue

import (
	"fmt"

	"github.com/postpulse/postpulse/internal/platforms"
	"github.com/postpulse/postpulse/internal/repository"
	"github.com/postpulse/postpulse/internal/service"
)

type Queue struct {
	pr       repository.PostRepository
	pub      repository.PublicationRepository
	cs       service.ConnectionService
	registry *platforms.Registry
}

func NewQueue(
	pr repository.PostRepository,
	pub repository.PublicationRepository,
	cs service.ConnectionService,
	registry *platforms.Registry) *Queue {
	return &Queue{
		pr:       pr,
		pub:      pub,
		cs:       cs,
		registry: registry,
	}
}

const (
	TaskTypePublishPost = "publish:post"
	TaskTypePostUpdated = "post:updated"
)

type PublishPostPayload struct {
	PostID int64 `json:"post_id"`
}

type PostUpdatedPayload struct {
	PostID        int64    `json:"post_id"`
	ChangedFields []string `json:"changed_fields"`
}

// publishTaskID makes the publish task for a post unique in the queue, so a
// reschedule can find and delete the pending one.
func publishTaskID(postID int64) string {
	return fmt.Sprintf("publish:post:%d", postID)
}
