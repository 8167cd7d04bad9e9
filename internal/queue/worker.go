package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/postpulse/postpulse/internal/models"
)

func (q *Queue) HandlePublishPostTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	return q.PublishPost(ctx, payload.PostID)
}

// PublishPost delivers a post to every platform with a pending publication.
// Deliveries run concurrently and fail independently; the post goes to
// published if at least one delivery lands, failed if all of them fail.
func (q *Queue) PublishPost(ctx context.Context, postID int64) error {
	post, err := q.pr.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		// Deleted between scheduling and delivery. Nothing to publish.
		slog.Info("skipping publish for missing post", "post_id", postID)
		return nil
	}

	publications, err := q.pub.ListByPostID(ctx, postID)
	if err != nil {
		return err
	}

	var pending []*models.Publication
	for _, publication := range publications {
		if publication.Status == models.PublicationStatusPending {
			pending = append(pending, publication)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, 10)
	results := make(chan bool, len(pending))

	deliver := func(publication *models.Publication) {
		defer wg.Done()
		defer func() { <-semaphore }()

		adapter, ok := q.registry.Get(publication.Platform)
		if !ok {
			q.markFailed(ctx, publication.ID, "unsupported platform "+publication.Platform)
			results <- false
			return
		}

		conn, err := q.cs.GetActiveConnection(ctx, publication.UserID, publication.Platform)
		if err != nil {
			q.markFailed(ctx, publication.ID, "no active connection for "+publication.Platform)
			results <- false
			return
		}

		token, err := q.cs.AccessToken(ctx, conn)
		if err != nil {
			q.markFailed(ctx, publication.ID, "could not obtain access token: "+err.Error())
			results <- false
			return
		}

		platformPostID, err := adapter.PublishPost(ctx, token, post.Body)
		if err != nil {
			slog.Info("publish failed", "post_id", postID, "platform", publication.Platform, "error", err)
			q.markFailed(ctx, publication.ID, err.Error())
			results <- false
			return
		}

		if err := q.pub.MarkPublished(ctx, publication.ID, platformPostID, time.Now()); err != nil {
			slog.Info("failed to record publication", "post_id", postID, "platform", publication.Platform, "error", err)
			results <- false
			return
		}

		results <- true
	}

	for _, publication := range pending {
		wg.Add(1)
		semaphore <- struct{}{}
		go deliver(publication)
	}

	wg.Wait()
	close(results)

	successes := 0
	for ok := range results {
		if ok {
			successes++
		}
	}

	if successes > 0 {
		now := time.Now()
		// The edit window opens on first publish only; MarkPublished keeps an
		// existing window on retries.
		if _, err := q.pr.MarkPublished(ctx, postID, now, now.Add(models.EditWindow)); err != nil {
			return err
		}
		slog.Info("post published", "post_id", postID, "delivered", successes, "attempted", len(pending))
		return nil
	}

	if err := q.pr.MarkFailed(ctx, postID); err != nil {
		return err
	}
	slog.Info("post failed on all platforms", "post_id", postID, "attempted", len(pending))
	return nil
}

func (q *Queue) markFailed(ctx context.Context, publicationID int64, reason string) {
	if err := q.pub.MarkFailed(ctx, publicationID, reason); err != nil {
		slog.Info("failed to record publication failure", "publication_id", publicationID, "error", err)
	}
}

// HandlePostUpdatedTask records post mutations for the audit trail.
func (q *Queue) HandlePostUpdatedTask(ctx context.Context, task *asynq.Task) error {
	var payload PostUpdatedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	slog.Info("post updated", "post_id", payload.PostID, "changed_fields", payload.ChangedFields)
	return nil
}
