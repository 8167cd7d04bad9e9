package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const defaultQueue = "default"

// AsynqNotifier backs the service layer's scheduling signals with asynq's
// delayed task queue. One post has at most one pending publish task, keyed by
// a deterministic task id.
type AsynqNotifier struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

func NewAsynqNotifier(client *asynq.Client, inspector *asynq.Inspector) *AsynqNotifier {
	return &AsynqNotifier{client: client, inspector: inspector}
}

func (n *AsynqNotifier) PostScheduled(ctx context.Context, postID int64, at time.Time) error {
	payload, err := json.Marshal(PublishPostPayload{PostID: postID})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypePublishPost, payload)
	_, err = n.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(at),
		asynq.TaskID(publishTaskID(postID)),
		asynq.Queue(defaultQueue),
	)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	slog.Info("publish task scheduled", "post_id", postID, "at", at)
	return nil
}

// ScheduleCancelled removes the pending publish task. A task already gone is
// not an error: cancelling twice or after delivery must be a no-op.
func (n *AsynqNotifier) ScheduleCancelled(ctx context.Context, postID int64) error {
	err := n.inspector.DeleteTask(defaultQueue, publishTaskID(postID))
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return nil
		}
		slog.Info(err.Error())
		return err
	}

	slog.Info("publish task cancelled", "post_id", postID)
	return nil
}

func (n *AsynqNotifier) PostUpdated(ctx context.Context, postID int64, changedFields []string) error {
	payload, err := json.Marshal(PostUpdatedPayload{PostID: postID, ChangedFields: changedFields})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypePostUpdated, payload)
	if _, err := n.client.EnqueueContext(ctx, task, asynq.Queue(defaultQueue)); err != nil {
		slog.Info(err.Error())
		return err
	}

	return nil
}
