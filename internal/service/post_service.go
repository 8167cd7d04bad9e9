package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/postpulse/postpulse/internal/apperr"
	"github.com/postpulse/postpulse/internal/models"
	"github.com/postpulse/postpulse/internal/platforms"
	"github.com/postpulse/postpulse/internal/repository"
	"github.com/postpulse/postpulse/internal/transfer"
)

const scheduleTimeLayout = "2006-01-02T15:04"

// Notifier is the outbound scheduling port. Emissions are best-effort
// notifications of already-committed state: a failure is logged, never rolled
// back, because the metrics job's periodic re-scan recovers a lost signal
// while an uncommitted state change would be unrecoverable.
type Notifier interface {
	PostScheduled(ctx context.Context, postID int64, at time.Time) error
	ScheduleCancelled(ctx context.Context, postID int64) error
	PostUpdated(ctx context.Context, postID int64, changedFields []string) error
}

type PostService interface {
	Create(ctx context.Context, userID int64, pc *transfer.PostCreation) (*models.Post, error)
	Get(ctx context.Context, userID, postID int64) (*models.Post, []*models.Publication, error)
	List(ctx context.Context, userID int64, status string, limit, offset int) ([]*models.Post, error)
	Update(ctx context.Context, userID, postID int64, patch *transfer.PostPatch) (*models.Post, error)
	Remove(ctx context.Context, userID, postID int64) error
	EditPublished(ctx context.Context, userID, postID int64, body string) (*models.Post, error)
	RetryPublish(ctx context.Context, userID, postID int64) error
}

type postService struct {
	db       *sql.DB
	pr       repository.PostRepository
	pub      repository.PublicationRepository
	conn     repository.ConnectionRepository
	registry *platforms.Registry
	notifier Notifier
}

func NewPostService(
	db *sql.DB,
	pr repository.PostRepository,
	pub repository.PublicationRepository,
	conn repository.ConnectionRepository,
	registry *platforms.Registry,
	notifier Notifier) PostService {
	return &postService{
		db:       db,
		pr:       pr,
		pub:      pub,
		conn:     conn,
		registry: registry,
		notifier: notifier,
	}
}

// minCharLimit resolves the binding body limit: the smallest limit across the
// selected platforms applies to the whole post.
func (s *postService) minCharLimit(selected []string) (int, error) {
	limit := 0
	for _, platform := range selected {
		adapter, ok := s.registry.Get(platform)
		if !ok {
			return 0, &apperr.ValidationError{Field: "platforms", Message: "unsupported platform " + platform}
		}
		if limit == 0 || adapter.CharLimit() < limit {
			limit = adapter.CharLimit()
		}
	}
	return limit, nil
}

func (s *postService) Create(ctx context.Context, userID int64, pc *transfer.PostCreation) (*models.Post, error) {
	if pc.Body == "" {
		return nil, &apperr.ValidationError{Field: "body", Message: "body cannot be empty"}
	}
	if len(pc.Platforms) == 0 {
		return nil, &apperr.ValidationError{Field: "platforms", Message: "no platforms selected"}
	}

	limit, err := s.minCharLimit(pc.Platforms)
	if err != nil {
		return nil, err
	}
	if len([]rune(pc.Body)) > limit {
		return nil, &apperr.ValidationError{
			Field:   "body",
			Message: fmt.Sprintf("body exceeds the %d character limit for the selected platforms", limit),
		}
	}

	for _, platform := range pc.Platforms {
		conn, err := s.conn.GetActive(ctx, userID, platform)
		if err != nil {
			return nil, &apperr.PersistenceError{Op: "check connection", Err: err}
		}
		if conn == nil {
			return nil, &apperr.ConnectionRequiredError{Platform: platform}
		}
	}

	var scheduledAt *time.Time
	if pc.ScheduledAt != "" {
		t, err := time.Parse(scheduleTimeLayout, pc.ScheduledAt)
		if err != nil {
			return nil, &apperr.ValidationError{Field: "scheduled_at", Message: "invalid scheduled time format"}
		}
		scheduledAt = &t
	}

	status := models.PostStatusDraft
	if scheduledAt != nil {
		status = models.PostStatusScheduled
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "begin transaction", Err: err}
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		}
	}()

	post := models.Post{
		UserID:      userID,
		Body:        pc.Body,
		Status:      status,
		ScheduledAt: scheduledAt,
	}

	postID, err := s.pr.Create(ctx, tx, &post)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "create post", Err: err}
	}
	post.ID = postID

	for _, platform := range pc.Platforms {
		publication := models.Publication{
			PostID:   postID,
			UserID:   userID,
			Platform: platform,
			Status:   models.PublicationStatusPending,
		}
		if _, err = s.pub.Create(ctx, tx, &publication); err != nil {
			return nil, &apperr.PersistenceError{Op: "create publication", Err: err}
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, &apperr.PersistenceError{Op: "commit transaction", Err: err}
	}

	if scheduledAt != nil {
		if err := s.notifier.PostScheduled(ctx, postID, *scheduledAt); err != nil {
			slog.Error("failed to emit schedule signal", "post_id", postID, "error", err)
		}
	}

	return &post, nil
}

func (s *postService) Get(ctx context.Context, userID, postID int64) (*models.Post, []*models.Publication, error) {
	post, err := s.pr.GetByUser(ctx, postID, userID)
	if err != nil {
		return nil, nil, &apperr.PersistenceError{Op: "get post", Err: err}
	}
	if post == nil {
		return nil, nil, &apperr.NotFoundError{Resource: "post"}
	}

	publications, err := s.pub.ListByPostID(ctx, postID)
	if err != nil {
		return nil, nil, &apperr.PersistenceError{Op: "list publications", Err: err}
	}

	return post, publications, nil
}

func (s *postService) List(ctx context.Context, userID int64, status string, limit, offset int) ([]*models.Post, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	posts, err := s.pr.ListByUser(ctx, userID, status, limit, offset)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "list posts", Err: err}
	}
	return posts, nil
}

// Update applies a draft/schedule patch. Signal contract: a reschedule emits
// cancel then schedule in that order, an unschedule emits only cancel, and a
// patch that leaves scheduled_at alone emits only "updated" with the changed
// field names.
func (s *postService) Update(ctx context.Context, userID, postID int64, patch *transfer.PostPatch) (*models.Post, error) {
	post, err := s.pr.GetByUser(ctx, postID, userID)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "get post", Err: err}
	}
	if post == nil {
		return nil, &apperr.NotFoundError{Resource: "post"}
	}

	if post.Status == models.PostStatusPublished && patch.Body != nil {
		return nil, &apperr.NotEditableError{Reason: "published posts can only be edited through the edit window"}
	}

	var changedFields []string
	wasScheduled := post.Status == models.PostStatusScheduled

	if patch.Body != nil && *patch.Body != post.Body {
		publications, err := s.pub.ListByPostID(ctx, postID)
		if err != nil {
			return nil, &apperr.PersistenceError{Op: "list publications", Err: err}
		}
		selected := make([]string, 0, len(publications))
		for _, publication := range publications {
			selected = append(selected, publication.Platform)
		}
		limit, err := s.minCharLimit(selected)
		if err != nil {
			return nil, err
		}
		if len([]rune(*patch.Body)) > limit {
			return nil, &apperr.ValidationError{
				Field:   "body",
				Message: fmt.Sprintf("body exceeds the %d character limit for the selected platforms", limit),
			}
		}
		post.Body = *patch.Body
		changedFields = append(changedFields, "body")
	}

	scheduleCleared := false
	var newSchedule *time.Time

	switch {
	case patch.RemoveSchedule:
		if post.ScheduledAt != nil {
			post.ScheduledAt = nil
			scheduleCleared = true
		}
		if post.Status == models.PostStatusScheduled {
			post.Status = models.PostStatusDraft
		}
	case patch.ScheduledAt != nil:
		if post.Status == models.PostStatusPublished {
			return nil, &apperr.NotEditableError{Reason: "published posts cannot be rescheduled"}
		}
		t, err := time.Parse(scheduleTimeLayout, *patch.ScheduledAt)
		if err != nil {
			return nil, &apperr.ValidationError{Field: "scheduled_at", Message: "invalid scheduled time format"}
		}
		if post.ScheduledAt == nil || !post.ScheduledAt.Equal(t) {
			post.ScheduledAt = &t
			post.Status = models.PostStatusScheduled
			newSchedule = &t
		}
	}

	if len(changedFields) == 0 && !scheduleCleared && newSchedule == nil {
		return post, nil
	}

	// The repository update takes a row lock, so concurrent schedule
	// mutations on the same post serialize before any signals go out.
	if err := s.pr.Update(ctx, post); err != nil {
		return nil, &apperr.PersistenceError{Op: "update post", Err: err}
	}

	switch {
	case scheduleCleared:
		if err := s.notifier.ScheduleCancelled(ctx, postID); err != nil {
			slog.Error("failed to emit cancel signal", "post_id", postID, "error", err)
		}
	case newSchedule != nil:
		// Cancel-then-schedule, never the reverse: two live timers for one
		// post must not exist even transiently.
		if wasScheduled {
			if err := s.notifier.ScheduleCancelled(ctx, postID); err != nil {
				slog.Error("failed to emit cancel signal", "post_id", postID, "error", err)
			}
		}
		if err := s.notifier.PostScheduled(ctx, postID, *newSchedule); err != nil {
			slog.Error("failed to emit schedule signal", "post_id", postID, "error", err)
		}
	}

	if len(changedFields) > 0 && !scheduleCleared && newSchedule == nil {
		if err := s.notifier.PostUpdated(ctx, postID, changedFields); err != nil {
			slog.Error("failed to emit updated signal", "post_id", postID, "error", err)
		}
	}

	return post, nil
}

func (s *postService) Remove(ctx context.Context, userID, postID int64) error {
	post, err := s.pr.GetByUser(ctx, postID, userID)
	if err != nil {
		return &apperr.PersistenceError{Op: "get post", Err: err}
	}
	if post == nil {
		return &apperr.NotFoundError{Resource: "post"}
	}

	deleted, err := s.pr.SoftDelete(ctx, postID, userID)
	if err != nil {
		return &apperr.PersistenceError{Op: "delete post", Err: err}
	}
	if !deleted {
		return &apperr.NotFoundError{Resource: "post"}
	}

	if post.Status == models.PostStatusScheduled {
		if err := s.notifier.ScheduleCancelled(ctx, postID); err != nil {
			slog.Error("failed to emit cancel signal", "post_id", postID, "error", err)
		}
	}

	return nil
}

// EditPublished applies a bounded post-publish edit. The window and budget
// checks run inside the conditional update, so a stale read can never admit
// an edit past the boundary.
func (s *postService) EditPublished(ctx context.Context, userID, postID int64, body string) (*models.Post, error) {
	if body == "" {
		return nil, &apperr.ValidationError{Field: "body", Message: "body cannot be empty"}
	}

	post, err := s.pr.GetByUser(ctx, postID, userID)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "get post", Err: err}
	}
	if post == nil {
		return nil, &apperr.NotFoundError{Resource: "post"}
	}

	decision := CanEdit(post, time.Now())
	if !decision.Allowed {
		return nil, &apperr.NotEditableError{Reason: decision.Reason}
	}

	publications, err := s.pub.ListByPostID(ctx, postID)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "list publications", Err: err}
	}
	selected := make([]string, 0, len(publications))
	for _, publication := range publications {
		selected = append(selected, publication.Platform)
	}
	limit, err := s.minCharLimit(selected)
	if err != nil {
		return nil, err
	}
	if len([]rune(body)) > limit {
		return nil, &apperr.ValidationError{
			Field:   "body",
			Message: fmt.Sprintf("body exceeds the %d character limit for the selected platforms", limit),
		}
	}

	updated, err := s.pr.ApplyEdit(ctx, postID, userID, body, models.MaxPostEdits)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "apply edit", Err: err}
	}
	if updated == nil {
		// Lost the race against a concurrent edit or the closing window;
		// re-derive the precise reason from fresh state.
		post, err = s.pr.GetByUser(ctx, postID, userID)
		if err != nil {
			return nil, &apperr.PersistenceError{Op: "get post", Err: err}
		}
		if post == nil {
			return nil, &apperr.NotFoundError{Resource: "post"}
		}
		decision = CanEdit(post, time.Now())
		reason := decision.Reason
		if decision.Allowed {
			reason = ReasonBudgetExhausted
		}
		return nil, &apperr.NotEditableError{Reason: reason}
	}

	if err := s.notifier.PostUpdated(ctx, postID, []string{"body"}); err != nil {
		slog.Error("failed to emit updated signal", "post_id", postID, "error", err)
	}

	return updated, nil
}

// RetryPublish re-attempts delivery for a failed post. Existing publication
// rows are re-armed; no new rows are created.
func (s *postService) RetryPublish(ctx context.Context, userID, postID int64) error {
	post, err := s.pr.GetByUser(ctx, postID, userID)
	if err != nil {
		return &apperr.PersistenceError{Op: "get post", Err: err}
	}
	if post == nil {
		return &apperr.NotFoundError{Resource: "post"}
	}
	if post.Status != models.PostStatusFailed {
		return &apperr.ValidationError{Field: "status", Message: "only failed posts can be retried"}
	}

	if err := s.pub.ResetForRetry(ctx, postID); err != nil {
		return &apperr.PersistenceError{Op: "reset publications", Err: err}
	}

	if err := s.notifier.PostScheduled(ctx, postID, time.Now()); err != nil {
		slog.Error("failed to emit schedule signal", "post_id", postID, "error", err)
	}

	return nil
}
