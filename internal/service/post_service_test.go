package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/postpulse/postpulse/internal/apperr"
	"github.com/postpulse/postpulse/internal/models"
	"github.com/postpulse/postpulse/internal/platforms"
	"github.com/postpulse/postpulse/internal/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	name  string
	limit int
}

func (a *fakeAdapter) Name() string                { return a.name }
func (a *fakeAdapter) CharLimit() int              { return a.limit }
func (a *fakeAdapter) MetricsWindow() time.Duration { return 30 * 24 * time.Hour }

func (a *fakeAdapter) FetchPostMetrics(ctx context.Context, accessToken, platformPostID string) (*platforms.RawMetrics, error) {
	return &platforms.RawMetrics{}, nil
}

func (a *fakeAdapter) FetchAccountInfo(ctx context.Context, accessToken string) (*platforms.AccountInfo, error) {
	return &platforms.AccountInfo{}, nil
}

func (a *fakeAdapter) ExchangeCode(ctx context.Context, code string) (*platforms.Tokens, error) {
	return &platforms.Tokens{}, nil
}

func (a *fakeAdapter) RefreshToken(ctx context.Context, refreshToken string) (*platforms.Tokens, error) {
	return &platforms.Tokens{}, nil
}

func (a *fakeAdapter) PublishPost(ctx context.Context, accessToken, body string) (string, error) {
	return "", nil
}

type fakePostRepo struct {
	posts  map[int64]*models.Post
	nextID int64
}

func newFakePostRepo() *fakePostRepo {
	return &fakePostRepo{posts: map[int64]*models.Post{}, nextID: 1}
}

func (r *fakePostRepo) Create(ctx context.Context, tx *sql.Tx, post *models.Post) (int64, error) {
	id := r.nextID
	r.nextID++
	stored := *post
	stored.ID = id
	r.posts[id] = &stored
	return id, nil
}

func (r *fakePostRepo) GetByID(ctx context.Context, postID int64) (*models.Post, error) {
	post, ok := r.posts[postID]
	if !ok || post.DeletedAt != nil {
		return nil, nil
	}
	copied := *post
	return &copied, nil
}

func (r *fakePostRepo) GetByUser(ctx context.Context, postID, userID int64) (*models.Post, error) {
	post, ok := r.posts[postID]
	if !ok || post.UserID != userID || post.DeletedAt != nil {
		return nil, nil
	}
	copied := *post
	return &copied, nil
}

func (r *fakePostRepo) ListByUser(ctx context.Context, userID int64, status string, limit, offset int) ([]*models.Post, error) {
	var posts []*models.Post
	for _, post := range r.posts {
		if post.UserID == userID && post.DeletedAt == nil && (status == "" || post.Status == status) {
			copied := *post
			posts = append(posts, &copied)
		}
	}
	return posts, nil
}

func (r *fakePostRepo) Update(ctx context.Context, post *models.Post) error {
	stored := *post
	r.posts[post.ID] = &stored
	return nil
}

func (r *fakePostRepo) ApplyEdit(ctx context.Context, postID, userID int64, body string, maxEdits int) (*models.Post, error) {
	post, ok := r.posts[postID]
	if !ok || post.UserID != userID || post.DeletedAt != nil {
		return nil, nil
	}
	if post.Status != models.PostStatusPublished || post.EditCount >= maxEdits ||
		post.EditableUntil == nil || !time.Now().Before(*post.EditableUntil) {
		return nil, nil
	}
	post.Body = body
	post.EditCount++
	copied := *post
	return &copied, nil
}

func (r *fakePostRepo) MarkPublished(ctx context.Context, postID int64, publishedAt, editableUntil time.Time) (*models.Post, error) {
	post, ok := r.posts[postID]
	if !ok {
		return nil, nil
	}
	post.Status = models.PostStatusPublished
	post.PublishedAt = &publishedAt
	if post.FirstPublishedAt == nil {
		post.FirstPublishedAt = &publishedAt
	}
	if post.EditableUntil == nil {
		post.EditableUntil = &editableUntil
	}
	copied := *post
	return &copied, nil
}

func (r *fakePostRepo) MarkFailed(ctx context.Context, postID int64) error {
	if post, ok := r.posts[postID]; ok {
		post.Status = models.PostStatusFailed
	}
	return nil
}

func (r *fakePostRepo) SoftDelete(ctx context.Context, postID, userID int64) (bool, error) {
	post, ok := r.posts[postID]
	if !ok || post.UserID != userID || post.DeletedAt != nil {
		return false, nil
	}
	now := time.Now()
	post.DeletedAt = &now
	return true, nil
}

type fakePubRepo struct {
	pubs   map[int64][]*models.Publication
	nextID int64
}

func newFakePubRepo() *fakePubRepo {
	return &fakePubRepo{pubs: map[int64][]*models.Publication{}, nextID: 1}
}

func (r *fakePubRepo) Create(ctx context.Context, tx *sql.Tx, pub *models.Publication) (int64, error) {
	id := r.nextID
	r.nextID++
	stored := *pub
	stored.ID = id
	r.pubs[pub.PostID] = append(r.pubs[pub.PostID], &stored)
	return id, nil
}

func (r *fakePubRepo) ListByPostID(ctx context.Context, postID int64) ([]*models.Publication, error) {
	return r.pubs[postID], nil
}

func (r *fakePubRepo) MarkPublished(ctx context.Context, id int64, platformPostID string, publishedAt time.Time) error {
	for _, pubs := range r.pubs {
		for _, pub := range pubs {
			if pub.ID == id && pub.Status != models.PublicationStatusPublished {
				pub.Status = models.PublicationStatusPublished
				pub.PlatformPostID = platformPostID
				pub.PublishedAt = &publishedAt
			}
		}
	}
	return nil
}

func (r *fakePubRepo) MarkFailed(ctx context.Context, id int64, errorMessage string) error {
	for _, pubs := range r.pubs {
		for _, pub := range pubs {
			if pub.ID == id && pub.Status != models.PublicationStatusPublished {
				pub.Status = models.PublicationStatusFailed
				pub.ErrorMessage = errorMessage
			}
		}
	}
	return nil
}

func (r *fakePubRepo) ResetForRetry(ctx context.Context, postID int64) error {
	for _, pub := range r.pubs[postID] {
		if pub.Status == models.PublicationStatusFailed {
			pub.Status = models.PublicationStatusPending
			pub.ErrorMessage = ""
		}
	}
	return nil
}

func (r *fakePubRepo) ListEligibleForMetrics(ctx context.Context, publishedSince time.Time) ([]*models.Publication, error) {
	var result []*models.Publication
	for _, pubs := range r.pubs {
		for _, pub := range pubs {
			if pub.Status == models.PublicationStatusPublished && pub.PublishedAt != nil && !pub.PublishedAt.Before(publishedSince) {
				result = append(result, pub)
			}
		}
	}
	return result, nil
}

func (r *fakePubRepo) ListPublishedInWindow(ctx context.Context, userID int64, since time.Time, platform string) ([]*models.PublishedItem, error) {
	return nil, nil
}

func (r *fakePubRepo) ListPublishedByUser(ctx context.Context, userID int64, platform string, limit, offset int) ([]*models.PublishedItem, error) {
	return nil, nil
}

func (r *fakePubRepo) GetPublished(ctx context.Context, userID int64, platform, platformPostID string) (*models.Publication, error) {
	return nil, nil
}

type fakeConnRepo struct {
	active map[string]*models.Connection
}

func newFakeConnRepo(keys ...string) *fakeConnRepo {
	r := &fakeConnRepo{active: map[string]*models.Connection{}}
	for i, key := range keys {
		r.active[key] = &models.Connection{ID: int64(i + 1), Status: models.ConnectionStatusActive}
	}
	return r
}

func connKey(userID int64, platform string) string {
	return fmt.Sprintf("%d/%s", userID, platform)
}

func (r *fakeConnRepo) Create(ctx context.Context, tx *sql.Tx, conn *models.Connection) (int64, error) {
	return 0, nil
}

func (r *fakeConnRepo) GetByID(ctx context.Context, id int64) (*models.Connection, error) {
	return nil, nil
}

func (r *fakeConnRepo) GetActive(ctx context.Context, userID int64, platform string) (*models.Connection, error) {
	return r.active[connKey(userID, platform)], nil
}

func (r *fakeConnRepo) ListActive(ctx context.Context) ([]*models.Connection, error) {
	return nil, nil
}

func (r *fakeConnRepo) ListInfoByUserID(ctx context.Context, userID int64) ([]*models.Connection, error) {
	return nil, nil
}

func (r *fakeConnRepo) ListExpiring(ctx context.Context, initialTime, finalTime time.Time) ([]*models.Connection, error) {
	return nil, nil
}

func (r *fakeConnRepo) CheckByUserID(ctx context.Context, connectionID, userID int64) (bool, error) {
	return false, nil
}

func (r *fakeConnRepo) SetToken(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time) error {
	return nil
}

func (r *fakeConnRepo) Remove(ctx context.Context, id int64) error {
	return nil
}

// recorderNotifier records emitted signals in order.
type recorderNotifier struct {
	events []string
}

func (n *recorderNotifier) PostScheduled(ctx context.Context, postID int64, at time.Time) error {
	n.events = append(n.events, fmt.Sprintf("schedule:%d", postID))
	return nil
}

func (n *recorderNotifier) ScheduleCancelled(ctx context.Context, postID int64) error {
	n.events = append(n.events, fmt.Sprintf("cancel:%d", postID))
	return nil
}

func (n *recorderNotifier) PostUpdated(ctx context.Context, postID int64, changedFields []string) error {
	n.events = append(n.events, fmt.Sprintf("updated:%d:%v", postID, changedFields))
	return nil
}

func newCreation(body string, selected ...string) *transfer.PostCreation {
	return &transfer.PostCreation{Body: body, Platforms: selected}
}

func patchBody(body string) *transfer.PostPatch {
	return &transfer.PostPatch{Body: &body}
}

func patchSchedule(at string) *transfer.PostPatch {
	return &transfer.PostPatch{ScheduledAt: &at}
}

type postServiceFixture struct {
	svc      PostService
	posts    *fakePostRepo
	pubs     *fakePubRepo
	notifier *recorderNotifier
}

func newPostServiceFixture(connKeys ...string) *postServiceFixture {
	posts := newFakePostRepo()
	pubs := newFakePubRepo()
	notifier := &recorderNotifier{}
	registry := platforms.NewRegistry(
		&fakeAdapter{name: "twitter", limit: 280},
		&fakeAdapter{name: "linkedin", limit: 3000},
	)

	// db stays nil: the Create validation tests all fail before the
	// transaction opens, and the other operations never start one.
	svc := &postService{
		pr:       posts,
		pub:      pubs,
		conn:     newFakeConnRepo(connKeys...),
		registry: registry,
		notifier: notifier,
	}

	return &postServiceFixture{svc: svc, posts: posts, pubs: pubs, notifier: notifier}
}

func TestCreatePostValidation(t *testing.T) {
	f := newPostServiceFixture(connKey(1, "twitter"))
	ctx := context.Background()

	t.Run("empty body", func(t *testing.T) {
		_, err := f.svc.Create(ctx, 1, newCreation("", "twitter"))
		var validation *apperr.ValidationError
		require.ErrorAs(t, err, &validation)
		assert.Equal(t, "body", validation.Field)
	})

	t.Run("no platforms", func(t *testing.T) {
		_, err := f.svc.Create(ctx, 1, newCreation("hello"))
		var validation *apperr.ValidationError
		require.ErrorAs(t, err, &validation)
		assert.Equal(t, "platforms", validation.Field)
	})

	t.Run("unsupported platform", func(t *testing.T) {
		_, err := f.svc.Create(ctx, 1, newCreation("hello", "myspace"))
		var validation *apperr.ValidationError
		require.ErrorAs(t, err, &validation)
		assert.Equal(t, "platforms", validation.Field)
	})

	t.Run("body over the smallest platform limit", func(t *testing.T) {
		long := make([]rune, 281)
		for i := range long {
			long[i] = 'a'
		}
		_, err := f.svc.Create(ctx, 1, newCreation(string(long), "twitter", "linkedin"))
		var validation *apperr.ValidationError
		require.ErrorAs(t, err, &validation)
		assert.Equal(t, "body", validation.Field)
	})

	t.Run("missing connection names the platform", func(t *testing.T) {
		_, err := f.svc.Create(ctx, 1, newCreation("hello", "linkedin"))
		var connRequired *apperr.ConnectionRequiredError
		require.ErrorAs(t, err, &connRequired)
		assert.Equal(t, "linkedin", connRequired.Platform)
	})
}

func TestUpdatePostSignals(t *testing.T) {
	ctx := context.Background()

	seed := func(f *postServiceFixture, status string, scheduledAt *time.Time) int64 {
		id, _ := f.posts.Create(ctx, nil, &models.Post{
			UserID:      1,
			Body:        "hello",
			Status:      status,
			ScheduledAt: scheduledAt,
		})
		f.pubs.Create(ctx, nil, &models.Publication{PostID: id, UserID: 1, Platform: "twitter", Status: models.PublicationStatusPending})
		return id
	}

	t.Run("reschedule emits cancel then schedule", func(t *testing.T) {
		f := newPostServiceFixture(connKey(1, "twitter"))
		at := time.Now().Add(time.Hour)
		id := seed(f, models.PostStatusScheduled, &at)

		newTime := time.Now().Add(2 * time.Hour).Format("2006-01-02T15:04")
		post, err := f.svc.Update(ctx, 1, id, patchSchedule(newTime))
		require.NoError(t, err)
		assert.Equal(t, models.PostStatusScheduled, post.Status)
		require.Len(t, f.notifier.events, 2)
		assert.Equal(t, fmt.Sprintf("cancel:%d", id), f.notifier.events[0])
		assert.Equal(t, fmt.Sprintf("schedule:%d", id), f.notifier.events[1])
	})

	t.Run("scheduling a draft emits schedule only", func(t *testing.T) {
		f := newPostServiceFixture(connKey(1, "twitter"))
		id := seed(f, models.PostStatusDraft, nil)

		newTime := time.Now().Add(time.Hour).Format("2006-01-02T15:04")
		post, err := f.svc.Update(ctx, 1, id, patchSchedule(newTime))
		require.NoError(t, err)
		assert.Equal(t, models.PostStatusScheduled, post.Status)
		assert.Equal(t, []string{fmt.Sprintf("schedule:%d", id)}, f.notifier.events)
	})

	t.Run("unschedule emits cancel only and reverts to draft", func(t *testing.T) {
		f := newPostServiceFixture(connKey(1, "twitter"))
		at := time.Now().Add(time.Hour)
		id := seed(f, models.PostStatusScheduled, &at)

		post, err := f.svc.Update(ctx, 1, id, &transfer.PostPatch{RemoveSchedule: true})
		require.NoError(t, err)
		assert.Equal(t, models.PostStatusDraft, post.Status)
		assert.Nil(t, post.ScheduledAt)
		assert.Equal(t, []string{fmt.Sprintf("cancel:%d", id)}, f.notifier.events)
	})

	t.Run("body-only patch emits updated with field names", func(t *testing.T) {
		f := newPostServiceFixture(connKey(1, "twitter"))
		id := seed(f, models.PostStatusDraft, nil)

		body := "revised"
		post, err := f.svc.Update(ctx, 1, id, patchBody(body))
		require.NoError(t, err)
		assert.Equal(t, body, post.Body)
		assert.Equal(t, []string{fmt.Sprintf("updated:%d:[body]", id)}, f.notifier.events)
	})

	t.Run("published body patch is rejected", func(t *testing.T) {
		f := newPostServiceFixture(connKey(1, "twitter"))
		id := seed(f, models.PostStatusPublished, nil)

		_, err := f.svc.Update(ctx, 1, id, patchBody("revised"))
		var notEditable *apperr.NotEditableError
		require.ErrorAs(t, err, &notEditable)
	})

	t.Run("no-op patch emits nothing", func(t *testing.T) {
		f := newPostServiceFixture(connKey(1, "twitter"))
		id := seed(f, models.PostStatusDraft, nil)

		_, err := f.svc.Update(ctx, 1, id, patchBody("hello"))
		require.NoError(t, err)
		assert.Empty(t, f.notifier.events)
	})
}

func TestRemovePost(t *testing.T) {
	ctx := context.Background()
	f := newPostServiceFixture(connKey(1, "twitter"))

	at := time.Now().Add(time.Hour)
	id, _ := f.posts.Create(ctx, nil, &models.Post{
		UserID:      1,
		Body:        "hello",
		Status:      models.PostStatusScheduled,
		ScheduledAt: &at,
	})

	require.NoError(t, f.svc.Remove(ctx, 1, id))
	assert.Equal(t, []string{fmt.Sprintf("cancel:%d", id)}, f.notifier.events)

	err := f.svc.Remove(ctx, 1, id)
	var notFound *apperr.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestEditPublished(t *testing.T) {
	ctx := context.Background()

	seed := func(f *postServiceFixture, editCount int, publishedAgo time.Duration) int64 {
		now := time.Now()
		firstPublished := now.Add(-publishedAgo)
		editableUntil := firstPublished.Add(models.EditWindow)
		id, _ := f.posts.Create(ctx, nil, &models.Post{
			UserID:           1,
			Body:             "original",
			Status:           models.PostStatusPublished,
			FirstPublishedAt: &firstPublished,
			EditableUntil:    &editableUntil,
			EditCount:        editCount,
		})
		f.pubs.Create(ctx, nil, &models.Publication{PostID: id, UserID: 1, Platform: "twitter", Status: models.PublicationStatusPublished})
		return id
	}

	t.Run("edit inside window consumes budget", func(t *testing.T) {
		f := newPostServiceFixture(connKey(1, "twitter"))
		id := seed(f, 0, time.Minute)

		post, err := f.svc.EditPublished(ctx, 1, id, "corrected")
		require.NoError(t, err)
		assert.Equal(t, "corrected", post.Body)
		assert.Equal(t, 1, post.EditCount)
		assert.Equal(t, []string{fmt.Sprintf("updated:%d:[body]", id)}, f.notifier.events)
	})

	t.Run("window expired", func(t *testing.T) {
		f := newPostServiceFixture(connKey(1, "twitter"))
		id := seed(f, 0, models.EditWindow+time.Minute)

		_, err := f.svc.EditPublished(ctx, 1, id, "corrected")
		var notEditable *apperr.NotEditableError
		require.ErrorAs(t, err, &notEditable)
		assert.Equal(t, ReasonWindowExpired, notEditable.Reason)
	})

	t.Run("budget exhausted", func(t *testing.T) {
		f := newPostServiceFixture(connKey(1, "twitter"))
		id := seed(f, models.MaxPostEdits, time.Minute)

		_, err := f.svc.EditPublished(ctx, 1, id, "corrected")
		var notEditable *apperr.NotEditableError
		require.ErrorAs(t, err, &notEditable)
		assert.Equal(t, ReasonBudgetExhausted, notEditable.Reason)
	})

	t.Run("draft cannot use the edit path", func(t *testing.T) {
		f := newPostServiceFixture(connKey(1, "twitter"))
		id, _ := f.posts.Create(ctx, nil, &models.Post{UserID: 1, Body: "draft", Status: models.PostStatusDraft})

		_, err := f.svc.EditPublished(ctx, 1, id, "corrected")
		var notEditable *apperr.NotEditableError
		require.ErrorAs(t, err, &notEditable)
		assert.Equal(t, ReasonNotPublished, notEditable.Reason)
	})
}

func TestRetryPublish(t *testing.T) {
	ctx := context.Background()
	f := newPostServiceFixture(connKey(1, "twitter"))

	id, _ := f.posts.Create(ctx, nil, &models.Post{UserID: 1, Body: "hello", Status: models.PostStatusFailed})
	f.pubs.Create(ctx, nil, &models.Publication{PostID: id, UserID: 1, Platform: "twitter", Status: models.PublicationStatusFailed, ErrorMessage: "rate limited"})

	require.NoError(t, f.svc.RetryPublish(ctx, 1, id))

	pubs, _ := f.pubs.ListByPostID(ctx, id)
	require.Len(t, pubs, 1)
	assert.Equal(t, models.PublicationStatusPending, pubs[0].Status)
	assert.Empty(t, pubs[0].ErrorMessage)
	assert.Equal(t, []string{fmt.Sprintf("schedule:%d", id)}, f.notifier.events)

	t.Run("only failed posts can be retried", func(t *testing.T) {
		draftID, _ := f.posts.Create(ctx, nil, &models.Post{UserID: 1, Body: "draft", Status: models.PostStatusDraft})
		err := f.svc.RetryPublish(ctx, 1, draftID)
		var validation *apperr.ValidationError
		require.ErrorAs(t, err, &validation)
	})
}
