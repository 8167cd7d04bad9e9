package service

import (
	"context"
	"testing"
	"time"

	"github.com/postpulse/postpulse/internal/apperr"
	"github.com/postpulse/postpulse/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnalyticsPubRepo struct {
	*fakePubRepo
	items []*models.PublishedItem
}

func (r *fakeAnalyticsPubRepo) ListPublishedInWindow(ctx context.Context, userID int64, since time.Time, platform string) ([]*models.PublishedItem, error) {
	var result []*models.PublishedItem
	for _, item := range r.items {
		if item.UserID == userID && (platform == "" || item.Platform == platform) {
			result = append(result, item)
		}
	}
	return result, nil
}

func (r *fakeAnalyticsPubRepo) ListPublishedByUser(ctx context.Context, userID int64, platform string, limit, offset int) ([]*models.PublishedItem, error) {
	return r.ListPublishedInWindow(ctx, userID, time.Time{}, platform)
}

func (r *fakeAnalyticsPubRepo) GetPublished(ctx context.Context, userID int64, platform, platformPostID string) (*models.Publication, error) {
	for _, item := range r.items {
		if item.UserID == userID && item.Platform == platform && item.PlatformPostID == platformPostID {
			return &item.Publication, nil
		}
	}
	return nil, nil
}

type fakeSnapshotRepo struct {
	snapshots []*models.MetricSnapshot
}

func (r *fakeSnapshotRepo) Create(ctx context.Context, s *models.MetricSnapshot) (int64, error) {
	stored := *s
	stored.ID = int64(len(r.snapshots) + 1)
	r.snapshots = append(r.snapshots, &stored)
	return stored.ID, nil
}

func (r *fakeSnapshotRepo) GetLatest(ctx context.Context, userID int64, platform, platformPostID string) (*models.MetricSnapshot, error) {
	var latest *models.MetricSnapshot
	for _, s := range r.snapshots {
		if s.UserID == userID && s.Platform == platform && s.PlatformPostID == platformPostID {
			if latest == nil || s.FetchedAt.After(latest.FetchedAt) {
				latest = s
			}
		}
	}
	return latest, nil
}

func (r *fakeSnapshotRepo) GetLatestBatch(ctx context.Context, userID int64, platformPostIDs []string) (map[string]*models.MetricSnapshot, error) {
	result := make(map[string]*models.MetricSnapshot)
	for _, id := range platformPostIDs {
		for _, s := range r.snapshots {
			if s.UserID == userID && s.PlatformPostID == id {
				if current, ok := result[id]; !ok || s.FetchedAt.After(current.FetchedAt) {
					result[id] = s
				}
			}
		}
	}
	return result, nil
}

func (r *fakeSnapshotRepo) ListForPost(ctx context.Context, userID int64, platform, platformPostID string, limit int, since *time.Time) ([]*models.MetricSnapshot, error) {
	var result []*models.MetricSnapshot
	for _, s := range r.snapshots {
		if s.UserID == userID && s.Platform == platform && s.PlatformPostID == platformPostID {
			if since != nil && s.FetchedAt.Before(*since) {
				continue
			}
			result = append(result, s)
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

type fakeFollowerRepo struct {
	snapshots []*models.FollowerSnapshot
}

func (r *fakeFollowerRepo) Upsert(ctx context.Context, s *models.FollowerSnapshot) error {
	for _, existing := range r.snapshots {
		if existing.UserID == s.UserID && existing.Platform == s.Platform && existing.SnapshotDate.Equal(s.SnapshotDate) {
			existing.FollowerCount = s.FollowerCount
			existing.NewFollowers = s.NewFollowers
			return nil
		}
	}
	stored := *s
	r.snapshots = append(r.snapshots, &stored)
	return nil
}

func (r *fakeFollowerRepo) GetLatestBefore(ctx context.Context, userID int64, platform string, before time.Time) (*models.FollowerSnapshot, error) {
	var latest *models.FollowerSnapshot
	for _, s := range r.snapshots {
		if s.UserID == userID && s.Platform == platform && s.SnapshotDate.Before(before) {
			if latest == nil || s.SnapshotDate.After(latest.SnapshotDate) {
				latest = s
			}
		}
	}
	return latest, nil
}

func (r *fakeFollowerRepo) ListRange(ctx context.Context, userID int64, platform string, from time.Time) ([]*models.FollowerSnapshot, error) {
	var result []*models.FollowerSnapshot
	for _, s := range r.snapshots {
		if s.UserID == userID && s.Platform == platform && !s.SnapshotDate.Before(from) {
			result = append(result, s)
		}
	}
	return result, nil
}

func publishedItem(userID int64, platform, platformPostID string) *models.PublishedItem {
	publishedAt := time.Now().Add(-time.Hour)
	return &models.PublishedItem{
		Publication: models.Publication{
			UserID:         userID,
			Platform:       platform,
			PlatformPostID: platformPostID,
			Status:         models.PublicationStatusPublished,
			PublishedAt:    &publishedAt,
		},
		Body: "hello",
	}
}

func TestEngagementRate(t *testing.T) {
	t.Run("basic rate", func(t *testing.T) {
		rate := EngagementRate(&models.MetricSnapshot{
			Impressions: 1000,
			Reactions:   30,
		})
		assert.Equal(t, 3.0, rate)
	})

	t.Run("all interaction counters", func(t *testing.T) {
		rate := EngagementRate(&models.MetricSnapshot{
			Impressions: 200,
			Reactions:   5,
			Comments:    3,
			Shares:      2,
		})
		assert.Equal(t, 5.0, rate)
	})

	t.Run("rounds to two decimals", func(t *testing.T) {
		rate := EngagementRate(&models.MetricSnapshot{
			Impressions: 333,
			Reactions:   10,
		})
		assert.Equal(t, 3.0, rate)
	})

	t.Run("zero impressions is zero", func(t *testing.T) {
		rate := EngagementRate(&models.MetricSnapshot{Reactions: 50})
		assert.Equal(t, 0.0, rate)
	})

	t.Run("nil snapshot is zero", func(t *testing.T) {
		assert.Equal(t, 0.0, EngagementRate(nil))
	})
}

func TestOverviewMeanOfMeans(t *testing.T) {
	ctx := context.Background()

	pubs := &fakeAnalyticsPubRepo{
		fakePubRepo: newFakePubRepo(),
		items: []*models.PublishedItem{
			publishedItem(1, "twitter", "tw-1"),
			publishedItem(1, "linkedin", "li-1"),
		},
	}
	snapshots := &fakeSnapshotRepo{}
	now := time.Now()
	// twitter post has no engagement, linkedin sits at 5%
	snapshots.Create(ctx, &models.MetricSnapshot{
		UserID: 1, Platform: "twitter", PlatformPostID: "tw-1",
		Impressions: 1000, FetchedAt: now,
	})
	snapshots.Create(ctx, &models.MetricSnapshot{
		UserID: 1, Platform: "linkedin", PlatformPostID: "li-1",
		Impressions: 200, Reactions: 10, FetchedAt: now,
	})

	svc := NewAnalyticsService(pubs, snapshots, &fakeFollowerRepo{})

	overview, err := svc.Overview(ctx, 1, 30, "")
	require.NoError(t, err)
	require.Len(t, overview.Platforms, 2)

	// The combined rate averages platform averages, not all posts pooled.
	assert.Equal(t, 2.5, overview.Combined.AvgEngagementRate)
	assert.Equal(t, 2, overview.Combined.PostsCount)
	assert.Equal(t, int64(1200), overview.Combined.TotalImpressions)
}

func TestOverviewSinglePlatform(t *testing.T) {
	ctx := context.Background()

	pubs := &fakeAnalyticsPubRepo{
		fakePubRepo: newFakePubRepo(),
		items:       []*models.PublishedItem{publishedItem(1, "twitter", "tw-1")},
	}
	snapshots := &fakeSnapshotRepo{}
	snapshots.Create(ctx, &models.MetricSnapshot{
		UserID: 1, Platform: "twitter", PlatformPostID: "tw-1",
		Impressions: 1000, Reactions: 30, FetchedAt: time.Now(),
	})

	svc := NewAnalyticsService(pubs, snapshots, &fakeFollowerRepo{})

	overview, err := svc.Overview(ctx, 1, 30, "twitter")
	require.NoError(t, err)
	require.Len(t, overview.Platforms, 1)
	assert.Equal(t, 1, overview.Platforms[0].PostsCount)
	assert.Equal(t, int64(1000), overview.Platforms[0].TotalImpressions)
	assert.Equal(t, 3.0, overview.Platforms[0].AvgEngagementRate)
	assert.Equal(t, 3.0, overview.Combined.AvgEngagementRate)
}

func TestOverviewCountsSnapshotlessPosts(t *testing.T) {
	ctx := context.Background()

	pubs := &fakeAnalyticsPubRepo{
		fakePubRepo: newFakePubRepo(),
		items: []*models.PublishedItem{
			publishedItem(1, "twitter", "tw-1"),
			publishedItem(1, "twitter", "tw-2"),
		},
	}
	snapshots := &fakeSnapshotRepo{}
	snapshots.Create(ctx, &models.MetricSnapshot{
		UserID: 1, Platform: "twitter", PlatformPostID: "tw-1",
		Impressions: 100, Reactions: 10, FetchedAt: time.Now(),
	})

	svc := NewAnalyticsService(pubs, snapshots, &fakeFollowerRepo{})

	overview, err := svc.Overview(ctx, 1, 30, "twitter")
	require.NoError(t, err)
	require.Len(t, overview.Platforms, 1)

	// tw-2 has no snapshot yet; it still counts and drags the average down.
	assert.Equal(t, 2, overview.Platforms[0].PostsCount)
	assert.Equal(t, 5.0, overview.Platforms[0].AvgEngagementRate)
}

func TestPublishedPostsSorting(t *testing.T) {
	ctx := context.Background()

	pubs := &fakeAnalyticsPubRepo{
		fakePubRepo: newFakePubRepo(),
		items: []*models.PublishedItem{
			publishedItem(1, "twitter", "tw-1"),
			publishedItem(1, "twitter", "tw-2"),
		},
	}
	snapshots := &fakeSnapshotRepo{}
	now := time.Now()
	snapshots.Create(ctx, &models.MetricSnapshot{
		UserID: 1, Platform: "twitter", PlatformPostID: "tw-1",
		Impressions: 100, Reactions: 1, FetchedAt: now,
	})
	snapshots.Create(ctx, &models.MetricSnapshot{
		UserID: 1, Platform: "twitter", PlatformPostID: "tw-2",
		Impressions: 50, Reactions: 10, FetchedAt: now,
	})

	svc := NewAnalyticsService(pubs, snapshots, &fakeFollowerRepo{})

	posts, err := svc.PublishedPosts(ctx, 1, "twitter", "engagement", 20, 0)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "tw-2", posts[0].Publication.PlatformPostID)

	posts, err = svc.PublishedPosts(ctx, 1, "twitter", "impressions", 20, 0)
	require.NoError(t, err)
	assert.Equal(t, "tw-1", posts[0].Publication.PlatformPostID)
}

func TestPostDetail(t *testing.T) {
	ctx := context.Background()

	pubs := &fakeAnalyticsPubRepo{
		fakePubRepo: newFakePubRepo(),
		items:       []*models.PublishedItem{publishedItem(1, "twitter", "tw-1")},
	}
	snapshots := &fakeSnapshotRepo{}
	base := time.Now().Add(-2 * time.Hour)
	snapshots.Create(ctx, &models.MetricSnapshot{
		UserID: 1, Platform: "twitter", PlatformPostID: "tw-1",
		Impressions: 100, FetchedAt: base,
	})
	snapshots.Create(ctx, &models.MetricSnapshot{
		UserID: 1, Platform: "twitter", PlatformPostID: "tw-1",
		Impressions: 250, FetchedAt: base.Add(time.Hour),
	})

	svc := NewAnalyticsService(pubs, snapshots, &fakeFollowerRepo{})

	detail, err := svc.PostDetail(ctx, 1, "twitter", "tw-1", 0, nil)
	require.NoError(t, err)
	require.NotNil(t, detail.Latest)
	assert.Equal(t, int64(250), detail.Latest.Impressions)
	assert.Len(t, detail.History, 2)

	_, err = svc.PostDetail(ctx, 1, "twitter", "missing", 0, nil)
	var notFound *apperr.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestFollowerGrowth(t *testing.T) {
	ctx := context.Background()

	followers := &fakeFollowerRepo{}
	day := time.Now().UTC().Truncate(24 * time.Hour)
	counts := []int64{100, 105, 103, 110}
	for i, count := range counts {
		followers.Upsert(ctx, &models.FollowerSnapshot{
			UserID:        1,
			Platform:      "twitter",
			SnapshotDate:  day.AddDate(0, 0, i-len(counts)),
			FollowerCount: count,
		})
	}

	svc := NewAnalyticsService(&fakeAnalyticsPubRepo{fakePubRepo: newFakePubRepo()}, &fakeSnapshotRepo{}, followers)

	growth, err := svc.FollowerGrowth(ctx, 1, "twitter", 30)
	require.NoError(t, err)
	assert.Equal(t, int64(100), growth.StartCount)
	assert.Equal(t, int64(110), growth.CurrentCount)
	assert.Equal(t, int64(10), growth.NetGrowth)
	assert.Equal(t, 10.0, growth.GrowthRate)
	assert.Len(t, growth.Daily, 4)
}
