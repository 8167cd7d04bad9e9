package service

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/postpulse/postpulse/internal/apperr"
	"github.com/postpulse/postpulse/internal/models"
	"github.com/postpulse/postpulse/internal/repository"
	"github.com/postpulse/postpulse/internal/transfer"
)

const defaultWindowDays = 30

type AnalyticsService interface {
	Overview(ctx context.Context, userID int64, days int, platform string) (*transfer.Overview, error)
	PublishedPosts(ctx context.Context, userID int64, platform, sortBy string, limit, offset int) ([]*transfer.PublishedPost, error)
	PostDetail(ctx context.Context, userID int64, platform, platformPostID string, limit int, since *time.Time) (*transfer.PostDetail, error)
	FollowerGrowth(ctx context.Context, userID int64, platform string, days int) (*transfer.FollowerGrowth, error)
}

type analyticsService struct {
	pub repository.PublicationRepository
	sr  repository.SnapshotRepository
	fr  repository.FollowerRepository
}

func NewAnalyticsService(pub repository.PublicationRepository, sr repository.SnapshotRepository, fr repository.FollowerRepository) AnalyticsService {
	return &analyticsService{pub: pub, sr: sr, fr: fr}
}

// EngagementRate is (reactions + comments + shares) / impressions as a percent,
// rounded to two decimals. Zero impressions means zero rate, never a division.
func EngagementRate(s *models.MetricSnapshot) float64 {
	if s == nil || s.Impressions <= 0 {
		return 0
	}
	rate := float64(s.Reactions+s.Comments+s.Shares) / float64(s.Impressions) * 100
	return math.Round(rate*100) / 100
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clampDays(days int) int {
	if days <= 0 || days > 365 {
		return defaultWindowDays
	}
	return days
}

// Overview aggregates the latest snapshot of every post published in the
// window. A post with no snapshot yet still counts, contributing zeros. The
// combined rate is the mean of the per-platform averages so a high-volume
// platform cannot drown out the others.
func (s *analyticsService) Overview(ctx context.Context, userID int64, days int, platform string) (*transfer.Overview, error) {
	days = clampDays(days)
	since := time.Now().AddDate(0, 0, -days)

	items, err := s.pub.ListPublishedInWindow(ctx, userID, since, platform)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "list published", Err: err}
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.PlatformPostID != "" {
			ids = append(ids, item.PlatformPostID)
		}
	}
	latest, err := s.sr.GetLatestBatch(ctx, userID, ids)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "load snapshots", Err: err}
	}

	type bucket struct {
		overview *transfer.PlatformOverview
		rates    []float64
	}
	buckets := make(map[string]*bucket)
	order := []string{}

	for _, item := range items {
		b, ok := buckets[item.Platform]
		if !ok {
			b = &bucket{overview: &transfer.PlatformOverview{Platform: item.Platform}}
			buckets[item.Platform] = b
			order = append(order, item.Platform)
		}

		snapshot := latest[item.PlatformPostID]
		b.overview.PostsCount++
		b.rates = append(b.rates, EngagementRate(snapshot))
		if snapshot != nil {
			b.overview.TotalImpressions += snapshot.Impressions
			b.overview.TotalReach += snapshot.UniqueReach
			b.overview.TotalReactions += snapshot.Reactions
			b.overview.TotalComments += snapshot.Comments
			b.overview.TotalShares += snapshot.Shares
			b.overview.TotalQuotes += snapshot.Quotes
			b.overview.TotalBookmarks += snapshot.Bookmarks
		}
	}

	sort.Strings(order)

	combined := &transfer.CombinedOverview{}
	platformAverages := make([]float64, 0, len(order))
	overviews := make([]*transfer.PlatformOverview, 0, len(order))

	for _, name := range order {
		b := buckets[name]
		var sum float64
		for _, rate := range b.rates {
			sum += rate
		}
		if len(b.rates) > 0 {
			b.overview.AvgEngagementRate = round2(sum / float64(len(b.rates)))
		}
		platformAverages = append(platformAverages, b.overview.AvgEngagementRate)
		overviews = append(overviews, b.overview)

		combined.PostsCount += b.overview.PostsCount
		combined.TotalImpressions += b.overview.TotalImpressions
		combined.TotalReach += b.overview.TotalReach
		combined.TotalReactions += b.overview.TotalReactions
		combined.TotalComments += b.overview.TotalComments
		combined.TotalShares += b.overview.TotalShares
		combined.TotalQuotes += b.overview.TotalQuotes
		combined.TotalBookmarks += b.overview.TotalBookmarks
	}

	if len(platformAverages) > 0 {
		var sum float64
		for _, avg := range platformAverages {
			sum += avg
		}
		combined.AvgEngagementRate = round2(sum / float64(len(platformAverages)))
	}

	return &transfer.Overview{
		WindowDays: days,
		Platforms:  overviews,
		Combined:   combined,
	}, nil
}

func (s *analyticsService) PublishedPosts(ctx context.Context, userID int64, platform, sortBy string, limit, offset int) ([]*transfer.PublishedPost, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	items, err := s.pub.ListPublishedByUser(ctx, userID, platform, limit, offset)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "list published", Err: err}
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		if item.PlatformPostID != "" {
			ids = append(ids, item.PlatformPostID)
		}
	}
	latest, err := s.sr.GetLatestBatch(ctx, userID, ids)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "load snapshots", Err: err}
	}

	posts := make([]*transfer.PublishedPost, 0, len(items))
	for _, item := range items {
		snapshot := latest[item.PlatformPostID]
		posts = append(posts, &transfer.PublishedPost{
			Publication:    &item.Publication,
			Body:           item.Body,
			Snapshot:       snapshot,
			EngagementRate: EngagementRate(snapshot),
		})
	}

	switch sortBy {
	case "impressions":
		sort.SliceStable(posts, func(i, j int) bool {
			var a, b int64
			if posts[i].Snapshot != nil {
				a = posts[i].Snapshot.Impressions
			}
			if posts[j].Snapshot != nil {
				b = posts[j].Snapshot.Impressions
			}
			return a > b
		})
	case "engagement":
		sort.SliceStable(posts, func(i, j int) bool {
			return posts[i].EngagementRate > posts[j].EngagementRate
		})
	}

	return posts, nil
}

func (s *analyticsService) PostDetail(ctx context.Context, userID int64, platform, platformPostID string, limit int, since *time.Time) (*transfer.PostDetail, error) {
	publication, err := s.pub.GetPublished(ctx, userID, platform, platformPostID)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "get publication", Err: err}
	}
	if publication == nil {
		return nil, &apperr.NotFoundError{Resource: "published post"}
	}

	latest, err := s.sr.GetLatest(ctx, userID, platform, platformPostID)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "get snapshot", Err: err}
	}

	history, err := s.sr.ListForPost(ctx, userID, platform, platformPostID, limit, since)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "list snapshots", Err: err}
	}

	return &transfer.PostDetail{
		Publication: publication,
		Latest:      latest,
		History:     history,
	}, nil
}

// FollowerGrowth reads the daily snapshot series for the window. Start is the
// earliest day in range and current the latest; growth rate is net growth over
// the start count.
func (s *analyticsService) FollowerGrowth(ctx context.Context, userID int64, platform string, days int) (*transfer.FollowerGrowth, error) {
	days = clampDays(days)
	from := time.Now().AddDate(0, 0, -days)

	snapshots, err := s.fr.ListRange(ctx, userID, platform, from)
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "list follower snapshots", Err: err}
	}

	growth := &transfer.FollowerGrowth{
		Platform:   platform,
		WindowDays: days,
		Daily:      make([]*transfer.FollowerDay, 0, len(snapshots)),
	}

	for _, snapshot := range snapshots {
		growth.Daily = append(growth.Daily, &transfer.FollowerDay{
			Date:          snapshot.SnapshotDate.Format("2006-01-02"),
			FollowerCount: snapshot.FollowerCount,
			NewFollowers:  snapshot.NewFollowers,
		})
	}

	if len(snapshots) > 0 {
		growth.StartCount = snapshots[0].FollowerCount
		growth.CurrentCount = snapshots[len(snapshots)-1].FollowerCount
		growth.NetGrowth = growth.CurrentCount - growth.StartCount
		if growth.StartCount > 0 {
			growth.GrowthRate = round2(float64(growth.NetGrowth) / float64(growth.StartCount) * 100)
		}
	}

	return growth, nil
}
