package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/postpulse/postpulse/internal/models"
	"github.com/postpulse/postpulse/internal/repository"
	"github.com/postpulse/postpulse/internal/service"
)

type TokenRefreshJob struct {
	cr repository.ConnectionRepository
	cs service.ConnectionService
}

func NewTokenRefreshJob(cr repository.ConnectionRepository, cs service.ConnectionService) *TokenRefreshJob {
	return &TokenRefreshJob{
		cr: cr,
		cs: cs,
	}
}

// RefreshTokens rotates credentials that expire in the next half hour or have
// already lapsed.
func (j *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	currentTime := time.Now()
	timeIn30Minutes := currentTime.Add(30 * time.Minute)

	connections, err := j.cr.ListExpiring(ctx, currentTime, timeIn30Minutes)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, conn := range connections {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(conn *models.Connection) {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := j.cs.RefreshConnection(ctx, conn); err != nil {
				slog.Info("unable to refresh tokens", "platform", conn.Platform, "connection_id", conn.ID)
			}
		}(conn)
	}

	wg.Wait()
}
