package storage

import (
	"context"
	"time"

	"github.com/animeswipe/animeswipe/internal/log"
)

// CleanupManager periodically deletes pending logins that were never completed
type CleanupManager struct {
	store    LoginRequestStore
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewCleanupManager creates a cleanup manager that runs every interval and
// removes login requests older than maxAge.
func NewCleanupManager(store LoginRequestStore, interval, maxAge time.Duration) *CleanupManager {
	return &CleanupManager{
		store:    store,
		interval: interval,
		maxAge:   maxAge,
		now:      time.Now,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the cleanup loop in a goroutine
func (cm *CleanupManager) Start(ctx context.Context) {
	log.LogInfoWithFields("cleanup", "Starting login request cleanup manager", map[string]any{
		"interval": cm.interval.String(),
		"maxAge":   cm.maxAge.String(),
	})

	go cm.run(ctx)
}

// Stop gracefully stops the cleanup loop
func (cm *CleanupManager) Stop() {
	log.LogInfo("Stopping login request cleanup manager...")
	close(cm.stopChan)
	<-cm.doneChan
	log.LogInfo("Login request cleanup manager stopped")
}

func (cm *CleanupManager) run(ctx context.Context) {
	defer close(cm.doneChan)

	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.cleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.cleanup(ctx)
		case <-cm.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (cm *CleanupManager) cleanup(ctx context.Context) {
	count, err := cm.store.CleanupExpiredLoginRequests(ctx, cm.now().Add(-cm.maxAge))
	if err != nil {
		log.LogErrorWithFields("cleanup", "Failed to cleanup expired login requests", map[string]any{
			"error": err.Error(),
		})
		return
	}

	if count > 0 {
		log.LogInfoWithFields("cleanup", "Cleaned up expired login requests", map[string]any{
			"count": count,
		})
	}
}
