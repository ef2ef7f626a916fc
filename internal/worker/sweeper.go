package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"LexiLoom/internal/models"
	"LexiLoom/pkg/logger"
	"LexiLoom/pkg/metrics"
)

// Sweeper reconciles orphaned locks: a dispatch that dies before the
// worker's own rollback runs leaves the sentinel set forever, which the
// submission endpoint would then refuse with 409 indefinitely. The
// sweep clears locks older than the TTL and fails their job records.
type Sweeper struct {
	db  *gorm.DB
	ttl time.Duration
}

func NewSweeper(db *gorm.DB, ttl time.Duration) *Sweeper {
	return &Sweeper{db: db, ttl: ttl}
}

// Run clears every lock older than the TTL. Reserve bumps the item's
// updated_at, so that column is the lock's age.
func (s *Sweeper) Run(ctx context.Context) {
	cutoff := time.Now().Add(-s.ttl)

	var items []models.ContentItem
	err := s.db.WithContext(ctx).
		Where("audio_uid = ? AND updated_at < ?", models.PendingAudioUID, cutoff).
		Find(&items).Error
	if err != nil {
		logger.Error("lock sweep query failed", zap.Error(err))
		return
	}

	for _, item := range items {
		if err := models.ReleaseAudioLock(s.db, item.ID); err != nil {
			logger.Error("lock sweep release failed", zap.Uint("rl_item_id", item.ID), zap.Error(err))
			continue
		}
		s.failStaleJobs(ctx, item.ID)
		metrics.LocksSwept.Inc()
		logger.Warn("cleared orphaned audio lock", zap.Uint("rl_item_id", item.ID))
	}
}

func (s *Sweeper) failStaleJobs(ctx context.Context, contentItemID uint) {
	err := s.db.WithContext(ctx).Model(&models.AudioJob{}).
		Where("content_item_id = ? AND status IN ?", contentItemID, []string{models.JobPending, models.JobRunning}).
		Updates(map[string]interface{}{"status": models.JobFailed, "error": "lock swept after timeout"}).Error
	if err != nil {
		logger.Warn("failing stale jobs failed", zap.Uint("rl_item_id", contentItemID), zap.Error(err))
	}
}
