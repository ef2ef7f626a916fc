package worker

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"LexiLoom/internal/models"
	"LexiLoom/pkg/logger"
	"LexiLoom/pkg/metrics"
	"LexiLoom/pkg/storage"
	"LexiLoom/pkg/tts"
)

// Job is the payload carried across the fire-and-forget dispatch
// boundary. No caller consumes a response from the worker; it speaks
// only through the records it mutates.
type Job struct {
	JobID         uint   `json:"-"`
	UserID        uint   `json:"user_id"`
	ContentItemID uint   `json:"rl_item_id"`
	Text          string `json:"r_item"`
}

type Config struct {
	PublicACL    bool
	SignedURLTTL time.Duration
	TokenCost    int64

	// JobTimeout bounds one job end to end. Keep it at or below the
	// sweeper's lock TTL so a stalled job cannot outlive its own lock.
	// Zero means unbounded.
	JobTimeout time.Duration
}

// Worker executes one audio generation job per invocation:
// Reserved → Synthesizing → Persisted → Linked → Debited → Done.
// Failures after the reserve compensate only what this job itself
// wrote: the sentinel before the link, its own artifact UID after.
type Worker struct {
	db    *gorm.DB
	store storage.Store
	synth tts.SpeechSynthesizer
	cfg   Config
}

func New(db *gorm.DB, store storage.Store, synth tts.SpeechSynthesizer, cfg Config) *Worker {
	return &Worker{db: db, store: store, synth: synth, cfg: cfg}
}

// Dispatch starts the job in the background and returns immediately.
func (w *Worker) Dispatch(job Job) {
	metrics.JobsStarted.Inc()
	go func() {
		ctx := context.Background()
		cancel := context.CancelFunc(func() {})
		if w.cfg.JobTimeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, w.cfg.JobTimeout)
		}
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("audio job panicked",
					zap.Uint("rl_item_id", job.ContentItemID), zap.Any("panic", r))
				w.releaseLock(job, "panic", fmt.Errorf("panic: %v", r))
			}
		}()
		w.Run(ctx, job)
	}()
}

// Run executes the job end to end. Exported so tests can drive it
// synchronously.
func (w *Worker) Run(ctx context.Context, job Job) {
	w.setJobStatus(job.JobID, models.JobRunning, "")

	// Reserved: take the lock other submissions observe. Losing the
	// conditional update means another job got here first; abort with
	// no side effects and leave the winner's lock alone.
	ok, err := models.ReserveAudio(w.db, job.ContentItemID)
	if err != nil {
		w.fail(job, "reserve", err)
		return
	}
	if !ok {
		logger.Warn("audio job lost the reserve race", zap.Uint("rl_item_id", job.ContentItemID))
		w.setJobStatus(job.JobID, models.JobFailed, "item already reserved or linked")
		metrics.JobsFailed.WithLabelValues("reserve").Inc()
		return
	}

	// Synthesizing
	res, err := w.synth.Synthesize(ctx, job.Text)
	if err != nil {
		w.releaseLock(job, "synthesize", err)
		return
	}

	// Persisted: artifact key is derived from the fresh artifact UID.
	audioUID := uuid.New().String()
	key := fmt.Sprintf("files/%s.%s", audioUID, res.Format)
	if err := w.store.Write(ctx, key, bytes.NewReader(res.Audio), int64(len(res.Audio)), contentType(res.Format)); err != nil {
		w.releaseLock(job, "persist", err)
		return
	}

	url, err := w.retrievableURL(ctx, key)
	if err != nil {
		w.releaseLock(job, "sign", err)
		return
	}

	// Linked: artifact row first, then swap the sentinel for the real UID.
	item := &models.AudioItem{UID: audioUID, StorageKey: key, PublicURL: url}
	if err := w.db.Create(item).Error; err != nil {
		w.releaseLock(job, "link", err)
		return
	}
	if err := models.LinkAudio(w.db, job.ContentItemID, audioUID); err != nil {
		w.releaseLock(job, "link", err)
		return
	}

	// Debited
	if err := models.DebitTokens(w.db, job.UserID, w.cfg.TokenCost); err != nil {
		w.unlink(job, audioUID, "debit", err)
		return
	}

	// Done
	w.setJobStatus(job.JobID, models.JobSucceeded, "")
	metrics.JobsSucceeded.Inc()
	logger.Info("audio job done",
		zap.Uint("rl_item_id", job.ContentItemID), zap.String("l_item_uid", audioUID))
}

func (w *Worker) retrievableURL(ctx context.Context, key string) (string, error) {
	if w.cfg.PublicACL {
		return w.store.PublicURL(key), nil
	}
	return w.store.PresignedURL(ctx, key, w.cfg.SignedURLTTL)
}

// releaseLock compensates a failure before the link: clear the sentinel
// back to NULL so the user can resubmit. The clear is conditional, so a
// lock the sweeper already reaped and a newer job re-took is left
// alone. Earlier partial side effects (an uploaded but unlinked
// artifact) stay in place.
func (w *Worker) releaseLock(job Job, stage string, cause error) {
	logger.Error("audio job failed",
		zap.Uint("rl_item_id", job.ContentItemID), zap.String("stage", stage), zap.Error(cause))
	if err := models.ReleaseAudioLock(w.db, job.ContentItemID); err != nil {
		logger.Error("audio job rollback failed",
			zap.Uint("rl_item_id", job.ContentItemID), zap.Error(err))
	}
	w.setJobStatus(job.JobID, models.JobFailed, cause.Error())
	metrics.JobsFailed.WithLabelValues(stage).Inc()
}

// unlink compensates a failure after the link: clear the reference only
// while it still carries this job's own artifact UID, never one some
// other job wrote.
func (w *Worker) unlink(job Job, audioUID, stage string, cause error) {
	logger.Error("audio job failed",
		zap.Uint("rl_item_id", job.ContentItemID), zap.String("stage", stage), zap.Error(cause))
	if err := models.UnlinkAudio(w.db, job.ContentItemID, audioUID); err != nil {
		logger.Error("audio job rollback failed",
			zap.Uint("rl_item_id", job.ContentItemID), zap.Error(err))
	}
	w.setJobStatus(job.JobID, models.JobFailed, cause.Error())
	metrics.JobsFailed.WithLabelValues(stage).Inc()
}

// fail records a failure from before the lock was taken; there is
// nothing to compensate.
func (w *Worker) fail(job Job, stage string, cause error) {
	logger.Error("audio job failed",
		zap.Uint("rl_item_id", job.ContentItemID), zap.String("stage", stage), zap.Error(cause))
	w.setJobStatus(job.JobID, models.JobFailed, cause.Error())
	metrics.JobsFailed.WithLabelValues(stage).Inc()
}

func (w *Worker) setJobStatus(jobID uint, status, errMsg string) {
	if jobID == 0 {
		return
	}
	updates := map[string]interface{}{"status": status}
	if errMsg != "" {
		updates["error"] = errMsg
	}
	if err := w.db.Model(&models.AudioJob{}).Where("id = ?", jobID).Updates(updates).Error; err != nil {
		logger.Warn("update job status failed", zap.Uint("job_id", jobID), zap.Error(err))
	}
}

func contentType(format string) string {
	switch format {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "ogg", "opus":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}
