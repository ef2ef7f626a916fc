package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"LexiLoom/internal/models"
	"LexiLoom/internal/worker"
	"LexiLoom/pkg/auth"
	"LexiLoom/pkg/cache"
	apperrors "LexiLoom/pkg/errors"
	"LexiLoom/pkg/logger"
	"LexiLoom/pkg/metrics"
	"LexiLoom/pkg/response"
)

// handleAudioCreate validates a generation request and dispatches the
// job without waiting for it. The sentinel itself is set by the worker,
// so a narrow race between two submissions passing the state check
// remains; the worker's conditional reserve makes the loser abort
// without side effects.
func (h *Handlers) handleAudioCreate(c *gin.Context) {
	var req struct {
		Token         string `json:"jwt_token"`
		ContentItemID uint   `json:"rl_item_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ContentItemID == 0 {
		response.FailWithStatus(c, http.StatusBadRequest, "rl_item_id is required")
		return
	}

	userID, err := auth.VerifyToken(req.Token, h.cfg.JWTSecret)
	if err != nil {
		metrics.SubmissionsRejected.WithLabelValues("auth").Inc()
		response.FailWithStatus(c, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	var item models.ContentItem
	if err := h.db.First(&item, req.ContentItemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.FailWithStatus(c, http.StatusBadRequest, "rl_item not found")
			return
		}
		logger.Error("fetch rl_item failed", zap.Uint("rl_item_id", req.ContentItemID), zap.Error(err))
		response.FailWithStatus(c, http.StatusInternalServerError, "internal error")
		return
	}
	if item.UserID != userID {
		metrics.SubmissionsRejected.WithLabelValues("ownership").Inc()
		response.FailWithStatus(c, http.StatusUnauthorized, "not the item owner")
		return
	}

	switch state, _ := item.AudioState(); state {
	case models.AudioPending:
		metrics.SubmissionsRejected.WithLabelValues("in_progress").Inc()
		response.FailWithStatus(c, http.StatusConflict, "audio creation already in progress")
		return
	case models.AudioReady:
		metrics.SubmissionsRejected.WithLabelValues("exists").Inc()
		response.FailWithStatus(c, http.StatusConflict, "l_item already exists")
		return
	}

	var balance models.TokenBalance
	if err := h.db.First(&balance, "user_id = ?", userID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("fetch token balance failed", zap.Uint("user_id", userID), zap.Error(err))
		response.FailWithStatus(c, http.StatusInternalServerError, "internal error")
		return
	}
	if balance.Total() < h.cfg.AudioTokenCost {
		metrics.SubmissionsRejected.WithLabelValues("balance").Inc()
		response.FailWithStatus(c, http.StatusPaymentRequired, "insufficient tokens")
		return
	}

	job := models.AudioJob{ContentItemID: item.ID, UserID: userID, Status: models.JobPending}
	if err := h.db.Create(&job).Error; err != nil {
		logger.Error("create job record failed", zap.Uint("rl_item_id", item.ID), zap.Error(err))
		response.FailWithStatus(c, http.StatusInternalServerError, "internal error")
		return
	}

	h.worker.Dispatch(worker.Job{
		JobID:         job.ID,
		UserID:        userID,
		ContentItemID: item.ID,
		Text:          item.Text,
	})

	c.JSON(http.StatusOK, gin.H{"status": "processing", "rl_item_id": item.ID})
}

// handleAudioRefreshURL re-derives a fresh download URL for an existing
// artifact. Any validly authenticated caller may refresh any artifact;
// the refreshed URL is not persisted server-side.
func (h *Handlers) handleAudioRefreshURL(c *gin.Context) {
	var req struct {
		Token    string `json:"jwt_token"`
		AudioUID string `json:"l_item_uid"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.AudioUID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "l_item_uid is required"})
		return
	}

	if _, err := auth.VerifyToken(req.Token, h.cfg.JWTSecret); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "invalid or expired token"})
		return
	}

	url, err := h.artifactURL(c.Request.Context(), req.AudioUID)
	if err != nil {
		status := apperrors.GetCode(err)
		if status == 0 {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"ok": false, "error": apperrors.GetMessage(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "public_url": url})
}

// artifactURL resolves a retrievable URL for the artifact, preferring
// the stored public URL on public buckets and presigning otherwise.
// Failures come back as coded errors the handler maps to HTTP statuses.
func (h *Handlers) artifactURL(ctx context.Context, audioUID string) (string, error) {
	var item models.AudioItem
	if err := h.db.First(&item, "uid = ?", audioUID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperrors.WithCode(apperrors.CodeNotFound, "l_item not found")
		}
		logger.Error("fetch l_item failed", zap.String("l_item_uid", audioUID), zap.Error(err))
		return "", apperrors.WithCode(apperrors.CodeInternal, "internal error")
	}
	if item.Deleted {
		return "", apperrors.WithCode(apperrors.CodeGone, "l_item deleted")
	}

	if h.cfg.StoragePublic && item.PublicURL != "" {
		return item.PublicURL, nil
	}
	if item.StorageKey == "" {
		// Rows written before key tracking carry only the URL.
		if item.PublicURL != "" {
			return item.PublicURL, nil
		}
		return "", apperrors.WithCode(apperrors.CodeBadRequest, "no storage key recorded")
	}

	// Presigns for the same artifact are coalesced and reused for most
	// of their validity; nothing is persisted.
	v, err := h.urls.GetOrFetch(ctx, "presign:"+audioUID, func(ctx context.Context) (cache.Fetch, error) {
		url, err := h.store.PresignedURL(ctx, item.StorageKey, h.cfg.SignedURLTTL())
		if err != nil {
			return cache.Fetch{}, err
		}
		return cache.Fetch{Value: url, TTL: presignCacheTTL(h.cfg.SignedURLTTL())}, nil
	})
	if err != nil {
		logger.Error("presign failed", zap.String("l_item_uid", audioUID), zap.Error(err))
		return "", apperrors.WithCode(apperrors.CodeInternal, "could not refresh url")
	}
	return v.(string), nil
}

// presignCacheTTL keeps a signed URL cached for most of its validity,
// with a margin so no caller receives a URL about to expire.
func presignCacheTTL(expiry time.Duration) time.Duration {
	const margin = time.Minute
	if expiry <= 2*margin {
		return expiry / 2
	}
	return expiry - margin
}
