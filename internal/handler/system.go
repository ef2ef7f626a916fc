package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"LexiLoom/internal/models"
	"LexiLoom/pkg/auth"
	"LexiLoom/pkg/response"
)

// HealthCheck pings the database.
func (h *Handlers) HealthCheck(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database connection failed"})
		return
	}
	if err := sqlDB.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database ping failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// handleTokenBalance returns the caller's credit balance so the client
// can render remaining tokens before submitting.
func (h *Handlers) handleTokenBalance(c *gin.Context) {
	userID, err := auth.VerifyToken(bearerToken(c), h.cfg.JWTSecret)
	if err != nil {
		response.FailWithStatus(c, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	var balance models.TokenBalance
	if err := h.db.First(&balance, "user_id = ?", userID).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		response.FailWithStatus(c, http.StatusInternalServerError, "internal error")
		return
	}
	response.Success(c, "token balance", gin.H{"free": balance.Free, "paid": balance.Paid})
}

// handleGetItem reports an item's audio state. This is what the client
// observer polls while a job is in flight.
func (h *Handlers) handleGetItem(c *gin.Context) {
	userID, err := auth.VerifyToken(bearerToken(c), h.cfg.JWTSecret)
	if err != nil {
		response.FailWithStatus(c, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	var item models.ContentItem
	if err := h.db.First(&item, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.FailWithStatus(c, http.StatusNotFound, "rl_item not found")
			return
		}
		response.FailWithStatus(c, http.StatusInternalServerError, "internal error")
		return
	}
	if item.UserID != userID {
		response.FailWithStatus(c, http.StatusUnauthorized, "not the item owner")
		return
	}

	status := "none"
	uid := ""
	switch state, u := item.AudioState(); state {
	case models.AudioPending:
		status = "processing"
	case models.AudioReady:
		status = "ready"
		uid = u
	}
	c.JSON(http.StatusOK, gin.H{"rl_item_id": item.ID, "status": status, "l_item_uid": uid})
}

// handleDeleteItem removes a content item: hard delete when no audio
// exists, otherwise a delete-requested flag so an in-flight job keeps
// its row.
func (h *Handlers) handleDeleteItem(c *gin.Context) {
	userID, err := auth.VerifyToken(bearerToken(c), h.cfg.JWTSecret)
	if err != nil {
		response.FailWithStatus(c, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	var item models.ContentItem
	if err := h.db.First(&item, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.FailWithStatus(c, http.StatusNotFound, "rl_item not found")
			return
		}
		response.FailWithStatus(c, http.StatusInternalServerError, "internal error")
		return
	}
	if item.UserID != userID {
		response.FailWithStatus(c, http.StatusUnauthorized, "not the item owner")
		return
	}

	if err := models.DeleteContentItem(h.db, &item); err != nil {
		response.FailWithStatus(c, http.StatusInternalServerError, "internal error")
		return
	}
	response.Success(c, "rl_item deleted", nil)
}
