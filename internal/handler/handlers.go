package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"LexiLoom/internal/worker"
	"LexiLoom/pkg/cache"
	"LexiLoom/pkg/config"
	"LexiLoom/pkg/middleware"
	"LexiLoom/pkg/storage"
)

type Handlers struct {
	db     *gorm.DB
	worker *worker.Worker
	store  storage.Store
	urls   *cache.Coalescer
	cfg    *config.Config
}

// NewHandlers wires the HTTP surface. c backs the presign cache; nil
// falls back to process memory.
func NewHandlers(db *gorm.DB, w *worker.Worker, store storage.Store, c cache.Cache, cfg *config.Config) *Handlers {
	return &Handlers{db: db, worker: w, store: store, urls: cache.NewCoalescer(c), cfg: cfg}
}

func (h *Handlers) Register(engine *gin.Engine) {
	engine.Use(middleware.CORS(h.cfg.CORSAllowedOrigins))

	r := engine.Group(h.cfg.APIPrefix)

	h.registerSystemRoutes(r)

	audio := r.Group("audio")
	{
		audio.POST("/create", middleware.RateLimiter(middleware.RateLimiterConfig{
			Rate:  h.cfg.SubmitRate,
			Store: middleware.NewLimiterStore(h.cfg.RedisAddr, h.cfg.RedisPassword, h.cfg.RedisDB),
		}), h.handleAudioCreate)
		audio.POST("/refresh-url", h.handleAudioRefreshURL)
	}

	r.GET("/tokens", h.handleTokenBalance)
	r.GET("/items/:id", h.handleGetItem)
	r.DELETE("/items/:id", h.handleDeleteItem)
}

func (h *Handlers) registerSystemRoutes(r *gin.RouterGroup) {
	system := r.Group("system")
	{
		system.GET("/health", h.HealthCheck)
	}
}

// bearerToken pulls the raw JWT out of the Authorization header for the
// GET/DELETE routes; the POST routes carry it in the body instead.
func bearerToken(c *gin.Context) string {
	hdr := c.GetHeader("Authorization")
	if len(hdr) > 7 && strings.EqualFold(hdr[:7], "Bearer ") {
		return strings.TrimSpace(hdr[7:])
	}
	return ""
}
