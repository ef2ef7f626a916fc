package main

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	handlers "LexiLoom/internal/handler"
	"LexiLoom/internal/models"
	"LexiLoom/internal/worker"
	"LexiLoom/pkg/cache"
	"LexiLoom/pkg/config"
	"LexiLoom/pkg/database"
	"LexiLoom/pkg/logger"
	"LexiLoom/pkg/scheduler"
	"LexiLoom/pkg/storage"
	"LexiLoom/pkg/tts"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg := config.GlobalConfig

	if err := logger.Init(cfg.Log); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	db, err := database.Open(cfg.DBDriver, cfg.DSN)
	if err != nil {
		logger.Error("open database failed", zap.Error(err))
		return
	}
	if err := models.Migrate(db); err != nil {
		logger.Error("migrate failed", zap.Error(err))
		return
	}

	var store storage.Store
	if cfg.MinioEndpoint != "" {
		store, err = storage.NewMinioStore(storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			BaseURL:   cfg.MinioPublicBase,
		})
		if err != nil {
			logger.Error("init object store failed", zap.Error(err))
			return
		}
	} else {
		// No object store configured: keep artifacts in memory. Only
		// useful for local development.
		logger.Warn("MINIO_ENDPOINT not set, using in-memory artifact store")
		store = storage.NewMemoryStore()
	}

	synth := tts.NewOpenAISynthesizer(tts.OpenAIConfig{
		APIKey:  cfg.TTSAPIKey,
		BaseURL: cfg.TTSBaseURL,
		Model:   cfg.TTSModel,
		Voice:   cfg.TTSVoice,
		Format:  cfg.TTSFormat,
	})

	w := worker.New(db, store, synth, worker.Config{
		PublicACL:    cfg.StoragePublic,
		SignedURLTTL: cfg.SignedURLTTL(),
		TokenCost:    cfg.AudioTokenCost,
		JobTimeout:   time.Duration(cfg.LockTTL) * time.Second,
	})

	appCache, err := cache.New(cache.Config{
		Type: cfg.CacheType,
		Redis: cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: cfg.RedisPoolSize,
		},
	})
	if err != nil {
		logger.Warn("cache backend unavailable, using process memory", zap.Error(err))
		appCache = nil
	}

	cron := scheduler.NewCron(nil)
	sweeper := worker.NewSweeper(db, time.Duration(cfg.LockTTL)*time.Second)
	if _, err := cron.Add(cfg.SweepSchedule, sweeper); err != nil {
		logger.Error("schedule lock sweep failed", zap.Error(err))
		return
	}
	cron.Start()
	defer cron.Stop()

	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.NewHandlers(db, w, store, appCache, cfg).Register(engine)

	logger.Info("server listening", zap.String("addr", cfg.Addr))
	if err := engine.Run(cfg.Addr); err != nil {
		logger.Error("server stopped", zap.Error(err))
	}
}
