package config

import (
	"log"
	"os"
	"strings"
	"time"

	"LexiLoom/pkg/logger"
	"LexiLoom/pkg/util"
)

type Config struct {
	Addr      string `env:"ADDR"`
	Mode      string `env:"MODE"`
	APIPrefix string `env:"API_PREFIX"`
	DBDriver  string `env:"DB_DRIVER"`
	DSN       string `env:"DSN"`
	Log       logger.LogConfig

	// Credential verification
	JWTSecret string `env:"JWT_SECRET"`

	// Speech synthesis gateway
	TTSAPIKey  string `env:"TTS_API_KEY"`
	TTSBaseURL string `env:"TTS_BASE_URL"`
	TTSModel   string `env:"TTS_MODEL"`
	TTSVoice   string `env:"TTS_VOICE"`
	TTSFormat  string `env:"TTS_FORMAT"`

	// Artifact store
	MinioEndpoint   string `env:"MINIO_ENDPOINT"`
	MinioAccessKey  string `env:"MINIO_ACCESS_KEY"`
	MinioSecretKey  string `env:"MINIO_SECRET_KEY"`
	MinioBucket     string `env:"MINIO_BUCKET"`
	MinioUseSSL     bool   `env:"MINIO_USE_SSL"`
	MinioPublicBase string `env:"MINIO_PUBLIC_BASE"`
	StoragePublic   bool   `env:"STORAGE_PUBLIC_ACL"`
	SignedURLExpiry int64  `env:"SIGNED_URL_EXPIRY_SECONDS"`

	// Token ledger
	AudioTokenCost int64 `env:"AUDIO_TOKEN_COST"`

	// Cache and rate-limit backend. Redis is shared by both when
	// configured; otherwise everything stays in process memory.
	CacheType     string `env:"CACHE_TYPE"` // "local" or "redis"
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"`
	RedisPoolSize int    `env:"REDIS_POOL_SIZE"`

	// HTTP surface
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS"`
	SubmitRate         string   `env:"SUBMIT_RATE"` // e.g. "10-M"

	// Orphaned lock reconciliation
	SweepSchedule string `env:"SWEEP_SCHEDULE"` // cron expression
	LockTTL       int64  `env:"LOCK_TTL_SECONDS"`
}

var GlobalConfig *Config

func Load() error {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	if err := util.LoadEnv(env); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	GlobalConfig = &Config{
		Addr:      util.GetEnvDefault("ADDR", ":8080"),
		Mode:      util.GetEnv("MODE"),
		APIPrefix: util.GetEnvDefault("API_PREFIX", "/api"),
		DBDriver:  util.GetEnvDefault("DB_DRIVER", "sqlite"),
		DSN:       util.GetEnv("DSN"),
		Log: logger.LogConfig{
			Level:      util.GetEnv("LOG_LEVEL"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},
		JWTSecret:          util.GetEnv("JWT_SECRET"),
		TTSAPIKey:          util.GetEnv("TTS_API_KEY"),
		TTSBaseURL:         util.GetEnv("TTS_BASE_URL"),
		TTSModel:           util.GetEnvDefault("TTS_MODEL", "tts-1"),
		TTSVoice:           util.GetEnvDefault("TTS_VOICE", "alloy"),
		TTSFormat:          util.GetEnvDefault("TTS_FORMAT", "mp3"),
		MinioEndpoint:      util.GetEnv("MINIO_ENDPOINT"),
		MinioAccessKey:     util.GetEnv("MINIO_ACCESS_KEY"),
		MinioSecretKey:     util.GetEnv("MINIO_SECRET_KEY"),
		MinioBucket:        util.GetEnv("MINIO_BUCKET"),
		MinioUseSSL:        util.GetBoolEnv("MINIO_USE_SSL"),
		MinioPublicBase:    util.GetEnv("MINIO_PUBLIC_BASE"),
		StoragePublic:      util.GetBoolEnv("STORAGE_PUBLIC_ACL"),
		SignedURLExpiry:    util.GetIntEnvDefault("SIGNED_URL_EXPIRY_SECONDS", 3600),
		AudioTokenCost:     util.GetIntEnvDefault("AUDIO_TOKEN_COST", 7),
		CacheType:          util.GetEnvDefault("CACHE_TYPE", "local"),
		RedisAddr:          util.GetEnv("REDIS_ADDR"),
		RedisPassword:      util.GetEnv("REDIS_PASSWORD"),
		RedisDB:            int(util.GetIntEnv("REDIS_DB")),
		RedisPoolSize:      int(util.GetIntEnv("REDIS_POOL_SIZE")),
		CORSAllowedOrigins: splitList(util.GetEnv("CORS_ALLOWED_ORIGINS")),
		SubmitRate:         util.GetEnvDefault("SUBMIT_RATE", "30-M"),
		SweepSchedule:      util.GetEnvDefault("SWEEP_SCHEDULE", "*/5 * * * *"),
		LockTTL:            util.GetIntEnvDefault("LOCK_TTL_SECONDS", 900),
	}
	return nil
}

// SignedURLTTL returns the configured presign validity as a duration.
func (c *Config) SignedURLTTL() time.Duration {
	return time.Duration(c.SignedURLExpiry) * time.Second
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
