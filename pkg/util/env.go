package util

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnv loads .env.<env> first and falls back to plain .env.
func LoadEnv(env string) error {
	if env != "" {
		if err := godotenv.Load(".env." + env); err == nil {
			return nil
		}
	}
	return godotenv.Load()
}

func GetEnv(key string) string {
	return os.Getenv(key)
}

func GetEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func GetIntEnv(key string) int64 {
	v, err := strconv.ParseInt(os.Getenv(key), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func GetIntEnvDefault(key string, def int64) int64 {
	if os.Getenv(key) == "" {
		return def
	}
	return GetIntEnv(key)
}

func GetBoolEnv(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}
