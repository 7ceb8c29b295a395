package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr        string
	RedisURL    string
	DatabaseURL string
	CORSOrigin  string
	JWTSecret   string
	SessionTTL  time.Duration
	// Owner seed account, created at first run only.
	OwnerUsername string
	OwnerEmail    string
	OwnerPassword string
	// MinIO configuration - empty endpoint disables the CSV import archive
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

func Load() Config {
	return Config{
		Addr:        getenv("API_ADDR", ":8788"),
		RedisURL:    getenv("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL: getenv("DATABASE_URL", ""),
		CORSOrigin:  getenv("CHECKIN_CORS_ORIGIN", "*"),
		JWTSecret:   getenv("CHECKIN_JWT_SECRET", "checkin-dev-secret"),
		SessionTTL:  time.Duration(getenvInt("CHECKIN_SESSION_TTL_SECONDS", 43200)) * time.Second,
		// Owner defaults match the account front-desk staff already know.
		OwnerUsername: getenv("CHECKIN_OWNER_USERNAME", "MTDIAL"),
		OwnerEmail:    getenv("CHECKIN_OWNER_EMAIL", "mtdial@email.sc.edu"),
		OwnerPassword: getenv("CHECKIN_OWNER_PASSWORD", "NELSON11!"),
		// MinIO - import auditing disabled if not configured
		MinioEndpoint:  getenv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getenv("MINIO_BUCKET", "checkin-imports"),
		MinioUseSSL:    getenvBool("MINIO_USE_SSL", false),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
