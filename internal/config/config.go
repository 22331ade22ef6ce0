package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file named by LEADCRM_ENV (or .env by default), then
// its .secret sidecar if present. Config is read from flat env vars after
// loading.
func Load() error {
	envFile := os.Getenv("LEADCRM_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Missing files are fine; the process env still applies.
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// DatabaseURL is empty when the in-memory backend should be used.
func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func JWTSecret() string {
	return os.Getenv("JWT_SECRET")
}

func AccessTokenTTL() time.Duration {
	return duration("ACCESS_TOKEN_TTL", 24*time.Hour)
}

func RefreshTokenTTL() time.Duration {
	return duration("REFRESH_TOKEN_TTL", 7*24*time.Hour)
}

func BcryptCost() int {
	cost, err := strconv.Atoi(os.Getenv("BCRYPT_COST"))
	if err != nil || cost <= 0 {
		return 10
	}
	return cost
}

// SessionBackend selects token storage: memory, redis or badger.
func SessionBackend() string {
	return lowerOr("SESSION_BACKEND", "memory")
}

// CacheBackend selects lead cache storage: memory or redis.
func CacheBackend() string {
	return lowerOr("CACHE_BACKEND", "memory")
}

func RedisAddr() string {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return "localhost:6379"
	}
	return addr
}

func RedisPassword() string {
	return os.Getenv("REDIS_PASSWORD")
}

func RedisDB() int {
	db, err := strconv.Atoi(os.Getenv("REDIS_DB"))
	if err != nil || db < 0 {
		return 0
	}
	return db
}

func BadgerDir() string {
	dir := os.Getenv("BADGER_DIR")
	if dir == "" {
		return "data/sessions"
	}
	return dir
}

func LeadCacheTTL() time.Duration {
	return duration("LEAD_CACHE_TTL", 5*time.Minute)
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	return lowerOr("LOG_LEVEL", "info")
}

func CORSAllowedOrigin() string {
	origin := os.Getenv("CORS_ALLOWED_ORIGIN")
	if origin == "" {
		return "*"
	}
	return origin
}

func duration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func lowerOr(key, def string) string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return def
	}
	return v
}
