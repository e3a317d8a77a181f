package config

import (
	"fmt"
	"log"
	"os"
	"time"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env              string
	HTTPPort         string
	DirectoryBaseURL string
	DataDir          string
	CacheBackend     string
	RedisAddr        string
	JWTIssuer        string
	JWTSigningKey    string
	SessionTTL       time.Duration
	RateLimitPerMin  int
}

// Load returns application config populated from environment variables with sensible defaults.
func Load() App {
	return App{
		Env:              getEnv("APP_ENV", "dev"),
		HTTPPort:         getEnv("HTTP_PORT", "8081"),
		DirectoryBaseURL: getEnv("DIRECTORY_BASE_URL", "https://puce.estudioika.com/api"),
		DataDir:          getEnv("DATA_DIR", "data"),
		CacheBackend:     getEnv("CACHE_BACKEND", "file"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		JWTIssuer:        getEnv("JWT_ISSUER", "checkin-web"),
		JWTSigningKey:    getEnv("JWT_SIGNING_KEY", "dev-signing-secret-change"),
		SessionTTL:       durationEnv("SESSION_TTL", 12*time.Hour),
		RateLimitPerMin:  intEnv("RATE_LIMIT_PER_MIN", 30),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
	}
	return fallback
}
