package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr   string
	GoEnv  string
	Driver string
	// Mongo
	MongoURI      string
	MongoDatabase string
	// SQL: postgres DSN or sqlite file path
	DatabaseURL string
	// Redis - empty runs the bus in-process and disables rate limiting
	RedisURL           string
	RedisChannelPrefix string
	RateLimitPrefix    string
	IssueRateLimit     int
	RateLimitWindow    time.Duration

	JWTSecret   string
	TokenTTL    time.Duration
	CORSOrigins []string
	// AI triage - disabled without a key
	AIBaseURL string
	AIAPIKey  string
	AIModel   string
	AITimeout time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads .env (if present) and the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	cfg := Config{
		Addr:               getenv("API_ADDR", ":8080"),
		GoEnv:              getenv("GO_ENV", "development"),
		Driver:             strings.ToLower(getenv("STORE_DRIVER", "mongo")),
		MongoURI:           getenv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:      getenv("MONGODB_DATABASE", "civicpulse"),
		DatabaseURL:        getenv("DATABASE_URL", ""),
		RedisURL:           getenv("REDIS_URL", ""),
		RedisChannelPrefix: getenv("REDIS_CHANNEL_PREFIX", "civicpulse"),
		RateLimitPrefix:    getenv("REDIS_QUEUE_FOR_ISSUE_LIMIT", "issue-limit"),
		IssueRateLimit:     getenvInt("ISSUE_RATE_LIMIT", 20),
		RateLimitWindow:    24 * time.Hour,
		JWTSecret:          getenv("JWT_SECRET", ""),
		TokenTTL:           time.Duration(getenvInt("JWT_TTL_HOURS", 72)) * time.Hour,
		CORSOrigins:        splitList(getenv("CORS_ORIGINS", "http://localhost:5173")),
		AIBaseURL:          getenv("AI_BASE_URL", ""),
		AIAPIKey:           getenv("AI_API_KEY", ""),
		AIModel:            getenv("AI_MODEL", ""),
		AITimeout:          time.Duration(getenvInt("AI_TIMEOUT_SECONDS", 10)) * time.Second,
		LogLevel:           getenv("LOG_LEVEL", "info"),
		LogFormat:          getenv("LOG_FORMAT", "text"),
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.Driver {
	case "mongo":
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGODB_URI is required for the mongo driver"))
		}
	case "postgres", "sqlite":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the "+c.Driver+" driver"))
		}
	default:
		errs = append(errs, errors.New("STORE_DRIVER must be mongo, postgres or sqlite"))
	}
	return errors.Join(errs...)
}

func (c Config) Production() bool { return c.GoEnv == "production" }

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

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
