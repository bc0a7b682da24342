package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Client holds the settings used by the studio client and its CLI.
type Client struct {
	// API
	APIBaseURL  string
	HTTPTimeout time.Duration

	// Payments (forwarded to the payment SDK, never used for logic)
	StripePublishableKey string

	// Local state
	StateBackend string // "sqlite" | "redis" | "memory"
	StateDir     string
	RedisURL     string

	// Logging
	LogLevel  string
	LogFormat string
}

// Server holds the settings used by the reference backend.
type Server struct {
	// Server
	Port        string
	Env         string
	PublicURL   string
	FrontendURL string

	// Database (empty means in-memory user repository)
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT
	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	OTPTTL          time.Duration

	// Gemini AI (empty key means template generator)
	GeminiAPIKey         string
	GeminiModel          string
	GeminiConcurrentReqs int

	// Storage
	StoragePath string

	// Workers
	WorkerCount       int
	WorkerPollTimeout time.Duration

	// Auth routes rate limit, requests per minute per IP
	AuthRateLimit int

	// SMTP
	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
	SMTPFrom string

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadClient reads the client configuration from the environment.
func LoadClient() *Client {
	// Load .env file if it exists
	godotenv.Load()

	return &Client{
		APIBaseURL:           strings.TrimRight(getEnvOrDefault("API_BASE_URL", "http://localhost:8080"), "/"),
		HTTPTimeout:          time.Duration(getEnvAsIntOrDefault("HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
		StripePublishableKey: getEnvOrDefault("STRIPE_PUBLISHABLE_KEY", ""),
		StateBackend:         strings.ToLower(getEnvOrDefault("STATE_BACKEND", "sqlite")),
		StateDir:             getEnvOrDefault("STATE_DIR", defaultStateDir()),
		RedisURL:             getEnvOrDefault("REDIS_URL", ""),
		LogLevel:             strings.ToLower(getEnvOrDefault("LOG_LEVEL", "warn")),
		LogFormat:            strings.ToLower(getEnvOrDefault("LOG_FORMAT", "text")),
	}
}

// Validate reports configuration combinations the client cannot run with.
func (c *Client) Validate() error {
	switch c.StateBackend {
	case "sqlite", "memory":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("STATE_BACKEND is redis but REDIS_URL is not set")
		}
	default:
		return fmt.Errorf("unknown STATE_BACKEND %q", c.StateBackend)
	}
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is empty")
	}
	return nil
}

// StatePath returns the sqlite database file holding the persisted session.
func (c *Client) StatePath() string {
	return filepath.Join(c.StateDir, "state.db")
}

// LoadServer reads the reference backend configuration. It panics when a
// required variable is missing.
func LoadServer() *Server {
	godotenv.Load()

	port := getEnvOrDefault("PORT", "8080")

	return &Server{
		Port:                 port,
		Env:                  getEnvOrDefault("ENV", "development"),
		PublicURL:            strings.TrimRight(getEnvOrDefault("PUBLIC_URL", "http://localhost:"+port), "/"),
		FrontendURL:          getEnvOrDefault("FRONTEND_URL", "*"),
		DatabaseURL:          getEnvOrDefault("DATABASE_URL", ""),
		RedisURL:             mustGetEnv("REDIS_URL"),
		JWTSecret:            mustGetEnv("JWT_SECRET"),
		AccessTokenTTL:       time.Duration(getEnvAsIntOrDefault("ACCESS_TOKEN_TTL_SECONDS", 900)) * time.Second,
		RefreshTokenTTL:      time.Duration(getEnvAsIntOrDefault("REFRESH_TOKEN_TTL_SECONDS", 7*24*3600)) * time.Second,
		OTPTTL:               time.Duration(getEnvAsIntOrDefault("OTP_TTL_SECONDS", 600)) * time.Second,
		GeminiAPIKey:         getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiModel:          getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiConcurrentReqs: getEnvAsIntOrDefault("GEMINI_CONCURRENT_REQUESTS", 5),
		StoragePath:          getEnvOrDefault("STORAGE_PATH", "./uploads"),
		WorkerCount:          getEnvAsIntOrDefault("WORKER_COUNT", 3),
		WorkerPollTimeout:    time.Duration(getEnvAsIntOrDefault("WORKER_POLL_SECONDS", 5)) * time.Second,
		AuthRateLimit:        getEnvAsIntOrDefault("AUTH_RATE_LIMIT", 10),
		SMTPHost:             getEnvOrDefault("SMTP_HOST", ""),
		SMTPPort:             getEnvOrDefault("SMTP_PORT", "587"),
		SMTPUser:             getEnvOrDefault("SMTP_USER", ""),
		SMTPPass:             getEnvOrDefault("SMTP_PASS", ""),
		SMTPFrom:             getEnvOrDefault("SMTP_FROM", "noreply@genstudio.app"),
		LogLevel:             strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		LogFormat:            strings.ToLower(getEnvOrDefault("LOG_FORMAT", "text")),
	}
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".genstudio"
	}
	return filepath.Join(home, ".genstudio")
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
