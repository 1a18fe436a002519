package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrMissingBotToken is returned when TELEGRAM_BOT_TOKEN is unset.
	ErrMissingBotToken = errors.New("config: TELEGRAM_BOT_TOKEN is required")
	// ErrMissingOrdersChat is returned when TELEGRAM_ORDERS_CHAT_ID is unset.
	ErrMissingOrdersChat = errors.New("config: TELEGRAM_ORDERS_CHAT_ID is required")
)

// Config holds application configuration
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string

	// Telegram destinations
	TelegramBotToken       string
	TelegramOrdersChatID   string
	TelegramOrdersThreadID int64
	TelegramLeadsChatID    string
	TelegramLeadsThreadID  int64
	TelegramAPIBaseURL     string
	TelegramTimeout        time.Duration

	// HTTP edge
	TrustProxy         bool
	CORSAllowedOrigins []string
	MaxBodyBytes       int64
	MetricsEnabled     bool

	// Abuse controls
	OrderRateLimit  int
	OrderRateWindow time.Duration
	LeadRateLimit   int
	LeadRateWindow  time.Duration
	DedupeCapacity  int
	DedupeTTL       time.Duration

	// Optional shared state for multi-instance deployments
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
}

// Load reads configuration from environment variables
func Load() *Config {
	ordersChat := strings.TrimSpace(getEnv("TELEGRAM_ORDERS_CHAT_ID", ""))
	return &Config{
		Port:      getEnv("PORT", "5050"),
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		TelegramBotToken:       strings.TrimSpace(getEnv("TELEGRAM_BOT_TOKEN", "")),
		TelegramOrdersChatID:   ordersChat,
		TelegramOrdersThreadID: getEnvAsInt64("TELEGRAM_ORDERS_THREAD_ID", 0),
		TelegramLeadsChatID:    strings.TrimSpace(getEnv("TELEGRAM_LEADS_CHAT_ID", ordersChat)),
		TelegramLeadsThreadID:  getEnvAsInt64("TELEGRAM_LEADS_THREAD_ID", 0),
		TelegramAPIBaseURL:     getEnv("TELEGRAM_API_BASE_URL", "https://api.telegram.org"),
		TelegramTimeout:        getEnvAsDuration("TELEGRAM_TIMEOUT", 10*time.Second),

		TrustProxy:         getEnvAsBool("TRUST_PROXY", true),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		MaxBodyBytes:       getEnvAsInt64("MAX_BODY_BYTES", 200*1024),
		MetricsEnabled:     getEnvAsBool("METRICS_ENABLED", true),

		OrderRateLimit:  getEnvAsInt("ORDER_RATE_LIMIT", 8),
		OrderRateWindow: getEnvAsDuration("ORDER_RATE_WINDOW", 2*time.Minute),
		LeadRateLimit:   getEnvAsInt("LEAD_RATE_LIMIT", 6),
		LeadRateWindow:  getEnvAsDuration("LEAD_RATE_WINDOW", time.Minute),
		DedupeCapacity:  getEnvAsInt("DEDUPE_CAPACITY", 5000),
		DedupeTTL:       getEnvAsDuration("DEDUPE_TTL", 2*time.Minute),

		RedisAddr:     strings.TrimSpace(getEnv("REDIS_ADDR", "")),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
	}
}

// Validate reports the first setting the relay cannot run without.
func (c *Config) Validate() error {
	if c.TelegramBotToken == "" {
		return ErrMissingBotToken
	}
	if c.TelegramOrdersChatID == "" {
		return ErrMissingOrdersChat
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
