package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/storefront-bridge/internal/config"
	"github.com/wolfman30/storefront-bridge/internal/dedupe"
	httpmiddleware "github.com/wolfman30/storefront-bridge/internal/http/middleware"
	"github.com/wolfman30/storefront-bridge/internal/observability/metrics"
	"github.com/wolfman30/storefront-bridge/internal/relay"
	"github.com/wolfman30/storefront-bridge/internal/telegram"
	"github.com/wolfman30/storefront-bridge/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available, using in-process state", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildDedupeStore returns the shared Redis store when a client is available
// and the bounded in-memory LRU otherwise.
func BuildDedupeStore(cfg *appconfig.Config, redisClient *redis.Client) dedupe.Store {
	if redisClient != nil {
		return dedupe.NewRedisStore(redisClient, cfg.DedupeTTL)
	}
	return dedupe.NewMemoryStore(cfg.DedupeCapacity, cfg.DedupeTTL)
}

// BuildWindowStore picks the rate-limit backend the same way.
func BuildWindowStore(redisClient *redis.Client) httpmiddleware.WindowStore {
	if redisClient != nil {
		return httpmiddleware.NewRedisWindowStore(redisClient)
	}
	return httpmiddleware.NewMemoryWindowStore()
}

// BuildRelay wires the Telegram client and the per-kind destinations.
func BuildRelay(cfg *appconfig.Config, logger *logging.Logger, m *metrics.IntakeMetrics) (*relay.Relay, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	client, err := telegram.New(telegram.Config{
		BaseURL: cfg.TelegramAPIBaseURL,
		Token:   cfg.TelegramBotToken,
		Timeout: cfg.TelegramTimeout,
		Logger:  logger.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: telegram client: %w", err)
	}
	return relay.New(client, Destinations(cfg), logger, m), nil
}

// Destinations maps the configured chats and topics onto relay destinations.
func Destinations(cfg *appconfig.Config) relay.Destinations {
	return relay.Destinations{
		Order: relay.Destination{ChatID: cfg.TelegramOrdersChatID, ThreadID: cfg.TelegramOrdersThreadID},
		Lead:  relay.Destination{ChatID: cfg.TelegramLeadsChatID, ThreadID: cfg.TelegramLeadsThreadID},
	}
}
