package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/storefront-bridge/internal/api/router"
	"github.com/wolfman30/storefront-bridge/internal/app/bootstrap"
	appconfig "github.com/wolfman30/storefront-bridge/internal/config"
	"github.com/wolfman30/storefront-bridge/internal/intake"
	"github.com/wolfman30/storefront-bridge/internal/observability/metrics"
	"github.com/wolfman30/storefront-bridge/pkg/logging"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.Info("starting storefront bridge",
		"env", cfg.Env,
		"port", cfg.Port,
	)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler, cleanup, err := buildHandler(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build handler", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Leaves room for the relay call plus its single fallback.
		WriteTimeout: 2*cfg.TelegramTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", "error", err)
		cleanup()
		os.Exit(1)
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		cleanup()
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// buildHandler wires the intake pipeline. The returned cleanup releases
// background resources and is safe to call more than once.
func buildHandler(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (http.Handler, func(), error) {
	metricsHandler, intakeMetrics := setupMetrics(cfg.MetricsEnabled)

	relay, err := bootstrap.BuildRelay(cfg, logger, intakeMetrics)
	if err != nil {
		return nil, nil, err
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		logger.Info("shared state enabled", "redis_addr", cfg.RedisAddr)
	}
	windows := bootstrap.BuildWindowStore(redisClient)

	intakeHandler := intake.NewHandler(relay, bootstrap.BuildDedupeStore(cfg, redisClient), logger, intakeMetrics)
	handler := router.New(&router.Config{
		Logger:             logger,
		Intake:             intakeHandler,
		Metrics:            intakeMetrics,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		MaxBodyBytes:       cfg.MaxBodyBytes,
		TrustProxy:         cfg.TrustProxy,
		RateLimitStore:     windows,
		OrderLimit:         router.RouteLimit{Limit: cfg.OrderRateLimit, Window: cfg.OrderRateWindow},
		LeadLimit:          router.RouteLimit{Limit: cfg.LeadRateLimit, Window: cfg.LeadRateWindow},
	})

	closed := false
	cleanup := func() {
		if closed {
			return
		}
		closed = true
		if c, ok := windows.(interface{ Close() }); ok {
			c.Close()
		}
		if redisClient != nil {
			_ = redisClient.Close()
		}
	}
	return handler, cleanup, nil
}

// setupMetrics returns the /metrics handler (nil when disabled) and the
// pipeline metrics registered on a dedicated registry.
func setupMetrics(enabled bool) (http.Handler, *metrics.IntakeMetrics) {
	reg := prometheus.NewRegistry()
	intakeMetrics := metrics.NewIntakeMetrics(reg)
	if !enabled {
		return nil, intakeMetrics
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), intakeMetrics
}

