package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clinicflow/booking-assistant/internal/api/handlers"
	"github.com/clinicflow/booking-assistant/internal/api/router"
	"github.com/clinicflow/booking-assistant/internal/assistant"
	appconfig "github.com/clinicflow/booking-assistant/internal/config"
	"github.com/clinicflow/booking-assistant/internal/scheduling"
	"github.com/clinicflow/booking-assistant/pkg/logging"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking-assistant API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildSessionStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize session store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	llm, err := buildLLMClient(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize LLM client", "error", err)
		os.Exit(1)
	}

	selector := scheduling.NewSelector(ctx, scheduling.ClinikoConfig{
		BaseURL:        cfg.ClinikoBaseURL,
		APIKey:         cfg.ClinikoAPIKey,
		BusinessID:     cfg.ClinikoBusinessID,
		PractitionerID: cfg.ClinikoPractitionerID,
		Timeout:        cfg.BookingTimeout,
	}, logger, scheduling.WithProbeTimeout(cfg.ProbeTimeout))
	logger.Info("scheduling adapter selected",
		"mode", string(selector.Mode()),
		"reason", selector.Reason(),
	)

	executor := assistant.NewToolExecutor(selector, logger)
	engine := assistant.NewEngine(
		store,
		assistant.NewExtractor(nil),
		assistant.NewResolver(),
		executor,
		llm,
		selector,
		assistant.ClinicContext{
			Name:     cfg.ClinicName,
			Timezone: cfg.ClinicTimezone,
			Hours:    cfg.ClinicHours,
			Phone:    cfg.ClinicPhone,
		},
		logger,
		assistant.WithMaxHistory(cfg.MaxHistoryLength),
		assistant.WithLLMTimeout(cfg.LLMTimeout),
		assistant.WithToolTimeout(cfg.BookingTimeout),
	)
	health := assistant.NewHealthChecker(store, llm, selector)

	r := router.New(&router.Config{
		Logger:         logger,
		Assistant:      handlers.NewAssistantHandler(engine, health, logger),
		MetricsHandler: promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// buildSessionStore prefers Redis when configured and falls back to the
// in-process store for single-node and local runs.
func buildSessionStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (assistant.SessionStore, error) {
	if cfg.RedisAddr == "" {
		logger.Info("using in-memory session store")
		return assistant.NewMemoryStore(cfg.SessionTTL, cfg.JanitorInterval, logger), nil
	}

	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}
	logger.Info("using Redis session store", "addr", cfg.RedisAddr)
	return assistant.NewRedisStore(client, cfg.SessionTTL, nil), nil
}

// buildLLMClient constructs the configured provider; when the other
// provider is also configured it becomes an automatic fallback.
func buildLLMClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (assistant.LLMClient, error) {
	newBedrock := func() (assistant.LLMClient, error) {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, err
		}
		return assistant.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID)
	}
	newOpenAI := func() (assistant.LLMClient, error) {
		return assistant.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.LLMModel, cfg.LLMTimeout)
	}

	switch cfg.LLMProvider {
	case "bedrock":
		primary, err := newBedrock()
		if err != nil {
			return nil, err
		}
		if cfg.OpenAIAPIKey == "" {
			return primary, nil
		}
		fallback, err := newOpenAI()
		if err != nil {
			return nil, err
		}
		return assistant.NewFallbackLLMClient(primary, fallback, logger), nil
	default:
		primary, err := newOpenAI()
		if err != nil {
			return nil, err
		}
		if cfg.BedrockModelID == "" {
			return primary, nil
		}
		fallback, err := newBedrock()
		if err != nil {
			return nil, err
		}
		return assistant.NewFallbackLLMClient(primary, fallback, logger), nil
	}
}
