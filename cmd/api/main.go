package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"genesis/internal/adapter/repo"
	"genesis/internal/domain"
	"genesis/internal/generation"
	"genesis/internal/http/handlers"
	httpapi "genesis/internal/http/httpapi"
	"genesis/internal/infra"
	"genesis/internal/infra/credentials"
	"genesis/internal/infra/geoip"
	"genesis/internal/jobgate"
	"genesis/internal/middleware"
	"genesis/internal/persist"
	"genesis/internal/providers"
	"genesis/internal/storage"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()
	runner := infra.NewSQLRunner(dbpool, logger)

	blobs, err := storage.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	features, err := domain.ParsePlanFeatures(cfg.PlanFeatures)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid PLAN_FEATURES")
	}

	activeJobs := repo.NewActiveJobRepository(runner)
	media := repo.NewMediaRepository(runner)
	subscriptions := repo.NewSubscriptionRepository(runner)

	registry := providers.FromConfig(cfg, credentials.NewStore(runner), &logger)
	gate := jobgate.New(activeJobs, jobgate.Options{StaleAfter: cfg.JobStaleAfter, Logger: &logger})
	entitlements := generation.NewEntitlements(subscriptions, features, &logger)
	persister := persist.New(blobs, persist.Options{
		Attempts:   cfg.PersistAttempts,
		MaxBytes:   cfg.PersistMaxBytes,
		HTTPClient: &http.Client{Timeout: cfg.PersistFetchLimit},
		Logger:     &logger,
	})
	dispatcher := generation.NewDispatcher(registry, entitlements, gate, persister, media, generation.Options{
		RunPolicy:    cfg.RunPolicy,
		AwaitTimeout: cfg.AwaitTimeout,
		MaxRuntime:   cfg.MaxRuntime,
		Budgets:      providers.BudgetsFromConfig(cfg),
		Logger:       &logger,
	})
	logger.Info().Int("models", len(registry.Models(""))).Str("run_policy", cfg.RunPolicy).Msg("generation ready")

	opts := httpapi.Options{
		JWTSecret:    cfg.JWTSecret,
		CORSOrigins:  cfg.CORSOrigins,
		IsAdminEmail: cfg.IsAdminEmail,
		Limiter:      newLimiter(ctx, cfg, logger),
		Logger:       logger,
	}
	geo, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	if geo != nil {
		defer geo.Close()
		opts.Country = geo.CountryCode
	}
	if fs, ok := blobs.(*storage.FileStore); ok {
		opts.Static = fs.Handler()
	}

	app := &handlers.App{
		Dispatcher:        dispatcher,
		Catalog:           registry,
		Jobs:              gate,
		Media:             media,
		Blobs:             blobs,
		Subscriptions:     entitlements,
		SubscriptionStore: subscriptions,
		Ping:              dbpool.Ping,
		Logger:            logger,
	}
	server := infra.NewHTTPServer(cfg, httpapi.NewRouter(app, opts))

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}

	// Detached generations still hold markers; give them their full run limit
	// to finish before the pool closes.
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), dispatcher.RunLimit())
	defer cancelDrain()
	if err := dispatcher.Wait(drainCtx); err != nil {
		logger.Warn().Err(err).Msg("background generations still running at exit")
	}
	logger.Info().Msg("server stopped")
}

// newLimiter shares the generate quota across replicas through Redis when
// REDIS_ADDR is set and keeps it per-process otherwise.
func newLimiter(ctx context.Context, cfg *infra.Config, logger infra.Logger) middleware.Limiter {
	if cfg.RateLimitPerMin <= 0 {
		return nil
	}
	if cfg.RedisAddr == "" {
		return middleware.NewMemoryLimiter(cfg.RateLimitPerMin, time.Minute)
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, using in-process rate limit")
		_ = client.Close()
		return middleware.NewMemoryLimiter(cfg.RateLimitPerMin, time.Minute)
	}
	limiter, err := middleware.NewRedisLimiter(client, "genesis:ratelimit:", cfg.RateLimitPerMin, time.Minute)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure redis rate limiter")
	}
	return limiter
}
