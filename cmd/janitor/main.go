package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"genesis/internal/adapter/repo"
	"genesis/internal/infra"
	"genesis/internal/jobgate"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "janitor").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("janitor: db connection failed")
	}
	defer pool.Close()

	gate := jobgate.New(repo.NewActiveJobRepository(infra.NewSQLRunner(pool, logger)), jobgate.Options{
		StaleAfter: cfg.JobStaleAfter,
		Logger:     &logger,
	})

	interval := cfg.JanitorInterval
	if interval <= 0 {
		interval = time.Minute
	}
	logger.Info().Dur("interval", interval).Dur("stale_after", gate.StaleAfter()).Msg("janitor: started")

	if err := run(ctx, gate, interval, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("janitor: stopped with error")
	}
	logger.Info().Msg("janitor: stopped")
}

// run sweeps once immediately and then on every tick until ctx ends. A failed
// sweep is logged and retried on the next tick.
func run(ctx context.Context, gate *jobgate.Gate, interval time.Duration, logger infra.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		swept, err := gate.SweepStale(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Error().Err(err).Msg("janitor: sweep failed")
		case swept > 0:
			logger.Warn().Int64("swept", swept).Msg("janitor: removed stale job markers")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
