package main

import (
	"context"
	"time"

	"github.com/joho/godotenv"

	"genesis/internal/db"
	"genesis/internal/infra"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "migrate").Logger()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("migrate: open database")
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	applied, err := db.Migrate(ctx, conn, logger)
	if err != nil {
		logger.Fatal().Err(err).Int("applied", applied).Msg("migrate: failed")
	}
	logger.Info().Int("applied", applied).Msg("migrate: done")
}
