package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"genesis/internal/infra"
	"genesis/internal/infra/credentials"
)

// envKeys names the environment fallback of every credential slot.
var envKeys = map[string]string{
	credentials.ProviderSyncREST:     "SYNC_REST_API_KEY",
	credentials.ProviderFreepik:      "FREEPIK_API_KEY",
	credentials.ProviderFal:          "FAL_API_KEY",
	credentials.ProviderStream:       "STREAM_API_KEY",
	credentials.ProviderVideoGateway: "VIDEO_GATEWAY_API_KEY",
}

func main() {
	var (
		keyFlag      string
		providerFlag string
		baseURLFlag  string
	)
	flag.StringVar(&keyFlag, "key", "", "API key for the selected provider (falls back to environment)")
	flag.StringVar(&providerFlag, "provider", "", "credential slot: "+strings.Join(credentials.Known, ", "))
	flag.StringVar(&baseURLFlag, "base-url", "", "optional base URL recorded with the key")
	flag.Parse()

	provider := strings.TrimSpace(strings.ToLower(providerFlag))
	envKey, ok := envKeys[provider]
	if !ok {
		fmt.Fprintf(os.Stderr, "unsupported provider %q (want one of %s)\n", providerFlag, strings.Join(credentials.Known, ", "))
		os.Exit(1)
	}

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv(envKey))
	}
	if key == "" {
		fmt.Fprintf(os.Stderr, "%s API key is required via -key or %s\n", provider, envKey)
		os.Exit(1)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "providerkey").Str("provider", provider).Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	props := map[string]any{}
	if u := strings.TrimSpace(baseURLFlag); u != "" {
		props["base_url"] = u
	}
	if err := store.Set(ctx, provider, key, props); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist %s api key: %v\n", provider, err)
		os.Exit(1)
	}

	fmt.Printf("%s API key stored successfully\n", provider)
}
