package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"genesis/internal/infra"
	"genesis/internal/sqlinline"
)

// Provider credential slots. Each maps to one upstream family.
const (
	ProviderSyncREST     = "syncrest"
	ProviderFreepik      = "freepik"
	ProviderFal          = "fal"
	ProviderStream       = "stream"
	ProviderVideoGateway = "video-gateway"
)

// Known lists the slots accepted by Set.
var Known = []string{ProviderSyncREST, ProviderFreepik, ProviderFal, ProviderStream, ProviderVideoGateway}

// Store keeps provider API keys in integration_tokens so they can be rotated
// without a redeploy.
type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Token returns the stored key for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	var token string
	if err := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider).Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("credentials: load %s: %w", provider, err)
	}
	return strings.TrimSpace(token), nil
}

// Resolve prefers a stored key and falls back to the environment value.
func (s *Store) Resolve(ctx context.Context, provider, fallback string) string {
	if s == nil || s.sql == nil {
		return fallback
	}
	if token, err := s.Token(ctx, provider); err == nil && token != "" {
		return token
	}
	return fallback
}

// Set stores key for provider with optional properties (e.g. base URL override).
func (s *Store) Set(ctx context.Context, provider, key string, props map[string]any) error {
	provider = strings.TrimSpace(strings.ToLower(provider))
	if !isKnown(provider) {
		return fmt.Errorf("credentials: unknown provider %q", provider)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("credentials: %s api key is required", provider)
	}
	if props == nil {
		props = map[string]any{}
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, key, raw)
	return err
}

func isKnown(provider string) bool {
	for _, p := range Known {
		if p == provider {
			return true
		}
	}
	return false
}
