package secrets

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	pkgsecrets "github.com/bonuspilot/loyalty-engine/pkg/secrets"
)

// Resolver resolves per-provider configuration from a secrets backend,
// caching results locally to reduce API calls. It is generic over the resolved
// config type T so the same core logic serves both provider adapters.
//
// Secret naming convention: {env}/loyalty/{provider}
type Resolver[T any] struct {
	logger   *zap.Logger
	env      string
	name     string
	provider pkgsecrets.Provider
	cache    *pkgsecrets.Cache[T]
}

// NewResolver constructs a provider config resolver.
func NewResolver[T any](
	logger *zap.Logger,
	env string,
	name string,
	provider pkgsecrets.Provider,
	cache *pkgsecrets.Cache[T],
) *Resolver[T] {
	return &Resolver[T]{
		logger:   logger,
		env:      env,
		name:     name,
		provider: provider,
		cache:    cache,
	}
}

// secretName builds the secrets manager key for the provider.
// Pattern: {env}/loyalty/{provider}
func (r *Resolver[T]) secretName() string {
	return strings.ToLower(fmt.Sprintf("%s/loyalty/%s", r.env, r.name))
}

// Resolve fetches or caches the provider config. parse extracts T from the raw
// secret map; it should validate required fields.
func (r *Resolver[T]) Resolve(ctx context.Context, parse func(map[string]string) (T, error)) (T, error) {
	key := r.name

	// --- check in-memory cache first ---
	if cfg, ok := r.cache.Get(key); ok {
		return cfg, nil
	}

	// --- fetch from the secrets backend ---
	secretName := r.secretName()
	secretMap, err := r.provider.GetSecret(ctx, secretName)
	if err != nil {
		r.logger.Warn("secrets.fetch_failed",
			zap.String("key", secretName),
			zap.Error(err))
		var zero T
		return zero, fmt.Errorf("resolve provider config for %q: %w", r.name, err)
	}

	cfg, err := parse(secretMap)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("parse secret %q: %w", secretName, err)
	}

	// --- cache locally for next time ---
	r.cache.Put(key, cfg)

	r.logger.Info("secrets.provider_config_resolved",
		zap.String("provider", r.name),
	)
	return cfg, nil
}
