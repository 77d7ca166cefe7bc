package service

import (
	"context"
	"errors"
	"time"

	"github.com/boddenberg/agency-tool-gateway/internal/domain"
	"github.com/boddenberg/agency-tool-gateway/internal/infra/observability"
	"github.com/boddenberg/agency-tool-gateway/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultRefreshSkew is how long before expiry a token is renewed.
const DefaultRefreshSkew = 60 * time.Second

// CredentialCache hands out bearer tokens per credential identity, refreshing
// them shortly before they expire.
//
// Two callers that find the same stale entry may both refresh; the store keeps
// whichever write lands last. Both tokens are valid, so the duplicate exchange
// only costs one extra round trip. WithSingleflight collapses them instead.
type CredentialCache struct {
	store   port.CredentialStore
	sources map[string]port.TokenSource
	skew    time.Duration
	flight  *singleflight.Group
	now     func() time.Time
	metrics *observability.Metrics
	logger  *zap.Logger
}

// CredentialOption customises a CredentialCache.
type CredentialOption func(*CredentialCache)

// WithRefreshSkew overrides DefaultRefreshSkew.
func WithRefreshSkew(d time.Duration) CredentialOption {
	return func(c *CredentialCache) { c.skew = d }
}

// WithSingleflight allows at most one refresh in flight per identity.
func WithSingleflight() CredentialOption {
	return func(c *CredentialCache) { c.flight = &singleflight.Group{} }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CredentialOption {
	return func(c *CredentialCache) { c.now = now }
}

// NewCredentialCache creates the cache over store with one TokenSource per identity.
func NewCredentialCache(
	store port.CredentialStore,
	sources map[string]port.TokenSource,
	metrics *observability.Metrics,
	logger *zap.Logger,
	opts ...CredentialOption,
) *CredentialCache {
	c := &CredentialCache{
		store:   store,
		sources: sources,
		skew:    DefaultRefreshSkew,
		now:     time.Now,
		metrics: metrics,
		logger:  logger.Named("credentials"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Has reports whether identity has a token source.
func (c *CredentialCache) Has(identity string) bool {
	_, ok := c.sources[identity]
	return ok
}

// Get returns a usable token for identity, refreshing it when it is absent
// or inside the refresh skew.
func (c *CredentialCache) Get(ctx context.Context, identity string) (string, error) {
	ctx, span := tracer.Start(ctx, "CredentialCache.Get")
	defer span.End()
	span.SetAttributes(attribute.String("credential.identity", identity))

	src, ok := c.sources[identity]
	if !ok {
		return "", &domain.ErrNotConfigured{Service: identity, Setting: "credentials for " + identity}
	}

	cached, err := c.store.Get(ctx, identity)
	if err != nil {
		// A broken store degrades to refresh-every-call rather than failing the call.
		c.logger.Warn("credential store read failed",
			zap.String("identity", identity),
			zap.Error(err),
		)
	}
	if cached != nil && cached.FreshAt(c.now(), c.skew) {
		c.metrics.IncrCredentialHit(identity)
		span.SetAttributes(attribute.Bool("credential.cache_hit", true))
		return cached.Token, nil
	}
	c.metrics.IncrCredentialMiss(identity)
	span.SetAttributes(attribute.Bool("credential.cache_hit", false))

	if c.flight == nil {
		return c.refresh(ctx, identity, src)
	}
	v, err, shared := c.flight.Do(identity, func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx), identity, src)
	})
	if shared {
		c.logger.Debug("joined in-flight refresh", zap.String("identity", identity))
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *CredentialCache) refresh(ctx context.Context, identity string, src port.TokenSource) (string, error) {
	start := c.now()
	tok, err := src.Token(ctx)
	if err != nil {
		c.metrics.IncrTokenRefresh(identity, "failure")
		c.logger.Error("token refresh failed",
			zap.String("identity", identity),
			zap.Error(err),
		)
		var refreshErr *domain.ErrTokenRefresh
		if !errors.As(err, &refreshErr) {
			err = &domain.ErrTokenRefresh{Identity: identity, Err: err}
		}
		return "", err
	}
	c.metrics.IncrTokenRefresh(identity, "success")

	cred := domain.CachedCredential{
		Token:            tok.AccessToken,
		ExpiresAtEpochMs: start.Add(tok.ExpiresIn).UnixMilli(),
	}
	if err := c.store.Put(ctx, identity, cred, tok.ExpiresIn); err != nil {
		c.logger.Warn("credential store write failed",
			zap.String("identity", identity),
			zap.Error(err),
		)
	}

	c.logger.Info("token refreshed",
		zap.String("identity", identity),
		zap.Duration("expires_in", tok.ExpiresIn),
	)
	return tok.AccessToken, nil
}
