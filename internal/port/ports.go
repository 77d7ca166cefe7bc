// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the service layer
// from concrete upstream adapters, token endpoints and credential storage.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/agency-tool-gateway/internal/domain"
)

// ServiceAdapter executes normalized requests against one upstream.
type ServiceAdapter interface {
	// Name is the upstream name, e.g. "gmail".
	Name() string
	// Identity is the credential identity the upstream authenticates with,
	// or "" when it uses a static secret.
	Identity() string
	// Configured returns a *domain.ErrNotConfigured when a required secret is missing.
	Configured() error
	Call(ctx context.Context, req *domain.UpstreamRequest) (*domain.UpstreamResponse, error)
}

// TokenSource exchanges a long-lived secret for a short-lived bearer token.
type TokenSource interface {
	Token(ctx context.Context) (*domain.IssuedToken, error)
}

// CredentialStore is the keyed store backing the credential cache.
// A nil credential with a nil error means a miss.
type CredentialStore interface {
	Get(ctx context.Context, identity string) (*domain.CachedCredential, error)
	Put(ctx context.Context, identity string, cred domain.CachedCredential, ttl time.Duration) error
}

// CredentialProvider resolves a bearer token for an identity.
type CredentialProvider interface {
	Get(ctx context.Context, identity string) (string, error)
}
