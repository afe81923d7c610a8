package oauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/avelkine/identity-service/internal/domain"
)

// Provider errors
var (
	// ErrProviderUnavailable covers transport failures and provider-side
	// outages; the caller may retry with backoff.
	ErrProviderUnavailable = errors.New("identity provider unavailable")

	// ErrIdentityTokenInvalid covers any verification failure of a returned
	// identity token (signature, issuer, audience, expiry). Fatal for the
	// attempt, never retried automatically.
	ErrIdentityTokenInvalid = errors.New("identity token invalid")

	// ErrUnsupportedProvider is returned for provider names outside the
	// configured set.
	ErrUnsupportedProvider = errors.New("unsupported oauth provider")
)

// Provider turns an authorization code into a normalized provider profile
type Provider interface {
	Type() domain.ProviderType
	AuthURL(state string) string
	ResolveProfile(ctx context.Context, code string) (*domain.ProviderProfile, error)
}

// Registry holds the configured providers keyed by type
type Registry struct {
	providers map[domain.ProviderType]Provider
}

// NewRegistry creates a registry from the given providers
func NewRegistry(providers ...Provider) *Registry {
	m := make(map[domain.ProviderType]Provider, len(providers))
	for _, p := range providers {
		m[p.Type()] = p
	}
	return &Registry{providers: m}
}

// Get returns the provider for a type
func (r *Registry) Get(t domain.ProviderType) (Provider, error) {
	p, ok := r.providers[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, t)
	}
	return p, nil
}
