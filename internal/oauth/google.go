package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/avelkine/identity-service/internal/config"
	"github.com/avelkine/identity-service/internal/domain"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// googleProvider resolves profiles through Google's standard OAuth2 flow
type googleProvider struct {
	conf       *oauth2.Config
	httpClient *http.Client
}

// NewGoogleProvider creates a Google provider adapter
func NewGoogleProvider(cfg config.OAuthProviderConfig) Provider {
	return &googleProvider{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"https://www.googleapis.com/auth/userinfo.email", "https://www.googleapis.com/auth/userinfo.profile"},
			Endpoint:     google.Endpoint,
		},
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *googleProvider) Type() domain.ProviderType {
	return domain.ProviderGoogle
}

// AuthURL builds the Google authorization URL with the given state token
func (p *googleProvider) AuthURL(state string) string {
	return p.conf.AuthCodeURL(state)
}

// ResolveProfile exchanges the authorization code and fetches the user profile
func (p *googleProvider) ResolveProfile(ctx context.Context, code string) (*domain.ProviderProfile, error) {
	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: google code exchange: %v", ErrProviderUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleUserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: google userinfo: %v", ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: google userinfo returned status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var user struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode google userinfo: %w", err)
	}

	return &domain.ProviderProfile{
		Provider:    domain.ProviderGoogle,
		SubjectID:   user.ID,
		Email:       user.Email,
		DisplayName: user.Name,
		AvatarURL:   user.Picture,
	}, nil
}
