package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"

	"github.com/avelkine/identity-service/internal/config"
	"github.com/avelkine/identity-service/internal/domain"
)

const facebookProfileURL = "https://graph.facebook.com/v19.0/me"

// facebookProvider resolves profiles through Facebook's standard OAuth2 flow
type facebookProvider struct {
	conf       *oauth2.Config
	httpClient *http.Client
}

// NewFacebookProvider creates a Facebook provider adapter
func NewFacebookProvider(cfg config.OAuthProviderConfig) Provider {
	return &facebookProvider{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"email", "public_profile"},
			Endpoint:     facebook.Endpoint,
		},
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *facebookProvider) Type() domain.ProviderType {
	return domain.ProviderFacebook
}

// AuthURL builds the Facebook authorization URL with the given state token
func (p *facebookProvider) AuthURL(state string) string {
	return p.conf.AuthCodeURL(state)
}

// ResolveProfile exchanges the authorization code and fetches the user profile
func (p *facebookProvider) ResolveProfile(ctx context.Context, code string) (*domain.ProviderProfile, error) {
	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: facebook code exchange: %v", ErrProviderUnavailable, err)
	}

	query := url.Values{}
	query.Set("fields", "id,name,email,picture.type(large)")
	query.Set("access_token", tok.AccessToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, facebookProfileURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build profile request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: facebook profile: %v", ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: facebook profile returned status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var user struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode facebook profile: %w", err)
	}

	return &domain.ProviderProfile{
		Provider:    domain.ProviderFacebook,
		SubjectID:   user.ID,
		Email:       user.Email,
		DisplayName: user.Name,
		AvatarURL:   user.Picture.Data.URL,
	}, nil
}
