package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/avelkine/identity-service/internal/config"
	"github.com/avelkine/identity-service/internal/domain"
)

const (
	appleAuthorizeURL = "https://appleid.apple.com/auth/authorize"
	appleTokenURL     = "https://appleid.apple.com/auth/token"
	appleIssuer       = "https://appleid.apple.com"
)

// appleProvider implements Apple's non-standard flow: the token response
// carries no profile fields, so identity comes from a signed id_token that
// is verified here against Apple's published keys instead of being trusted.
type appleProvider struct {
	clientID     string
	clientSecret string
	redirectURI  string
	tokenURL     string
	authorizeURL string
	issuer       string
	httpClient   *http.Client
	keys         *appleKeyCache
	logger       *zap.Logger
}

// NewAppleProvider creates the Apple identity bridge
func NewAppleProvider(cfg config.AppleConfig, logger *zap.Logger) Provider {
	httpClient := &http.Client{Timeout: cfg.Timeout.Duration}
	return &appleProvider{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURI:  cfg.RedirectURL,
		tokenURL:     appleTokenURL,
		authorizeURL: appleAuthorizeURL,
		issuer:       appleIssuer,
		httpClient:   httpClient,
		keys:         newAppleKeyCache(httpClient, appleKeysURL, cfg.KeyCacheTTL.Duration),
		logger:       logger,
	}
}

func (p *appleProvider) Type() domain.ProviderType {
	return domain.ProviderApple
}

// AuthURL builds Apple's authorization URL. response_mode must be form_post
// whenever the name or email scope is requested.
func (p *appleProvider) AuthURL(state string) string {
	query := url.Values{}
	query.Set("response_type", "code")
	query.Set("response_mode", "form_post")
	query.Set("client_id", p.clientID)
	query.Set("redirect_uri", p.redirectURI)
	query.Set("scope", "name email")
	query.Set("state", state)
	return p.authorizeURL + "?" + query.Encode()
}

type appleTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
}

// ResolveProfile exchanges the authorization code and independently verifies
// the returned identity token before trusting any of its claims.
func (p *appleProvider) ResolveProfile(ctx context.Context, code string) (*domain.ProviderProfile, error) {
	tokenResp, err := p.exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	subject, email, err := p.verifyIdentityToken(ctx, tokenResp.IDToken)
	if err != nil {
		return nil, err
	}

	displayName := ""
	if user, ok := FirstConsentUserFrom(ctx); ok {
		displayName = user.FullName()
		if email == "" {
			email = user.Email
		}
	}
	if displayName == "" {
		// Apple sends the name only on the very first consent; fall back to
		// the address local part so returning users still resolve.
		displayName = email[:strings.IndexByte(email+"@", '@')]
	}

	return &domain.ProviderProfile{
		Provider:    domain.ProviderApple,
		SubjectID:   subject,
		Email:       email,
		DisplayName: displayName,
	}, nil
}

func (p *appleProvider) exchange(ctx context.Context, code string) (*appleTokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", p.redirectURI)
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: apple token exchange: %v", ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: apple token endpoint returned status %d", ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: apple token endpoint returned status %d", ErrIdentityTokenInvalid, resp.StatusCode)
	}

	var tokenResp appleTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.IDToken == "" {
		return nil, fmt.Errorf("%w: token response carried no id_token", ErrIdentityTokenInvalid)
	}

	return &tokenResp, nil
}

// verifyIdentityToken checks the id_token's RS256 signature against the key
// named in its header, plus issuer, audience and expiry, and extracts the
// subject and email claims.
func (p *appleProvider) verifyIdentityToken(ctx context.Context, idToken string) (subject, email string, err error) {
	claims := jwt.MapClaims{}

	token, err := jwt.ParseWithClaims(idToken, claims, func(t *jwt.Token) (interface{}, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, fmt.Errorf("token header carries no key id")
		}
		return p.keys.GetKey(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.clientID),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		p.logger.Warn("apple identity token rejected",
			zap.String("provider", string(domain.ProviderApple)),
			zap.String("subject", stringClaim(claims, "sub")),
			zap.Error(err),
		)
		return "", "", fmt.Errorf("%w: %v", ErrIdentityTokenInvalid, err)
	}

	subject = stringClaim(claims, "sub")
	if subject == "" {
		return "", "", fmt.Errorf("%w: token carries no subject", ErrIdentityTokenInvalid)
	}

	return subject, stringClaim(claims, "email"), nil
}

func stringClaim(claims jwt.MapClaims, name string) string {
	v, _ := claims[name].(string)
	return v
}
