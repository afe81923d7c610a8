package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/avelkine/identity-service/internal/domain"
	"github.com/avelkine/identity-service/internal/dto"
	"github.com/avelkine/identity-service/internal/oauth"
	"github.com/avelkine/identity-service/internal/service"
	"github.com/avelkine/identity-service/internal/utils"
)

const (
	stateCookieName  = "oauth_state"
	intentCookieName = "oauth_intent"
	stateCookieTTL   = 600 // seconds
)

// OAuthHandler drives the OAuth2 federation round-trip
type OAuthHandler struct {
	providers         *oauth.Registry
	federationService service.FederationService
	authService       service.AuthService
	logger            *zap.Logger
}

// NewOAuthHandler creates a new oauth handler
func NewOAuthHandler(providers *oauth.Registry, federationService service.FederationService, authService service.AuthService, logger *zap.Logger) *OAuthHandler {
	return &OAuthHandler{
		providers:         providers,
		federationService: federationService,
		authService:       authService,
		logger:            logger,
	}
}

// Login redirects the browser to the provider's consent screen. The intent
// query parameter selects between session establishment and method linking.
func (h *OAuthHandler) Login(c *gin.Context) {
	provider, err := h.providers.Get(domain.ProviderType(c.Param("provider")))
	if err != nil {
		respondError(c, err, http.StatusNotFound)
		return
	}

	intent := domain.Intent(c.DefaultQuery("intent", string(domain.IntentSignIn)))
	if !intent.Valid() {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Bad request",
			Message: "intent must be sign_in or link",
		})
		return
	}

	state, err := utils.GenerateOpaqueToken(16)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "Internal server error",
			Message: "Failed to initiate oauth flow",
		})
		return
	}

	c.SetCookie(stateCookieName, state, stateCookieTTL, "/", "", true, true)
	c.SetCookie(intentCookieName, string(intent), stateCookieTTL, "/", "", true, true)

	c.Redirect(http.StatusFound, provider.AuthURL(state))
}

// Callback completes the round-trip: it checks the state, exchanges the code
// for a normalized profile and resolves it to a local account. Registered for
// both GET (Google, Facebook) and POST (Apple's form_post response mode).
func (h *OAuthHandler) Callback(c *gin.Context) {
	provider, err := h.providers.Get(domain.ProviderType(c.Param("provider")))
	if err != nil {
		respondError(c, err, http.StatusNotFound)
		return
	}

	expectedState, err := c.Cookie(stateCookieName)
	state := stateParam(c)
	if err != nil || state == "" || state != expectedState {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Bad request",
			Message: "OAuth state mismatch",
		})
		return
	}

	intent := domain.Intent(cookieValue(c, intentCookieName, string(domain.IntentSignIn)))
	if !intent.Valid() {
		intent = domain.IntentSignIn
	}

	c.SetCookie(stateCookieName, "", -1, "/", "", true, true)
	c.SetCookie(intentCookieName, "", -1, "/", "", true, true)

	code := codeParam(c)
	if code == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "Bad request",
			Message: "Authorization code missing",
		})
		return
	}

	// Apple posts the first-consent user payload alongside the code.
	ctx := oauth.WithFirstConsentUser(c.Request.Context(), c.PostForm("user"))

	profile, err := provider.ResolveProfile(ctx, code)
	if err != nil {
		h.logger.Warn("oauth profile resolution failed",
			zap.String("provider", c.Param("provider")),
			zap.Error(err),
		)
		respondError(c, err, http.StatusUnauthorized)
		return
	}

	user, principal, err := h.federationService.Resolve(ctx, profile, intent)
	if err != nil {
		respondError(c, err, http.StatusBadRequest)
		return
	}

	if intent == domain.IntentLink {
		c.JSON(http.StatusOK, dto.AuthMethodInfo{
			Provider:    string(principal.Provider),
			Email:       principal.Email,
			Verified:    true,
			DisplayName: principal.DisplayName,
			AvatarURL:   principal.AvatarURL,
		})
		return
	}

	response, err := h.authService.IssueTokens(ctx, user, principal.Provider)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "Internal server error",
			Message: err.Error(),
		})
		return
	}

	setRefreshCookie(c, response)
	c.JSON(http.StatusOK, response.AuthResponse)
}

// stateParam reads state from the query (GET callbacks) or the form body
// (Apple's form_post).
func stateParam(c *gin.Context) string {
	if v := c.Query("state"); v != "" {
		return v
	}
	return c.PostForm("state")
}

func codeParam(c *gin.Context) string {
	if v := c.Query("code"); v != "" {
		return v
	}
	return c.PostForm("code")
}

func cookieValue(c *gin.Context, name, fallback string) string {
	v, err := c.Cookie(name)
	if err != nil || v == "" {
		return fallback
	}
	return v
}
