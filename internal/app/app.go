package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/avelkine/identity-service/internal/config"
	"github.com/avelkine/identity-service/internal/handler"
	"github.com/avelkine/identity-service/internal/mailer"
	"github.com/avelkine/identity-service/internal/oauth"
	"github.com/avelkine/identity-service/internal/repository"
	"github.com/avelkine/identity-service/internal/service"
	"github.com/avelkine/identity-service/internal/utils"
	"github.com/avelkine/identity-service/pkg/observability"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	infra  Infrastructure
	config *config.Config
	router *gin.Engine
	server *http.Server
}

func NewApp(infra Infrastructure, cfg *config.Config) (*App, error) {
	store := repository.NewRepositories(infra.Postgres())

	jwtManager := utils.NewJWTManager(
		cfg.JWT.Secret,
		cfg.JWT.AccessTokenExpiry.Duration,
		cfg.JWT.RefreshTokenExpiry.Duration,
	)

	revocations := service.NewRevocationList(infra.Redis())
	rateLimiter := service.NewRateLimiter(infra.Redis())
	healthChecker := NewHealthChecker(infra)

	dispatcher, err := newDispatcher(cfg.Mailer, infra.Logger())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mailer: %w", err)
	}

	verificationService := service.NewVerificationService(
		store,
		dispatcher,
		infra.Logger(),
		cfg.Verification.EmailTokenLifetime.Duration,
		cfg.Verification.ResetTokenLifetime.Duration,
		cfg.Verification.ResendCooldown.Duration,
	)

	accountService := service.NewAccountService(store, verificationService, infra.Logger(), cfg.Security.BCryptCost)
	federationService := service.NewFederationService(store, infra.Logger())

	authService := service.NewAuthService(
		store,
		accountService,
		verificationService,
		jwtManager,
		revocations,
		infra.Logger(),
		cfg.Security.BCryptCost,
		cfg.JWT.RefreshTokenExpiry.Duration,
	)

	providers := oauth.NewRegistry(
		oauth.NewGoogleProvider(cfg.OAuth.Google),
		oauth.NewFacebookProvider(cfg.OAuth.Facebook),
		oauth.NewAppleProvider(cfg.OAuth.Apple, infra.Logger()),
	)

	authHandler := handler.NewAuthHandler(authService)
	accountHandler := handler.NewAccountHandler(accountService)
	oauthHandler := handler.NewOAuthHandler(providers, federationService, authService, infra.Logger())

	router := gin.Default()
	router.Use(otelgin.Middleware("identity-service"))
	router.Use(handler.LoggerMiddleware(infra.Logger()))
	router.Use(handler.CORSMiddleware(cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders))

	setupRoutes(router, cfg, authHandler, accountHandler, oauthHandler, authService, rateLimiter, healthChecker, infra.MetricsHandler())

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
	}

	return &App{
		infra:  infra,
		config: cfg,
		router: router,
		server: srv,
	}, nil
}

func (a *App) Router() *gin.Engine {
	return a.router
}

// newDispatcher picks Postmark when a server token is configured, otherwise
// emails are written to the log (development, tests).
func newDispatcher(cfg config.MailerConfig, logger *zap.Logger) (mailer.Dispatcher, error) {
	if cfg.PostmarkServerToken == "" {
		logger.Info("mailer: no Postmark token configured, dispatching to log")
		return mailer.NewLogDispatcher(logger), nil
	}
	return mailer.NewPostmarkDispatcher(cfg)
}

func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	authHandler *handler.AuthHandler,
	accountHandler *handler.AccountHandler,
	oauthHandler *handler.OAuthHandler,
	authService service.AuthService,
	rateLimiter *service.RateLimiter,
	healthChecker *HealthChecker,
	metricsHandler http.Handler,
) {
	router.GET("/metrics", observability.PrometheusHandler(metricsHandler))
	router.GET("/health", healthChecker.Handler)

	limit := func(scope string) gin.HandlerFunc {
		return handler.RateLimitMiddleware(rateLimiter, cfg.Security.RateLimitRequests, cfg.Security.RateLimitWindow.Duration, handler.ScopedIPKey(scope))
	}
	// Credential guessing and email dispatch draw on separate budgets.
	credentialLimit := limit("credentials")
	verificationLimit := limit("verification")
	authRequired := handler.AuthMiddleware(authService)

	api := router.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", credentialLimit, authHandler.Register)
			auth.POST("/login", credentialLimit, authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", authRequired, authHandler.Logout)
			auth.GET("/me", authRequired, authHandler.GetMe)

			auth.POST("/verify-email", verificationLimit, authHandler.VerifyEmail)
			auth.POST("/verify-email/resend", authRequired, authHandler.ResendVerification)
			auth.POST("/password-reset", verificationLimit, authHandler.RequestPasswordReset)
			auth.POST("/password-reset/confirm", verificationLimit, authHandler.ConfirmPasswordReset)
		}

		account := api.Group("/account", authRequired)
		{
			account.POST("/password", accountHandler.ChangePassword)
			account.POST("/methods/local", accountHandler.LinkLocal)
			account.DELETE("/methods/:provider", accountHandler.Unlink)

			account.POST("/email-change", accountHandler.RequestEmailChange)
			account.POST("/email-change/resend", accountHandler.ResendEmailChange)
			account.DELETE("/email-change", accountHandler.CancelEmailChange)
		}
		// Confirmation arrives via the link in the email, before the user
		// necessarily holds a session for the new address.
		api.POST("/account/email-change/confirm", verificationLimit, accountHandler.ConfirmEmailChange)

		oauthGroup := api.Group("/oauth")
		{
			oauthGroup.GET("/:provider/login", oauthHandler.Login)
			oauthGroup.GET("/:provider/callback", oauthHandler.Callback)
			oauthGroup.POST("/:provider/callback", oauthHandler.Callback)
		}
	}
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		a.infra.Logger().Info("Application starting",
			zap.String("host", a.config.Server.Host),
			zap.String("port", a.config.Server.Port),
		)

		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.infra.Logger().Error("Server error", zap.Error(err))
			errChan <- err
		}
	}()

	var serverErr error
	select {
	case err := <-errChan:
		a.infra.Logger().Error("Application failed to start", zap.Error(err))
		serverErr = err
	case <-ctx.Done():
		a.infra.Logger().Info("Application stopped by context")
	}

	if err := a.Shutdown(); err != nil {
		a.infra.Logger().Error("Shutdown error", zap.Error(err))
		if serverErr != nil {
			return errors.Join(serverErr, err)
		}
		return err
	}

	return serverErr
}

func (a *App) Shutdown() error {
	a.infra.Logger().Info("Application shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	errs := make(chan error, 2)

	go func() {
		errs <- a.server.Shutdown(ctx)
	}()

	go func() {
		errs <- a.infra.Shutdown(ctx)
	}()

	err := errors.Join(<-errs, <-errs)
	if err != nil {
		a.infra.Logger().Error("Shutdown failed", zap.Error(err))
		return err
	}

	a.infra.Logger().Info("Application exited successfully")
	return nil
}
