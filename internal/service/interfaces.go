package service

import (
	"context"

	"github.com/avelkine/identity-service/internal/domain"
	"github.com/avelkine/identity-service/internal/dto"
)

// AuthService defines methods for session establishment and credential flows
type AuthService interface {
	Register(ctx context.Context, req *dto.RegisterRequest) (*AuthResponseWithRefreshToken, error)
	Login(ctx context.Context, req *dto.LoginRequest) (*AuthResponseWithRefreshToken, error)
	RefreshToken(ctx context.Context, refreshToken string) (*AuthResponseWithRefreshToken, error)
	Logout(ctx context.Context, userID, refreshToken string) error
	GetUser(ctx context.Context, userID string) (*dto.UserResponse, error)
	ValidateToken(ctx context.Context, token string) (*domain.TokenClaims, error)

	// IssueTokens establishes a session for an already-resolved user, e.g.
	// after a completed OAuth2 round-trip. The method records which auth
	// method established the session and ends up in the token claims.
	IssueTokens(ctx context.Context, user *domain.User, method domain.ProviderType) (*AuthResponseWithRefreshToken, error)

	VerifyEmail(ctx context.Context, tokenValue string) error
	ResendEmailVerification(ctx context.Context, userID string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, tokenValue, newPassword string) error
}

// AccountService defines methods for managing a user's authentication methods
type AccountService interface {
	RegisterLocal(ctx context.Context, email, password string) (*domain.User, *domain.Principal, error)
	LinkLocal(ctx context.Context, userID, password string) (*domain.Principal, error)
	UnlinkAuthMethod(ctx context.Context, userID string, provider domain.ProviderType) error
	ListAuthMethods(ctx context.Context, userID string) ([]*domain.Principal, error)

	RequestEmailChange(ctx context.Context, userID, newEmail string) error
	ConfirmEmailChange(ctx context.Context, tokenValue string) (*domain.User, error)
	CancelEmailChangeRequest(ctx context.Context, userID string) error
	ResendEmailChangeRequest(ctx context.Context, userID string) error

	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
}

// VerificationService manages the verification-token lifecycle
type VerificationService interface {
	Issue(ctx context.Context, principal *domain.Principal, purpose domain.TokenPurpose) (*domain.VerificationToken, error)
	Validate(ctx context.Context, value string, purpose domain.TokenPurpose) (*domain.VerificationToken, error)
	Consume(ctx context.Context, token *domain.VerificationToken) error
}

// FederationService resolves a normalized provider profile to a local
// user/principal pair.
type FederationService interface {
	Resolve(ctx context.Context, profile *domain.ProviderProfile, intent domain.Intent) (*domain.User, *domain.Principal, error)
}
