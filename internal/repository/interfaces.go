package repository

import (
	"context"

	"github.com/avelkine/identity-service/internal/domain"
)

// UserRepository defines methods for user operations
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	UpdateLastLogin(ctx context.Context, userID string) error
	Delete(ctx context.Context, id string) error
}

// PrincipalRepository defines methods for principal operations
type PrincipalRepository interface {
	Create(ctx context.Context, principal *domain.Principal) error
	GetByID(ctx context.Context, id string) (*domain.Principal, error)
	GetByProviderSubject(ctx context.Context, provider domain.ProviderType, subjectID string) (*domain.Principal, error)
	GetVerifiedLocalByEmail(ctx context.Context, email string) (*domain.Principal, error)
	ListByUserID(ctx context.Context, userID string) ([]*domain.Principal, error)
	// ListByUserIDForUpdate locks the user's principal rows for the duration
	// of the surrounding transaction, so a read-decide-delete sequence cannot
	// interleave with another request for the same user.
	ListByUserIDForUpdate(ctx context.Context, userID string) ([]*domain.Principal, error)
	Update(ctx context.Context, principal *domain.Principal) error
	Delete(ctx context.Context, id string) error
}

// VerificationTokenRepository defines methods for verification token operations
type VerificationTokenRepository interface {
	Create(ctx context.Context, token *domain.VerificationToken) error
	GetByValue(ctx context.Context, value string) (*domain.VerificationToken, error)
	GetByPrincipalAndPurpose(ctx context.Context, principalID string, purpose domain.TokenPurpose) (*domain.VerificationToken, error)
	// GetByPrincipalAndPurposeForUpdate locks the pair's token row for the
	// duration of the surrounding transaction, so a cooldown check and the
	// supersede that follows it cannot interleave with a concurrent issue.
	GetByPrincipalAndPurposeForUpdate(ctx context.Context, principalID string, purpose domain.TokenPurpose) (*domain.VerificationToken, error)
	DeleteByValue(ctx context.Context, value string) error
	DeleteByPrincipal(ctx context.Context, principalID string) error
}

// TokenRepository defines methods for refresh token operations
type TokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	GetByUserID(ctx context.Context, userID string) ([]*domain.RefreshToken, error)
	Delete(ctx context.Context, tokenID string) error
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context) error
}
