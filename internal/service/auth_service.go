package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/avelkine/identity-service/internal/domain"
	"github.com/avelkine/identity-service/internal/dto"
	"github.com/avelkine/identity-service/internal/repository"
	"github.com/avelkine/identity-service/internal/utils"
)

// authService implements AuthService interface
type authService struct {
	store              repository.Store
	account            AccountService
	verification       VerificationService
	jwtManager         *utils.JWTManager
	revocations        *RevocationList
	logger             *zap.Logger
	bcryptCost         int
	refreshTokenExpiry time.Duration
}

// NewAuthService creates a new auth service
func NewAuthService(
	store repository.Store,
	account AccountService,
	verification VerificationService,
	jwtManager *utils.JWTManager,
	revocations *RevocationList,
	logger *zap.Logger,
	bcryptCost int,
	refreshTokenExpiry time.Duration,
) AuthService {
	return &authService{
		store:              store,
		account:            account,
		verification:       verification,
		jwtManager:         jwtManager,
		revocations:        revocations,
		logger:             logger,
		bcryptCost:         bcryptCost,
		refreshTokenExpiry: refreshTokenExpiry,
	}
}

// Register registers a new user with local credentials
func (s *authService) Register(ctx context.Context, req *dto.RegisterRequest) (*AuthResponseWithRefreshToken, error) {
	user, _, err := s.account.RegisterLocal(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}

	return s.IssueTokens(ctx, user, domain.ProviderLocal)
}

// Login authenticates a user against their verified local principal
func (s *authService) Login(ctx context.Context, req *dto.LoginRequest) (*AuthResponseWithRefreshToken, error) {
	principal, err := s.store.Principals().GetVerifiedLocalByEmail(ctx, utils.SanitizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get principal: %w", err)
	}

	if !utils.CheckPasswordHash(req.Password, principal.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.Users().GetByID(ctx, principal.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := s.store.Users().UpdateLastLogin(ctx, user.ID); err != nil {
		// Best effort; a failed timestamp must not block the login.
		s.logger.Warn("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	}

	return s.IssueTokens(ctx, user, principal.Provider)
}

// RefreshToken rotates the pair. The session keeps reporting the auth method
// it was originally established with.
func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*AuthResponseWithRefreshToken, error) {
	userID, method, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}

	tokenHash := s.hashToken(refreshToken)

	dbToken, err := s.store.Tokens().GetByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("invalid refresh token")
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	if time.Now().After(dbToken.ExpiresAt) {
		return nil, fmt.Errorf("refresh token expired")
	}

	revoked, err := s.revocations.IsRevoked(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to check revocation: %w", err)
	}
	if revoked {
		return nil, fmt.Errorf("refresh token has been revoked")
	}

	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	// Rotate: invalidate the presented token before issuing the next pair.
	if err := s.revocations.Revoke(ctx, refreshToken, s.refreshTokenExpiry); err != nil {
		s.logger.Warn("failed to revoke rotated token", zap.Error(err))
	}
	if err := s.store.Tokens().DeleteByTokenHash(ctx, tokenHash); err != nil {
		s.logger.Warn("failed to delete rotated token", zap.Error(err))
	}

	return s.IssueTokens(ctx, user, method)
}

// Logout logs out a user
func (s *authService) Logout(ctx context.Context, userID, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	tokenHash := s.hashToken(refreshToken)

	dbToken, err := s.store.Tokens().GetByTokenHash(ctx, tokenHash)
	if err != nil || dbToken.UserID != userID {
		return nil
	}

	if err := s.revocations.Revoke(ctx, refreshToken, s.refreshTokenExpiry); err != nil {
		s.logger.Warn("failed to revoke token on logout", zap.Error(err))
	}
	if err := s.store.Tokens().DeleteByTokenHash(ctx, tokenHash); err != nil {
		s.logger.Warn("failed to delete token on logout", zap.Error(err))
	}

	return nil
}

// GetUser gets user information together with linked auth methods
func (s *authService) GetUser(ctx context.Context, userID string) (*dto.UserResponse, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	principals, err := s.store.Principals().ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list principals: %w", err)
	}

	response := &dto.UserResponse{
		ID:              user.ID,
		Email:           user.Email,
		CreatedAt:       user.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       user.UpdatedAt.Format(time.RFC3339),
		IsEmailVerified: user.IsEmailVerified,
	}

	if user.LastLoginAt != nil {
		lastLogin := user.LastLoginAt.Format(time.RFC3339)
		response.LastLoginAt = &lastLogin
	}

	for _, p := range principals {
		response.AuthMethods = append(response.AuthMethods, dto.AuthMethodInfo{
			Provider:    string(p.Provider),
			Email:       p.Email,
			Verified:    p.IsEmailVerified || !p.IsLocal(),
			DisplayName: p.DisplayName,
			AvatarURL:   p.AvatarURL,
		})
	}

	return response, nil
}

// ValidateToken validates an access token
func (s *authService) ValidateToken(ctx context.Context, token string) (*domain.TokenClaims, error) {
	revoked, err := s.revocations.IsRevoked(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to check revocation: %w", err)
	}
	if revoked {
		return nil, fmt.Errorf("token has been revoked")
	}

	claims, err := s.jwtManager.ValidateToken(token)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	return claims, nil
}

// VerifyEmail redeems an email verification token. The token is consumed in
// the same transaction that marks the principal and user verified.
func (s *authService) VerifyEmail(ctx context.Context, tokenValue string) error {
	token, err := s.verification.Validate(ctx, tokenValue, domain.PurposeEmailVerification)
	if err != nil {
		return err
	}

	return s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.VerificationTokens().DeleteByValue(ctx, token.Value); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrInvalidOrExpiredToken
			}
			return fmt.Errorf("failed to consume token: %w", err)
		}

		principal, err := tx.Principals().GetByID(ctx, token.PrincipalID)
		if err != nil {
			return fmt.Errorf("failed to get principal: %w", err)
		}

		principal.IsEmailVerified = true
		if err := tx.Principals().Update(ctx, principal); err != nil {
			return fmt.Errorf("failed to mark principal verified: %w", err)
		}

		user, err := tx.Users().GetByID(ctx, principal.UserID)
		if err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}

		if user.Email == principal.Email && !user.IsEmailVerified {
			user.IsEmailVerified = true
			if err := tx.Users().Update(ctx, user); err != nil {
				return fmt.Errorf("failed to mark user verified: %w", err)
			}
		}

		return nil
	})
}

// ResendEmailVerification re-issues the verification token for the user's
// unverified local principal, subject to cooldown.
func (s *authService) ResendEmailVerification(ctx context.Context, userID string) error {
	principals, err := s.store.Principals().ListByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list principals: %w", err)
	}

	for _, p := range principals {
		if p.IsLocal() && !p.IsEmailVerified {
			_, err := s.verification.Issue(ctx, p, domain.PurposeEmailVerification)
			return err
		}
	}

	return ErrNoPendingRequest
}

// RequestPasswordReset issues a reset token for the email's local principal.
// Unknown emails succeed silently so the endpoint cannot be used to probe
// which addresses are registered.
func (s *authService) RequestPasswordReset(ctx context.Context, email string) error {
	principal, err := s.store.Principals().GetVerifiedLocalByEmail(ctx, utils.SanitizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to get principal: %w", err)
	}

	_, err = s.verification.Issue(ctx, principal, domain.PurposePasswordReset)
	return err
}

// ResetPassword redeems a password reset token and sets the new password
// without requiring the old one. Token consumption and the hash update
// commit together.
func (s *authService) ResetPassword(ctx context.Context, tokenValue, newPassword string) error {
	if !utils.ValidatePassword(newPassword) {
		return fmt.Errorf("password must be at least 8 characters long and contain uppercase, lowercase, and number")
	}

	token, err := s.verification.Validate(ctx, tokenValue, domain.PurposePasswordReset)
	if err != nil {
		return err
	}

	passwordHash, err := utils.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.VerificationTokens().DeleteByValue(ctx, token.Value); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrInvalidOrExpiredToken
			}
			return fmt.Errorf("failed to consume token: %w", err)
		}

		principal, err := tx.Principals().GetByID(ctx, token.PrincipalID)
		if err != nil {
			return fmt.Errorf("failed to get principal: %w", err)
		}

		now := time.Now()
		principal.PasswordHash = passwordHash
		principal.LastPasswordResetAt = &now

		if err := tx.Principals().Update(ctx, principal); err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}

		return nil
	})
}

// hashToken hashes a token using SHA256
func (s *authService) hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
