package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/avelkine/identity-service/internal/domain"
	"github.com/avelkine/identity-service/internal/repository"
	"github.com/avelkine/identity-service/internal/utils"
)

// accountService implements AccountService interface
type accountService struct {
	store        repository.Store
	verification VerificationService
	logger       *zap.Logger
	bcryptCost   int
}

// NewAccountService creates a new account service
func NewAccountService(
	store repository.Store,
	verification VerificationService,
	logger *zap.Logger,
	bcryptCost int,
) AccountService {
	return &accountService{
		store:        store,
		verification: verification,
		logger:       logger,
		bcryptCost:   bcryptCost,
	}
}

// RegisterLocal creates a user with an unverified local principal and issues
// an email verification token.
func (s *accountService) RegisterLocal(ctx context.Context, email, password string) (*domain.User, *domain.Principal, error) {
	email = utils.SanitizeEmail(email)

	if !utils.ValidateEmail(email) {
		return nil, nil, fmt.Errorf("invalid email format")
	}
	if !utils.ValidatePassword(password) {
		return nil, nil, fmt.Errorf("password must be at least 8 characters long and contain uppercase, lowercase, and number")
	}

	_, err := s.store.Users().GetByEmail(ctx, email)
	if err == nil {
		return nil, nil, ErrEmailAlreadyRegistered
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, fmt.Errorf("failed to check user existence: %w", err)
	}

	passwordHash, err := utils.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		Email:           email,
		IsEmailVerified: false,
	}
	principal := &domain.Principal{
		Provider:        domain.ProviderLocal,
		Email:           email,
		PasswordHash:    passwordHash,
		IsEmailVerified: false,
	}

	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			return err
		}
		principal.UserID = user.ID
		return tx.Principals().Create(ctx, principal)
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) || errors.Is(err, repository.ErrDuplicatePrincipal) {
			return nil, nil, ErrEmailAlreadyRegistered
		}
		return nil, nil, fmt.Errorf("failed to register user: %w", err)
	}

	if _, err := s.verification.Issue(ctx, principal, domain.PurposeEmailVerification); err != nil {
		// Registration is committed; the user can request a resend.
		s.logger.Error("failed to issue verification token after registration",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}

	return user, principal, nil
}

// LinkLocal attaches local credentials to an account that signed up through
// a federated provider.
func (s *accountService) LinkLocal(ctx context.Context, userID, password string) (*domain.Principal, error) {
	if !utils.ValidatePassword(password) {
		return nil, fmt.Errorf("password must be at least 8 characters long and contain uppercase, lowercase, and number")
	}

	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	principals, err := s.store.Principals().ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list principals: %w", err)
	}
	for _, p := range principals {
		if p.IsLocal() && p.IsEmailVerified {
			return nil, ErrAlreadyLinked
		}
	}

	passwordHash, err := utils.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	principal := &domain.Principal{
		UserID:          user.ID,
		Provider:        domain.ProviderLocal,
		Email:           user.Email,
		PasswordHash:    passwordHash,
		IsEmailVerified: false,
	}

	if err := s.store.Principals().Create(ctx, principal); err != nil {
		if errors.Is(err, repository.ErrDuplicatePrincipal) {
			return nil, ErrDuplicateAuthMethod
		}
		return nil, fmt.Errorf("failed to create local principal: %w", err)
	}

	if _, err := s.verification.Issue(ctx, principal, domain.PurposeEmailVerification); err != nil {
		s.logger.Error("failed to issue verification token after linking",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}

	return principal, nil
}

// UnlinkAuthMethod removes one of the user's authentication methods. The
// principal set is read under a row lock so two concurrent unlinks cannot
// both observe "more than one remaining" and leave the account without any
// login method.
func (s *accountService) UnlinkAuthMethod(ctx context.Context, userID string, provider domain.ProviderType) error {
	return s.store.WithinTx(ctx, func(tx repository.Store) error {
		principals, err := tx.Principals().ListByUserIDForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to list principals: %w", err)
		}

		target := resolveByProvider(principals, provider)
		if target == nil {
			return ErrAuthMethodNotFound
		}
		if len(principals) == 1 {
			return ErrLastAuthMethod
		}

		if err := tx.VerificationTokens().DeleteByPrincipal(ctx, target.ID); err != nil {
			return fmt.Errorf("failed to delete principal tokens: %w", err)
		}
		if err := tx.Principals().Delete(ctx, target.ID); err != nil {
			return fmt.Errorf("failed to delete principal: %w", err)
		}
		return nil
	})
}

// ListAuthMethods returns the user's principals
func (s *accountService) ListAuthMethods(ctx context.Context, userID string) ([]*domain.Principal, error) {
	principals, err := s.store.Principals().ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list principals: %w", err)
	}
	return principals, nil
}

// RequestEmailChange starts an email change by cloning the verified local
// principal under the new address. The current principal stays untouched
// until the new one is confirmed. The principal set is read under a row lock
// so two concurrent requests cannot both pass the pending check.
func (s *accountService) RequestEmailChange(ctx context.Context, userID, newEmail string) error {
	newEmail = utils.SanitizeEmail(newEmail)
	if !utils.ValidateEmail(newEmail) {
		return fmt.Errorf("invalid email format")
	}

	var pending *domain.Principal

	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		user, err := tx.Users().GetByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}
		if user.Email == newEmail {
			return ErrSameEmail
		}

		// The address must be free before a confirmation email goes out;
		// otherwise the flow would only die at confirmation time.
		if _, err := tx.Users().GetByEmail(ctx, newEmail); err == nil {
			return ErrEmailAlreadyRegistered
		} else if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("failed to check new email: %w", err)
		}

		principals, err := tx.Principals().ListByUserIDForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to list principals: %w", err)
		}

		var current *domain.Principal
		for _, p := range principals {
			if !p.IsLocal() {
				continue
			}
			if !p.IsEmailVerified {
				return ErrChangeAlreadyPending
			}
			current = p
		}
		if current == nil {
			return ErrAuthMethodNotFound
		}

		pending = &domain.Principal{
			UserID:          user.ID,
			Provider:        domain.ProviderLocal,
			Email:           newEmail,
			PasswordHash:    current.PasswordHash,
			IsEmailVerified: false,
		}

		if err := tx.Principals().Create(ctx, pending); err != nil {
			if errors.Is(err, repository.ErrDuplicatePrincipal) {
				return ErrDuplicateAuthMethod
			}
			return fmt.Errorf("failed to create pending principal: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if _, err := s.verification.Issue(ctx, pending, domain.PurposeEmailChangeVerification); err != nil {
		s.logger.Error("failed to issue email change token",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}

	return nil
}

// ConfirmEmailChange redeems an email change token: the pending principal
// becomes verified, its email is promoted to the email of record, and every
// other principal whose email differs is unlinked. The whole sequence
// commits as one unit; the just-confirmed principal always survives, so the
// cascade cannot violate the last-auth-method invariant.
func (s *accountService) ConfirmEmailChange(ctx context.Context, tokenValue string) (*domain.User, error) {
	token, err := s.verification.Validate(ctx, tokenValue, domain.PurposeEmailChangeVerification)
	if err != nil {
		return nil, err
	}

	var user *domain.User

	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		// Consume before committing the side effects it authorizes.
		if err := tx.VerificationTokens().DeleteByValue(ctx, token.Value); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrInvalidOrExpiredToken
			}
			return fmt.Errorf("failed to consume token: %w", err)
		}

		pending, err := tx.Principals().GetByID(ctx, token.PrincipalID)
		if err != nil {
			return fmt.Errorf("failed to get pending principal: %w", err)
		}

		principals, err := tx.Principals().ListByUserIDForUpdate(ctx, pending.UserID)
		if err != nil {
			return fmt.Errorf("failed to list principals: %w", err)
		}

		pending.IsEmailVerified = true
		if err := tx.Principals().Update(ctx, pending); err != nil {
			return fmt.Errorf("failed to verify pending principal: %w", err)
		}

		user, err = tx.Users().GetByID(ctx, pending.UserID)
		if err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}
		user.Email = pending.Email
		user.IsEmailVerified = true
		if err := tx.Users().Update(ctx, user); err != nil {
			// The address was free at request time but another account has
			// claimed it since.
			if errors.Is(err, repository.ErrDuplicateEmail) {
				return ErrEmailAlreadyRegistered
			}
			return fmt.Errorf("failed to promote email of record: %w", err)
		}

		// Single-credential-domain policy: methods bound to the old address
		// are no longer usable identities for this account.
		for _, p := range principals {
			if p.ID == pending.ID || p.Email == pending.Email {
				continue
			}
			if err := tx.VerificationTokens().DeleteByPrincipal(ctx, p.ID); err != nil {
				return fmt.Errorf("failed to delete principal tokens: %w", err)
			}
			if err := tx.Principals().Delete(ctx, p.ID); err != nil {
				return fmt.Errorf("failed to unlink stale principal: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

// CancelEmailChangeRequest deletes the pending principal and its token
func (s *accountService) CancelEmailChangeRequest(ctx context.Context, userID string) error {
	pending, err := s.pendingLocalPrincipal(ctx, userID)
	if err != nil {
		return err
	}

	return s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.VerificationTokens().DeleteByPrincipal(ctx, pending.ID); err != nil {
			return fmt.Errorf("failed to delete pending tokens: %w", err)
		}
		if err := tx.Principals().Delete(ctx, pending.ID); err != nil {
			return fmt.Errorf("failed to delete pending principal: %w", err)
		}
		return nil
	})
}

// ResendEmailChangeRequest re-issues the email change token, subject to cooldown
func (s *accountService) ResendEmailChangeRequest(ctx context.Context, userID string) error {
	pending, err := s.pendingLocalPrincipal(ctx, userID)
	if err != nil {
		return err
	}

	_, err = s.verification.Issue(ctx, pending, domain.PurposeEmailChangeVerification)
	return err
}

// ChangePassword re-hashes the password of the user's verified local
// principal after checking the old one.
func (s *accountService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if !utils.ValidatePassword(newPassword) {
		return fmt.Errorf("password must be at least 8 characters long and contain uppercase, lowercase, and number")
	}

	principals, err := s.store.Principals().ListByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list principals: %w", err)
	}

	var local *domain.Principal
	for _, p := range principals {
		if p.IsLocal() && p.IsEmailVerified {
			local = p
			break
		}
	}
	if local == nil {
		return ErrAuthMethodNotFound
	}

	if !utils.CheckPasswordHash(oldPassword, local.PasswordHash) {
		return ErrInvalidCredentials
	}

	passwordHash, err := utils.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	local.PasswordHash = passwordHash
	local.LastPasswordResetAt = &now

	if err := s.store.Principals().Update(ctx, local); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return nil
}

func (s *accountService) pendingLocalPrincipal(ctx context.Context, userID string) (*domain.Principal, error) {
	principals, err := s.store.Principals().ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list principals: %w", err)
	}

	for _, p := range principals {
		if p.IsLocal() && !p.IsEmailVerified {
			return p, nil
		}
	}
	return nil, ErrNoPendingRequest
}

// resolveByProvider picks the principal to unlink. For local principals the
// verified one wins over a pending email-change clone.
func resolveByProvider(principals []*domain.Principal, provider domain.ProviderType) *domain.Principal {
	var target *domain.Principal
	for _, p := range principals {
		if p.Provider != provider {
			continue
		}
		if target == nil || (p.IsLocal() && p.IsEmailVerified && !target.IsEmailVerified) {
			target = p
		}
	}
	return target
}
