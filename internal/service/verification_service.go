package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/avelkine/identity-service/internal/domain"
	"github.com/avelkine/identity-service/internal/mailer"
	"github.com/avelkine/identity-service/internal/repository"
	"github.com/avelkine/identity-service/internal/utils"
)

const otpLength = 6
const opaqueTokenBytes = 32

// verificationService implements VerificationService interface
type verificationService struct {
	store          repository.Store
	dispatcher     mailer.Dispatcher
	logger         *zap.Logger
	emailLifetime  time.Duration
	resetLifetime  time.Duration
	resendCooldown time.Duration
}

// NewVerificationService creates a new verification token service
func NewVerificationService(
	store repository.Store,
	dispatcher mailer.Dispatcher,
	logger *zap.Logger,
	emailLifetime, resetLifetime, resendCooldown time.Duration,
) VerificationService {
	return &verificationService{
		store:          store,
		dispatcher:     dispatcher,
		logger:         logger,
		emailLifetime:  emailLifetime,
		resetLifetime:  resetLifetime,
		resendCooldown: resendCooldown,
	}
}

// Issue creates a live token for (principal, purpose), superseding any prior
// one atomically. A token issued within the cooldown window blocks re-issue
// with a CooldownError, which also makes retried issuance idempotent. The
// cooldown check runs under a row lock inside the supersede transaction, so
// two concurrent issues cannot both pass it; when neither finds a row to
// lock, the unique (principal_id, purpose) index breaks the tie and the
// loser surfaces a full cooldown. The notification email is dispatched only
// after the token is committed.
func (s *verificationService) Issue(ctx context.Context, principal *domain.Principal, purpose domain.TokenPurpose) (*domain.VerificationToken, error) {
	value, err := s.generateValue(purpose)
	if err != nil {
		return nil, err
	}

	lifetime := s.lifetime(purpose)
	now := time.Now()
	token := &domain.VerificationToken{
		Value:       value,
		PrincipalID: principal.ID,
		Purpose:     purpose,
		CreatedAt:   now,
		ExpiresAt:   now.Add(lifetime),
	}

	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		existing, err := tx.VerificationTokens().GetByPrincipalAndPurposeForUpdate(ctx, principal.ID, purpose)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("failed to check existing token: %w", err)
		}
		if err == nil {
			elapsed := time.Since(existing.CreatedAt)
			if elapsed < s.resendCooldown {
				return &CooldownError{Remaining: s.resendCooldown - elapsed}
			}
			if err := tx.VerificationTokens().DeleteByValue(ctx, existing.Value); err != nil {
				return fmt.Errorf("failed to supersede token: %w", err)
			}
		}
		return tx.VerificationTokens().Create(ctx, token)
	})
	if err != nil {
		var cooldown *CooldownError
		if errors.As(err, &cooldown) {
			return nil, cooldown
		}
		if errors.Is(err, repository.ErrDuplicateTokenForPurpose) {
			// A concurrent issue won the insert race; its token is the live one.
			return nil, &CooldownError{Remaining: s.resendCooldown}
		}
		return nil, fmt.Errorf("failed to issue verification token: %w", err)
	}

	if err := s.dispatcher.Send(ctx, principal.Email, templateFor(purpose), map[string]string{
		"token":    value,
		"lifetime": lifetime.String(),
	}); err != nil {
		// Delivery failure must not undo the committed token.
		s.logger.Error("failed to dispatch verification email",
			zap.String("principal_id", principal.ID),
			zap.String("purpose", string(purpose)),
			zap.Error(err),
		)
	}

	return token, nil
}

// Validate looks up a live token by value. Unknown and expired values are
// indistinguishable to the caller; expired tokens are deleted on sight.
func (s *verificationService) Validate(ctx context.Context, value string, purpose domain.TokenPurpose) (*domain.VerificationToken, error) {
	token, err := s.store.VerificationTokens().GetByValue(ctx, value)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	if token.IsExpired(time.Now()) {
		if err := s.store.VerificationTokens().DeleteByValue(ctx, token.Value); err != nil && !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("failed to delete expired token", zap.Error(err))
		}
		return nil, ErrInvalidOrExpiredToken
	}

	if token.Purpose != purpose {
		return nil, ErrWrongTokenPurpose
	}

	return token, nil
}

// Consume destroys a token after successful redemption. Callers that perform
// a database side effect in the same operation consume the token inside that
// transaction instead, via the transaction-bound repositories.
func (s *verificationService) Consume(ctx context.Context, token *domain.VerificationToken) error {
	if err := s.store.VerificationTokens().DeleteByValue(ctx, token.Value); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("failed to consume token: %w", err)
	}
	return nil
}

func (s *verificationService) generateValue(purpose domain.TokenPurpose) (string, error) {
	// Email codes are typed by hand, so a short OTP; reset tokens travel in a
	// link and get full entropy.
	if purpose == domain.PurposePasswordReset {
		return utils.GenerateOpaqueToken(opaqueTokenBytes)
	}
	return utils.GenerateOTP(otpLength)
}

func (s *verificationService) lifetime(purpose domain.TokenPurpose) time.Duration {
	if purpose == domain.PurposePasswordReset {
		return s.resetLifetime
	}
	return s.emailLifetime
}

func templateFor(purpose domain.TokenPurpose) mailer.TemplateKind {
	switch purpose {
	case domain.PurposeEmailChangeVerification:
		return mailer.TemplateEmailChange
	case domain.PurposePasswordReset:
		return mailer.TemplatePasswordReset
	default:
		return mailer.TemplateEmailVerification
	}
}
