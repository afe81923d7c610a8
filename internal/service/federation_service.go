package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/avelkine/identity-service/internal/domain"
	"github.com/avelkine/identity-service/internal/repository"
	"github.com/avelkine/identity-service/internal/utils"
)

// federationService implements FederationService interface
type federationService struct {
	store  repository.Store
	logger *zap.Logger
}

// NewFederationService creates a new federation service
func NewFederationService(store repository.Store, logger *zap.Logger) FederationService {
	return &federationService{store: store, logger: logger}
}

// Resolve finds or creates the user/principal pair for a provider profile.
// With IntentLink no account is ever created: linking requires an existing
// user matched by email. User and principal creation commit together.
func (s *federationService) Resolve(ctx context.Context, profile *domain.ProviderProfile, intent domain.Intent) (*domain.User, *domain.Principal, error) {
	if profile.Email == "" || profile.DisplayName == "" || profile.SubjectID == "" {
		return nil, nil, ErrIncompleteProviderProfile
	}

	email := utils.SanitizeEmail(profile.Email)

	user, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if user != nil {
		return s.resolveForExistingUser(ctx, user, profile)
	}

	if intent == domain.IntentLink {
		return nil, nil, ErrNoAccountToLink
	}

	newUser := &domain.User{
		Email:           email,
		IsEmailVerified: true,
	}
	principal := s.newPrincipal(profile, email)

	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		if err := tx.Users().Create(ctx, newUser); err != nil {
			return err
		}
		principal.UserID = newUser.ID
		return tx.Principals().Create(ctx, principal)
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicatePrincipal) || errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, nil, ErrDuplicateAuthMethod
		}
		return nil, nil, fmt.Errorf("failed to create federated user: %w", err)
	}

	s.logger.Info("federated sign-up",
		zap.String("provider", string(profile.Provider)),
		zap.String("user_id", newUser.ID),
	)

	return newUser, principal, nil
}

func (s *federationService) resolveForExistingUser(ctx context.Context, user *domain.User, profile *domain.ProviderProfile) (*domain.User, *domain.Principal, error) {
	principal, err := s.store.Principals().GetByProviderSubject(ctx, profile.Provider, profile.SubjectID)
	if err == nil {
		// The subject binding wins over the email match: if this identity is
		// already attached to another account, resolve to that account.
		if principal.UserID != user.ID {
			user, err = s.store.Users().GetByID(ctx, principal.UserID)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to get bound user: %w", err)
			}
		}
		// Returning identity: refresh the cached display attributes.
		if principal.DisplayName != profile.DisplayName || principal.AvatarURL != profile.AvatarURL {
			principal.DisplayName = profile.DisplayName
			principal.AvatarURL = profile.AvatarURL
			if err := s.store.Principals().Update(ctx, principal); err != nil {
				s.logger.Warn("failed to refresh principal attributes",
					zap.String("principal_id", principal.ID),
					zap.Error(err),
				)
			}
		}
		return user, principal, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, fmt.Errorf("failed to look up principal: %w", err)
	}

	// Known account, new provider: attach it as an additional login method.
	principal = s.newPrincipal(profile, user.Email)
	principal.UserID = user.ID

	if err := s.store.Principals().Create(ctx, principal); err != nil {
		if errors.Is(err, repository.ErrDuplicatePrincipal) {
			return nil, nil, ErrDuplicateAuthMethod
		}
		return nil, nil, fmt.Errorf("failed to attach principal: %w", err)
	}

	return user, principal, nil
}

func (s *federationService) newPrincipal(profile *domain.ProviderProfile, email string) *domain.Principal {
	return &domain.Principal{
		Provider:          profile.Provider,
		Email:             email,
		IsEmailVerified:   true,
		ProviderSubjectID: profile.SubjectID,
		DisplayName:       profile.DisplayName,
		AvatarURL:         profile.AvatarURL,
	}
}
