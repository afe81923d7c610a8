package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/avelkine/identity-service/internal/domain"
	"github.com/avelkine/identity-service/pkg/database"
)

// verificationTokenRepository implements VerificationTokenRepository interface
type verificationTokenRepository struct {
	q database.Querier
}

// NewVerificationTokenRepository creates a new verification token repository
func NewVerificationTokenRepository(q database.Querier) VerificationTokenRepository {
	return &verificationTokenRepository{q: q}
}

// Create creates a new verification token
func (r *verificationTokenRepository) Create(ctx context.Context, token *domain.VerificationToken) error {
	query := `
		INSERT INTO verification_tokens (value, principal_id, purpose, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}

	_, err := r.q.ExecContext(ctx, query,
		token.Value,
		token.PrincipalID,
		token.Purpose,
		token.CreatedAt,
		token.ExpiresAt,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" { // unique_violation
			if pqErr.Constraint == "uq_verification_tokens_principal_purpose" {
				return fmt.Errorf("token already live for pair: %w", ErrDuplicateTokenForPurpose)
			}
			return fmt.Errorf("verification token value collision: %w", ErrDuplicateVerificationToken)
		}
		return fmt.Errorf("failed to create verification token: %w", err)
	}

	return nil
}

// GetByValue retrieves a verification token by its opaque value
func (r *verificationTokenRepository) GetByValue(ctx context.Context, value string) (*domain.VerificationToken, error) {
	query := `
		SELECT value, principal_id, purpose, created_at, expires_at
		FROM verification_tokens
		WHERE value = $1
	`

	token := &domain.VerificationToken{}
	err := r.q.QueryRowContext(ctx, query, value).Scan(
		&token.Value,
		&token.PrincipalID,
		&token.Purpose,
		&token.CreatedAt,
		&token.ExpiresAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("verification token not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get verification token: %w", err)
	}

	return token, nil
}

// GetByPrincipalAndPurpose retrieves the token for a (principal, purpose) pair
func (r *verificationTokenRepository) GetByPrincipalAndPurpose(ctx context.Context, principalID string, purpose domain.TokenPurpose) (*domain.VerificationToken, error) {
	query := `
		SELECT value, principal_id, purpose, created_at, expires_at
		FROM verification_tokens
		WHERE principal_id = $1 AND purpose = $2
	`

	token := &domain.VerificationToken{}
	err := r.q.QueryRowContext(ctx, query, principalID, purpose).Scan(
		&token.Value,
		&token.PrincipalID,
		&token.Purpose,
		&token.CreatedAt,
		&token.ExpiresAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("verification token not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get verification token: %w", err)
	}

	return token, nil
}

// GetByPrincipalAndPurposeForUpdate retrieves and row-locks the token for a
// (principal, purpose) pair
func (r *verificationTokenRepository) GetByPrincipalAndPurposeForUpdate(ctx context.Context, principalID string, purpose domain.TokenPurpose) (*domain.VerificationToken, error) {
	query := `
		SELECT value, principal_id, purpose, created_at, expires_at
		FROM verification_tokens
		WHERE principal_id = $1 AND purpose = $2
		FOR UPDATE
	`

	token := &domain.VerificationToken{}
	err := r.q.QueryRowContext(ctx, query, principalID, purpose).Scan(
		&token.Value,
		&token.PrincipalID,
		&token.Purpose,
		&token.CreatedAt,
		&token.ExpiresAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("verification token not found: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get verification token: %w", err)
	}

	return token, nil
}

// DeleteByValue deletes a verification token by value
func (r *verificationTokenRepository) DeleteByValue(ctx context.Context, value string) error {
	query := `DELETE FROM verification_tokens WHERE value = $1`

	result, err := r.q.ExecContext(ctx, query, value)
	if err != nil {
		return fmt.Errorf("failed to delete verification token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("verification token not found: %w", ErrNotFound)
	}

	return nil
}

// DeleteByPrincipal deletes all tokens owned by a principal
func (r *verificationTokenRepository) DeleteByPrincipal(ctx context.Context, principalID string) error {
	query := `DELETE FROM verification_tokens WHERE principal_id = $1`

	if _, err := r.q.ExecContext(ctx, query, principalID); err != nil {
		return fmt.Errorf("failed to delete verification tokens: %w", err)
	}

	return nil
}
