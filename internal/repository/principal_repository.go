package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/avelkine/identity-service/internal/domain"
	"github.com/avelkine/identity-service/pkg/database"
)

const principalColumns = `id, user_id, provider, email, password_hash, is_email_verified,
		last_password_reset_at, provider_subject_id, display_name, avatar_url, created_at`

// principalRepository implements PrincipalRepository interface
type principalRepository struct {
	q database.Querier
}

// NewPrincipalRepository creates a new principal repository
func NewPrincipalRepository(q database.Querier) PrincipalRepository {
	return &principalRepository{q: q}
}

// Create creates a new principal. Uniqueness of (provider, provider_subject_id)
// for federated principals and (provider, email) for local principals is
// enforced by partial unique indexes.
func (r *principalRepository) Create(ctx context.Context, principal *domain.Principal) error {
	query := `
		INSERT INTO principals (` + principalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	if principal.ID == "" {
		principal.ID = uuid.New().String()
	}
	if principal.CreatedAt.IsZero() {
		principal.CreatedAt = time.Now()
	}

	_, err := r.q.ExecContext(ctx, query,
		principal.ID,
		principal.UserID,
		principal.Provider,
		principal.Email,
		principal.PasswordHash,
		principal.IsEmailVerified,
		principal.LastPasswordResetAt,
		principal.ProviderSubjectID,
		principal.DisplayName,
		principal.AvatarURL,
		principal.CreatedAt,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				return fmt.Errorf("principal for provider %s already exists: %w", principal.Provider, ErrDuplicatePrincipal)
			}
		}
		return fmt.Errorf("failed to create principal: %w", err)
	}

	return nil
}

// GetByID retrieves a principal by ID
func (r *principalRepository) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE id = $1`
	return r.scanOne(r.q.QueryRowContext(ctx, query, id), fmt.Sprintf("principal with id %s", id))
}

// GetByProviderSubject retrieves a federated principal by its provider-assigned subject id
func (r *principalRepository) GetByProviderSubject(ctx context.Context, provider domain.ProviderType, subjectID string) (*domain.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE provider = $1 AND provider_subject_id = $2`
	return r.scanOne(r.q.QueryRowContext(ctx, query, provider, subjectID),
		fmt.Sprintf("principal for provider %s", provider))
}

// GetVerifiedLocalByEmail retrieves the verified local-credential principal for an email
func (r *principalRepository) GetVerifiedLocalByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals
		WHERE provider = $1 AND email = $2 AND is_email_verified = TRUE`
	return r.scanOne(r.q.QueryRowContext(ctx, query, domain.ProviderLocal, email),
		fmt.Sprintf("local principal for email %s", email))
}

// ListByUserID retrieves all principals owned by a user
func (r *principalRepository) ListByUserID(ctx context.Context, userID string) ([]*domain.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE user_id = $1 ORDER BY created_at`
	return r.list(ctx, query, userID)
}

// ListByUserIDForUpdate retrieves and row-locks all principals owned by a user
func (r *principalRepository) ListByUserIDForUpdate(ctx context.Context, userID string) ([]*domain.Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM principals WHERE user_id = $1 ORDER BY created_at FOR UPDATE`
	return r.list(ctx, query, userID)
}

func (r *principalRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Principal, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list principals: %w", err)
	}
	defer rows.Close()

	var principals []*domain.Principal
	for rows.Next() {
		principal, err := r.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan principal: %w", err)
		}
		principals = append(principals, principal)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate principals: %w", err)
	}

	return principals, nil
}

// Update updates a principal's mutable fields
func (r *principalRepository) Update(ctx context.Context, principal *domain.Principal) error {
	query := `
		UPDATE principals
		SET email = $2, password_hash = $3, is_email_verified = $4,
			last_password_reset_at = $5, display_name = $6, avatar_url = $7
		WHERE id = $1
	`

	result, err := r.q.ExecContext(ctx, query,
		principal.ID,
		principal.Email,
		principal.PasswordHash,
		principal.IsEmailVerified,
		principal.LastPasswordResetAt,
		principal.DisplayName,
		principal.AvatarURL,
	)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" { // unique_violation
				return fmt.Errorf("principal for provider %s already exists: %w", principal.Provider, ErrDuplicatePrincipal)
			}
		}
		return fmt.Errorf("failed to update principal: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("principal with id %s not found: %w", principal.ID, ErrNotFound)
	}

	return nil
}

// Delete deletes a principal by ID
func (r *principalRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM principals WHERE id = $1`

	result, err := r.q.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete principal: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("principal with id %s not found: %w", id, ErrNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *principalRepository) scanOne(row *sql.Row, what string) (*domain.Principal, error) {
	principal, err := r.scanRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s not found: %w", what, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get %s: %w", what, err)
	}
	return principal, nil
}

func (r *principalRepository) scanRow(row rowScanner) (*domain.Principal, error) {
	principal := &domain.Principal{}
	var passwordHash, subjectID, displayName, avatarURL sql.NullString
	var lastPasswordResetAt sql.NullTime

	err := row.Scan(
		&principal.ID,
		&principal.UserID,
		&principal.Provider,
		&principal.Email,
		&passwordHash,
		&principal.IsEmailVerified,
		&lastPasswordResetAt,
		&subjectID,
		&displayName,
		&avatarURL,
		&principal.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	principal.PasswordHash = passwordHash.String
	principal.ProviderSubjectID = subjectID.String
	principal.DisplayName = displayName.String
	principal.AvatarURL = avatarURL.String
	if lastPasswordResetAt.Valid {
		principal.LastPasswordResetAt = &lastPasswordResetAt.Time
	}

	return principal, nil
}
