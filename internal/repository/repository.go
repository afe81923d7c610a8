package repository

import (
	"context"
	"fmt"

	"github.com/avelkine/identity-service/pkg/database"
)

// Store bundles the repositories with transactional execution. Services
// depend on this interface so tests can substitute in-memory fakes.
type Store interface {
	Users() UserRepository
	Principals() PrincipalRepository
	VerificationTokens() VerificationTokenRepository
	Tokens() TokenRepository

	// WithinTx runs fn against transaction-bound repositories, committing
	// when fn returns nil and rolling back otherwise. Calls made while
	// already inside a transaction join it.
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

// Repositories implements Store on top of PostgreSQL
type Repositories struct {
	db   *database.Postgres
	inTx bool

	users              UserRepository
	principals         PrincipalRepository
	verificationTokens VerificationTokenRepository
	tokens             TokenRepository
}

var _ Store = (*Repositories)(nil)

// NewRepositories creates all repositories backed by the connection pool
func NewRepositories(db *database.Postgres) *Repositories {
	return newRepositories(db, db.DB, false)
}

func newRepositories(db *database.Postgres, q database.Querier, inTx bool) *Repositories {
	return &Repositories{
		db:                 db,
		inTx:               inTx,
		users:              NewUserRepository(q),
		principals:         NewPrincipalRepository(q),
		verificationTokens: NewVerificationTokenRepository(q),
		tokens:             NewTokenRepository(q),
	}
}

func (r *Repositories) Users() UserRepository                           { return r.users }
func (r *Repositories) Principals() PrincipalRepository                 { return r.principals }
func (r *Repositories) VerificationTokens() VerificationTokenRepository { return r.verificationTokens }
func (r *Repositories) Tokens() TokenRepository                         { return r.tokens }

// WithinTx implements Store
func (r *Repositories) WithinTx(ctx context.Context, fn func(tx Store) error) error {
	if r.inTx {
		return fn(r)
	}

	sqlTx, err := r.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(newRepositories(r.db, sqlTx, true)); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
