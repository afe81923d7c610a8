package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avelkine/identity-service/internal/domain"
	"github.com/avelkine/identity-service/internal/mailer"
	"github.com/avelkine/identity-service/internal/repository"
)

// fakeStore is an in-memory Store. It honors the uniqueness rules the real
// schema enforces (user email, federated (provider, subject), local
// (provider, email)) so services see the same duplicate errors.
type fakeStore struct {
	mu sync.Mutex

	users         map[string]*domain.User
	principals    map[string]*domain.Principal
	tokens        map[string]*domain.VerificationToken
	refreshTokens map[string]*domain.RefreshToken
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:         make(map[string]*domain.User),
		principals:    make(map[string]*domain.Principal),
		tokens:        make(map[string]*domain.VerificationToken),
		refreshTokens: make(map[string]*domain.RefreshToken),
	}
}

func (s *fakeStore) Users() repository.UserRepository                           { return (*fakeUsers)(s) }
func (s *fakeStore) Principals() repository.PrincipalRepository                 { return (*fakePrincipals)(s) }
func (s *fakeStore) VerificationTokens() repository.VerificationTokenRepository { return (*fakeTokens)(s) }
func (s *fakeStore) Tokens() repository.TokenRepository                         { return (*fakeRefreshTokens)(s) }

// WithinTx runs fn against the same store. Fine for unit tests: services are
// exercised for their decision logic, not for rollback mechanics.
func (s *fakeStore) WithinTx(_ context.Context, fn func(tx repository.Store) error) error {
	return fn(s)
}

func (s *fakeStore) addUser(email string, verified bool) *domain.User {
	u := &domain.User{
		ID:              uuid.New().String(),
		Email:           email,
		IsEmailVerified: verified,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	s.users[u.ID] = u
	return u
}

func (s *fakeStore) addPrincipal(p *domain.Principal) *domain.Principal {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = time.Now()
	s.principals[p.ID] = p
	return p
}

type fakeUsers fakeStore

func (r *fakeUsers) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = user
	return nil
}

func (r *fakeUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUsers) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	for _, u := range r.users {
		if u.ID != user.ID && u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	user.UpdatedAt = time.Now()
	r.users[user.ID] = user
	return nil
}

func (r *fakeUsers) UpdateLastLogin(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	now := time.Now()
	u.LastLoginAt = &now
	return nil
}

func (r *fakeUsers) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

type fakePrincipals fakeStore

func (r *fakePrincipals) Create(_ context.Context, principal *domain.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.principals {
		if p.Provider != principal.Provider {
			continue
		}
		if p.Provider.IsLocal() && p.Email == principal.Email {
			return repository.ErrDuplicatePrincipal
		}
		if !p.Provider.IsLocal() && p.ProviderSubjectID == principal.ProviderSubjectID {
			return repository.ErrDuplicatePrincipal
		}
	}
	if principal.ID == "" {
		principal.ID = uuid.New().String()
	}
	principal.CreatedAt = time.Now()
	r.principals[principal.ID] = principal
	return nil
}

func (r *fakePrincipals) GetByID(_ context.Context, id string) (*domain.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.principals[id]; ok {
		return p, nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakePrincipals) GetByProviderSubject(_ context.Context, provider domain.ProviderType, subjectID string) (*domain.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.principals {
		if p.Provider == provider && p.ProviderSubjectID == subjectID {
			return p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakePrincipals) GetVerifiedLocalByEmail(_ context.Context, email string) (*domain.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.principals {
		if p.Provider.IsLocal() && p.Email == email && p.IsEmailVerified {
			return p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakePrincipals) ListByUserID(_ context.Context, userID string) ([]*domain.Principal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*domain.Principal
	for _, p := range r.principals {
		if p.UserID == userID {
			result = append(result, p)
		}
	}
	return result, nil
}

func (r *fakePrincipals) ListByUserIDForUpdate(ctx context.Context, userID string) ([]*domain.Principal, error) {
	return r.ListByUserID(ctx, userID)
}

func (r *fakePrincipals) Update(_ context.Context, principal *domain.Principal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.principals[principal.ID]; !ok {
		return repository.ErrNotFound
	}
	r.principals[principal.ID] = principal
	return nil
}

func (r *fakePrincipals) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.principals[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.principals, id)
	return nil
}

type fakeTokens fakeStore

func (r *fakeTokens) Create(_ context.Context, token *domain.VerificationToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[token.Value]; ok {
		return repository.ErrDuplicateVerificationToken
	}
	for _, t := range r.tokens {
		if t.PrincipalID == token.PrincipalID && t.Purpose == token.Purpose {
			return repository.ErrDuplicateTokenForPurpose
		}
	}
	r.tokens[token.Value] = token
	return nil
}

func (r *fakeTokens) GetByValue(_ context.Context, value string) (*domain.VerificationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tokens[value]; ok {
		return t, nil
	}
	return nil, repository.ErrNotFound
}

func (r *fakeTokens) GetByPrincipalAndPurpose(_ context.Context, principalID string, purpose domain.TokenPurpose) (*domain.VerificationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.PrincipalID == principalID && t.Purpose == purpose {
			return t, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeTokens) GetByPrincipalAndPurposeForUpdate(ctx context.Context, principalID string, purpose domain.TokenPurpose) (*domain.VerificationToken, error) {
	return r.GetByPrincipalAndPurpose(ctx, principalID, purpose)
}

func (r *fakeTokens) DeleteByValue(_ context.Context, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[value]; !ok {
		return repository.ErrNotFound
	}
	delete(r.tokens, value)
	return nil
}

func (r *fakeTokens) DeleteByPrincipal(_ context.Context, principalID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for v, t := range r.tokens {
		if t.PrincipalID == principalID {
			delete(r.tokens, v)
		}
	}
	return nil
}

type fakeRefreshTokens fakeStore

func (r *fakeRefreshTokens) Create(_ context.Context, token *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	token.CreatedAt = time.Now()
	r.refreshTokens[token.ID] = token
	return nil
}

func (r *fakeRefreshTokens) GetByTokenHash(_ context.Context, tokenHash string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.refreshTokens {
		if t.TokenHash == tokenHash {
			return t, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeRefreshTokens) GetByUserID(_ context.Context, userID string) ([]*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*domain.RefreshToken
	for _, t := range r.refreshTokens {
		if t.UserID == userID {
			result = append(result, t)
		}
	}
	return result, nil
}

func (r *fakeRefreshTokens) Delete(_ context.Context, tokenID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.refreshTokens[tokenID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.refreshTokens, tokenID)
	return nil
}

func (r *fakeRefreshTokens) DeleteByTokenHash(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.refreshTokens {
		if t.TokenHash == tokenHash {
			delete(r.refreshTokens, id)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *fakeRefreshTokens) DeleteExpired(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for id, t := range r.refreshTokens {
		if now.After(t.ExpiresAt) {
			delete(r.refreshTokens, id)
		}
	}
	return nil
}

// recordingDispatcher captures dispatched emails instead of sending them
type recordingDispatcher struct {
	mu   sync.Mutex
	sent []sentEmail
}

type sentEmail struct {
	to     string
	kind   mailer.TemplateKind
	params map[string]string
}

func (d *recordingDispatcher) Send(_ context.Context, toEmail string, kind mailer.TemplateKind, params map[string]string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sentEmail{to: toEmail, kind: kind, params: params})
	return nil
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

func (d *recordingDispatcher) last() sentEmail {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent[len(d.sent)-1]
}
