package domain

import "time"

// ProviderType discriminates principal variants
type ProviderType string

const (
	ProviderLocal    ProviderType = "local"
	ProviderGoogle   ProviderType = "google"
	ProviderFacebook ProviderType = "facebook"
	ProviderApple    ProviderType = "apple"
)

// KnownProviderTypes lists every provider type the service accepts
var KnownProviderTypes = []ProviderType{ProviderLocal, ProviderGoogle, ProviderFacebook, ProviderApple}

// Valid reports whether t names a supported provider type
func (t ProviderType) Valid() bool {
	switch t {
	case ProviderLocal, ProviderGoogle, ProviderFacebook, ProviderApple:
		return true
	}
	return false
}

// IsLocal reports whether the principal carries local credentials
func (t ProviderType) IsLocal() bool {
	return t == ProviderLocal
}

// Principal is one authentication method bound to a user. Local principals
// carry a password hash and email-verified flag; federated principals carry
// the provider-assigned subject id and cached display attributes.
type Principal struct {
	ID       string       `json:"id" db:"id"`
	UserID   string       `json:"user_id" db:"user_id"`
	Provider ProviderType `json:"provider" db:"provider"`
	Email    string       `json:"email" db:"email"`

	// Local variant
	PasswordHash        string     `json:"-" db:"password_hash"`
	IsEmailVerified     bool       `json:"is_email_verified" db:"is_email_verified"`
	LastPasswordResetAt *time.Time `json:"last_password_reset_at" db:"last_password_reset_at"`

	// Federated variant
	ProviderSubjectID string `json:"provider_subject_id" db:"provider_subject_id"`
	DisplayName       string `json:"display_name" db:"display_name"`
	AvatarURL         string `json:"avatar_url" db:"avatar_url"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// IsLocal reports whether this principal is the local-credential variant
func (p *Principal) IsLocal() bool {
	return p.Provider == ProviderLocal
}
