package domain

// Intent declares the purpose of an OAuth2 round-trip: establishing a
// session versus attaching a provider to an already-authenticated account.
type Intent string

const (
	IntentSignIn Intent = "sign_in"
	IntentLink   Intent = "link"
)

// Valid reports whether i is a recognized intent
func (i Intent) Valid() bool {
	return i == IntentSignIn || i == IntentLink
}

// ProviderProfile is the normalized user profile produced by a provider
// adapter and consumed by the federation resolver.
type ProviderProfile struct {
	Provider    ProviderType `json:"provider"`
	SubjectID   string       `json:"subject_id"`
	Email       string       `json:"email"`
	DisplayName string       `json:"display_name"`
	AvatarURL   string       `json:"avatar_url"`
}
