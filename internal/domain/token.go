package domain

// TokenClaims is the validated payload of an access token. Method records
// which linked auth method established the session, so downstream consumers
// can tell a password login from a federated one. Expiry is enforced during
// parsing; Exp and Iat are carried for callers that log or relay them.
type TokenClaims struct {
	UserID string       `json:"user_id"`
	Email  string       `json:"email"`
	Method ProviderType `json:"method"`
	Exp    int64        `json:"exp"`
	Iat    int64        `json:"iat"`
}
