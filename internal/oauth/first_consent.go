package oauth

import (
	"context"
	"encoding/json"
)

// FirstConsentUser is the one-time profile payload Apple posts alongside the
// authorization code on the user's very first consent. Apple never sends the
// name again, so the callback handler captures it into the request context
// for the bridge to pick up; it dies with the request either way.
type FirstConsentUser struct {
	Name struct {
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	} `json:"name"`
	Email string `json:"email"`
}

// FullName joins the name parts, returning "" when both are empty
func (u *FirstConsentUser) FullName() string {
	switch {
	case u.Name.FirstName == "":
		return u.Name.LastName
	case u.Name.LastName == "":
		return u.Name.FirstName
	default:
		return u.Name.FirstName + " " + u.Name.LastName
	}
}

type firstConsentKey struct{}

// WithFirstConsentUser parses the raw form payload and attaches it to the
// request context. Malformed payloads are dropped rather than failing the
// login, matching Apple's best-effort delivery of this field.
func WithFirstConsentUser(ctx context.Context, rawJSON string) context.Context {
	if rawJSON == "" {
		return ctx
	}

	var user FirstConsentUser
	if err := json.Unmarshal([]byte(rawJSON), &user); err != nil {
		return ctx
	}

	return context.WithValue(ctx, firstConsentKey{}, &user)
}

// FirstConsentUserFrom extracts the payload captured by the callback handler
func FirstConsentUserFrom(ctx context.Context) (*FirstConsentUser, bool) {
	user, ok := ctx.Value(firstConsentKey{}).(*FirstConsentUser)
	return user, ok
}
