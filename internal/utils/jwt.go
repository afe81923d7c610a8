package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/avelkine/identity-service/internal/domain"
)

// tokenIssuer names this service in the iss claim. Tokens minted by anything
// else, even with the shared secret, fail validation.
const tokenIssuer = "identity-service"

// sessionClaims is the wire shape of an access token. TokenType is never set
// on access tokens; it is parsed so a refresh token cannot pass as one.
type sessionClaims struct {
	Email     string `json:"email"`
	Method    string `json:"method,omitempty"`
	TokenType string `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// refreshClaims is the wire shape of a refresh token. Method survives
// rotation so a refreshed session still reports how it was established.
type refreshClaims struct {
	TokenType string `json:"type"`
	Method    string `json:"method,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager mints and validates the session token pair.
type JWTManager struct {
	secret             []byte
	accessTokenExpiry  time.Duration
	refreshTokenExpiry time.Duration
	parser             *jwt.Parser
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secret string, accessTokenExpiry, refreshTokenExpiry time.Duration) *JWTManager {
	return &JWTManager{
		secret:             []byte(secret),
		accessTokenExpiry:  accessTokenExpiry,
		refreshTokenExpiry: refreshTokenExpiry,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(tokenIssuer),
			jwt.WithExpirationRequired(),
		),
	}
}

// GenerateAccessToken mints an access token for a session established through
// the given auth method.
func (j *JWTManager) GenerateAccessToken(userID, email string, method domain.ProviderType) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Email:  email,
		Method: string(method),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(j.accessTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// GenerateRefreshToken mints a refresh token carrying the session's auth
// method forward.
func (j *JWTManager) GenerateRefreshToken(userID string, method domain.ProviderType) (string, error) {
	now := time.Now()
	claims := refreshClaims{
		TokenType: "refresh",
		Method:    string(method),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(j.refreshTokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken checks an access token's signature, issuer and expiry and
// returns its claims.
func (j *JWTManager) ValidateToken(tokenString string) (*domain.TokenClaims, error) {
	claims := &sessionClaims{}
	token, err := j.parser.ParseWithClaims(tokenString, claims, j.keyFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	if claims.TokenType == "refresh" {
		return nil, fmt.Errorf("refresh token presented as access token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token carries no subject")
	}

	// exp is guaranteed by WithExpirationRequired; iat is not.
	var iat int64
	if claims.IssuedAt != nil {
		iat = claims.IssuedAt.Unix()
	}

	return &domain.TokenClaims{
		UserID: claims.Subject,
		Email:  claims.Email,
		Method: domain.ProviderType(claims.Method),
		Exp:    claims.ExpiresAt.Unix(),
		Iat:    iat,
	}, nil
}

// ValidateRefreshToken checks a refresh token and returns the user id and the
// auth method it carries.
func (j *JWTManager) ValidateRefreshToken(tokenString string) (string, domain.ProviderType, error) {
	claims := &refreshClaims{}
	token, err := j.parser.ParseWithClaims(tokenString, claims, j.keyFunc)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return "", "", fmt.Errorf("invalid token")
	}

	if claims.TokenType != "refresh" {
		return "", "", fmt.Errorf("invalid token type")
	}
	if claims.Subject == "" {
		return "", "", fmt.Errorf("token carries no subject")
	}

	return claims.Subject, domain.ProviderType(claims.Method), nil
}

// GetAccessTokenExpiry returns the access token expiry duration in seconds
func (j *JWTManager) GetAccessTokenExpiry() int {
	return int(j.accessTokenExpiry.Seconds())
}

func (j *JWTManager) keyFunc(*jwt.Token) (interface{}, error) {
	return j.secret, nil
}
