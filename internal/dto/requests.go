package dto

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email" validate:"required,email"`
	Password string `json:"password" binding:"required,min=8" validate:"required,min=8"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email" validate:"required,email"`
	Password string `json:"password" binding:"required" validate:"required"`
}

// VerifyEmailRequest carries a verification token value
type VerifyEmailRequest struct {
	Token string `json:"token" binding:"required"`
}

// PasswordResetRequest asks for a password reset email
type PasswordResetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// PasswordResetConfirmRequest redeems a password reset token
type PasswordResetConfirmRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

// ChangePasswordRequest changes the password of an authenticated user
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

// LinkLocalRequest attaches local credentials to an authenticated account
type LinkLocalRequest struct {
	Password string `json:"password" binding:"required,min=8"`
}

// EmailChangeRequest starts an email change flow
type EmailChangeRequest struct {
	NewEmail string `json:"new_email" binding:"required,email"`
}

// EmailChangeConfirmRequest redeems an email change token
type EmailChangeConfirmRequest struct {
	Token string `json:"token" binding:"required"`
}

// AuthResponse represents an authentication response
type AuthResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresIn   int      `json:"expires_in"`
	User        UserInfo `json:"user"`
}

// UserInfo represents user information in response
type UserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// AuthMethodInfo describes one linked authentication method
type AuthMethodInfo struct {
	Provider    string `json:"provider"`
	Email       string `json:"email"`
	Verified    bool   `json:"verified"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// UserResponse represents a user response
type UserResponse struct {
	ID              string           `json:"id"`
	Email           string           `json:"email"`
	CreatedAt       string           `json:"created_at"`
	UpdatedAt       string           `json:"updated_at"`
	LastLoginAt     *string          `json:"last_login_at"`
	IsEmailVerified bool             `json:"is_email_verified"`
	AuthMethods     []AuthMethodInfo `json:"auth_methods"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}
