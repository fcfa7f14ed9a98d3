package authapi

import "time"

// TokenResponse is the body of a successful login or refresh.
type TokenResponse struct {
	// AccessToken is the bearer token for protected resources.
	// Usage: "Authorization: Bearer <access_token>"
	AccessToken string `json:"access_token"`

	// RefreshToken is the opaque renewal token. Absent when the server does
	// not issue one; rotates on every refresh.
	RefreshToken *string `json:"refresh_token,omitempty"`

	// TokenType is always "bearer".
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the access token lifetime in seconds. When absent the
	// client falls back to the JWT "exp" claim.
	ExpiresIn int `json:"expires_in,omitempty"`

	// User is the authenticated identity. Required on login, optional on refresh.
	User *User `json:"user,omitempty"`
}

// User is the wire form of an identity
type User struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	DisplayName   string `json:"display_name"`
	EmailVerified bool   `json:"email_verified"`
	Role          string `json:"role"`
}

// ErrorResponse covers both the plain {"message"} shape and the OAuth-style
// {"error","error_description"} shape.
type ErrorResponse struct {
	Message          string `json:"message,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func (e ErrorResponse) Text() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.ErrorDescription != "":
		return e.ErrorDescription
	default:
		return e.Error
	}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken *string `json:"refresh_token,omitempty"`
}

type PasswordResetRequest struct {
	Email string `json:"email"`
}

type PasswordResetConfirm struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

// RemoteSession is one active session as listed by the server
type RemoteSession struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	Current    bool      `json:"current"`
}

type SessionList struct {
	Sessions []RemoteSession `json:"sessions"`
}
