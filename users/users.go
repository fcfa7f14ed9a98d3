// Package users holds the accounts the development auth server logs in.
package users

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/jrsteele09/go-session-client/authmodel"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID           string         `json:"id,omitempty"`
	Email        string         `json:"email,omitempty"`
	DisplayName  string         `json:"display_name,omitempty"`
	PasswordHash string         `json:"-"` // never serialize
	Role         authmodel.Role `json:"role,omitempty"`
	DateJoined   time.Time      `json:"date_joined,omitempty"`
	LastLogin    time.Time      `json:"last_login,omitempty"`

	Verified bool `json:"verified,omitempty"` // email address confirmed
	Blocked  bool `json:"blocked,omitempty"`  // login refused
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		}
	}

	if !hasUpper || !hasLower {
		return fmt.Errorf("password must mix uppercase and lowercase letters")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}
	return nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckPassword reports whether password matches the user's hash
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// Identity is the session-facing view of the user
func (u *User) Identity() authmodel.Identity {
	return authmodel.Identity{
		ID:            u.ID,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		EmailVerified: u.Verified,
		Role:          u.Role,
	}
}

// NormalizeEmail is the key users are stored and looked up by
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
