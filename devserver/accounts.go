package devserver

import (
	"fmt"

	"github.com/jrsteele09/go-session-client/authmodel"
	"github.com/jrsteele09/go-session-client/users"
)

// AddUser creates an account. The dev server has no sign-up endpoint; seed
// accounts with this.
func (s *Server) AddUser(email, password, displayName string, role authmodel.Role) (*users.User, error) {
	if err := users.ValidatePasswordStrength(password); err != nil {
		return nil, fmt.Errorf("[devserver.AddUser] %w", err)
	}
	hash, err := users.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("[devserver.AddUser] failed to hash password: %w", err)
	}

	u := &users.User{
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		Role:         role,
		DateJoined:   s.nowTime(),
	}
	if err := s.users.Upsert(u); err != nil {
		return nil, fmt.Errorf("[devserver.AddUser] %w", err)
	}
	return s.users.GetByID(u.ID)
}

// ExpireAccessTokens invalidates every access token issued so far. Sessions
// and renewal tokens stay valid.
func (s *Server) ExpireAccessTokens() {
	s.generation.Add(1)
}

// IssueResetToken creates a password reset token for email without mailing it
func (s *Server) IssueResetToken(email string) (string, error) {
	return s.issuePending(pendingReset, email)
}

// IssueVerifyToken creates an email verification token for email
func (s *Server) IssueVerifyToken(email string) (string, error) {
	return s.issuePending(pendingVerify, email)
}
