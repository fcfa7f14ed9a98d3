package authmodel

import (
	"time"

	"golang.org/x/oauth2"
)

// Credential is the access credential attached to outbound requests plus the
// optional renewal credential used to obtain a new one.
type Credential struct {
	// AccessToken is the short-lived bearer token.
	AccessToken string `json:"access_token"`

	// RenewalToken is exchanged for a new access token without re-entering a
	// password. Empty when the server did not issue one.
	RenewalToken string `json:"renewal_token,omitempty"`

	// ExpiresAt is the hard expiry of AccessToken.
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the credential is unusable at now, treating it as
// expired buffer before ExpiresAt.
func (c *Credential) Expired(now time.Time, buffer time.Duration) bool {
	if c == nil || c.AccessToken == "" {
		return true
	}
	return !now.Add(buffer).Before(c.ExpiresAt)
}

// HasRenewalToken reports whether the credential can be renewed
func (c *Credential) HasRenewalToken() bool {
	return c != nil && c.RenewalToken != ""
}

// OAuth2Token projects the credential onto an oauth2 bearer token
func (c *Credential) OAuth2Token() *oauth2.Token {
	if c == nil {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: c.RenewalToken,
		Expiry:       c.ExpiresAt,
	}
}

func (c *Credential) clone() *Credential {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
