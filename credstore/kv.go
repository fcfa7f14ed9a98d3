// Package credstore persists the current credential and identity so a session
// survives process restarts.
package credstore

import "context"

// Persisted keys
const (
	KeyIdentity     = "session.identity"      // Identity JSON
	KeyAccessToken  = "session.access_token"  // access token string
	KeyExpiresAt    = "session.expires_at"    // RFC 3339 expiry timestamp
	KeyRenewalToken = "session.renewal_token" // renewal token, absent when none
	KeyActivityLog  = "session.activity_log"  // JSON array of activity entries
)

// AllKeys lists every key the store owns
var AllKeys = []string{KeyIdentity, KeyAccessToken, KeyExpiresAt, KeyRenewalToken, KeyActivityLog}

// KV is durable key/value storage.
type KV interface {
	// Get returns the value for key; ok is false when the key is absent
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// SetMany writes every pair or none of them
	SetMany(ctx context.Context, values map[string]string) error

	// Delete removes keys; absent keys are not an error
	Delete(ctx context.Context, keys ...string) error
}
