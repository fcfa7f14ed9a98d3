package refresh

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("refresh token not found")

// StoredRefreshToken is the server-side record of a renewal token. The client
// only ever sees Token; the rest is metadata used to validate and rotate it.
type StoredRefreshToken struct {
	Token     string
	UserID    string
	SessionID string    // stable across rotations
	Iat       time.Time // issued at
	CreatedAt time.Time // when the session was first created
}

// Repo stores renewal token records keyed by the token string
type Repo interface {
	Upsert(refreshToken *StoredRefreshToken) error
	Delete(token string) error
	Get(token string) (*StoredRefreshToken, error)
	DeleteBySessionID(sessionID string) error
}
