package refresh

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-session-client/internal/config"
)

var ErrExpired = errors.New("refresh token expired")

// Manager handles refresh token creation, validation, and rotation
type Manager struct {
	repo    Repo
	config  config.DevServerConfig
	nowTime func() time.Time
	rotate  sync.Mutex
}

// Option defines a function type to modify the Manager instance.
type Option func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

// NewManager creates a new refresh token manager
func NewManager(repo Repo, cfg config.DevServerConfig, options ...Option) *Manager {
	m := &Manager{
		repo:    repo,
		config:  cfg,
		nowTime: time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// Create issues the first refresh token of a session
func (m *Manager) Create(userID, sessionID string) (*StoredRefreshToken, error) {
	return m.issue(userID, sessionID, m.nowTime())
}

// Rotate exchanges token for a new one in the same session. The old token is
// deleted, so presenting it again fails with ErrNotFound.
func (m *Manager) Rotate(token string) (*StoredRefreshToken, error) {
	m.rotate.Lock()
	defer m.rotate.Unlock()

	rt, err := m.repo.Get(token)
	if err != nil {
		return nil, err
	}
	if err := m.repo.Delete(token); err != nil {
		return nil, fmt.Errorf("failed to delete rotated refresh token: %w", err)
	}
	if m.IsExpired(rt) {
		return nil, ErrExpired
	}
	return m.issue(rt.UserID, rt.SessionID, rt.CreatedAt)
}

// Get retrieves a refresh token from storage
func (m *Manager) Get(token string) (*StoredRefreshToken, error) {
	return m.repo.Get(token)
}

// Delete removes a refresh token from storage
func (m *Manager) Delete(token string) error {
	return m.repo.Delete(token)
}

// RevokeSession deletes whatever token the session currently holds
func (m *Manager) RevokeSession(sessionID string) error {
	return m.repo.DeleteBySessionID(sessionID)
}

// IsExpired checks if a refresh token has outlived the configured TTL
func (m *Manager) IsExpired(rt *StoredRefreshToken) bool {
	return m.nowTime().Sub(rt.Iat) > m.config.GetRenewalTokenTTL()
}

func (m *Manager) issue(userID, sessionID string, createdAt time.Time) (*StoredRefreshToken, error) {
	tokenBytes := make([]byte, m.config.GetRenewalTokenLength())
	if _, err := rand.Read(tokenBytes); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}

	rt := &StoredRefreshToken{
		Token:     hex.EncodeToString(tokenBytes),
		UserID:    userID,
		SessionID: sessionID,
		Iat:       m.nowTime(),
		CreatedAt: createdAt,
	}
	if err := m.repo.Upsert(rt); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}
	return rt, nil
}
