package refresh_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/jrsteele09/go-session-client/token/refresh"
	refreshrepofake "github.com/jrsteele09/go-session-client/token/refresh/repofake"
	"github.com/stretchr/testify/require"
)

func newManager(now *time.Time) *refresh.Manager {
	return refresh.NewManager(refreshrepofake.NewFakeRefreshTokenRepo(), config.New(),
		refresh.WithNowTime(func() time.Time { return *now }))
}

func TestRotate_IssuesNewTokenAndRejectsOld(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	m := newManager(&now)

	first, err := m.Create("u1", "s1")
	require.NoError(t, err)
	require.Len(t, first.Token, 64)

	now = now.Add(time.Hour)
	second, err := m.Rotate(first.Token)
	require.NoError(t, err)
	require.NotEqual(t, first.Token, second.Token)
	require.Equal(t, "s1", second.SessionID)
	require.True(t, second.CreatedAt.Equal(first.CreatedAt))

	_, err = m.Rotate(first.Token)
	require.ErrorIs(t, err, refresh.ErrNotFound)
}

func TestRotate_Expired(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	m := newManager(&now)

	rt, err := m.Create("u1", "s1")
	require.NoError(t, err)

	now = now.Add(8 * 24 * time.Hour)
	_, err = m.Rotate(rt.Token)
	require.ErrorIs(t, err, refresh.ErrExpired)

	// an expired token is consumed
	_, err = m.Get(rt.Token)
	require.ErrorIs(t, err, refresh.ErrNotFound)
}

func TestRevokeSession_RemovesCurrentToken(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	m := newManager(&now)

	first, err := m.Create("u1", "s1")
	require.NoError(t, err)
	second, err := m.Rotate(first.Token)
	require.NoError(t, err)
	other, err := m.Create("u1", "s2")
	require.NoError(t, err)

	require.NoError(t, m.RevokeSession("s1"))
	require.ErrorIs(t, m.RevokeSession("s1"), refresh.ErrNotFound)

	_, err = m.Get(second.Token)
	require.ErrorIs(t, err, refresh.ErrNotFound)
	_, err = m.Get(other.Token)
	require.NoError(t, err)
}
