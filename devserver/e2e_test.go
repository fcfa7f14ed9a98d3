package devserver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jrsteele09/go-session-client/apiclient"
	"github.com/jrsteele09/go-session-client/authapi"
	"github.com/jrsteele09/go-session-client/authmodel"
	"github.com/jrsteele09/go-session-client/credstore"
	"github.com/jrsteele09/go-session-client/devserver"
	"github.com/jrsteele09/go-session-client/internal/config"
	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type stack struct {
	baseURL string
	server  *devserver.Server
	api     *authapi.Client
	store   *credstore.Store
	ctrl    *session.Controller
	client  *apiclient.Client
}

func newStack(t *testing.T, kv credstore.KV, opts ...devserver.Option) *stack {
	t.Helper()
	opts = append([]devserver.Option{devserver.WithLogger(zerolog.Nop())}, opts...)
	s := devserver.New(config.New(), opts...)
	_, err := s.AddUser(testEmail, testPassword, "Ada", authmodel.RoleEditor)
	require.NoError(t, err)

	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)

	return connect(t, srv.URL, s, kv)
}

func connect(t *testing.T, baseURL string, s *devserver.Server, kv credstore.KV) *stack {
	t.Helper()
	api := authapi.New(baseURL, authapi.WithLogger(zerolog.Nop()))
	store := credstore.New(kv, credstore.WithLogger(zerolog.Nop()))
	ctrl := session.New(context.Background(), api, store, session.WithLogger(zerolog.Nop()))
	return &stack{
		baseURL: baseURL,
		server:  s,
		api:     api,
		store:   store,
		ctrl:    ctrl,
		client:  apiclient.New(baseURL, ctrl, apiclient.WithLogger(zerolog.Nop())),
	}
}

func (st *stack) me(ctx context.Context) (*authapi.User, error) {
	var u authapi.User
	if err := st.client.DoJSON(ctx, http.MethodGet, authapi.RouteMe, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func TestE2E_ConcurrentExpiryRenewsOnce(t *testing.T) {
	st := newStack(t, credstore.NewMemoryKV())
	ctx := context.Background()
	require.NoError(t, st.ctrl.Login(ctx, testEmail, testPassword))

	st.server.ExpireAccessTokens()

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = st.me(ctx)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
	}
	stats := st.server.Stats()
	require.EqualValues(t, 1, stats.Renewals)
	require.Zero(t, stats.RenewalFailures)
	require.True(t, st.ctrl.IsAuthenticated())

	snap := st.store.Load(ctx)
	require.NotNil(t, snap)
	require.Equal(t, st.ctrl.AccessToken(), snap.Credential.AccessToken)
}

func TestE2E_NoRenewalTokenEndsSession(t *testing.T) {
	st := newStack(t, credstore.NewMemoryKV(), devserver.WithRenewalTokens(false))
	ctx := context.Background()
	require.NoError(t, st.ctrl.Login(ctx, testEmail, testPassword))

	st.server.ExpireAccessTokens()

	_, err := st.me(ctx)
	require.ErrorIs(t, err, apperrors.ErrNoRenewalToken)
	require.False(t, st.ctrl.IsAuthenticated())
	require.Nil(t, st.store.Load(ctx))

	stats := st.server.Stats()
	require.Zero(t, stats.Renewals)
	require.Zero(t, stats.RenewalFailures)
}

func TestE2E_RevokedRenewalFailsEveryone(t *testing.T) {
	st := newStack(t, credstore.NewMemoryKV())
	ctx := context.Background()
	require.NoError(t, st.ctrl.Login(ctx, testEmail, testPassword))

	// the session is ended server side while the client still holds it
	sessions, err := st.api.ListSessions(ctx, st.client)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.NoError(t, st.api.RevokeSession(ctx, st.client, sessions[0].ID))

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = st.me(ctx)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.Error(t, err)
		require.True(t, apperrors.Is(err, apperrors.ErrRenewalFailed) || apperrors.Is(err, apperrors.ErrNoRenewalToken), err.Error())
	}
	require.EqualValues(t, 1, st.server.Stats().RenewalFailures)
	require.Equal(t, authmodel.StatusError, st.ctrl.State().Status)
}

func TestE2E_SessionSurvivesRestartWithSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	kv, err := credstore.OpenSQLite(path, zerolog.Nop())
	require.NoError(t, err)

	st := newStack(t, kv)
	ctx := context.Background()
	require.NoError(t, st.ctrl.Login(ctx, testEmail, testPassword))
	require.NoError(t, kv.Close())

	reopened, err := credstore.OpenSQLite(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	restarted := connect(t, st.baseURL, st.server, reopened)
	require.True(t, restarted.ctrl.IsAuthenticated())

	u, err := restarted.me(ctx)
	require.NoError(t, err)
	require.Equal(t, testEmail, u.Email)

	require.NoError(t, restarted.ctrl.Logout(ctx))
	require.EqualValues(t, 1, st.server.Stats().Logouts)
	require.Nil(t, restarted.store.Load(ctx))
}

func TestE2E_LoginFailureLeavesNothingBehind(t *testing.T) {
	st := newStack(t, credstore.NewMemoryKV())
	ctx := context.Background()
	require.NoError(t, st.ctrl.Login(ctx, testEmail, testPassword))

	err := st.ctrl.Login(ctx, testEmail, "wrong")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	s := st.ctrl.State()
	require.Equal(t, authmodel.StatusError, s.Status)
	require.Equal(t, "Invalid email or password", s.LastError)
	require.Nil(t, st.store.Load(ctx))
	require.Empty(t, st.ctrl.AccessToken())
}
