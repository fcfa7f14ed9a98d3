package session_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-client/authapi"
	"github.com/jrsteele09/go-session-client/authmodel"
	"github.com/jrsteele09/go-session-client/credstore"
	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	login   func(ctx context.Context, email, password string) (*authapi.Grant, error)
	renew   func(ctx context.Context, renewalToken string) (*authapi.Grant, error)
	revoke  func(ctx context.Context, accessToken, renewalToken string) error
	verify  func(ctx context.Context, token string) error
	renews  atomic.Int32
	revokes atomic.Int32
}

func (f *fakeAuth) Login(ctx context.Context, email, password string) (*authapi.Grant, error) {
	return f.login(ctx, email, password)
}

func (f *fakeAuth) Renew(ctx context.Context, renewalToken string) (*authapi.Grant, error) {
	f.renews.Add(1)
	return f.renew(ctx, renewalToken)
}

func (f *fakeAuth) Revoke(ctx context.Context, accessToken, renewalToken string) error {
	f.revokes.Add(1)
	if f.revoke == nil {
		return nil
	}
	return f.revoke(ctx, accessToken, renewalToken)
}

func (f *fakeAuth) RequestPasswordReset(context.Context, string) error { return nil }

func (f *fakeAuth) ConfirmPasswordReset(context.Context, string, string) error { return nil }

func (f *fakeAuth) VerifyEmail(ctx context.Context, token string) error {
	if f.verify == nil {
		return nil
	}
	return f.verify(ctx, token)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testIdentity() *authmodel.Identity {
	return &authmodel.Identity{ID: "u1", Email: "a@b.com", DisplayName: "Ada", Role: authmodel.RoleEditor}
}

func grantFor(clk *clock, access, renewal string) *authapi.Grant {
	return &authapi.Grant{
		Credential: authmodel.Credential{
			AccessToken:  access,
			RenewalToken: renewal,
			ExpiresAt:    clk.Now().Add(15 * time.Minute),
		},
		Identity: testIdentity(),
	}
}

type fixture struct {
	clk   *clock
	kv    *credstore.MemoryKV
	store *credstore.Store
	auth  *fakeAuth
}

func newFixture() *fixture {
	clk := &clock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	kv := credstore.NewMemoryKV()
	f := &fixture{
		clk:   clk,
		kv:    kv,
		store: credstore.New(kv, credstore.WithLogger(zerolog.Nop()), credstore.WithNowTime(clk.Now)),
	}
	f.auth = &fakeAuth{
		login: func(context.Context, string, string) (*authapi.Grant, error) {
			return grantFor(clk, "at-1", "rt-1"), nil
		},
		renew: func(context.Context, string) (*authapi.Grant, error) {
			return grantFor(clk, "at-2", "rt-2"), nil
		},
	}
	return f
}

func (f *fixture) controller(t *testing.T, opts ...session.Option) *session.Controller {
	t.Helper()
	opts = append([]session.Option{
		session.WithLogger(zerolog.Nop()),
		session.WithNowTime(f.clk.Now),
	}, opts...)
	return session.New(context.Background(), f.auth, f.store, opts...)
}

// recorder collects event types delivered to a subscriber
type recorder struct {
	mu     sync.Mutex
	events []authmodel.Event
}

func (r *recorder) listen(ev authmodel.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []authmodel.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]authmodel.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func (r *recorder) count(t authmodel.EventType) int {
	n := 0
	for _, et := range r.types() {
		if et == t {
			n++
		}
	}
	return n
}

func TestLogin_Success(t *testing.T) {
	f := newFixture()
	c := f.controller(t)
	rec := &recorder{}
	c.Subscribe(rec.listen)

	require.NoError(t, c.Login(context.Background(), "a@b.com", "secret"))

	s := c.State()
	require.Equal(t, authmodel.StatusAuthenticated, s.Status)
	require.Equal(t, "a@b.com", s.Identity.Email)
	require.Equal(t, "at-1", c.AccessToken())
	require.Equal(t, []authmodel.EventType{authmodel.EventSnapshot, authmodel.EventLoading, authmodel.EventLogin}, rec.types())

	snap := f.store.Load(context.Background())
	require.NotNil(t, snap)
	require.Equal(t, "rt-1", snap.Credential.RenewalToken)

	activity, err := c.Activity(context.Background())
	require.NoError(t, err)
	require.Len(t, activity, 1)
	require.Equal(t, authmodel.EventLogin, activity[0].Type)
}

func TestLogin_InvalidCredentialsClearsEverything(t *testing.T) {
	f := newFixture()
	c := f.controller(t)
	require.NoError(t, c.Login(context.Background(), "a@b.com", "secret"))

	f.auth.login = func(context.Context, string, string) (*authapi.Grant, error) {
		return nil, &apperrors.APIError{StatusCode: 401, Message: "Invalid email or password", Err: apperrors.ErrInvalidCredentials}
	}
	err := c.Login(context.Background(), "a@b.com", "wrong")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	s := c.State()
	require.Equal(t, authmodel.StatusError, s.Status)
	require.Equal(t, "Invalid email or password", s.LastError)
	require.Nil(t, s.Identity)
	require.Nil(t, s.Credential)
	require.False(t, c.IsAuthenticated())
	require.Zero(t, f.kv.Len())
}

func TestLogin_NetworkFailureMessage(t *testing.T) {
	f := newFixture()
	f.auth.login = func(context.Context, string, string) (*authapi.Grant, error) {
		return nil, fmt.Errorf("%w: connection refused", apperrors.ErrNetwork)
	}
	c := f.controller(t)

	err := c.Login(context.Background(), "a@b.com", "pw")
	require.ErrorIs(t, err, apperrors.ErrNetwork)
	require.Equal(t, "Unable to reach the server. Please try again.", c.State().LastError)
}

func TestLogin_ConcurrentLastCompletionWins(t *testing.T) {
	f := newFixture()
	firstRelease := make(chan struct{})
	firstStarted := make(chan struct{})
	f.auth.login = func(_ context.Context, email, _ string) (*authapi.Grant, error) {
		access := "at-second"
		if email == "first@b.com" {
			close(firstStarted)
			<-firstRelease
			access = "at-first"
		}
		g := grantFor(f.clk, access, "rt-"+access)
		g.Identity = &authmodel.Identity{ID: "id-" + email, Email: email, Role: authmodel.RoleViewer}
		return g, nil
	}
	c := f.controller(t)

	done := make(chan error, 1)
	go func() { done <- c.Login(context.Background(), "first@b.com", "pw") }()
	<-firstStarted

	// issued second, completes first
	require.NoError(t, c.Login(context.Background(), "second@b.com", "pw"))
	require.Equal(t, "second@b.com", c.CurrentIdentity().Email)

	close(firstRelease)
	require.NoError(t, <-done)

	require.Equal(t, "first@b.com", c.CurrentIdentity().Email)
	require.Equal(t, "at-first", c.AccessToken())
	snap := f.store.Load(context.Background())
	require.NotNil(t, snap)
	require.Equal(t, "first@b.com", snap.Identity.Email)
	require.Equal(t, "at-first", snap.Credential.AccessToken)
	require.Equal(t, "rt-at-first", snap.Credential.RenewalToken)
}

// brokenKV fails every write
type brokenKV struct{}

func (brokenKV) Get(context.Context, string) (string, bool, error) { return "", false, nil }

func (brokenKV) SetMany(context.Context, map[string]string) error { return errors.New("disk full") }

func (brokenKV) Delete(context.Context, ...string) error { return errors.New("disk full") }

func TestLogin_SaveFailureLogsClearError(t *testing.T) {
	f := newFixture()
	var logs bytes.Buffer
	store := credstore.New(brokenKV{}, credstore.WithLogger(zerolog.Nop()))
	c := session.New(context.Background(), f.auth, store, session.WithLogger(zerolog.New(&logs)), session.WithNowTime(f.clk.Now))

	err := c.Login(context.Background(), "a@b.com", "pw")
	require.Error(t, err)
	require.False(t, c.IsAuthenticated())
	require.Equal(t, "Login failed. Please try again.", c.State().LastError)
	require.True(t, strings.Contains(logs.String(), "failed to clear credential store after save failure"), logs.String())
}

func TestLogout_ConcurrentCallsRevokeOnce(t *testing.T) {
	f := newFixture()
	release := make(chan struct{})
	started := make(chan struct{})
	f.auth.revoke = func(ctx context.Context, _, _ string) error {
		close(started)
		<-release
		return nil
	}
	c := f.controller(t)
	require.NoError(t, c.Login(context.Background(), "a@b.com", "pw"))
	rec := &recorder{}
	c.Subscribe(rec.listen)

	done := make(chan error)
	go func() { done <- c.Logout(context.Background()) }()
	<-started

	// second call while the first is waiting on the network
	require.NoError(t, c.Logout(context.Background()))
	close(release)
	require.NoError(t, <-done)

	require.EqualValues(t, 1, f.auth.revokes.Load())
	require.Equal(t, 1, rec.count(authmodel.EventLogout))
	require.Equal(t, authmodel.StatusIdle, c.State().Status)
	require.Zero(t, f.kv.Len())

	// guard released, a later logout runs again
	require.NoError(t, c.Logout(context.Background()))
	require.Equal(t, 2, rec.count(authmodel.EventLogout))
}

func TestLogout_RevokeTimeoutStillClears(t *testing.T) {
	f := newFixture()
	f.auth.revoke = func(ctx context.Context, _, _ string) error {
		<-ctx.Done()
		return fmt.Errorf("%w: %w", apperrors.ErrTimeout, ctx.Err())
	}
	c := f.controller(t, session.WithLogoutTimeout(20*time.Millisecond))
	require.NoError(t, c.Login(context.Background(), "a@b.com", "pw"))

	start := time.Now()
	require.NoError(t, c.Logout(context.Background()))
	require.Less(t, time.Since(start), 2*time.Second)
	require.False(t, c.IsAuthenticated())
	require.Nil(t, f.store.Load(context.Background()))
}

func TestLogout_AnonymousSkipsRevoke(t *testing.T) {
	f := newFixture()
	c := f.controller(t)

	require.NoError(t, c.Logout(context.Background()))
	require.Zero(t, f.auth.revokes.Load())
}

func TestRenew_SingleFlight(t *testing.T) {
	f := newFixture()
	release := make(chan struct{})
	f.auth.renew = func(context.Context, string) (*authapi.Grant, error) {
		<-release
		return grantFor(f.clk, "at-2", "rt-2"), nil
	}
	c := f.controller(t)
	require.NoError(t, c.Login(context.Background(), "a@b.com", "pw"))

	const callers = 10
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = c.Renew(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return f.auth.renews.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.EqualValues(t, 1, f.auth.renews.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "at-2", tokens[i])
	}
	require.Equal(t, "at-2", f.store.Load(context.Background()).Credential.AccessToken)
}

func TestRenew_NoRenewalToken(t *testing.T) {
	f := newFixture()
	f.auth.login = func(context.Context, string, string) (*authapi.Grant, error) {
		return grantFor(f.clk, "at-1", ""), nil
	}
	c := f.controller(t)
	require.NoError(t, c.Login(context.Background(), "a@b.com", "pw"))

	_, err := c.Renew(context.Background())
	require.ErrorIs(t, err, apperrors.ErrNoRenewalToken)
	require.Zero(t, f.auth.renews.Load())
	require.False(t, c.IsAuthenticated())
	require.Zero(t, f.kv.Len())
}

func TestRenew_RejectedEndsSession(t *testing.T) {
	f := newFixture()
	f.auth.renew = func(context.Context, string) (*authapi.Grant, error) {
		return nil, &apperrors.APIError{StatusCode: 401, Err: apperrors.ErrRenewalFailed}
	}
	c := f.controller(t)
	require.NoError(t, c.Login(context.Background(), "a@b.com", "pw"))
	rec := &recorder{}
	c.Subscribe(rec.listen)

	_, err := c.Renew(context.Background())
	require.ErrorIs(t, err, apperrors.ErrRenewalFailed)
	require.Equal(t, authmodel.StatusError, c.State().Status)
	require.Equal(t, 1, rec.count(authmodel.EventRenewalFailed))
	require.Nil(t, f.store.Load(context.Background()))
}

func TestRenew_AfterFailureLeavesEndedSessionAlone(t *testing.T) {
	f := newFixture()
	f.auth.renew = func(context.Context, string) (*authapi.Grant, error) {
		return nil, &apperrors.APIError{StatusCode: 401, Message: "refresh token revoked", Err: apperrors.ErrRenewalFailed}
	}
	c := f.controller(t)
	require.NoError(t, c.Login(context.Background(), "a@b.com", "pw"))
	rec := &recorder{}
	c.Subscribe(rec.listen)

	_, err := c.Renew(context.Background())
	require.ErrorIs(t, err, apperrors.ErrRenewalFailed)
	lastError := c.State().LastError

	// a late caller finds the session already ended
	_, err = c.Renew(context.Background())
	require.ErrorIs(t, err, apperrors.ErrNoRenewalToken)

	require.EqualValues(t, 1, f.auth.renews.Load())
	require.Equal(t, 1, rec.count(authmodel.EventRenewalFailed))
	require.Equal(t, lastError, c.State().LastError)
	require.Equal(t, "Your session could not be renewed. Please log in again.", lastError)
}

func TestRenew_KeepsRenewalTokenAndIdentityWhenOmitted(t *testing.T) {
	f := newFixture()
	f.auth.renew = func(context.Context, string) (*authapi.Grant, error) {
		g := grantFor(f.clk, "at-2", "")
		g.Identity = nil
		return g, nil
	}
	c := f.controller(t)
	require.NoError(t, c.Login(context.Background(), "a@b.com", "pw"))

	token, err := c.Renew(context.Background())
	require.NoError(t, err)
	require.Equal(t, "at-2", token)

	s := c.State()
	require.Equal(t, "rt-1", s.Credential.RenewalToken)
	require.Equal(t, "a@b.com", s.Identity.Email)
}

func TestRenew_RetriesTransportFailures(t *testing.T) {
	f := newFixture()
	var calls atomic.Int32
	f.auth.renew = func(context.Context, string) (*authapi.Grant, error) {
		if calls.Add(1) < 3 {
			return nil, fmt.Errorf("%w: reset by peer", apperrors.ErrNetwork)
		}
		return grantFor(f.clk, "at-3", "rt-3"), nil
	}
	c := f.controller(t, session.WithRenewRetries(2, time.Millisecond))
	require.NoError(t, c.Login(context.Background(), "a@b.com", "pw"))

	token, err := c.Renew(context.Background())
	require.NoError(t, err)
	require.Equal(t, "at-3", token)
	require.EqualValues(t, 3, calls.Load())
}

func TestRenew_NetworkFailureWithoutRetriesIsTerminal(t *testing.T) {
	f := newFixture()
	f.auth.renew = func(context.Context, string) (*authapi.Grant, error) {
		return nil, fmt.Errorf("%w: timeout", apperrors.ErrTimeout)
	}
	c := f.controller(t)
	require.NoError(t, c.Login(context.Background(), "a@b.com", "pw"))

	_, err := c.Renew(context.Background())
	require.ErrorIs(t, err, apperrors.ErrNetwork)
	require.EqualValues(t, 1, f.auth.renews.Load())
	require.False(t, c.IsAuthenticated())
}

func TestNew_HydratesValidSession(t *testing.T) {
	f := newFixture()
	g := grantFor(f.clk, "at-9", "rt-9")
	require.NoError(t, f.store.Save(context.Background(), g.Credential, *g.Identity))

	c := f.controller(t)
	require.True(t, c.IsAuthenticated())
	require.Equal(t, "at-9", c.AccessToken())
	require.Equal(t, "u1", c.CurrentIdentity().ID)

	tok, err := c.Token()
	require.NoError(t, err)
	require.Equal(t, "Bearer", tok.TokenType)
}

func TestNew_DiscardsExpiredSession(t *testing.T) {
	f := newFixture()
	g := grantFor(f.clk, "at-9", "rt-9")
	g.Credential.ExpiresAt = f.clk.Now().Add(time.Minute) // inside the 2m buffer
	require.NoError(t, f.store.Save(context.Background(), g.Credential, *g.Identity))

	c := f.controller(t)
	require.False(t, c.IsAuthenticated())
	require.Empty(t, c.AccessToken())
	require.Zero(t, f.kv.Len())

	_, err := c.Token()
	require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)
}

func TestCheckExpiry(t *testing.T) {
	f := newFixture()
	c := f.controller(t)
	require.NoError(t, c.Login(context.Background(), "a@b.com", "pw"))
	rec := &recorder{}
	c.Subscribe(rec.listen)

	require.False(t, c.CheckExpiry(context.Background()))

	f.clk.Advance(14 * time.Minute)
	require.True(t, c.CheckExpiry(context.Background()))
	require.Equal(t, 1, rec.count(authmodel.EventExpired))
	require.Equal(t, "Your session has expired. Please log in again.", c.State().LastError)
	require.Zero(t, f.kv.Len())

	// nothing left to expire
	require.False(t, c.CheckExpiry(context.Background()))
}

func TestCheckExpiry_ProactiveRenewal(t *testing.T) {
	f := newFixture()
	c := f.controller(t, session.WithProactiveRenewal(true))
	require.NoError(t, c.Login(context.Background(), "a@b.com", "pw"))

	f.clk.Advance(14 * time.Minute)
	require.False(t, c.CheckExpiry(context.Background()))
	require.True(t, c.IsAuthenticated())
	require.Equal(t, "at-2", c.AccessToken())
	require.EqualValues(t, 1, f.auth.renews.Load())
}

func TestRun_StopsWithContext(t *testing.T) {
	f := newFixture()
	c := f.controller(t, session.WithExpiryCheckInterval(5*time.Millisecond))
	require.NoError(t, c.Login(context.Background(), "a@b.com", "pw"))
	f.clk.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return !c.IsAuthenticated() }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestSubscribe_ReplayAndUnsubscribe(t *testing.T) {
	f := newFixture()
	c := f.controller(t)

	first, second := &recorder{}, &recorder{}
	unsubFirst := c.Subscribe(first.listen)
	c.Subscribe(second.listen)
	require.Equal(t, []authmodel.EventType{authmodel.EventSnapshot}, first.types())
	require.Equal(t, authmodel.StatusIdle, first.events[0].State.Status)

	unsubFirst()
	unsubFirst()

	require.NoError(t, c.Login(context.Background(), "a@b.com", "pw"))
	require.Len(t, first.types(), 1)
	require.Equal(t, 1, second.count(authmodel.EventLogin))
}

func TestSubscribe_StateIsACopy(t *testing.T) {
	f := newFixture()
	c := f.controller(t)
	require.NoError(t, c.Login(context.Background(), "a@b.com", "pw"))

	c.Subscribe(func(ev authmodel.Event) {
		ev.State.Identity.Email = "mallory@example.com"
	})
	s := c.State()
	s.Credential.AccessToken = "tampered"

	require.Equal(t, "a@b.com", c.CurrentIdentity().Email)
	require.Equal(t, "at-1", c.AccessToken())
}

func TestVerifyEmail_UpdatesIdentity(t *testing.T) {
	f := newFixture()
	c := f.controller(t)
	require.NoError(t, c.Login(context.Background(), "a@b.com", "pw"))
	rec := &recorder{}
	c.Subscribe(rec.listen)

	require.NoError(t, c.VerifyEmail(context.Background(), "verify-token"))
	require.True(t, c.CurrentIdentity().EmailVerified)
	require.True(t, f.store.Load(context.Background()).Identity.EmailVerified)
	require.Equal(t, 1, rec.count(authmodel.EventIdentityUpdated))

	// already verified, no second event
	require.NoError(t, c.VerifyEmail(context.Background(), "verify-token"))
	require.Equal(t, 1, rec.count(authmodel.EventIdentityUpdated))

	activity, err := c.Activity(context.Background())
	require.NoError(t, err)
	require.Equal(t, session.ActivityEmailVerified, activity[len(activity)-1].Type)
}

func TestVerifyEmail_ServerError(t *testing.T) {
	f := newFixture()
	f.auth.verify = func(context.Context, string) error {
		return &apperrors.APIError{StatusCode: 400, Message: "Verification link is invalid"}
	}
	c := f.controller(t)

	err := c.VerifyEmail(context.Background(), "bad")
	require.Error(t, err)
	require.Equal(t, "Verification link is invalid", apperrors.ServerMessage(err))
}

func TestActivity_RequiresSession(t *testing.T) {
	f := newFixture()
	c := f.controller(t)

	_, err := c.Activity(context.Background())
	require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)
}

func TestActivity_EndsWithSession(t *testing.T) {
	f := newFixture()
	c := f.controller(t)
	ctx := context.Background()

	require.NoError(t, c.Login(ctx, "a@b.com", "pw"))
	_, err := c.Renew(ctx)
	require.NoError(t, err)
	activity, err := c.Activity(ctx)
	require.NoError(t, err)
	require.Len(t, activity, 2)

	require.NoError(t, c.Logout(ctx))
	_, err = c.Activity(ctx)
	require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)

	// nothing from the previous session carries over
	require.NoError(t, c.Login(ctx, "a@b.com", "pw"))
	activity, err = c.Activity(ctx)
	require.NoError(t, err)
	require.Len(t, activity, 1)
	require.Equal(t, authmodel.EventLogin, activity[0].Type)
}

func TestContext_RoundTrip(t *testing.T) {
	f := newFixture()
	c := f.controller(t)

	ctx := session.NewContext(context.Background(), c)
	got, ok := session.FromContext(ctx)
	require.True(t, ok)
	require.Same(t, c, got)

	_, ok = session.FromContext(context.Background())
	require.False(t, ok)
}
