// Package session owns the authenticated identity of the process: it logs in
// and out, renews credentials, expires stale sessions and notifies
// subscribers of every transition.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-session-client/authapi"
	"github.com/jrsteele09/go-session-client/authmodel"
	"github.com/jrsteele09/go-session-client/credstore"
	"github.com/jrsteele09/go-session-client/internal/config"
	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// User-facing messages stored in State.LastError
const (
	msgLoginFailed    = "Login failed. Please try again."
	msgUnreachable    = "Unable to reach the server. Please try again."
	msgSessionEnded   = "Your session has ended. Please log in again."
	msgRenewalFailed  = "Your session could not be renewed. Please log in again."
	msgSessionExpired = "Your session has expired. Please log in again."
)

const (
	defaultCheckInterval = time.Minute
	defaultLogoutTimeout = 5 * time.Second
	defaultActivityLimit = 50
)

// Authenticator is the remote auth API the controller drives
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*authapi.Grant, error)
	Renew(ctx context.Context, renewalToken string) (*authapi.Grant, error)
	Revoke(ctx context.Context, accessToken, renewalToken string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
	VerifyEmail(ctx context.Context, token string) error
}

var _ Authenticator = (*authapi.Client)(nil)

// Controller is the only writer of session state. Construct one per
// application with New and share it; it is safe for concurrent use.
type Controller struct {
	api     Authenticator
	store   *credstore.Store
	log     zerolog.Logger
	nowTime func() time.Time

	expiryBuffer     time.Duration
	checkInterval    time.Duration
	logoutTimeout    time.Duration
	renewRetries     int
	renewRetryDelay  time.Duration
	activityLimit    int
	proactiveRenewal bool

	mu    sync.RWMutex // guards state
	state authmodel.State

	commitMu sync.Mutex // serializes store writes, state changes and delivery
	broker   broker

	loggingOut atomic.Bool
	renewals   singleflight.Group
}

// Option defines a function type to modify the Controller instance.
type Option func(*Controller)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) {
		c.log = l
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Controller) {
		c.nowTime = nowFunc
	}
}

func WithExpiryBuffer(d time.Duration) Option {
	return func(c *Controller) {
		c.expiryBuffer = d
	}
}

func WithExpiryCheckInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.checkInterval = d
		}
	}
}

func WithLogoutTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.logoutTimeout = d
		}
	}
}

// WithRenewRetries retries renewal up to n more times after a transport
// failure, waiting delay between attempts. Server rejections are never retried.
func WithRenewRetries(n int, delay time.Duration) Option {
	return func(c *Controller) {
		c.renewRetries = n
		c.renewRetryDelay = delay
	}
}

func WithActivityLimit(n int) Option {
	return func(c *Controller) {
		c.activityLimit = n
	}
}

// WithProactiveRenewal makes the expiry watcher try a renewal before
// clearing a session that is about to expire.
func WithProactiveRenewal(enabled bool) Option {
	return func(c *Controller) {
		c.proactiveRenewal = enabled
	}
}

// WithConfig applies the session settings from cfg
func WithConfig(cfg config.SessionConfig) Option {
	return func(c *Controller) {
		c.expiryBuffer = cfg.GetExpiryBuffer()
		WithExpiryCheckInterval(cfg.GetExpiryCheckInterval())(c)
		WithLogoutTimeout(cfg.GetLogoutTimeout())(c)
		c.renewRetries = cfg.GetRenewRetries()
		c.renewRetryDelay = cfg.GetRenewRetryDelay()
		c.activityLimit = cfg.GetActivityLogLimit()
	}
}

// New creates a controller and hydrates it from store. A persisted credential
// that is still valid becomes the authenticated session; an expired one is
// cleared.
func New(ctx context.Context, api Authenticator, store *credstore.Store, options ...Option) *Controller {
	c := &Controller{
		api:           api,
		store:         store,
		log:           log.Logger,
		nowTime:       time.Now,
		expiryBuffer:  credstore.DefaultExpiryBuffer,
		checkInterval: defaultCheckInterval,
		logoutTimeout: defaultLogoutTimeout,
		activityLimit: defaultActivityLimit,
		state:         authmodel.Anonymous(""),
	}
	for _, opt := range options {
		opt(c)
	}
	c.log = c.log.With().Str("component", "session").Logger()
	c.hydrate(ctx)
	return c
}

func (c *Controller) hydrate(ctx context.Context) {
	snap := c.store.Load(ctx)
	if snap == nil {
		return
	}
	if snap.Credential.Expired(c.nowTime(), c.expiryBuffer) {
		c.log.Info().Msg("discarding expired stored session")
		if err := c.store.Clear(ctx); err != nil {
			c.log.Error().Err(err).Msg("failed to clear expired stored session")
		}
		return
	}

	identity := snap.Identity
	cred := snap.Credential
	c.state = authmodel.State{
		Identity:   &identity,
		Credential: &cred,
		Status:     authmodel.StatusAuthenticated,
	}
	c.log.Info().Str("user_id", identity.ID).Msg("session restored")
}

// State returns a copy of the current session
func (c *Controller) State() authmodel.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Clone()
}

func (c *Controller) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Authenticated()
}

// AccessToken returns the current access token, or "" when not authenticated
func (c *Controller) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.state.Authenticated() {
		return ""
	}
	return c.state.Credential.AccessToken
}

// CurrentIdentity returns a copy of the authenticated identity, or nil
func (c *Controller) CurrentIdentity() *authmodel.Identity {
	s := c.State()
	if !s.Authenticated() {
		return nil
	}
	return s.Identity
}

// Token implements oauth2.TokenSource over the current credential
func (c *Controller) Token() (*oauth2.Token, error) {
	s := c.State()
	if !s.Authenticated() {
		return nil, apperrors.ErrNotAuthenticated
	}
	return s.Credential.OAuth2Token(), nil
}

var _ oauth2.TokenSource = (*Controller)(nil)

// commit applies one transition. fn receives the current state, performs any
// store writes and returns the next state; returning false leaves the state
// untouched and publishes nothing.
func (c *Controller) commit(eventType authmodel.EventType, fn func(cur authmodel.State) (authmodel.State, bool)) authmodel.State {
	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	next, ok := fn(c.State())
	if !ok {
		return c.State()
	}

	c.mu.Lock()
	c.state = next.Clone()
	c.mu.Unlock()

	c.broker.deliver(authmodel.Event{Type: eventType, State: next.Clone()})
	return next
}

// clearLocal empties the store and the in-memory session
func (c *Controller) clearLocal(ctx context.Context, eventType authmodel.EventType, lastError string) {
	ctx = context.WithoutCancel(ctx)
	c.commit(eventType, func(authmodel.State) (authmodel.State, bool) {
		if err := c.store.Clear(ctx); err != nil {
			c.log.Error().Err(err).Msg("failed to clear credential store")
		}
		return authmodel.Anonymous(lastError), true
	})
}
