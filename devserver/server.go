// Package devserver is an in-memory implementation of the auth API for local
// development and tests. It issues HS256 access tokens and rotating renewal
// tokens, tracks sessions and rate limits logins per email.
package devserver

import (
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/jrsteele09/go-session-client/token/refresh"
	refreshrepofake "github.com/jrsteele09/go-session-client/token/refresh/repofake"
	"github.com/jrsteele09/go-session-client/users"
	fakeuserrepo "github.com/jrsteele09/go-session-client/users/repofake"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Mailer delivers password reset and verification tokens. The dev server has
// no mail transport; the default logs the token.
type Mailer func(kind, email, token string)

type Server struct {
	env     string // Environment (e.g., "DEV", "PROD")
	mux     *http.ServeMux
	routes  []string
	config  config.Config
	log     zerolog.Logger
	nowTime func() time.Time

	users   users.UserRepo
	refresh *refresh.Manager
	mailer  Mailer

	issueRenewalTokens bool
	loginRate          rate.Limit
	loginBurst         int

	limitersLock sync.Mutex
	limiters     map[string]*rate.Limiter

	sessionsLock sync.RWMutex
	sessions     map[string]*liveSession

	pendingLock sync.Mutex
	pending     map[string]pendingToken

	generation atomic.Int64 // access tokens minted before the current generation are rejected
	stats      counters
}

type liveSession struct {
	id         string
	userID     string
	createdAt  time.Time
	lastUsedAt time.Time
}

type pendingKind string

const (
	pendingReset  pendingKind = "password_reset"
	pendingVerify pendingKind = "verify_email"
)

type pendingToken struct {
	kind      pendingKind
	email     string
	expiresAt time.Time
}

// Option defines a function type to modify the Server instance.
type Option func(*Server)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(s *Server) {
		s.nowTime = nowFunc
	}
}

func WithUserRepo(repo users.UserRepo) Option {
	return func(s *Server) {
		s.users = repo
	}
}

func WithMailer(m Mailer) Option {
	return func(s *Server) {
		s.mailer = m
	}
}

// WithLoginRateLimit allows burst login attempts per email, refilled at r
func WithLoginRateLimit(r rate.Limit, burst int) Option {
	return func(s *Server) {
		s.loginRate = r
		s.loginBurst = burst
	}
}

// WithRenewalTokens controls whether login issues a renewal token
func WithRenewalTokens(enabled bool) Option {
	return func(s *Server) {
		s.issueRenewalTokens = enabled
	}
}

func New(cfg config.Config, options ...Option) *Server {
	s := &Server{
		env:                cfg.GetEnv(),
		mux:                http.NewServeMux(),
		config:             cfg,
		log:                log.Logger,
		nowTime:            time.Now,
		users:              fakeuserrepo.NewFakeUserRepo(),
		issueRenewalTokens: true,
		loginRate:          rate.Every(6 * time.Second),
		loginBurst:         5,
		limiters:           make(map[string]*rate.Limiter),
		sessions:           make(map[string]*liveSession),
		pending:            make(map[string]pendingToken),
	}
	for _, opt := range options {
		opt(s)
	}
	s.log = s.log.With().Str("component", "devserver").Logger()
	if s.mailer == nil {
		s.mailer = s.logMail
	}
	s.refresh = refresh.NewManager(refreshrepofake.NewFakeRefreshTokenRepo(), cfg, refresh.WithNowTime(s.nowTime))

	s.initRoutes()
	s.logRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		method, path, found := strings.Cut(route, " ")
		if !found {
			method, path = "", route
		}
		s.log.Info().Msgf("[%s] %s", colourMethod(method), path)
	}
}

func (s *Server) logMail(kind, email, token string) {
	s.log.Info().Str("kind", kind).Str("email", email).Str("token", token).Msg("dev mailer")
}
