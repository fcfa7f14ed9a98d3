// Package authapi talks to the remote authentication endpoints: login,
// renewal, revoke, password reset, email verification and session listing.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-session-client/authmodel"
	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/internal/utils"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const (
	// DefaultTokenLifetime is assumed when neither expires_in nor a JWT exp claim is available
	DefaultTokenLifetime = 15 * time.Minute

	maxErrorBody = 64 << 10
)

// Doer sends an HTTP request. *http.Client and the authenticated request
// client both satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Grant is a credential issued by login or renewal. Identity is nil when a
// renewal response did not include the user.
type Grant struct {
	Credential authmodel.Credential
	Identity   *authmodel.Identity
}

// Client calls the remote auth API
type Client struct {
	baseURL         string
	http            Doer
	log             zerolog.Logger
	nowTime         func() time.Time
	defaultLifetime time.Duration
}

// Option defines a function type to modify the Client instance.
type Option func(*Client)

func WithHTTPClient(d Doer) Option {
	return func(c *Client) {
		c.http = d
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

func WithDefaultTokenLifetime(d time.Duration) Option {
	return func(c *Client) {
		c.defaultLifetime = d
	}
}

// New creates a client for the API rooted at baseURL
func New(baseURL string, options ...Option) *Client {
	c := &Client{
		baseURL:         baseURL,
		http:            &http.Client{Timeout: 30 * time.Second},
		log:             log.Logger,
		nowTime:         time.Now,
		defaultLifetime: DefaultTokenLifetime,
	}
	for _, opt := range options {
		opt(c)
	}
	c.log = c.log.With().Str("component", "authapi").Logger()
	return c
}

// Login exchanges email and password for a credential and identity.
// A rejected login unwraps to ErrInvalidCredentials with the server's message.
func (c *Client) Login(ctx context.Context, email, password string) (*Grant, error) {
	var resp TokenResponse
	err := c.call(ctx, c.http, http.MethodPost, RouteLogin, "", LoginRequest{Email: email, Password: password}, &resp, loginFailure)
	if err != nil {
		return nil, errors.Wrap(err, "[authapi.Login]")
	}
	if resp.User == nil {
		return nil, errors.Wrap(apperrors.ErrBadResponse, "[authapi.Login] response has no user")
	}
	return c.grant(resp)
}

// Renew exchanges a renewal token for a new credential. A server rejection
// unwraps to ErrRenewalFailed; transport and 5xx failures to ErrNetwork.
func (c *Client) Renew(ctx context.Context, renewalToken string) (*Grant, error) {
	var resp TokenResponse
	err := c.call(ctx, c.http, http.MethodPost, RouteRefresh, "", RefreshRequest{RefreshToken: renewalToken}, &resp, renewFailure)
	if err != nil {
		return nil, errors.Wrap(err, "[authapi.Renew]")
	}
	return c.grant(resp)
}

// Revoke ends the session server side
func (c *Client) Revoke(ctx context.Context, accessToken, renewalToken string) error {
	err := c.call(ctx, c.http, http.MethodPost, RouteLogout, accessToken, LogoutRequest{RefreshToken: utils.NonZeroPtr(renewalToken)}, nil, nil)
	return errors.Wrap(err, "[authapi.Revoke]")
}

func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	err := c.call(ctx, c.http, http.MethodPost, RoutePasswordResetRequest, "", PasswordResetRequest{Email: email}, nil, nil)
	return errors.Wrap(err, "[authapi.RequestPasswordReset]")
}

func (c *Client) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	err := c.call(ctx, c.http, http.MethodPost, RoutePasswordResetConfirm, "", PasswordResetConfirm{Token: token, Password: newPassword}, nil, nil)
	return errors.Wrap(err, "[authapi.ConfirmPasswordReset]")
}

func (c *Client) VerifyEmail(ctx context.Context, token string) error {
	err := c.call(ctx, c.http, http.MethodPost, RouteVerifyEmail, "", VerifyEmailRequest{Token: token}, nil, nil)
	return errors.Wrap(err, "[authapi.VerifyEmail]")
}

// ListSessions lists the caller's active sessions. authed must attach the
// caller's credential, normally the authenticated request client.
func (c *Client) ListSessions(ctx context.Context, authed Doer) ([]RemoteSession, error) {
	var list SessionList
	if err := c.call(ctx, authed, http.MethodGet, RouteSessions, "", nil, &list, nil); err != nil {
		return nil, errors.Wrap(err, "[authapi.ListSessions]")
	}
	return list.Sessions, nil
}

// RevokeSession ends one of the caller's sessions by ID
func (c *Client) RevokeSession(ctx context.Context, authed Doer, id string) error {
	err := c.call(ctx, authed, http.MethodDelete, RouteSessions+"/"+id, "", nil, nil, nil)
	return errors.Wrap(err, "[authapi.RevokeSession]")
}

func (c *Client) grant(resp TokenResponse) (*Grant, error) {
	if resp.AccessToken == "" {
		return nil, errors.Wrap(apperrors.ErrBadResponse, "response has no access token")
	}

	g := &Grant{
		Credential: authmodel.Credential{
			AccessToken:  resp.AccessToken,
			RenewalToken: utils.Value(resp.RefreshToken),
			ExpiresAt:    c.expiresAt(resp),
		},
	}
	if resp.User != nil {
		g.Identity = &authmodel.Identity{
			ID:            resp.User.ID,
			Email:         resp.User.Email,
			DisplayName:   resp.User.DisplayName,
			EmailVerified: resp.User.EmailVerified,
			Role:          authmodel.ParseRole(resp.User.Role),
		}
		if !g.Identity.Valid() {
			return nil, errors.Wrap(apperrors.ErrBadResponse, "response user has no id or email")
		}
	}
	return g, nil
}

func (c *Client) expiresAt(resp TokenResponse) time.Time {
	if resp.ExpiresIn > 0 {
		return c.nowTime().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	if exp, ok := jwtExpiry(resp.AccessToken); ok {
		return exp
	}
	return c.nowTime().Add(c.defaultLifetime)
}

// jwtExpiry reads the exp claim without verifying the signature; the client
// only uses it to schedule renewal.
func jwtExpiry(raw string) (time.Time, bool) {
	token, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// failureClass maps a non-2xx status onto a taxonomy sentinel, nil for none
type failureClass func(status int) error

func loginFailure(status int) error {
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return apperrors.ErrInvalidCredentials
	}
	return nil
}

func renewFailure(status int) error {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnauthorized, status == http.StatusForbidden:
		return apperrors.ErrRenewalFailed
	case status >= http.StatusInternalServerError:
		return apperrors.ErrNetwork
	}
	return apperrors.ErrRenewalFailed
}

func (c *Client) call(ctx context.Context, doer Doer, method, path, bearer string, in, out any, classify failureClass) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		(&oauth2.Token{AccessToken: bearer, TokenType: "Bearer"}).SetAuthHeader(req)
	}

	resp, err := doer.Do(req)
	if err != nil {
		return transportError(ctx, err)
	}
	defer resp.Body.Close()

	c.log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("auth api call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.apiError(resp, classify)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", apperrors.ErrBadResponse, path, err)
	}
	return nil
}

func (c *Client) apiError(resp *http.Response, classify failureClass) error {
	apiErr := &apperrors.APIError{StatusCode: resp.StatusCode}
	if classify != nil {
		apiErr.Err = classify(resp.StatusCode)
	} else if resp.StatusCode == http.StatusUnauthorized {
		apiErr.Err = apperrors.ErrNotAuthenticated
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body ErrorResponse
	if err := json.Unmarshal(data, &body); err == nil {
		apiErr.Message = body.Text()
	}
	return apiErr
}

func transportError(ctx context.Context, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", apperrors.ErrTimeout, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %w", apperrors.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %w", apperrors.ErrNetwork, err)
}
