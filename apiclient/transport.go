// Package apiclient sends API requests on behalf of the current session. It
// attaches the access token to every request and survives one 401 per
// request by renewing the credential, sharing a single renewal between all
// requests that fail at the same time.
package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Session is the part of the session controller the transport needs
type Session interface {
	// Token returns the current credential; an error when anonymous.
	Token() (*oauth2.Token, error)
	// Renew obtains a new access token or ends the session.
	Renew(ctx context.Context) (string, error)
}

// flight is one renewal shared by every request that hit a 401 while it ran
type flight struct {
	done  chan struct{}
	from  string // access token the renewal replaces
	token string
	err   error
}

// Transport is an http.RoundTripper that authenticates requests from a Session
type Transport struct {
	base    http.RoundTripper
	sess    Session
	log     zerolog.Logger
	metrics *Metrics

	mu       sync.Mutex
	inflight *flight
	settled  *flight // last finished renewal
}

type options struct {
	base    http.RoundTripper
	log     zerolog.Logger
	metrics *Metrics
	client  *http.Client
}

// Option defines a function type to modify the transport and client.
type Option func(*options)

// WithBaseTransport sets the round tripper requests are sent with
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.base = rt
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithHTTPClient sets the client New wraps. Its Transport is replaced by the
// authenticating transport, layered over the client's original one.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.client = c
	}
}

func buildOptions(opts []Option) options {
	o := options{log: log.Logger}
	for _, opt := range opts {
		opt(&o)
	}
	if o.base == nil {
		o.base = http.DefaultTransport
		if o.client != nil && o.client.Transport != nil {
			o.base = o.client.Transport
		}
	}
	o.log = o.log.With().Str("component", "apiclient").Logger()
	return o
}

// NewTransport creates a transport for sess
func NewTransport(sess Session, opts ...Option) *Transport {
	return newTransport(sess, buildOptions(opts))
}

func newTransport(sess Session, o options) *Transport {
	return &Transport{
		base:    o.base,
		sess:    sess,
		log:     o.log,
		metrics: o.metrics,
	}
}

type retryKey struct{}

// retryState marks a request that has already been replayed after a renewal
type retryState struct{}

func withRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retryKey{}, retryState{})
}

func retried(ctx context.Context) bool {
	_, ok := ctx.Value(retryKey{}).(retryState)
	return ok
}

// RoundTrip implements http.RoundTripper
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req, err := rewindable(req)
	if err != nil {
		return nil, err
	}
	if req.Body != nil {
		// every attempt sends a copy from GetBody
		defer req.Body.Close()
	}

	token := t.current()
	resp, err := t.send(req, token)
	if err != nil {
		t.metrics.request(outcomeError)
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.metrics.request(outcomeOK)
		return resp, nil
	}
	if retried(req.Context()) {
		t.metrics.request(outcomeUnauthorized)
		return resp, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	newToken, err := t.renew(req.Context(), token.AccessToken)
	if err != nil {
		t.metrics.request(outcomeRenewFailed)
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Redacted(), err)
	}

	replay := req.WithContext(withRetried(req.Context()))
	resp, err = t.send(replay, &oauth2.Token{AccessToken: newToken, TokenType: "Bearer"})
	if err != nil {
		t.metrics.request(outcomeError)
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		t.log.Warn().Str("path", req.URL.Path).Msg("request still unauthorized after renewal")
		t.metrics.request(outcomeUnauthorized)
		return resp, nil
	}
	t.metrics.request(outcomeReplayed)
	return resp, nil
}

// current returns the session's token, or an empty one when anonymous
func (t *Transport) current() *oauth2.Token {
	tok, err := t.sess.Token()
	if err != nil || tok == nil {
		return &oauth2.Token{}
	}
	return tok
}

// send clones req with a fresh body and the given token
func (t *Transport) send(req *http.Request, token *oauth2.Token) (*http.Response, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewind request body: %w", err)
		}
		out.Body = body
	}
	out.Header.Del("Authorization")
	if token.AccessToken != "" {
		token.SetAuthHeader(out)
	}
	return t.base.RoundTrip(out)
}

// renew returns a token to replay with. used is the token the failed request
// carried. If the session already holds a different token a sibling renewal
// has finished and no new one is started; if the renewal that replaced used
// already failed, its error is returned. Otherwise the caller joins the
// running flight or starts one; the check and the start happen under t.mu.
func (t *Transport) renew(ctx context.Context, used string) (string, error) {
	t.mu.Lock()
	cur := t.current().AccessToken
	if cur != "" && cur != used {
		t.mu.Unlock()
		return cur, nil
	}
	if f := t.inflight; f != nil {
		t.mu.Unlock()
		t.metrics.queuedRequest()
		select {
		case <-f.done:
			return f.token, f.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if last := t.settled; cur == "" && used != "" && last != nil && last.err != nil && last.from == used {
		t.mu.Unlock()
		t.metrics.queuedRequest()
		return "", last.err
	}
	f := &flight{done: make(chan struct{}), from: used}
	t.inflight = f
	t.mu.Unlock()

	t.log.Debug().Msg("access token rejected, renewing")
	// the flight outlives the request that started it
	f.token, f.err = t.sess.Renew(context.WithoutCancel(ctx))
	t.metrics.renewal(f.err)

	t.mu.Lock()
	t.inflight = nil
	t.settled = f
	t.mu.Unlock()
	close(f.done)

	if f.err != nil {
		t.log.Info().Err(f.err).Msg("renewal failed, session ended")
	}
	return f.token, f.err
}

// rewindable returns a request whose body can be sent twice. Requests built
// by http.NewRequest from an in-memory body already can; others are buffered
// into a copy.
func rewindable(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return req, nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}

	out := req.Clone(req.Context())
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	out.Body, _ = out.GetBody()
	return out, nil
}
