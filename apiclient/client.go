package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-session-client/authapi"
	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/pkg/errors"
)

const defaultTimeout = 30 * time.Second

// Client is the request function used for all API traffic made on behalf of
// the session.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ authapi.Doer = (*Client)(nil)

// New creates a client for the API rooted at baseURL. Relative paths passed
// to the helpers are resolved against it.
func New(baseURL string, sess Session, opts ...Option) *Client {
	o := buildOptions(opts)
	t := newTransport(sess, o)

	hc := &http.Client{Timeout: defaultTimeout}
	if o.client != nil {
		cp := *o.client
		hc = &cp
	}
	hc.Transport = t

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
	}
}

// Do sends req through the authenticating transport
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.http.Do(req)
}

func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return nil, errors.Wrap(err, "[apiclient.Get]")
	}
	return c.Do(req)
}

// PostJSON sends in as a JSON body
func (c *Client) PostJSON(ctx context.Context, path string, in any) (*http.Response, error) {
	req, err := c.jsonRequest(ctx, http.MethodPost, path, in)
	if err != nil {
		return nil, errors.Wrap(err, "[apiclient.PostJSON]")
	}
	return c.Do(req)
}

// DoJSON sends in (when not nil) and decodes a 2xx body into out (when not
// nil). Other statuses become *errors.APIError; a 401 that survived renewal
// unwraps to ErrNotAuthenticated.
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out any) error {
	req, err := c.jsonRequest(ctx, method, path, in)
	if err != nil {
		return errors.Wrap(err, "[apiclient.DoJSON]")
	}

	resp, err := c.Do(req)
	if err != nil {
		return errors.Wrapf(err, "[apiclient.DoJSON] %s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
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

func (c *Client) jsonRequest(ctx context.Context, method, path string, in any) (*http.Request, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

func readAPIError(resp *http.Response) error {
	apiErr := &apperrors.APIError{StatusCode: resp.StatusCode}
	if resp.StatusCode == http.StatusUnauthorized {
		apiErr.Err = apperrors.ErrNotAuthenticated
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body authapi.ErrorResponse
	if err := json.Unmarshal(data, &body); err == nil {
		apiErr.Message = body.Text()
	}
	return apiErr
}
