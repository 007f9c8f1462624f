// Package apiclient is the single HTTP client used to reach the clinic API.
// It attaches the session's bearer credential, forwards a request ID, decodes
// JSON answers and turns non-2xx answers into *Error. A 401 clears the
// session and invokes the unauthorized hook.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/session"
)

const RequestIDHeader = "X-Request-ID"

// Credentials supplies the bearer token and is cleared on a 401.
// *session.Session satisfies it.
type Credentials interface {
	Token() string
	Clear()
}

// Client is safe for concurrent use. Bind it to a caller's credentials with
// WithCredentials. An unbound client uses the session found in the request
// context, if any, and otherwise sends no Authorization header.
type Client struct {
	baseURL        string
	http           *http.Client
	logger         zerolog.Logger
	creds          Credentials
	onUnauthorized func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for outbound calls.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithUnauthorizedHook registers fn to run after a 401 cleared the session
// (the CLI prints a "log in again" hint, the BFF flags a login redirect).
func WithUnauthorizedHook(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// New creates a client for the given, already normalized, base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		logger:  zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the clinic API root.
func (c *Client) BaseURL() string { return c.baseURL }

// WithCredentials returns a copy of c that authenticates as creds.
func (c *Client) WithCredentials(creds Credentials) *Client {
	cp := *c
	cp.creds = creds
	return &cp
}

// Authenticate posts the form-encoded login and implements
// session.Authenticator.
func (c *Client) Authenticate(ctx context.Context, email, password string) (*session.Grant, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	var grant session.Grant
	err := c.do(ctx, http.MethodPost, "/auth/login", nil,
		strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", &grant)
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

func (c *Client) Get(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, query, nil, "", out)
}

func (c *Client) Post(ctx context.Context, path string, body, out interface{}) error {
	return c.doJSON(ctx, http.MethodPost, path, body, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out interface{}) error {
	return c.doJSON(ctx, http.MethodPut, path, body, out)
}

func (c *Client) Delete(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil, "", out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var r io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		r = bytes.NewReader(payload)
	}
	return c.do(ctx, method, path, nil, r, "application/json", out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	creds := c.credentials(ctx)
	if creds != nil {
		if tok := creds.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	rid := RequestIDFromContext(ctx)
	if rid == "" {
		rid = uuid.New().String()
	}
	req.Header.Set(RequestIDHeader, rid)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).
			Str("request_id", rid).
			Str("method", method).
			Str("path", path).
			Msg("clinic api unreachable")
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}

	evt := c.logger.Debug()
	if resp.StatusCode >= 400 {
		evt = c.logger.Warn()
	}
	evt.Str("request_id", rid).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("clinic api call")

	if resp.StatusCode == http.StatusUnauthorized {
		if creds != nil {
			creds.Clear()
		}
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, method, path, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) credentials(ctx context.Context) Credentials {
	if c.creds != nil {
		return c.creds
	}
	if s := session.FromContext(ctx); s != nil {
		return s
	}
	return nil
}

type requestIDKey struct{}

// ContextWithRequestID stores the request ID forwarded on outbound calls.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the stored request ID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
