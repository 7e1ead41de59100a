// Package client is a Go client for the ERP REST API. It attaches the stored
// bearer token to every request and forgets it on the first 401.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"erp-server/internal/core"
)

// ErrUnauthorized matches any 401 response with errors.Is.
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx response. Message comes from the {error} or {message}
// field of the body, or the status text when neither is present.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// Client talks to one ERP server. It is safe for concurrent use when its
// TokenStore is.
type Client struct {
	baseURL        string
	http           *http.Client
	tokens         TokenStore
	onUnauthorized func()
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTokenStore(s TokenStore) Option {
	return func(c *Client) { c.tokens = s }
}

// OnUnauthorized registers fn to run after a 401 has cleared the token.
func OnUnauthorized(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// New returns a client for baseURL, e.g. http://localhost:8080. The default
// token store keeps the token in memory.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
		tokens:  &MemoryStore{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Tokens returns the client's token store.
func (c *Client) Tokens() TokenStore { return c.tokens }

// Do sends one request. body, when non-nil, is sent as JSON; out, when non-nil,
// receives the decoded JSON response. There is no retry.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	resp, err := c.send(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// Download issues a GET and returns the raw body, e.g. an xlsx export. The
// caller closes it.
func (c *Client) Download(ctx context.Context, path string, query url.Values) (io.ReadCloser, error) {
	resp, err := c.send(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if tok := c.tokens.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	apiErr := decodeError(resp)
	if resp.StatusCode == http.StatusUnauthorized {
		_ = c.tokens.Clear()
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
	}
	return nil, apiErr
}

func decodeError(resp *http.Response) *APIError {
	e := &APIError{Status: resp.StatusCode, RequestID: resp.Header.Get("X-Request-ID")}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Error     string `json:"error"`
		Message   string `json:"message"`
		Code      string `json:"code"`
		RequestID string `json:"request_id"`
	}
	if json.Unmarshal(data, &body) == nil {
		e.Code = body.Code
		e.Message = body.Error
		if e.Message == "" {
			e.Message = body.Message
		}
		if body.RequestID != "" {
			e.RequestID = body.RequestID
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return e
}

// List fetches one page of a paginated resource.
func List[T any](ctx context.Context, c *Client, path string, query url.Values) (core.Page[T], error) {
	var page core.Page[T]
	err := c.Do(ctx, http.MethodGet, path, query, nil, &page)
	return page, err
}

// Get fetches one record.
func Get[T any](ctx context.Context, c *Client, path string) (T, error) {
	var out T
	err := c.Do(ctx, http.MethodGet, path, nil, nil, &out)
	return out, err
}

// Create POSTs body to a collection and returns the created record.
func Create[T any](ctx context.Context, c *Client, path string, body any) (T, error) {
	var out T
	err := c.Do(ctx, http.MethodPost, path, nil, body, &out)
	return out, err
}

// Post calls an action endpoint such as /sales/orders/{id}/confirm. body may be nil.
func Post[T any](ctx context.Context, c *Client, path string, body any) (T, error) {
	return Create[T](ctx, c, path, body)
}

// TokenResponse is returned by login and register.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      core.User `json:"user"`
}

// Login exchanges credentials for a token and stores it.
func (c *Client) Login(ctx context.Context, username, password string) (TokenResponse, error) {
	var resp TokenResponse
	err := c.Do(ctx, http.MethodPost, "/api/v1/auth/login", nil,
		map[string]string{"username": username, "password": password}, &resp)
	if err != nil {
		return resp, err
	}
	if err := c.tokens.SetToken(resp.Token); err != nil {
		return resp, fmt.Errorf("store token: %w", err)
	}
	return resp, nil
}

func (c *Client) Me(ctx context.Context) (core.User, error) {
	return Get[core.User](ctx, c, "/api/v1/auth/me")
}

// Health calls the public health endpoint.
func (c *Client) Health(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	err := c.Do(ctx, http.MethodGet, "/api/v1/health", nil, nil, &out)
	return out, err
}

// CreateJournalEntry checks the balance locally before sending the entry.
func (c *Client) CreateJournalEntry(ctx context.Context, in core.JournalEntryInput) (core.JournalEntry, error) {
	if err := ValidateJournalLines(in.Lines); err != nil {
		return core.JournalEntry{}, err
	}
	return Create[core.JournalEntry](ctx, c, "/api/v1/finance/journal-entries", in)
}

// Notifications lists the caller's notifications.
func (c *Client) Notifications(ctx context.Context, unreadOnly bool) (core.Page[core.Notification], error) {
	q := url.Values{}
	if unreadOnly {
		q.Set("unread", "true")
	}
	return List[core.Notification](ctx, c, "/api/v1/notifications", q)
}

func (c *Client) UnreadCount(ctx context.Context) (int64, error) {
	var out struct {
		Count int64 `json:"count"`
	}
	err := c.Do(ctx, http.MethodGet, "/api/v1/notifications/unread-count", nil, nil, &out)
	return out.Count, err
}
