// Package github is the upstream client for the GitHub REST API. It exposes
// authenticated conditional requests (If-None-Match / If-Modified-Since),
// surfaces the validators GitHub returns, and translates every upstream
// failure into a tagged APIError at this boundary.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"golang.org/x/oauth2"
)

const DefaultBaseURL = "https://api.github.com"

// maxErrorBodyBytes bounds how much of an upstream error body is read for
// the error message.
const maxErrorBodyBytes = 4 << 10

// Client talks to the GitHub API. The credential is supplied per call, never
// stored on the Client, so one Client serves every session in the process.
type Client struct {
	http      *http.Client
	baseURL   *url.URL
	userAgent string
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithBaseURL(raw string) Option {
	return func(c *Client) {
		if u, err := url.Parse(raw); err == nil {
			c.baseURL = u
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func New(opts ...Option) *Client {
	u, _ := url.Parse(DefaultBaseURL)
	c := &Client{
		http:      &http.Client{Timeout: 8 * time.Second},
		baseURL:   u,
		userAgent: "hubview",
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Conditional carries the stored validators for an upstream revalidation.
// Zero values mean "no validator".
type Conditional struct {
	ETag         string
	LastModified time.Time
}

// Response is a successful (2xx or 304) upstream exchange.
type Response struct {
	Status       int
	Body         json.RawMessage // nil on 304
	ETag         string
	LastModified time.Time
}

// NotModified reports whether the upstream confirmed the cached copy.
func (r *Response) NotModified() bool {
	return r.Status == http.StatusNotModified
}

// Get performs an authenticated GET. When cond carries validators they are
// sent upstream; a 304 comes back as a Response with NotModified() true and
// no body. Any non-2xx/304 status returns a tagged *APIError.
func (c *Client) Get(ctx context.Context, token, p string, params map[string]string, cond Conditional) (*Response, error) {
	req, err := c.newRequest(ctx, http.MethodGet, p, params, nil)
	if err != nil {
		return nil, err
	}
	if cond.ETag != "" {
		req.Header.Set("If-None-Match", cond.ETag)
	}
	if !cond.LastModified.IsZero() {
		req.Header.Set("If-Modified-Since", cond.LastModified.UTC().Format(http.TimeFormat))
	}
	return c.do(ctx, token, req)
}

// Post performs an authenticated POST with an optional JSON body.
func (c *Client) Post(ctx context.Context, token, p string, body any) (*Response, error) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		payload = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, http.MethodPost, p, nil, payload)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(ctx, token, req)
}

func (c *Client) newRequest(ctx context.Context, method, p string, params map[string]string, body io.Reader) (*http.Request, error) {
	u := *c.baseURL
	u.Path = path.Join(u.Path, p)
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

// do sends req through an oauth2 transport built from the per-call token.
// The transport is what injects the Authorization header, so the token never
// appears in a place that could be logged with the request.
func (c *Client) do(ctx context.Context, token string, req *http.Request) (*Response, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	// oauth2.NewClient keeps the base transport but not the base timeout.
	httpClient.Timeout = c.http.Timeout

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Kind: KindUnavailable, Message: "request failed: " + err.Error()}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return &Response{
			Status:       resp.StatusCode,
			ETag:         resp.Header.Get("ETag"),
			LastModified: parseLastModified(resp.Header.Get("Last-Modified")),
		}, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &APIError{Kind: KindUnavailable, Message: "read body: " + err.Error()}
		}
		return &Response{
			Status:       resp.StatusCode,
			Body:         body,
			ETag:         resp.Header.Get("ETag"),
			LastModified: parseLastModified(resp.Header.Get("Last-Modified")),
		}, nil
	default:
		msg := readErrorMessage(resp.Body)
		return nil, classifyStatus(resp.StatusCode, msg)
	}
}

// readErrorMessage pulls GitHub's "message" field out of an error body when
// present, falling back to a trimmed raw body.
func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBodyBytes))
	if err != nil || len(data) == 0 {
		return ""
	}
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	return string(data)
}

func parseLastModified(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := http.ParseTime(v)
	if err != nil {
		return time.Time{}
	}
	return t
}
