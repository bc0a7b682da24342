// Package api is the single configured HTTP client for the backend. Every
// call goes through a request interceptor that attaches the bearer token and
// a response interceptor that refreshes the session once on 401.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"genstudio/internal/logging"
	"genstudio/internal/models"
)

const maxResponseBytes = 10 << 20

// ErrNoData is returned by Response.Decode when the envelope carried no data.
var ErrNoData = errors.New("api: response has no data")

// SessionProvider is how the client reads and updates the session without
// knowing who owns it.
type SessionProvider interface {
	// AccessToken returns the token to send, or "" when there is none.
	AccessToken(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) (string, error)
	// AccountType selects the refresh route: models.AccountAI or standard.
	AccountType() string
	OnRefreshed(ctx context.Context, tokens models.AuthTokens) error
	// OnAuthFailure must clear the session. It must not call back into the client.
	OnAuthFailure(ctx context.Context)
}

// Request describes one logical call. Bodies are encoded once and replayed
// as is on retry.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   interface{}
	File   *File
	Header http.Header
}

// File is a multipart upload part.
type File struct {
	Field string
	Name  string
	Data  []byte
	// Fields are extra form values sent alongside the file.
	Fields map[string]string
}

// Response is a successful, unwrapped backend response.
type Response struct {
	Status  int
	Message string
	Data    json.RawMessage
}

// Decode unmarshals the envelope's data into v.
func (r *Response) Decode(v interface{}) error {
	if r == nil || len(r.Data) == 0 || string(r.Data) == "null" {
		return ErrNoData
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("api: decode response data: %w", err)
	}
	return nil
}

// State of the refresh coordinator.
type State int

const (
	StateNormal State = iota
	StateRefreshing
)

func (s State) String() string {
	if s == StateRefreshing {
		return "REFRESHING"
	}
	return "NORMAL"
}

// Client is safe for concurrent use.
type Client struct {
	baseURL   string
	http      *http.Client
	headers   http.Header
	logger    logrus.FieldLogger
	userAgent string

	mu      sync.RWMutex
	session SessionProvider

	refreshGroup singleflight.Group
	refreshing   atomic.Int32
}

// Option configures the Client during construction.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithSessionProvider(p SessionProvider) Option {
	return func(c *Client) {
		c.session = p
	}
}

// WithHeader adds a default header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Set(key, value)
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New constructs a Client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 30 * time.Second},
		headers:   http.Header{},
		logger:    logging.Discard(),
		userAgent: "genstudio-client/1.0",
	}
	c.headers.Set("Accept", "application/json")

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetSessionProvider wires the session owner after construction, since the
// session store itself needs a client.
func (c *Client) SetSessionProvider(p SessionProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = p
}

func (c *Client) provider() SessionProvider {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// State reports whether a refresh is in flight.
func (c *Client) State() State {
	if c.refreshing.Load() > 0 {
		return StateRefreshing
	}
	return StateNormal
}

func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
}

func (c *Client) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body})
}

func (c *Client) Put(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPut, Path: path, Body: body})
}

func (c *Client) Patch(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPatch, Path: path, Body: body})
}

func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path})
}

// Upload sends the local file at filePath as a multipart "file" field.
func (c *Client) Upload(ctx context.Context, path, filePath string) (*Response, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("api: read upload %s: %w", filePath, err)
	}
	return c.Do(ctx, &Request{
		Method: http.MethodPost,
		Path:   path,
		File:   &File{Field: "file", Name: filepath.Base(filePath), Data: data},
	})
}

// Do sends req through both interceptors.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, err
	}

	at := &attempt{
		req:         req,
		body:        body,
		contentType: contentType,
		requestID:   uuid.NewString(),
		accountType: c.accountType(),
	}

	resp, err := c.send(ctx, at)
	if err == nil || !IsUnauthorized(err) {
		return resp, err
	}
	return c.handleUnauthorized(ctx, at, err)
}

func (c *Client) accountType() string {
	if p := c.provider(); p != nil {
		return p.AccountType()
	}
	return models.AccountStandard
}

// send performs exactly one HTTP exchange for at.
func (c *Client) send(ctx context.Context, at *attempt) (*Response, error) {
	endpoint := c.baseURL + at.req.Path
	if len(at.req.Query) > 0 {
		endpoint += "?" + at.req.Query.Encode()
	}

	var reader io.Reader
	if at.body != nil {
		reader = bytes.NewReader(at.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, at.req.Method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("api: build request: %w", err)
	}

	for k, vs := range c.headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	for k, vs := range at.req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if at.contentType != "" {
		httpReq.Header.Set("Content-Type", at.contentType)
	}
	httpReq.Header.Set("User-Agent", c.userAgent)
	httpReq.Header.Set("X-Request-ID", at.requestID)

	c.authorize(ctx, httpReq, at)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"method": at.req.Method,
			"path":   at.req.Path,
		}).WithError(err).Warn("request failed before a response was received")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &Error{Message: NetworkMessage, Err: ctxErr}
		}
		return nil, newTransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, newTransportError(fmt.Errorf("read response: %w", err))
	}

	c.logger.WithFields(logrus.Fields{
		"method":     at.req.Method,
		"path":       at.req.Path,
		"status":     resp.StatusCode,
		"retried":    at.retried,
		"request_id": at.requestID,
		"duration":   time.Since(start).String(),
	}).Debug("api response")

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, newStatusError(resp.StatusCode, raw)
	}
	return decodeResponse(resp.StatusCode, raw), nil
}

func decodeResponse(status int, raw []byte) *Response {
	out := &Response{Status: status}
	if len(bytes.TrimSpace(raw)) == 0 {
		return out
	}

	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		out.Data = raw
		return out
	}
	data, ok := env["data"]
	if !ok {
		out.Data = raw
		return out
	}
	out.Data = data
	if msg, ok := asString(env["message"]); ok {
		out.Message = msg
	}
	return out
}

func encodeBody(req *Request) ([]byte, string, error) {
	if req.File != nil {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for k, v := range req.File.Fields {
			if err := w.WriteField(k, v); err != nil {
				return nil, "", fmt.Errorf("api: encode form field: %w", err)
			}
		}
		field := req.File.Field
		if field == "" {
			field = "file"
		}
		part, err := w.CreateFormFile(field, req.File.Name)
		if err != nil {
			return nil, "", fmt.Errorf("api: create form file: %w", err)
		}
		if _, err := part.Write(req.File.Data); err != nil {
			return nil, "", fmt.Errorf("api: write form file: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("api: close multipart: %w", err)
		}
		return buf.Bytes(), w.FormDataContentType(), nil
	}

	if req.Body == nil {
		return nil, "", nil
	}
	body, err := json.Marshal(req.Body)
	if err != nil {
		return nil, "", fmt.Errorf("api: encode body: %w", err)
	}
	return body, "application/json", nil
}

// EventsURL returns the websocket URL for the job event stream.
func (c *Client) EventsURL(token string) (string, error) {
	u, err := url.Parse(c.baseURL + PathEvents)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// CurrentAccessToken returns the token the request interceptor would attach.
func (c *Client) CurrentAccessToken(ctx context.Context) string {
	p := c.provider()
	if p == nil {
		return ""
	}
	token, _ := p.AccessToken(ctx)
	return token
}
