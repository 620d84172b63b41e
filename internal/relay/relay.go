// Package relay performs single pass-through HTTP calls against the Rally
// API, authenticating with a caller-supplied API key.
//
// A Relay never looks the key up itself and never interprets the response:
// any HTTP status, including 4xx and 5xx, comes back as a Response. Only
// malformed input and transport failures are errors (see internal/fault).
package relay

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/benaskins/rally/internal/fault"
	"github.com/google/uuid"
	"golang.org/x/net/http/httpguts"
)

// AuthHeader carries the API key on every relayed request.
const AuthHeader = "ZSESSIONID"

const contentType = "application/json"

// Request describes one outbound call. A nil Body sends no body.
type Request struct {
	URL    string  `json:"url"`
	Method string  `json:"method"`
	Body   *string `json:"body,omitempty"`
	APIKey string  `json:"apiKey"`
}

// Response is the raw outcome of a relayed call.
type Response struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// Relay sends Requests. It holds no per-call state and is safe for
// concurrent use.
type Relay struct {
	client *http.Client
	logger *slog.Logger
}

// Option configures a Relay.
type Option func(*Relay)

// WithClient replaces the default HTTP client.
func WithClient(c *http.Client) Option {
	return func(r *Relay) { r.client = c }
}

// WithLogger replaces the default component logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) { r.logger = l }
}

// New creates a Relay. The default client has no timeout and no retry.
func New(opts ...Option) *Relay {
	r := &Relay{
		client: &http.Client{},
		logger: slog.With("component", "relay"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do performs exactly one HTTP call for req.
func (r *Relay) Do(ctx context.Context, req Request) (*Response, error) {
	method, err := NormalizeMethod(req.Method)
	if err != nil {
		return nil, err
	}
	target, err := parseTarget(req.URL)
	if err != nil {
		return nil, err
	}

	if !httpguts.ValidHeaderFieldValue(req.APIKey) {
		return nil, fault.Errorf(fault.InvalidAPIKey, "relay", "api key contains a control character")
	}

	var body io.Reader
	if req.Body != nil {
		body = strings.NewReader(*req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fault.New(fault.InvalidURL, "relay build", err)
	}
	// Set directly so the header names go out exactly as written.
	httpReq.Header["Content-Type"] = []string{contentType}
	httpReq.Header[AuthHeader] = []string{req.APIKey}

	id := uuid.NewString()
	logger := r.logger.With("request_id", id, "method", method, "host", target.Host)
	logger.Debug("relaying request", "path", target.Path, "has_body", req.Body != nil)

	start := time.Now()
	resp, err := r.client.Do(httpReq)
	if err != nil {
		logger.Warn("relay transport failure", "error", err)
		return nil, fault.New(fault.TransportError, "relay send", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Warn("relay body read failure", "status", resp.StatusCode, "error", err)
		return nil, fault.New(fault.BodyReadError, "relay read", err)
	}

	logger.Debug("relay complete",
		"status", resp.StatusCode,
		"bytes", len(data),
		"duration", time.Since(start))

	return &Response{Status: resp.StatusCode, Body: string(data)}, nil
}

func parseTarget(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fault.New(fault.InvalidURL, "relay", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fault.Errorf(fault.InvalidURL, "relay", "url %q is not absolute", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fault.Errorf(fault.InvalidURL, "relay", "unsupported scheme %q", u.Scheme)
	}
	return u, nil
}
