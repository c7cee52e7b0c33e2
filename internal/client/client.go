// Package client talks to the remote content governance service.
//
// The client fails open: every transport problem is turned into an allow
// response that carries the original content unchanged. Callers never see
// an error from Govern.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Version is reported in the X-Tork-Client-Version header. Overridden at
// build time via -ldflags.
var Version = "0.1.0-dev"

const (
	clientName     = "tork-guardian"
	governPath     = "/api/v1/govern"
	defaultBaseURL = "https://tork.network"
	defaultTimeout = 5 * time.Second
	maxErrorBody   = 512
)

type Action string

const (
	ActionAllow  Action = "allow"
	ActionRedact Action = "redact"
	ActionDeny   Action = "deny"
)

func (a Action) valid() bool {
	switch a {
	case ActionAllow, ActionRedact, ActionDeny:
		return true
	}
	return false
}

// Options travel with the content to the governance endpoint.
type Options struct {
	Mode    string            `json:"mode,omitempty"`
	SkillID string            `json:"skill_id,omitempty"`
	Context map[string]string `json:"context,omitempty"`
}

type PIIDetection struct {
	HasPII bool     `json:"has_pii"`
	Types  []string `json:"types,omitempty"`
	Count  int      `json:"count,omitempty"`
}

type Receipt struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp,omitempty"`
	Hash      string `json:"hash,omitempty"`
}

type Usage struct {
	Calls     int `json:"calls,omitempty"`
	Remaining int `json:"remaining,omitempty"`
}

type GovernResponse struct {
	Action      Action        `json:"action"`
	Output      string        `json:"output"`
	PIIDetected *PIIDetection `json:"pii_detected,omitempty"`
	Receipt     *Receipt      `json:"receipt,omitempty"`
	Usage       *Usage        `json:"usage,omitempty"`

	failedOpen bool
}

// FailedOpen reports whether the response was synthesized locally because
// the service could not be reached or answered with garbage. Such a
// response never carries a receipt. Fail-closed wrappers should treat it
// as untrusted.
func (r GovernResponse) FailedOpen() bool { return r.failedOpen }

type governRequest struct {
	Content string   `json:"content"`
	Options *Options `json:"options,omitempty"`
}

type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithTimeout bounds each governance call. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithHTTPClient replaces the transport. Its Timeout is kept as given.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Govern submits content for a governance verdict. It always returns a
// usable response.
func (c *Client) Govern(ctx context.Context, content string, opts *Options) GovernResponse {
	resp, err := c.do(ctx, content, opts)
	if err != nil {
		c.logger.Warn("governance call failed, failing open", "error", err, "base_url", c.baseURL)
		return GovernResponse{Action: ActionAllow, Output: content, failedOpen: true}
	}
	if resp.Action == ActionAllow && resp.Output == "" {
		resp.Output = content
	}
	return resp
}

// Redact asks the service to return content with PII masked.
func (c *Client) Redact(ctx context.Context, content string) GovernResponse {
	return c.Govern(ctx, content, &Options{Mode: "redact"})
}

func (c *Client) do(ctx context.Context, content string, opts *Options) (GovernResponse, error) {
	data, err := json.Marshal(governRequest{Content: content, Options: opts})
	if err != nil {
		return GovernResponse{}, fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+governPath, bytes.NewReader(data))
	if err != nil {
		return GovernResponse{}, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return GovernResponse{}, fmt.Errorf("govern request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return GovernResponse{}, fmt.Errorf("govern error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out GovernResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return GovernResponse{}, fmt.Errorf("decoding response: %w", err)
	}
	if !out.Action.valid() {
		return GovernResponse{}, fmt.Errorf("unknown action %q", out.Action)
	}
	return out, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Tork-Client", clientName)
	req.Header.Set("X-Tork-Client-Version", Version)
}
