package stagesvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// Client calls one stage automation service over HTTP. The pipeline server
// wires four of them, one per stage.
type Client struct {
	baseURL *url.URL
	token   string
	logger  *slog.Logger
	client  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithLogger sets the logger used for request logging.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client for the stage service at host.
func New(host string, opts ...Option) (*Client, error) {
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid host URL: %w", err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("host URL must include scheme, got %q", host)
	}

	c := &Client{
		baseURL: u,
		logger:  slog.Default(),
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run posts the stage input to the service and returns its verdict. A
// non-nil error means the call itself failed (transport, bad status,
// undecodable body); a Result with Success=false is a verdict the service
// reached and reported.
//
// Per-call deadlines come from ctx. The pipeline executor owns stage
// timeouts, so the client sets none of its own.
func (c *Client) Run(ctx context.Context, input map[string]any) (Result, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return Result{}, fmt.Errorf("failed to encode stage input: %w", err)
	}

	reqURL := c.baseURL.JoinPath("run").String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Debug("calling stage service", "url", reqURL)

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("failed to call stage service: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("stage service returned status %d", resp.StatusCode)
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return Result{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return result, nil
}
