// Package assist calls the external text generation service. The client is
// gated by a feature flag; when the flag is off it never touches the network.
package assist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrInvalidRequest = errors.New("assist: invalid request")
	ErrNotConfigured  = errors.New("assist: service not configured")
)

// StatusError carries a non-2xx response. Body is the service's response
// body, unmodified.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("assist: service returned %d: %s", e.StatusCode, e.Body)
}

type Request struct {
	ModuleID          string `json:"moduleId"`
	SystemInstruction string `json:"systemInstruction"`
	ModuleInstruction string `json:"moduleInstruction"`
	Payload           string `json:"payload"`
}

type Result struct {
	Text     string `json:"text,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

type Config struct {
	Enabled  bool
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

type Client struct {
	enabled  bool
	endpoint string
	apiKey   string
	http     *http.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		enabled:  cfg.Enabled,
		endpoint: strings.TrimSpace(cfg.Endpoint),
		apiKey:   strings.TrimSpace(cfg.APIKey),
		http:     &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient replaces the transport, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

func (c *Client) Enabled() bool {
	return c != nil && c.enabled
}

func (r Request) validate() error {
	missing := make([]string, 0, 4)
	if strings.TrimSpace(r.ModuleID) == "" {
		missing = append(missing, "moduleId")
	}
	if strings.TrimSpace(r.SystemInstruction) == "" {
		missing = append(missing, "systemInstruction")
	}
	if strings.TrimSpace(r.ModuleInstruction) == "" {
		missing = append(missing, "moduleInstruction")
	}
	if strings.TrimSpace(r.Payload) == "" {
		missing = append(missing, "payload")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	return nil
}

// Generate sends req to the service and returns the generated text.
func (c *Client) Generate(ctx context.Context, req Request) (Result, error) {
	if !c.Enabled() {
		return Result{Disabled: true}, nil
	}
	if err := req.validate(); err != nil {
		return Result{}, err
	}
	if c.endpoint == "" || c.apiKey == "" {
		return Result{}, ErrNotConfigured
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("encode assist request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build assist request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("call assist service: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("read assist response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return Result{}, fmt.Errorf("decode assist response: %w", err)
	}
	return Result{Text: out.Text}, nil
}
