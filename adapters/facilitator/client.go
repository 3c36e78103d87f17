// Package facilitator is an HTTP client for x402 facilitator services.
package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/layer-3/tollgate/core"
)

// Client talks to a facilitator's /supported, /verify and /settle endpoints
type Client struct {
	baseURL       string
	http          *http.Client
	auth          Authenticator
	verifyTimeout time.Duration
	settleTimeout time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithAuth sets the request authenticator
func WithAuth(a Authenticator) Option { return func(c *Client) { c.auth = a } }

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithTimeouts sets per-call timeouts; settlement waits for a chain transaction
func WithTimeouts(verify, settle time.Duration) Option {
	return func(c *Client) {
		c.verifyTimeout = verify
		c.settleTimeout = settle
	}
}

// New creates a facilitator client
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		http:          &http.Client{},
		verifyTimeout: 10 * time.Second,
		settleTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type request struct {
	X402Version         int                      `json:"x402Version"`
	PaymentPayload      *core.PaymentPayload     `json:"paymentPayload"`
	PaymentRequirements *core.PaymentRequirement `json:"paymentRequirements"`
}

type supportedResponse struct {
	Kinds []core.SupportedKind `json:"kinds"`
}

// Supported lists the (scheme, network) pairs the facilitator handles
func (c *Client) Supported(ctx context.Context) ([]core.SupportedKind, error) {
	var out supportedResponse
	if err := c.do(ctx, http.MethodGet, "/supported", nil, c.verifyTimeout, &out); err != nil {
		return nil, err
	}
	return out.Kinds, nil
}

// Verify checks a payment proof without settling it
func (c *Client) Verify(ctx context.Context, payload *core.PaymentPayload, req *core.PaymentRequirement) (*core.VerifyResult, error) {
	var out core.VerifyResult
	body := request{X402Version: payloadVersion(payload), PaymentPayload: payload, PaymentRequirements: req}
	if err := c.do(ctx, http.MethodPost, "/verify", body, c.verifyTimeout, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Settle executes a verified payment on chain
func (c *Client) Settle(ctx context.Context, payload *core.PaymentPayload, req *core.PaymentRequirement) (*core.SettleResult, error) {
	var out core.SettleResult
	body := request{X402Version: payloadVersion(payload), PaymentPayload: payload, PaymentRequirements: req}
	if err := c.do(ctx, http.MethodPost, "/settle", body, c.settleTimeout, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do sends one request. Transport failures, timeouts and 5xx answers are
// reported as core.ErrFacilitatorUnavailable.
func (c *Client) do(ctx context.Context, method, path string, in any, timeout time.Duration, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.auth != nil {
		if err := c.auth.Authorize(req); err != nil {
			return fmt.Errorf("failed to authorize request: %w", err)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrFacilitatorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s: status %d: %s", core.ErrFacilitatorUnavailable, method, path, resp.StatusCode, snippet)
	}

	// verify and settle report rejections in the body, sometimes with a 4xx
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
		}
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}

	return nil
}

func payloadVersion(p *core.PaymentPayload) int {
	if p != nil && p.X402Version != 0 {
		return p.X402Version
	}
	return core.X402Version
}
