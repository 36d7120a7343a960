// Package provider implements the HTTP client for the external
// conversational-voice API. The client is stateless: it wraps call
// initiation and conversation fetches and leaves all lifecycle tracking to
// the screening engine.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Sentinel errors the engine branches on.
var (
	// ErrNotFound means the provider has no record of the session
	ErrNotFound = errors.New("conversation not found")
	// ErrRateLimited means the provider rejected the request for pacing;
	// callers skip and retry on a later sweep
	ErrRateLimited = errors.New("provider rate limit exceeded")
)

// Client is a thin request/response wrapper around the voice provider API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// ClientConfig holds configuration for the provider client
type ClientConfig struct {
	BaseURL           string
	APIKey            string
	RequestTimeout    time.Duration
	RequestsPerSecond float64
}

// NewClient creates a new provider client
func NewClient(cfg *ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("provider base URL cannot be empty")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider API key cannot be empty")
	}

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2.0
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

// InitiateCall places an outbound call and returns the provider's session id
func (c *Client) InitiateCall(ctx context.Context, req *InitiateCallRequest) (string, error) {
	if req.AgentID == "" {
		return "", fmt.Errorf("agent id cannot be empty")
	}
	if req.PhoneNumber == "" {
		return "", fmt.Errorf("phone number cannot be empty")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to encode call request: %w", err)
	}

	respBody, err := c.do(ctx, http.MethodPost, "/v1/convai/outbound-call", bytes.NewReader(body))
	if err != nil {
		return "", err
	}

	var resp initiateCallResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to decode call response: %w", err)
	}

	if resp.ConversationID == "" {
		return "", fmt.Errorf("provider returned no conversation id")
	}

	return resp.ConversationID, nil
}

// GetConversation fetches a conversation by session id. Returns ErrNotFound
// when the provider has no record of the session and ErrRateLimited when the
// request was rejected for pacing.
func (c *Client) GetConversation(ctx context.Context, sessionID string) (*Conversation, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id cannot be empty")
	}

	respBody, err := c.do(ctx, http.MethodGet, "/v1/convai/conversations/"+sessionID, nil)
	if err != nil {
		return nil, err
	}

	var conv Conversation
	if err := json.Unmarshal(respBody, &conv); err != nil {
		return nil, fmt.Errorf("failed to decode conversation: %w", err)
	}

	if conv.SessionID == "" {
		conv.SessionID = sessionID
	}

	return &conv, nil
}

// do executes one paced HTTP request and maps provider status codes to
// sentinel errors
func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("pacing wait cancelled: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("xi-api-key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read provider response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	return respBody, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
