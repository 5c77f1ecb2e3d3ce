// Package supabase talks to a hosted PostgREST backend. Every request carries
// the project's anon key and the caller's access token, so row level security
// decides what each caller can read and write.
package supabase

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

	"go.uber.org/zap"
)

const (
	restPath        = "/rest/v1"
	defaultTimeout  = 30 * time.Second
	preferHeader    = "Prefer"
	returnRows      = "return=representation"
	contentTypeJSON = "application/json"
)

var (
	// ErrMissingURL indicates that the client was configured without a project URL.
	ErrMissingURL = errors.New("supabase: project url required")
	// ErrMissingAnonKey indicates that the client was configured without an anon key.
	ErrMissingAnonKey = errors.New("supabase: anon key required")
)

// Config describes how to reach the hosted backend.
type Config struct {
	URL        string
	AnonKey    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client is shared by every caller; bind it to an access token with ForToken.
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, ErrMissingURL
	}
	if !strings.HasPrefix(baseURL, "http") {
		baseURL = "https://" + baseURL
	}
	if strings.TrimSpace(cfg.AnonKey) == "" {
		return nil, ErrMissingAnonKey
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		anonKey:    cfg.AnonKey,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// ForToken returns a data source that acts as the holder of accessToken.
func (c *Client) ForToken(accessToken string) *Session {
	return &Session{client: c, tokens: staticToken(accessToken)}
}

// ForSession returns a data source that reads the token from tokens on every
// request, so refreshed tokens apply without rebinding.
func (c *Client) ForSession(tokens TokenSource) *Session {
	return &Session{client: c, tokens: tokens}
}

// BaseURL returns the normalized project URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) do(ctx context.Context, token, method, endpoint string, query url.Values, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("supabase: encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	target := c.baseURL + restPath + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	request, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("supabase: build request: %w", err)
	}
	bearer := token
	if bearer == "" {
		bearer = c.anonKey
	}
	request.Header.Set("apikey", c.anonKey)
	request.Header.Set("Authorization", "Bearer "+bearer)
	request.Header.Set("Accept", contentTypeJSON)
	if body != nil {
		request.Header.Set("Content-Type", contentTypeJSON)
	}
	if method != http.MethodGet {
		request.Header.Set(preferHeader, returnRows)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("supabase: %s %s: %w", method, endpoint, err)
	}
	defer response.Body.Close()

	payload, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("supabase: read response: %w", err)
	}
	if response.StatusCode >= http.StatusBadRequest {
		failure := decodeError(response.StatusCode, payload)
		c.logger.Debug("supabase request failed",
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Int("status", response.StatusCode),
			zap.String("code", failure.Code),
		)
		return failure
	}
	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("supabase: decode response: %w", err)
	}
	return nil
}
