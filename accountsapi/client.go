// Package accountsapi is the account-management REST client that panels reach
// through the bridge. Requests carry the SDK's current access token.
package accountsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

var ErrNotLoggedIn = errors.New("user not logged in")

// TokenFunc returns the current access token, or "" when there is no session.
type TokenFunc func(ctx context.Context) (string, error)

// Config configures Client.
type Config struct {
	// BaseURL is the API root, usually BaseURL(domain).
	BaseURL    string
	Token      TokenFunc
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client calls the account-management API.
type Client struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// APIError is a non-2xx response.
type APIError struct {
	Status int
	Body   struct {
		Message string `json:"message"`
	}
}

func (e *APIError) Error() string {
	return fmt.Sprintf("accounts api: %d %s", e.Status, e.Body.Message)
}

// ErrorMessage is the server supplied message.
func (e *APIError) ErrorMessage() string { return e.Body.Message }

// BaseURL returns the API root for a tenant domain.
func BaseURL(domain string) string {
	return strings.TrimRight(domain, "/") + "/accounts-api"
}

func New(cfg Config) *Client {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{cfg: cfg, client: client, logger: logger}
}

// Do sends a JSON request to path and decodes a JSON response into out when out
// is non-nil. body is sent as-is when it is a json.RawMessage.
func (c *Client) Do(ctx context.Context, method, path string, body any, out any) error {
	if c.cfg.Token == nil {
		return ErrNotLoggedIn
	}
	token, err := c.cfg.Token(ctx)
	if err != nil {
		return fmt.Errorf("access token: %w", err)
	}
	if token == "" {
		return ErrNotLoggedIn
	}

	var reader io.Reader
	if body != nil {
		raw, ok := body.(json.RawMessage)
		if !ok {
			raw, err = json.Marshal(body)
			if err != nil {
				return fmt.Errorf("encode request: %w", err)
			}
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(data, &apiErr.Body); err != nil || apiErr.Body.Message == "" {
			apiErr.Body.Message = http.StatusText(resp.StatusCode)
		}
		c.logger.Debug("accounts api error", "method", method, "path", path, "status", resp.StatusCode)
		return apiErr
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
