package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// defaultGraphBaseURL is the Meta Graph API endpoint for Instagram messaging.
const defaultGraphBaseURL = "https://graph.instagram.com/v18.0"

// InstagramOpts holds configuration options for the Instagram DM sender.
type InstagramOpts struct {
	AccessToken string
	AccountID   string // the business account's IG user ID
	BaseURL     string
	HTTPClient  *http.Client
}

// InstagramOption defines a configuration option for the Instagram sender.
type InstagramOption func(*InstagramOpts)

// WithAccessToken sets the Graph API access token.
func WithAccessToken(token string) InstagramOption {
	return func(o *InstagramOpts) { o.AccessToken = token }
}

// WithAccountID sets the sending Instagram business account ID.
func WithAccountID(id string) InstagramOption {
	return func(o *InstagramOpts) { o.AccountID = id }
}

// WithBaseURL overrides the Graph API base URL (used by tests).
func WithBaseURL(url string) InstagramOption {
	return func(o *InstagramOpts) { o.BaseURL = url }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) InstagramOption {
	return func(o *InstagramOpts) { o.HTTPClient = c }
}

// InstagramSender delivers direct messages through the Meta Graph API.
type InstagramSender struct {
	accessToken string
	accountID   string
	baseURL     string
	httpClient  *http.Client
}

// Compile-time check that InstagramSender implements Sender.
var _ Sender = (*InstagramSender)(nil)

// NewInstagramSender creates a Graph API Instagram DM sender. Options fall
// back to the INSTAGRAM_ACCESS_TOKEN and INSTAGRAM_ACCOUNT_ID environment
// variables.
func NewInstagramSender(opts ...InstagramOption) (*InstagramSender, error) {
	var cfg InstagramOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccessToken == "" {
		cfg.AccessToken = os.Getenv("INSTAGRAM_ACCESS_TOKEN")
	}
	if cfg.AccountID == "" {
		cfg.AccountID = os.Getenv("INSTAGRAM_ACCOUNT_ID")
	}
	if cfg.AccessToken == "" || cfg.AccountID == "" {
		return nil, fmt.Errorf("access token and account ID must be provided")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGraphBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &InstagramSender{
		accessToken: cfg.AccessToken,
		accountID:   cfg.AccountID,
		baseURL:     cfg.BaseURL,
		httpClient:  cfg.HTTPClient,
	}, nil
}

// Send delivers an Instagram direct message to the given IG user ID.
func (s *InstagramSender) Send(ctx context.Context, recipient, body string) error {
	if recipient == "" {
		return fmt.Errorf("recipient cannot be empty")
	}

	payload := map[string]interface{}{
		"recipient": map[string]string{"id": recipient},
		"message":   map[string]string{"text": body},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode message payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", s.baseURL, s.accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		slog.Error("InstagramSender.Send request failed", "to", recipient, "error", err)
		return fmt.Errorf("failed to send instagram message to %s: %w", recipient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		slog.Error("InstagramSender.Send rejected", "to", recipient, "status", resp.StatusCode, "body", string(respBody))
		return fmt.Errorf("instagram API returned status %d for %s", resp.StatusCode, recipient)
	}
	slog.Debug("InstagramSender.Send succeeded", "to", recipient)
	return nil
}
