// Package mail delivers transactional email through the Resend HTTP API.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrDelivery means the provider did not accept the message; magic-link
// requests must surface this, never report silent success.
var ErrDelivery = errors.New("email delivery failed")

const resendEndpoint = "https://api.resend.com/emails"

type Client struct {
	apiKey     string
	from       string
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(logger *slog.Logger, apiKey, from string) *Client {
	return &Client{
		apiKey:   apiKey,
		from:     from,
		endpoint: resendEndpoint,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

// NewClientWithEndpoint is used by tests to point at a stub server.
func NewClientWithEndpoint(logger *slog.Logger, apiKey, from, endpoint string) *Client {
	c := NewClient(logger, apiKey, from)
	c.endpoint = endpoint
	return c
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Send posts one HTML message. Any non-2xx response maps to ErrDelivery.
func (c *Client) Send(ctx context.Context, to, subject, html string) error {
	body, err := json.Marshal(sendRequest{
		From:    c.from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.logger.Warn("email_send_rejected", "status", resp.StatusCode, "body", string(detail))
		return fmt.Errorf("%w: status %d", ErrDelivery, resp.StatusCode)
	}

	return nil
}
