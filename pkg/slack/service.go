// Package slack posts team notifications to a Slack incoming webhook.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrSlackSendFailed is returned when the webhook rejects a message
	ErrSlackSendFailed = errors.New("failed to send Slack notification")
)

// Message is the webhook payload
type Message struct {
	Text string `json:"text"`
}

// Client sends messages to Slack
type Client interface {
	SendMessage(ctx context.Context, msg Message) error
}

// WebhookClient implements Client using an incoming webhook
type WebhookClient struct {
	webhookURL string
	httpClient *http.Client
}

// NewWebhookClient creates a webhook client
func NewWebhookClient(webhookURL string) *WebhookClient {
	return &WebhookClient{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SendMessage posts msg to the webhook
func (c *WebhookClient) SendMessage(ctx context.Context, msg Message) error {
	if c.webhookURL == "" {
		return fmt.Errorf("slack webhook URL not configured")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSlackSendFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrSlackSendFailed, resp.StatusCode)
	}
	return nil
}

// Service formats notifications for the team channel
type Service struct {
	client Client
}

// NewService creates a Slack service. A nil client disables it.
func NewService(client Client) *Service {
	return &Service{client: client}
}

// IsEnabled reports whether a client is configured
func (s *Service) IsEnabled() bool {
	return s.client != nil
}

// Notify posts a notification addressed to a named user.
func (s *Service) Notify(ctx context.Context, recipient, title, message string, urgent bool) error {
	if !s.IsEnabled() {
		return nil
	}

	var b strings.Builder
	if urgent {
		b.WriteString(":rotating_light: ")
	}
	fmt.Fprintf(&b, "*%s*\n", title)
	fmt.Fprintf(&b, "• For: %s", recipient)
	if message != "" {
		fmt.Fprintf(&b, "\n• %s", message)
	}
	return s.client.SendMessage(ctx, Message{Text: b.String()})
}
