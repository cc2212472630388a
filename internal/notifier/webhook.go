package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// WebhookConfig holds an incoming webhook URL.
type WebhookConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// Validate validates the webhook configuration.
func (c *WebhookConfig) Validate() error {
	if c.WebhookURL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if !strings.HasPrefix(c.WebhookURL, "https://") {
		return fmt.Errorf("webhook URL must use HTTPS")
	}
	return nil
}

type webhook struct {
	url        string
	httpClient *http.Client
}

func newWebhook(cfg WebhookConfig, client *http.Client) (*webhook, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &webhook{url: cfg.WebhookURL, httpClient: client}, nil
}

// post sends payload as JSON. Any 2xx is success.
func (w *webhook) post(ctx context.Context, service string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s API error: status %d, body: %s", service, resp.StatusCode, string(body))
	}
	return nil
}

// failureLines renders at most limit failures, one per line.
func failureLines(s *Summary, limit int) []string {
	lines := make([]string, 0, min(len(s.Failures), limit)+1)
	for i, f := range s.Failures {
		if i == limit {
			lines = append(lines, fmt.Sprintf("... and %d more", len(s.Failures)-limit))
			break
		}
		lines = append(lines, fmt.Sprintf("%s: %s", f.TenantID, truncate(f.Message, 160)))
	}
	return lines
}

// truncate truncates a string to max length with ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
