package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookNotifier delivers notifications as a JSON POST to a fixed URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier. A nil client uses a
// default with a 10 s timeout.
func NewWebhookNotifier(url string, client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookNotifier{url: url, client: client}
}

// Send posts the notification. Non-2xx responses are errors so the gate
// can log them.
func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("sluice/notify: marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("sluice/notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sluice/notify: post notification: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // response body is discarded

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sluice/notify: notification endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// NoopNotifier drops all notifications. Useful in tests and producer
// processes that leave delivery to another replica.
type NoopNotifier struct{}

// Send implements Notifier.
func (NoopNotifier) Send(_ context.Context, _ Notification) error { return nil }
