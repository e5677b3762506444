package notify

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

const defaultWebhookTimeout = 10 * time.Second

// WebhookNotifier posts each notice as JSON: a human-readable "text" line set for chat
// integrations plus the structured notice.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

type webhookBody struct {
	Text   string `json:"text"`
	Notice Notice `json:"notice"`
}

// NewWebhookNotifier returns nil for an empty url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil
	}
	return &WebhookNotifier{url: url, client: &http.Client{Timeout: defaultWebhookTimeout}}
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, notice Notice) error {
	if n == nil {
		return errors.New("webhook notifier: not configured")
	}
	payload, err := json.Marshal(webhookBody{Text: Summary(notice), Notice: notice})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook notifier: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("webhook notifier: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Summary renders a notice as a few "Label: value" lines.
func Summary(n Notice) string {
	lines := []string{fmt.Sprintf("Scheduled simulation %s", n.Status)}
	add := func(label, value string) {
		if value != "" {
			lines = append(lines, label+": "+value)
		}
	}
	add("Property", n.PropertyID)
	add("Period", n.Period)
	add("Simulation", n.SimulationID)
	if n.SavingsTotal != "" {
		add("Savings", n.SavingsTotal+" kr")
	}
	add("Data quality", n.DataQuality)
	add("Error", n.Error)
	add("Report", n.ReportURL)
	return strings.Join(lines, "\n")
}
