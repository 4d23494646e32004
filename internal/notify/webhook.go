// Package notify delivers switch and low-balance notifications to a
// user-configured webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/chun1617/Kir-Manager-sub002/internal/model"
)

// Message is the JSON payload posted to the webhook.
type Message struct {
	Event   string    `json:"event"`
	Text    string    `json:"text"`
	Backup  string    `json:"backup,omitempty"`
	Balance float64   `json:"balance,omitempty"`
	At      time.Time `json:"at"`
}

// WebhookNotifier posts messages to a single webhook URL.
type WebhookNotifier struct {
	URL     string
	Client  *http.Client
	Backoff time.Duration
}

// NewWebhookNotifier creates a notifier for the given URL.
// Returns nil if the URL is empty, so callers can keep a nil notifier
// and skip sends.
func NewWebhookNotifier(url string) *WebhookNotifier {
	if url == "" {
		return nil
	}
	return &WebhookNotifier{
		URL:     url,
		Client:  &http.Client{Timeout: 30 * time.Second},
		Backoff: time.Second,
	}
}

// Send posts a message to the webhook.
func (n *WebhookNotifier) Send(msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	resp, err := n.Client.Post(n.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("webhook error: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// SendWithRetry sends a message with exponential backoff retry.
func (n *WebhookNotifier) SendWithRetry(ctx context.Context, msg Message, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := n.Send(msg); err != nil {
			lastErr = err
			backoff := time.Duration(1<<uint(i)) * n.Backoff
			log.Printf("[WARN] webhook send failed (attempt %d/%d): %v, retrying in %v", i+1, maxRetries+1, err, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				continue
			}
		}
		return nil
	}
	return fmt.Errorf("all %d retries exhausted: %w", maxRetries+1, lastErr)
}

// SwitchMessage builds the payload for a completed credential switch.
func SwitchMessage(ev model.SwitchEvent) Message {
	return Message{
		Event:   "switch",
		Text:    fmt.Sprintf("switched credential %s → %s (balance %.1f, %s)", ev.FromBackup, ev.ToBackup, ev.Balance, ev.Reason),
		Backup:  ev.ToBackup,
		Balance: ev.Balance,
		At:      ev.At,
	}
}

// LowBalanceMessage builds the payload for a balance dropping below the
// configured threshold with no switch candidate available.
func LowBalanceMessage(backup string, balance, threshold float64) Message {
	return Message{
		Event:   "low_balance",
		Text:    fmt.Sprintf("backup %s balance %.1f below threshold %.1f", backup, balance, threshold),
		Backup:  backup,
		Balance: balance,
		At:      time.Now().UTC(),
	}
}
