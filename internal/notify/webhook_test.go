package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chun1617/Kir-Manager-sub002/internal/model"
)

func TestNewWebhookNotifier_EmptyURL(t *testing.T) {
	if NewWebhookNotifier("") != nil {
		t.Error("empty URL should yield a nil notifier")
	}
}

func TestSend(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	msg := SwitchMessage(model.SwitchEvent{
		At:         time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		FromBackup: "old",
		ToBackup:   "new",
		Balance:    4.5,
		Reason:     "balance below threshold",
	})
	if err := n.Send(msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got.Event != "switch" || got.Backup != "new" {
		t.Errorf("payload = %+v", got)
	}
	if got.Balance != 4.5 {
		t.Errorf("Balance = %v, want 4.5", got.Balance)
	}
}

func TestSend_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	if err := n.Send(Message{Event: "switch"}); err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestSendWithRetry_EventualSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	n.Backoff = time.Millisecond

	err := n.SendWithRetry(context.Background(), Message{Event: "switch"}, 4)
	if err != nil {
		t.Fatalf("SendWithRetry: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestSendWithRetry_Exhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	n.Backoff = time.Millisecond

	if err := n.SendWithRetry(context.Background(), Message{Event: "switch"}, 2); err == nil {
		t.Fatal("expected error after retries exhausted")
	}
}

func TestSendWithRetry_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	n.Backoff = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := n.SendWithRetry(ctx, Message{Event: "switch"}, 3)
	if err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestLowBalanceMessage(t *testing.T) {
	msg := LowBalanceMessage("work-pro", 3.5, 10)
	if msg.Event != "low_balance" {
		t.Errorf("Event = %q", msg.Event)
	}
	if msg.Backup != "work-pro" || msg.Balance != 3.5 {
		t.Errorf("payload = %+v", msg)
	}
	if msg.At.IsZero() {
		t.Error("At not set")
	}
}
