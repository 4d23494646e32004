package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chun1617/Kir-Manager-sub002/internal/model"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	c.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics handler status = %d", rr.Code)
	}
	return rr.Body.String()
}

func TestCollectorRecordsCounters(t *testing.T) {
	c, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	c.RecordPoll(nil)
	c.RecordPoll(errors.New("boom"))
	c.RecordSwitch()

	body := scrape(t, c)
	if !strings.Contains(body, "kirman_monitor_polls_total 2") {
		t.Errorf("polls_total not recorded, body=%q", body)
	}
	if !strings.Contains(body, "kirman_monitor_poll_errors_total 1") {
		t.Errorf("poll_errors_total not recorded, body=%q", body)
	}
	if !strings.Contains(body, "kirman_monitor_switches_total 1") {
		t.Errorf("switches_total not recorded, body=%q", body)
	}
}

func TestCollectorGauges(t *testing.T) {
	c, err := NewCollector()
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	c.SetBalance("work-pro", 42.5)
	c.SetPollInterval(15)
	c.SetState(model.StateCooldown)

	body := scrape(t, c)
	if !strings.Contains(body, `kirman_monitor_balance_credits{backup="work-pro"} 42.5`) {
		t.Errorf("balance gauge not recorded, body=%q", body)
	}
	if !strings.Contains(body, "kirman_monitor_poll_interval_minutes 15") {
		t.Errorf("poll interval gauge not recorded, body=%q", body)
	}
	if !strings.Contains(body, `kirman_monitor_state{state="cooldown"} 1`) {
		t.Errorf("cooldown state not set, body=%q", body)
	}
	if !strings.Contains(body, `kirman_monitor_state{state="running"} 0`) {
		t.Errorf("running state not cleared, body=%q", body)
	}

	// Switching state flips the gauges.
	c.SetState(model.StateRunning)
	body = scrape(t, c)
	if !strings.Contains(body, `kirman_monitor_state{state="running"} 1`) {
		t.Errorf("running state not set after transition, body=%q", body)
	}
	if !strings.Contains(body, `kirman_monitor_state{state="cooldown"} 0`) {
		t.Errorf("cooldown state not cleared after transition, body=%q", body)
	}
}
