package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/chun1617/Kir-Manager-sub002/internal/model"
)

func openTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func switchAt(t *testing.T, h *History, id string, at time.Time) {
	t.Helper()
	err := h.RecordSwitch(model.SwitchEvent{
		ID:         id,
		At:         at,
		FromBackup: "old",
		ToBackup:   "new",
		Balance:    7.5,
		Reason:     "balance below threshold",
	})
	if err != nil {
		t.Fatalf("RecordSwitch(%s): %v", id, err)
	}
}

func TestRecordSwitch_RoundTrip(t *testing.T) {
	h := openTestHistory(t)
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	switchAt(t, h, "ev-1", at)

	events, err := h.RecentSwitches(10)
	if err != nil {
		t.Fatalf("RecentSwitches: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("event count = %d, want 1", len(events))
	}
	ev := events[0]
	if ev.ID != "ev-1" || ev.FromBackup != "old" || ev.ToBackup != "new" {
		t.Errorf("event = %+v", ev)
	}
	if !ev.At.Equal(at) {
		t.Errorf("At = %v, want %v", ev.At, at)
	}
	if ev.Balance != 7.5 {
		t.Errorf("Balance = %v, want 7.5", ev.Balance)
	}
	if ev.Reason != "balance below threshold" {
		t.Errorf("Reason = %q", ev.Reason)
	}
}

func TestRecentSwitches_NewestFirstWithLimit(t *testing.T) {
	h := openTestHistory(t)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	switchAt(t, h, "ev-1", base)
	switchAt(t, h, "ev-2", base.Add(time.Hour))
	switchAt(t, h, "ev-3", base.Add(2*time.Hour))

	events, err := h.RecentSwitches(2)
	if err != nil {
		t.Fatalf("RecentSwitches: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("event count = %d, want 2", len(events))
	}
	if events[0].ID != "ev-3" || events[1].ID != "ev-2" {
		t.Errorf("order = %s, %s; want ev-3, ev-2", events[0].ID, events[1].ID)
	}
}

func TestSwitchesSince(t *testing.T) {
	h := openTestHistory(t)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	switchAt(t, h, "old", base)
	switchAt(t, h, "recent", base.Add(48*time.Hour))

	events, err := h.SwitchesSince(base.Add(24 * time.Hour))
	if err != nil {
		t.Fatalf("SwitchesSince: %v", err)
	}
	if len(events) != 1 || events[0].ID != "recent" {
		t.Errorf("events = %+v, want just recent", events)
	}
}

func TestSamplesSince_FiltersByBackup(t *testing.T) {
	h := openTestHistory(t)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		err := h.RecordSample(model.BalanceSample{
			At:       base.Add(time.Duration(i) * time.Minute),
			BackupID: "b1",
			Balance:  float64(100 - i),
		})
		if err != nil {
			t.Fatalf("RecordSample: %v", err)
		}
	}
	if err := h.RecordSample(model.BalanceSample{At: base, BackupID: "b2", Balance: 50}); err != nil {
		t.Fatalf("RecordSample: %v", err)
	}

	samples, err := h.SamplesSince("b1", base)
	if err != nil {
		t.Fatalf("SamplesSince: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("sample count = %d, want 3", len(samples))
	}
	// Oldest first.
	if samples[0].Balance != 100 || samples[2].Balance != 98 {
		t.Errorf("order wrong: %+v", samples)
	}

	all, err := h.SamplesSince("", base)
	if err != nil {
		t.Fatalf("SamplesSince(all): %v", err)
	}
	if len(all) != 4 {
		t.Errorf("all-backup sample count = %d, want 4", len(all))
	}
}

func TestDailySwitchCounts(t *testing.T) {
	h := openTestHistory(t)
	now := time.Now().UTC()
	today := now.Truncate(24 * time.Hour)
	yesterday := today.Add(-24 * time.Hour)

	switchAt(t, h, "a", yesterday.Add(time.Hour))
	switchAt(t, h, "b", today.Add(time.Hour))
	switchAt(t, h, "c", today.Add(2*time.Hour))

	counts, err := h.DailySwitchCounts(7)
	if err != nil {
		t.Fatalf("DailySwitchCounts: %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("day count = %d, want 2 (%+v)", len(counts), counts)
	}
	if counts[0].Day != yesterday.Format("2006-01-02") || counts[0].Count != 1 {
		t.Errorf("counts[0] = %+v", counts[0])
	}
	if counts[1].Day != today.Format("2006-01-02") || counts[1].Count != 2 {
		t.Errorf("counts[1] = %+v", counts[1])
	}
}

func TestPrune(t *testing.T) {
	h := openTestHistory(t)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	switchAt(t, h, "stale", base)
	switchAt(t, h, "fresh", base.Add(72*time.Hour))
	if err := h.RecordSample(model.BalanceSample{At: base, BackupID: "b1", Balance: 10}); err != nil {
		t.Fatalf("RecordSample: %v", err)
	}

	if err := h.Prune(base.Add(24 * time.Hour)); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	events, err := h.RecentSwitches(10)
	if err != nil {
		t.Fatalf("RecentSwitches: %v", err)
	}
	if len(events) != 1 || events[0].ID != "fresh" {
		t.Errorf("events after prune = %+v, want just fresh", events)
	}

	samples, err := h.SamplesSince("", base)
	if err != nil {
		t.Fatalf("SamplesSince: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("samples after prune = %d, want 0", len(samples))
	}

	n, err := h.SwitchCount()
	if err != nil {
		t.Fatalf("SwitchCount: %v", err)
	}
	if n != 1 {
		t.Errorf("SwitchCount = %d, want 1", n)
	}
}
