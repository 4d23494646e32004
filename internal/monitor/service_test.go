package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chun1617/Kir-Manager-sub002/internal/backup"
	"github.com/chun1617/Kir-Manager-sub002/internal/config"
	"github.com/chun1617/Kir-Manager-sub002/internal/model"
	"github.com/chun1617/Kir-Manager-sub002/internal/store"
)

func testBackup(id string, balance float64) backup.File {
	return backup.File{
		Backup: model.Backup{
			ID:               id,
			Name:             id,
			Email:            id + "@example.com",
			SubscriptionType: "kiro-pro",
			Balance:          balance,
		},
		Credentials: backup.Credentials{
			AccountID:   "acct-" + id,
			AccessToken: "kiro_token-" + id,
		},
	}
}

func writeBackupFile(t *testing.T, kiroDir string, f backup.File) {
	t.Helper()
	dir := filepath.Join(kiroDir, "backups")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, f.ID+".json"), data, 0o600); err != nil {
		t.Fatal(err)
	}
}

func writeActiveCredentials(t *testing.T, kiroDir string, creds backup.Credentials) {
	t.Helper()
	dir := filepath.Join(kiroDir, "auth")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(creds)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "credentials.json"), data, 0o600); err != nil {
		t.Fatal(err)
	}
}

// fakeKiroAPI serves balances keyed by access token so each backup can
// report its own credits.
func fakeKiroAPI(t *testing.T, balances map[string]float64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		bal, ok := balances[token]
		if !ok {
			http.Error(w, `{"error":"unknown account"}`, http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"balance": %g}`, bal)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func enabledSettings() model.AutoSwitchSettings {
	s := config.DefaultSettings()
	s.Enabled = true
	return s
}

func newTestService(t *testing.T, settings model.AutoSwitchSettings, balances map[string]float64) (*Service, string) {
	t.Helper()
	kiroDir := t.TempDir()
	settingsPath := filepath.Join(t.TempDir(), "autoswitch.json")
	if err := config.SaveSettingsFile(settingsPath, settings); err != nil {
		t.Fatal(err)
	}

	api := fakeKiroAPI(t, balances)
	s, err := New(Config{
		SettingsPath: settingsPath,
		KiroDir:      kiroDir,
		KiroBaseURL:  api.URL,
		Cooldown:     time.Minute,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, kiroDir
}

func eventTypes(s *Service) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	types := make([]string, len(s.events))
	for i, ev := range s.events {
		types[i] = ev.Type
	}
	return types
}

func TestPollOnce_SamplesActiveBalance(t *testing.T) {
	s, kiroDir := newTestService(t, enabledSettings(), map[string]float64{
		"kiro_token-b1": 120,
	})
	writeBackupFile(t, kiroDir, testBackup("b1", 0))
	writeActiveCredentials(t, kiroDir, backup.Credentials{AccountID: "acct-b1", AccessToken: "kiro_token-b1"})

	s.pollOnce(context.Background())

	st := s.snapshotStatus()
	if st.State != model.StateRunning {
		t.Fatalf("state = %s, want running", st.State)
	}
	if st.LastBalance != 120 {
		t.Fatalf("last balance = %v, want 120", st.LastBalance)
	}
	if st.ActiveBackup != "b1" {
		t.Fatalf("active backup = %q, want b1", st.ActiveBackup)
	}
	if st.PollCount != 1 || st.LastError != "" {
		t.Fatalf("poll count = %d, last error = %q", st.PollCount, st.LastError)
	}

	got, err := backup.NewManager(kiroDir).Get("b1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Balance != 120 {
		t.Fatalf("stored balance = %v, want 120", got.Balance)
	}

	types := eventTypes(s)
	if len(types) != 1 || types[0] != "balance" {
		t.Fatalf("events = %v, want [balance]", types)
	}
}

func TestPollOnce_SkipsWhileStopped(t *testing.T) {
	settings := config.DefaultSettings()
	s, kiroDir := newTestService(t, settings, map[string]float64{
		"kiro_token-b1": 120,
	})
	writeBackupFile(t, kiroDir, testBackup("b1", 0))
	writeActiveCredentials(t, kiroDir, backup.Credentials{AccountID: "acct-b1", AccessToken: "kiro_token-b1"})

	s.pollOnce(context.Background())

	st := s.snapshotStatus()
	if st.State != model.StateStopped {
		t.Fatalf("state = %s, want stopped", st.State)
	}
	if st.PollCount != 0 {
		t.Fatalf("poll count = %d, want 0", st.PollCount)
	}
	if types := eventTypes(s); len(types) != 0 {
		t.Fatalf("events = %v, want none", types)
	}
}

func TestPollOnce_SwitchesToHighestCandidate(t *testing.T) {
	s, kiroDir := newTestService(t, enabledSettings(), map[string]float64{
		"kiro_token-b1": 5,
	})
	writeBackupFile(t, kiroDir, testBackup("b1", 80))
	writeBackupFile(t, kiroDir, testBackup("b2", 200))
	writeBackupFile(t, kiroDir, testBackup("b3", 300))
	writeActiveCredentials(t, kiroDir, backup.Credentials{AccountID: "acct-b1", AccessToken: "kiro_token-b1"})

	s.pollOnce(context.Background())

	if got := s.backups.ActiveAccountID(); got != "acct-b3" {
		t.Fatalf("active account = %q, want acct-b3", got)
	}

	st := s.snapshotStatus()
	if st.SwitchCount != 1 {
		t.Fatalf("switch count = %d, want 1", st.SwitchCount)
	}
	if st.State != model.StateCooldown {
		t.Fatalf("state = %s, want cooldown", st.State)
	}
	if st.CooldownRemaining <= 0 || st.CooldownRemaining > 60 {
		t.Fatalf("cooldown remaining = %d, want within (0, 60]", st.CooldownRemaining)
	}
	if st.ActiveBackup != "b3" {
		t.Fatalf("active backup = %q, want b3", st.ActiveBackup)
	}

	types := eventTypes(s)
	if len(types) != 2 || types[0] != "balance" || types[1] != "switch" {
		t.Fatalf("events = %v, want [balance switch]", types)
	}
}

func TestPollOnce_CooldownSuppressesSecondSwitch(t *testing.T) {
	balances := map[string]float64{
		"kiro_token-b1": 5,
		"kiro_token-b3": 3,
	}
	s, kiroDir := newTestService(t, enabledSettings(), balances)
	writeBackupFile(t, kiroDir, testBackup("b1", 80))
	writeBackupFile(t, kiroDir, testBackup("b2", 200))
	writeBackupFile(t, kiroDir, testBackup("b3", 300))
	writeActiveCredentials(t, kiroDir, backup.Credentials{AccountID: "acct-b1", AccessToken: "kiro_token-b1"})

	s.pollOnce(context.Background())
	if got := s.backups.ActiveAccountID(); got != "acct-b3" {
		t.Fatalf("active account after first poll = %q, want acct-b3", got)
	}

	// b3 is now active and also below threshold, but the cooldown
	// window is still open so b2 must not be activated.
	s.pollOnce(context.Background())

	if got := s.backups.ActiveAccountID(); got != "acct-b3" {
		t.Fatalf("active account after second poll = %q, want acct-b3", got)
	}
	st := s.snapshotStatus()
	if st.SwitchCount != 1 {
		t.Fatalf("switch count = %d, want 1", st.SwitchCount)
	}
	if st.State != model.StateCooldown {
		t.Fatalf("state = %s, want cooldown", st.State)
	}
	if st.LastBalance != 3 {
		t.Fatalf("last balance = %v, want 3", st.LastBalance)
	}
}

func TestPollOnce_FolderFilterLimitsCandidates(t *testing.T) {
	settings := enabledSettings()
	settings.FolderIDs = []string{"work"}

	s, kiroDir := newTestService(t, settings, map[string]float64{
		"kiro_token-b1": 5,
	})
	b2 := testBackup("b2", 200)
	b2.FolderID = "work"
	b3 := testBackup("b3", 300)
	b3.FolderID = "personal"
	writeBackupFile(t, kiroDir, testBackup("b1", 80))
	writeBackupFile(t, kiroDir, b2)
	writeBackupFile(t, kiroDir, b3)
	writeActiveCredentials(t, kiroDir, backup.Credentials{AccountID: "acct-b1", AccessToken: "kiro_token-b1"})

	s.pollOnce(context.Background())

	if got := s.backups.ActiveAccountID(); got != "acct-b2" {
		t.Fatalf("active account = %q, want acct-b2 (folder filter)", got)
	}
}

func TestPollOnce_NoCandidatePublishesLowBalance(t *testing.T) {
	s, kiroDir := newTestService(t, enabledSettings(), map[string]float64{
		"kiro_token-b1": 5,
	})
	writeBackupFile(t, kiroDir, testBackup("b1", 80))
	writeBackupFile(t, kiroDir, testBackup("b2", 20)) // below the candidate floor
	writeActiveCredentials(t, kiroDir, backup.Credentials{AccountID: "acct-b1", AccessToken: "kiro_token-b1"})

	s.pollOnce(context.Background())

	if got := s.backups.ActiveAccountID(); got != "acct-b1" {
		t.Fatalf("active account = %q, want acct-b1 (no switch)", got)
	}
	st := s.snapshotStatus()
	if st.SwitchCount != 0 {
		t.Fatalf("switch count = %d, want 0", st.SwitchCount)
	}

	types := eventTypes(s)
	if len(types) != 2 || types[1] != "low_balance" {
		t.Fatalf("events = %v, want [balance low_balance]", types)
	}
}

func TestPollOnce_RecordsHistory(t *testing.T) {
	s, kiroDir := newTestService(t, enabledSettings(), map[string]float64{
		"kiro_token-b1": 5,
	})
	writeBackupFile(t, kiroDir, testBackup("b1", 80))
	writeBackupFile(t, kiroDir, testBackup("b2", 200))
	writeActiveCredentials(t, kiroDir, backup.Credentials{AccountID: "acct-b1", AccessToken: "kiro_token-b1"})

	h, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = h.Close() }()
	s.history = h

	s.pollOnce(context.Background())

	count, err := h.SwitchCount()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("recorded switches = %d, want 1", count)
	}

	samples, err := h.SamplesSince("b1", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) != 1 || samples[0].Balance != 5 {
		t.Fatalf("samples = %+v, want one at balance 5", samples)
	}
}

func TestPollOnce_APIErrorRecorded(t *testing.T) {
	s, kiroDir := newTestService(t, enabledSettings(), map[string]float64{})
	writeBackupFile(t, kiroDir, testBackup("b1", 80))
	writeActiveCredentials(t, kiroDir, backup.Credentials{AccountID: "acct-b1", AccessToken: "kiro_token-b1"})

	s.pollOnce(context.Background())

	st := s.snapshotStatus()
	if st.PollCount != 1 {
		t.Fatalf("poll count = %d, want 1", st.PollCount)
	}
	if !strings.Contains(st.LastError, "b1") {
		t.Fatalf("last error = %q, want mention of backup b1", st.LastError)
	}
	if types := eventTypes(s); len(types) != 0 {
		t.Fatalf("events = %v, want none", types)
	}
}

func TestPollOnce_NoActiveCredential(t *testing.T) {
	s, kiroDir := newTestService(t, enabledSettings(), map[string]float64{})
	writeBackupFile(t, kiroDir, testBackup("b1", 80))

	s.pollOnce(context.Background())

	st := s.snapshotStatus()
	if !strings.Contains(st.LastError, "no active credential") {
		t.Fatalf("last error = %q, want no active credential", st.LastError)
	}
}

func TestCurrentInterval_FollowsRules(t *testing.T) {
	s, _ := newTestService(t, enabledSettings(), nil)

	cases := []struct {
		balance float64
		want    time.Duration
	}{
		{120, 30 * time.Minute},
		{60, 15 * time.Minute},
		{5, 5 * time.Minute},
	}
	for _, tc := range cases {
		s.mu.Lock()
		s.lastBalance = tc.balance
		s.mu.Unlock()
		if got := s.currentInterval(); got != tc.want {
			t.Fatalf("interval at balance %v = %v, want %v", tc.balance, got, tc.want)
		}
	}
}

func TestCurrentInterval_FallbackInRangeGap(t *testing.T) {
	settings := enabledSettings()
	settings.RefreshIntervals = []model.RefreshRule{
		{ID: "low", MinBalance: 0, MaxBalance: 50, Interval: 2},
	}
	s, _ := newTestService(t, settings, nil)

	s.mu.Lock()
	s.lastBalance = 75
	s.mu.Unlock()

	if got := s.currentInterval(); got != fallbackInterval {
		t.Fatalf("interval = %v, want fallback %v", got, fallbackInterval)
	}
}

func TestPublishEventRingBuffer(t *testing.T) {
	s, _ := newTestService(t, enabledSettings(), nil)
	s.cfg.EventsBuffer = 2

	s.publishEvent(Event{Type: "balance"})
	s.publishEvent(Event{Type: "balance"})
	s.publishEvent(Event{Type: "switch"})

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.events) != 2 {
		t.Fatalf("events len = %d, want 2", len(s.events))
	}
	if s.events[0].ID != 2 || s.events[1].ID != 3 {
		t.Fatalf("events ring contains IDs [%d, %d], want [2, 3]", s.events[0].ID, s.events[1].ID)
	}
}

func TestApplySettings_PublishesStateChange(t *testing.T) {
	s, _ := newTestService(t, enabledSettings(), nil)

	off := enabledSettings()
	off.Enabled = false
	s.applySettings(off)

	if got := s.state(time.Now()); got != model.StateStopped {
		t.Fatalf("state = %s, want stopped", got)
	}
	types := eventTypes(s)
	if len(types) != 1 || types[0] != "state" {
		t.Fatalf("events = %v, want [state]", types)
	}

	// Reapplying the same document must not publish again.
	s.applySettings(off)
	if types := eventTypes(s); len(types) != 1 {
		t.Fatalf("events after no-op apply = %v, want one entry", types)
	}
}

func TestPickCandidate(t *testing.T) {
	files := []backup.File{
		testBackup("active", 500),
		testBackup("low", 10),
		testBackup("mid", 100),
		testBackup("high", 300),
	}
	files[2].FolderID = "work"
	files[3].FolderID = "personal"
	files[3].SubscriptionType = "kiro-free"

	settings := model.AutoSwitchSettings{MinTargetBalance: 50}

	got := pickCandidate(files, "active", settings)
	if got == nil || got.ID != "high" {
		t.Fatalf("candidate = %+v, want high", got)
	}

	settings.FolderIDs = []string{"work"}
	got = pickCandidate(files, "active", settings)
	if got == nil || got.ID != "mid" {
		t.Fatalf("candidate with folder filter = %+v, want mid", got)
	}

	settings.FolderIDs = nil
	settings.SubscriptionTypes = []string{"kiro-pro"}
	got = pickCandidate(files, "active", settings)
	if got == nil || got.ID != "mid" {
		t.Fatalf("candidate with subscription filter = %+v, want mid", got)
	}

	settings.SubscriptionTypes = nil
	settings.MinTargetBalance = 1000
	if got = pickCandidate(files, "active", settings); got != nil {
		t.Fatalf("candidate above floor = %+v, want none", got)
	}
}
