// Package monitor provides the long-running balance monitor daemon and
// the HTTP client used to control it.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/chun1617/Kir-Manager-sub002/internal/backup"
	"github.com/chun1617/Kir-Manager-sub002/internal/config"
	"github.com/chun1617/Kir-Manager-sub002/internal/kiro"
	"github.com/chun1617/Kir-Manager-sub002/internal/metrics"
	"github.com/chun1617/Kir-Manager-sub002/internal/model"
	"github.com/chun1617/Kir-Manager-sub002/internal/notify"
	"github.com/chun1617/Kir-Manager-sub002/internal/rules"
	"github.com/chun1617/Kir-Manager-sub002/internal/store"
)

// fallbackInterval applies when the balance falls in a gap of the rule
// ranges.
const fallbackInterval = 5 * time.Minute

// watchDebounce coalesces bursts of settings-file events into one reload.
const watchDebounce = 250 * time.Millisecond

// Config controls the daemon runtime behavior.
type Config struct {
	Addr           string
	SettingsPath   string
	KiroDir        string
	KiroBaseURL    string
	Cooldown       time.Duration
	EventsBuffer   int
	HistoryPath    string
	WebhookURL     string
	WebhookRetries int
}

// Event is emitted on balance changes, switches, and state transitions.
type Event struct {
	ID        int64              `json:"id"`
	Type      string             `json:"type"`
	Timestamp time.Time          `json:"timestamp"`
	State     model.MonitorState `json:"state"`
	Balance   float64            `json:"balance,omitempty"`
	Backup    string             `json:"backup,omitempty"`
	Detail    string             `json:"detail,omitempty"`
}

// Status is served at /v1/status. The first four fields mirror the
// AutoSwitchStatus document consumed by controllers.
type Status struct {
	State             model.MonitorState `json:"state"`
	LastBalance       float64            `json:"last_balance"`
	CooldownRemaining int                `json:"cooldown_remaining"`
	SwitchCount       int                `json:"switch_count"`
	StartedAt         time.Time          `json:"started_at"`
	ActiveBackup      string             `json:"active_backup,omitempty"`
	LastPollAt        time.Time          `json:"last_poll_at"`
	PollIntervalMin   int                `json:"poll_interval_min"`
	PollCount         int64              `json:"poll_count"`
	LastError         string             `json:"last_error,omitempty"`
	EventCount        int                `json:"event_count"`
	SubscriberCount   int                `json:"subscriber_count"`
}

// Service provides the daemon runtime and HTTP API.
type Service struct {
	cfg Config

	backups  *backup.Manager
	history  *store.History
	notifier *notify.WebhookNotifier
	metrics  *metrics.Collector

	mu            sync.RWMutex
	startedAt     time.Time
	settings      model.AutoSwitchSettings
	running       bool
	cooldownUntil time.Time
	lastBalance   float64
	activeBackup  string
	lastPollAt    time.Time
	pollCount     int64
	switchCount   int
	lastError     string
	nextEventID   int64
	events        []Event

	nextSubID int
	subs      map[int]chan Event

	reloadCh chan struct{}
}

// New returns a new daemon service with the provided config.
func New(cfg Config) (*Service, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8791"
	}
	if cfg.SettingsPath == "" {
		cfg.SettingsPath = config.SettingsPath()
	}
	if cfg.Cooldown < time.Second {
		cfg.Cooldown = 5 * time.Minute
	}
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.WebhookRetries < 1 {
		cfg.WebhookRetries = 3
	}

	collector, err := metrics.NewCollector()
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	settings, err := config.LoadSettingsFile(cfg.SettingsPath)
	if err != nil {
		log.Printf("kirman monitor: %v (using defaults)", err)
	}

	s := &Service{
		cfg:       cfg,
		backups:   backup.NewManager(cfg.KiroDir),
		notifier:  notify.NewWebhookNotifier(cfg.WebhookURL),
		metrics:   collector,
		startedAt: time.Now(),
		settings:  settings,
		running:   settings.Enabled,
		subs:      make(map[int]chan Event),
		reloadCh:  make(chan struct{}, 1),
	}
	s.metrics.SetState(s.state(time.Now()))
	return s, nil
}

// Run starts HTTP endpoints, the settings watcher, and polling until ctx
// is canceled.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.HistoryPath != "" {
		h, err := store.Open(s.cfg.HistoryPath)
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		s.history = h
		defer func() { _ = h.Close() }()
	}

	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("kirman monitor: settings watch unavailable: %v", err)
	} else {
		defer func() { _ = watcher.Close() }()
		if err := watcher.Add(filepath.Dir(s.cfg.SettingsPath)); err != nil {
			log.Printf("kirman monitor: watching settings dir: %v", err)
		} else {
			go s.watchSettings(ctx, watcher)
		}
	}

	// Seed an initial sample so status is useful immediately.
	s.pollOnce(ctx)

	timer := time.NewTimer(s.currentInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case <-timer.C:
			s.pollOnce(ctx)
			timer.Reset(s.currentInterval())
		case <-s.reloadCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			s.pollOnce(ctx)
			timer.Reset(s.currentInterval())
		case err := <-errCh:
			return fmt.Errorf("monitor http server: %w", err)
		}
	}
}

// watchSettings reloads the settings document when it changes on disk.
// Saves are rename-based, so creates and renames count as writes.
func (s *Service) watchSettings(ctx context.Context, watcher *fsnotify.Watcher) {
	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.cfg.SettingsPath) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.AfterFunc(watchDebounce, s.reloadSettings)
			} else {
				debounce.Reset(watchDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("kirman monitor: settings watch: %v", err)
		}
	}
}

func (s *Service) reloadSettings() {
	settings, err := config.LoadSettingsFile(s.cfg.SettingsPath)
	if err != nil {
		log.Printf("kirman monitor: reload settings: %v", err)
		return
	}
	s.applySettings(settings)
	s.kickPoll()
}

// applySettings installs a new settings document. The enabled flag
// follows the document so daemon and controller state converge.
func (s *Service) applySettings(settings model.AutoSwitchSettings) {
	now := time.Now()
	s.mu.Lock()
	s.settings = settings
	wasRunning := s.running
	s.running = settings.Enabled
	changed := wasRunning != s.running
	s.mu.Unlock()

	if changed {
		s.publishStateEvent(now)
	}
	s.metrics.SetState(s.state(now))
}

func (s *Service) kickPoll() {
	select {
	case s.reloadCh <- struct{}{}:
	default:
	}
}

// currentInterval derives the poll interval from the refresh rules and
// the last observed balance.
func (s *Service) currentInterval() time.Duration {
	s.mu.RLock()
	ruleSet := s.settings.RefreshIntervals
	balance := s.lastBalance
	s.mu.RUnlock()

	minutes, ok := rules.IntervalFor(ruleSet, balance)
	if !ok {
		s.metrics.SetPollInterval(int(fallbackInterval.Minutes()))
		return fallbackInterval
	}
	s.metrics.SetPollInterval(minutes)
	return time.Duration(minutes) * time.Minute
}

// pollOnce samples the active backup's balance and applies the switch
// decision. It does nothing while the monitor is stopped.
func (s *Service) pollOnce(ctx context.Context) {
	s.mu.RLock()
	running := s.running
	s.mu.RUnlock()
	if !running {
		return
	}

	now := time.Now()
	files, err := s.backups.LoadAll()
	if err != nil {
		s.recordPollError(now, fmt.Errorf("loading backups: %w", err))
		return
	}

	var active *backup.File
	for i := range files {
		if files[i].Active {
			active = &files[i]
			break
		}
	}
	if active == nil {
		s.recordPollError(now, errors.New("no active credential"))
		return
	}

	client := s.kiroClient(active.Credentials.AccessToken)
	if client == nil {
		s.recordPollError(now, fmt.Errorf("backup %s: unusable access token", active.ID))
		return
	}

	bal, err := client.FetchBalance(ctx)
	if err != nil {
		s.recordPollError(now, fmt.Errorf("backup %s: %w", active.ID, err))
		return
	}
	s.metrics.RecordPoll(nil)
	s.metrics.SetBalance(active.ID, bal.Credits)

	if err := s.backups.UpdateBalance(active.ID, bal.Credits); err != nil {
		log.Printf("kirman monitor: updating backup balance: %v", err)
	}
	if s.history != nil {
		err := s.history.RecordSample(model.BalanceSample{At: now, BackupID: active.ID, Balance: bal.Credits})
		if err != nil {
			log.Printf("kirman monitor: recording sample: %v", err)
		}
	}

	s.mu.Lock()
	prev := s.lastBalance
	firstPoll := s.pollCount == 0
	s.lastBalance = bal.Credits
	s.activeBackup = active.ID
	s.lastPollAt = now
	s.pollCount++
	s.lastError = ""
	inCooldown := now.Before(s.cooldownUntil)
	threshold := s.settings.BalanceThreshold
	s.mu.Unlock()

	if firstPoll || bal.Credits != prev {
		s.publishEvent(Event{
			Type:      "balance",
			Timestamp: now,
			State:     s.state(now),
			Balance:   bal.Credits,
			Backup:    active.ID,
		})
	}

	// Cooldown suppresses switching, not sampling.
	if inCooldown || bal.Credits >= threshold {
		s.metrics.SetState(s.state(now))
		return
	}

	s.considerSwitch(ctx, active, bal.Credits, files, now)
	s.metrics.SetState(s.state(now))
}

func (s *Service) recordPollError(now time.Time, err error) {
	s.metrics.RecordPoll(err)
	s.mu.Lock()
	s.lastError = err.Error()
	s.lastPollAt = now
	s.pollCount++
	s.mu.Unlock()
	log.Printf("kirman monitor poll error: %v", err)
}

func (s *Service) kiroClient(token string) *kiro.Client {
	opts := []kiro.Option{}
	if s.cfg.KiroBaseURL != "" {
		opts = append(opts, kiro.WithBaseURL(s.cfg.KiroBaseURL))
	}
	return kiro.NewClient(token, opts...)
}

// considerSwitch picks the best candidate backup and activates it. With
// no candidate available, a low-balance notification goes out instead.
func (s *Service) considerSwitch(ctx context.Context, active *backup.File, balance float64, files []backup.File, now time.Time) {
	s.mu.RLock()
	settings := s.settings.Clone()
	s.mu.RUnlock()

	candidate := pickCandidate(files, active.ID, settings)
	if candidate == nil {
		s.publishEvent(Event{
			Type:      "low_balance",
			Timestamp: now,
			State:     s.state(now),
			Balance:   balance,
			Backup:    active.ID,
			Detail:    "no switch candidate available",
		})
		if s.notifier != nil && settings.NotifyOnLowBalance {
			go func() {
				msg := notify.LowBalanceMessage(active.Name, balance, settings.BalanceThreshold)
				if err := s.notifier.SendWithRetry(ctx, msg, s.cfg.WebhookRetries); err != nil {
					log.Printf("kirman monitor: low balance notify: %v", err)
				}
			}()
		}
		return
	}

	if _, err := s.backups.Activate(candidate.ID); err != nil {
		s.mu.Lock()
		s.lastError = fmt.Sprintf("switching to %s: %v", candidate.ID, err)
		s.mu.Unlock()
		log.Printf("kirman monitor: switch failed: %v", err)
		return
	}

	ev := model.SwitchEvent{
		ID:         uuid.NewString(),
		At:         now,
		FromBackup: active.ID,
		ToBackup:   candidate.ID,
		Balance:    balance,
		Reason:     "balance below threshold",
	}

	s.mu.Lock()
	s.switchCount++
	s.cooldownUntil = now.Add(s.cfg.Cooldown)
	s.activeBackup = candidate.ID
	s.mu.Unlock()

	s.metrics.RecordSwitch()
	if s.history != nil {
		if err := s.history.RecordSwitch(ev); err != nil {
			log.Printf("kirman monitor: recording switch: %v", err)
		}
	}
	s.publishEvent(Event{
		Type:      "switch",
		Timestamp: now,
		State:     s.state(now),
		Balance:   balance,
		Backup:    candidate.ID,
		Detail:    fmt.Sprintf("from %s", active.ID),
	})
	if s.notifier != nil && settings.NotifyOnSwitch {
		go func() {
			if err := s.notifier.SendWithRetry(ctx, notify.SwitchMessage(ev), s.cfg.WebhookRetries); err != nil {
				log.Printf("kirman monitor: switch notify: %v", err)
			}
		}()
	}
	log.Printf("kirman monitor: switched %s -> %s at balance %.1f", active.ID, candidate.ID, balance)
}

// pickCandidate returns the highest-balance backup that passes the
// folder and subscription filters and the candidate floor.
func pickCandidate(files []backup.File, activeID string, settings model.AutoSwitchSettings) *backup.File {
	var best *backup.File
	for i := range files {
		f := &files[i]
		if f.ID == activeID {
			continue
		}
		if len(settings.FolderIDs) > 0 && !settings.HasFolder(f.FolderID) {
			continue
		}
		if len(settings.SubscriptionTypes) > 0 && !settings.HasSubscriptionType(f.SubscriptionType) {
			continue
		}
		if f.Balance < settings.MinTargetBalance {
			continue
		}
		if best == nil || f.Balance > best.Balance {
			best = f
		}
	}
	return best
}

// state derives the lifecycle state: stopped unless running, cooldown
// while the post-switch window is open.
func (s *Service) state(now time.Time) model.MonitorState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked(now)
}

func (s *Service) stateLocked(now time.Time) model.MonitorState {
	if !s.running {
		return model.StateStopped
	}
	if now.Before(s.cooldownUntil) {
		return model.StateCooldown
	}
	return model.StateRunning
}

func (s *Service) publishStateEvent(now time.Time) {
	st := s.state(now)
	s.publishEvent(Event{
		Type:      "state",
		Timestamp: now,
		State:     st,
	})
}

func (s *Service) publishEvent(ev Event) {
	s.mu.Lock()
	s.nextEventID++
	ev.ID = s.nextEventID
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Service) snapshotStatus() Status {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	remaining := 0
	if s.running && now.Before(s.cooldownUntil) {
		remaining = int(s.cooldownUntil.Sub(now).Seconds())
	}

	minutes, ok := rules.IntervalFor(s.settings.RefreshIntervals, s.lastBalance)
	if !ok {
		minutes = int(fallbackInterval.Minutes())
	}

	return Status{
		State:             s.stateLocked(now),
		LastBalance:       s.lastBalance,
		CooldownRemaining: remaining,
		SwitchCount:       s.switchCount,
		StartedAt:         s.startedAt,
		ActiveBackup:      s.activeBackup,
		LastPollAt:        s.lastPollAt,
		PollIntervalMin:   minutes,
		PollCount:         s.pollCount,
		LastError:         s.lastError,
		EventCount:        len(s.events),
		SubscriberCount:   len(s.subs),
	}
}

func (s *Service) addSubscriber(ch chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}
