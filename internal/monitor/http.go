package monitor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/chun1617/Kir-Manager-sub002/internal/config"
	"github.com/chun1617/Kir-Manager-sub002/internal/model"
)

func (s *Service) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/status", s.handleStatus)
	mux.HandleFunc("/v1/monitor/start", s.handleMonitorStart)
	mux.HandleFunc("/v1/monitor/stop", s.handleMonitorStop)
	mux.HandleFunc("/v1/settings", s.handleSettings)
	mux.HandleFunc("/v1/events", s.handleEvents)
	mux.HandleFunc("/v1/stream", s.handleStream)
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

func writeResult(w http.ResponseWriter, res model.Result) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.snapshotStatus())
}

func (s *Service) handleMonitorStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, err := s.backups.ActiveCredentials(); err != nil {
		writeResult(w, model.Failf("cannot start: %v", err))
		return
	}

	now := time.Now()
	s.mu.Lock()
	was := s.running
	s.running = true
	s.settings.Enabled = true
	s.mu.Unlock()

	if !was {
		s.publishStateEvent(now)
		s.kickPoll()
	}
	s.metrics.SetState(s.state(now))
	writeResult(w, model.OK())
}

func (s *Service) handleMonitorStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	now := time.Now()
	s.mu.Lock()
	was := s.running
	s.running = false
	s.settings.Enabled = false
	s.cooldownUntil = time.Time{}
	s.mu.Unlock()

	if was {
		s.publishStateEvent(now)
	}
	s.metrics.SetState(s.state(now))
	writeResult(w, model.OK())
}

func (s *Service) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.mu.RLock()
		settings := s.settings.Clone()
		s.mu.RUnlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(settings)
	case http.MethodPut:
		var settings model.AutoSwitchSettings
		if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
			http.Error(w, fmt.Sprintf("decoding settings: %v", err), http.StatusBadRequest)
			return
		}
		if err := config.SaveSettingsFile(s.cfg.SettingsPath, settings); err != nil {
			http.Error(w, fmt.Sprintf("saving settings: %v", err), http.StatusInternalServerError)
			return
		}
		// Reload from disk so the in-memory copy carries the same
		// normalization that the next reader will see.
		if normalized, err := config.LoadSettingsFile(s.cfg.SettingsPath); err == nil {
			settings = normalized
		}
		s.applySettings(settings)
		s.kickPoll()
		writeResult(w, model.OK())
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(events)
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, 16)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	// Send the current state immediately.
	st := s.snapshotStatus()
	current := Event{
		Type:      "status",
		Timestamp: time.Now(),
		State:     st.State,
		Balance:   st.LastBalance,
		Backup:    st.ActiveBackup,
	}
	writeSSE(w, current)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}
