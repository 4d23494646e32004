// Package store provides a SQLite-backed history of credential switches
// and polled balance samples.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chun1617/Kir-Manager-sub002/internal/model"

	_ "modernc.org/sqlite" // register sqlite driver
)

// History provides SQLite-backed switch and balance history.
type History struct {
	db *sql.DB
}

// Open opens or creates the history database at the given path.
func Open(dbPath string) (*History, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &History{db: db}, nil
}

// Close closes the history database.
func (h *History) Close() error {
	return h.db.Close()
}

// RecordSwitch stores one switch event.
func (h *History) RecordSwitch(ev model.SwitchEvent) error {
	at := ev.At.UTC().Format(time.RFC3339)
	_, err := h.db.Exec(`INSERT OR REPLACE INTO switch_events
		(id, at, from_backup, to_backup, balance, reason)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, at, ev.FromBackup, ev.ToBackup, ev.Balance, ev.Reason,
	)
	return err
}

// RecordSample stores one polled balance observation.
func (h *History) RecordSample(s model.BalanceSample) error {
	at := s.At.UTC().Format(time.RFC3339)
	_, err := h.db.Exec(`INSERT INTO balance_samples (at, backup_id, balance)
		VALUES (?, ?, ?)`,
		at, s.BackupID, s.Balance,
	)
	return err
}

// RecentSwitches returns up to limit switch events, newest first.
func (h *History) RecentSwitches(limit int) ([]model.SwitchEvent, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := h.db.Query(`SELECT id, at, from_backup, to_backup, balance, reason
		FROM switch_events ORDER BY at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanSwitches(rows)
}

// SwitchesSince returns all switch events at or after since, newest first.
func (h *History) SwitchesSince(since time.Time) ([]model.SwitchEvent, error) {
	rows, err := h.db.Query(`SELECT id, at, from_backup, to_backup, balance, reason
		FROM switch_events WHERE at >= ? ORDER BY at DESC`,
		since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanSwitches(rows)
}

func scanSwitches(rows *sql.Rows) ([]model.SwitchEvent, error) {
	var events []model.SwitchEvent
	for rows.Next() {
		var ev model.SwitchEvent
		var atStr string
		var from, reason sql.NullString
		if err := rows.Scan(&ev.ID, &atStr, &from, &ev.ToBackup, &ev.Balance, &reason); err != nil {
			return nil, err
		}
		if from.Valid {
			ev.FromBackup = from.String
		}
		if reason.Valid {
			ev.Reason = reason.String
		}
		ev.At, _ = time.Parse(time.RFC3339, atStr)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// SamplesSince returns balance samples for a backup at or after since,
// oldest first. An empty backupID matches all backups.
func (h *History) SamplesSince(backupID string, since time.Time) ([]model.BalanceSample, error) {
	query := `SELECT at, backup_id, balance FROM balance_samples
		WHERE at >= ? AND (? = '' OR backup_id = ?) ORDER BY at ASC`
	rows, err := h.db.Query(query, since.UTC().Format(time.RFC3339), backupID, backupID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var samples []model.BalanceSample
	for rows.Next() {
		var s model.BalanceSample
		var atStr string
		if err := rows.Scan(&atStr, &s.BackupID, &s.Balance); err != nil {
			return nil, err
		}
		s.At, _ = time.Parse(time.RFC3339, atStr)
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// DayCount is the number of switches on one calendar day (UTC).
type DayCount struct {
	Day   string
	Count int
}

// DailySwitchCounts returns per-day switch counts for the last days days.
func (h *History) DailySwitchCounts(days int) ([]DayCount, error) {
	if days < 1 {
		days = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)

	rows, err := h.db.Query(`SELECT substr(at, 1, 10) AS day, COUNT(*)
		FROM switch_events WHERE at >= ? GROUP BY day ORDER BY day`, since)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var counts []DayCount
	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, dc)
	}
	return counts, rows.Err()
}

// SwitchCount returns the total number of recorded switches.
func (h *History) SwitchCount() (int, error) {
	var count int
	err := h.db.QueryRow("SELECT COUNT(*) FROM switch_events").Scan(&count)
	return count, err
}

// Prune removes switches and samples older than before.
func (h *History) Prune(before time.Time) error {
	tx, err := h.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	cutoff := before.UTC().Format(time.RFC3339)
	if _, err := tx.Exec("DELETE FROM switch_events WHERE at < ?", cutoff); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM balance_samples WHERE at < ?", cutoff); err != nil {
		return err
	}
	return tx.Commit()
}
