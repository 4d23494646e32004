// Package backup manages stored credential snapshots under the Kiro data
// directory and the live credential file the IDE reads.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chun1617/Kir-Manager-sub002/internal/model"
)

var (
	// ErrNotFound indicates no backup exists with the requested id.
	ErrNotFound = errors.New("backup: not found")
	// ErrNoActiveCredential indicates the IDE has no live credential file.
	ErrNoActiveCredential = errors.New("backup: no active credential")
)

// Credentials is the raw token material for one account, in the same
// shape Kiro writes to its credential file.
type Credentials struct {
	AccountID    string `json:"accountId"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	ExpiresAt    string `json:"expiresAt,omitempty"`
}

// File is the on-disk backup document: metadata plus token material.
type File struct {
	model.Backup
	Credentials Credentials `json:"credentials"`
}

// Manager owns the backup store and the live credential file.
type Manager struct {
	kiroDir string
}

// NewManager returns a manager rooted at kiroDir.
func NewManager(kiroDir string) *Manager {
	return &Manager{kiroDir: kiroDir}
}

// BackupsDir returns the directory holding backup documents.
func (m *Manager) BackupsDir() string {
	return filepath.Join(m.kiroDir, "backups")
}

func (m *Manager) credentialsPath() string {
	return filepath.Join(m.kiroDir, "auth", "credentials.json")
}

func (m *Manager) backupPath(id string) string {
	return filepath.Join(m.BackupsDir(), id+".json")
}

// ActiveCredentials reads the live credential file.
func (m *Manager) ActiveCredentials() (Credentials, error) {
	data, err := os.ReadFile(m.credentialsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return Credentials{}, ErrNoActiveCredential
		}
		return Credentials{}, fmt.Errorf("reading credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("parsing credentials: %w", err)
	}
	return creds, nil
}

// ActiveAccountID returns the live credential's account id, or "" when
// there is no usable credential file.
func (m *Manager) ActiveAccountID() string {
	creds, err := m.ActiveCredentials()
	if err != nil {
		return ""
	}
	return creds.AccountID
}

// Scan loads every parseable backup document, newest last use first,
// with the Active flag derived from the live credential. Unreadable
// entries are skipped.
func (m *Manager) Scan() ([]model.Backup, error) {
	files, err := m.LoadAll()
	if err != nil {
		return nil, err
	}

	backups := make([]model.Backup, 0, len(files))
	for _, f := range files {
		backups = append(backups, f.Backup)
	}
	return backups, nil
}

// LoadAll loads every parseable backup document including token
// material. Callers that only display metadata should use Scan.
func (m *Manager) LoadAll() ([]File, error) {
	dir := m.BackupsDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading backups dir: %w", err)
	}

	activeID := m.ActiveAccountID()

	var files []File
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		f, err := m.readFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		f.Active = activeID != "" && f.Credentials.AccountID == activeID
		files = append(files, f)
	}

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Active != files[j].Active {
			return files[i].Active
		}
		return files[i].LastUsedAt.After(files[j].LastUsedAt)
	})
	return files, nil
}

// Get returns one backup document by id.
func (m *Manager) Get(id string) (File, error) {
	f, err := m.readFile(m.backupPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return File{}, ErrNotFound
		}
		return File{}, err
	}
	f.Active = f.Credentials.AccountID != "" && f.Credentials.AccountID == m.ActiveAccountID()
	return f, nil
}

func (m *Manager) readFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parsing backup %s: %w", filepath.Base(path), err)
	}
	if f.ID == "" {
		f.ID = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	f.Path = path
	return f, nil
}

// Activate installs the backup's token material as the live credential
// and records the use. The credential write is atomic so the IDE never
// reads a partial file.
func (m *Manager) Activate(id string) (model.Backup, error) {
	f, err := m.Get(id)
	if err != nil {
		return model.Backup{}, err
	}

	if err := writeJSON(m.credentialsPath(), f.Credentials); err != nil {
		return model.Backup{}, fmt.Errorf("installing credentials: %w", err)
	}

	f.LastUsedAt = time.Now().UTC()
	f.Active = true
	if err := writeJSON(m.backupPath(f.ID), f); err != nil {
		return model.Backup{}, fmt.Errorf("recording use: %w", err)
	}
	return f.Backup, nil
}

// Snapshot captures the live credential into a new backup document.
// Metadata comes from the caller; id, name, and created time are filled
// in when absent.
func (m *Manager) Snapshot(meta model.Backup) (model.Backup, error) {
	creds, err := m.ActiveCredentials()
	if err != nil {
		return model.Backup{}, err
	}

	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if meta.Name == "" {
		if at := strings.IndexByte(meta.Email, '@'); at > 0 {
			meta.Name = meta.Email[:at]
		} else {
			meta.Name = meta.ID[:8]
		}
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}

	f := File{Backup: meta, Credentials: creds}
	if err := writeJSON(m.backupPath(meta.ID), f); err != nil {
		return model.Backup{}, fmt.Errorf("writing backup: %w", err)
	}
	meta.Path = m.backupPath(meta.ID)
	return meta, nil
}

// UpdateBalance records the last observed balance on a backup document.
func (m *Manager) UpdateBalance(id string, balance float64) error {
	f, err := m.Get(id)
	if err != nil {
		return err
	}
	f.Balance = balance
	return writeJSON(m.backupPath(id), f)
}

// Delete removes a backup document.
func (m *Manager) Delete(id string) error {
	err := os.Remove(m.backupPath(id))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	return err
}

// writeJSON writes v as one unit via a temp file and rename.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
