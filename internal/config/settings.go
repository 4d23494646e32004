package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/chun1617/Kir-Manager-sub002/internal/model"
	"github.com/chun1617/Kir-Manager-sub002/internal/rules"
)

// SettingsPath returns the full path to the auto-switch settings document.
func SettingsPath() string {
	return filepath.Join(ConfigDir(), "autoswitch.json")
}

// DefaultSettings returns the settings used before the user saves any.
func DefaultSettings() model.AutoSwitchSettings {
	return model.AutoSwitchSettings{
		BalanceThreshold: 10,
		MinTargetBalance: 50,
		RefreshIntervals: defaultRules(),
		NotifyOnSwitch:   true,
	}
}

func defaultRules() []model.RefreshRule {
	return []model.RefreshRule{
		{ID: "default-high", MinBalance: 100, MaxBalance: model.MaxBalanceUnbounded, Interval: 30},
		{ID: "default-mid", MinBalance: 50, MaxBalance: 100, Interval: 15},
		{ID: "default-low", MinBalance: 0, MaxBalance: 50, Interval: 5},
	}
}

// LoadSettings reads the settings document from the default path.
func LoadSettings() (model.AutoSwitchSettings, error) {
	return LoadSettingsFile(SettingsPath())
}

// LoadSettingsFile reads a settings document, returning defaults if the
// file doesn't exist. Loaded documents are normalized so downstream code
// can rely on the rule-set invariants.
func LoadSettingsFile(path string) (model.AutoSwitchSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return DefaultSettings(), fmt.Errorf("reading settings: %w", err)
	}

	var s model.AutoSwitchSettings
	if err := json.Unmarshal(data, &s); err != nil {
		return DefaultSettings(), fmt.Errorf("parsing settings: %w", err)
	}
	normalizeSettings(&s)
	return s, nil
}

// SaveSettings writes the settings document to the default path.
func SaveSettings(s model.AutoSwitchSettings) error {
	return SaveSettingsFile(SettingsPath(), s)
}

// SaveSettingsFile writes the settings document as one unit. The write
// goes to a temp file first and is renamed into place, so a concurrent
// watcher never observes a partial document.
func SaveSettingsFile(path string, s model.AutoSwitchSettings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating settings dir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing settings: %w", err)
	}
	return nil
}

// normalizeSettings repairs a loaded document so the rule set holds 1 to
// MaxRules entries with valid fields and ids.
func normalizeSettings(s *model.AutoSwitchSettings) {
	if len(s.RefreshIntervals) == 0 {
		s.RefreshIntervals = defaultRules()
	}
	if len(s.RefreshIntervals) > rules.MaxRules {
		s.RefreshIntervals = s.RefreshIntervals[:rules.MaxRules]
	}
	for i := range s.RefreshIntervals {
		r := &s.RefreshIntervals[i]
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		r.MinBalance = rules.ValidateMinBalance(r.MinBalance)
		r.Interval = rules.ValidateInterval(float64(r.Interval))
		if r.MaxBalance != model.MaxBalanceUnbounded && r.MaxBalance < 0 {
			r.MaxBalance = model.MaxBalanceUnbounded
		}
	}
}
