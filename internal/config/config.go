package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds all kirman configuration.
type Config struct {
	General    GeneralConfig    `toml:"general"`
	Kiro       KiroConfig       `toml:"kiro"`
	Monitor    MonitorConfig    `toml:"monitor"`
	Notify     NotifyConfig     `toml:"notify"`
	Appearance AppearanceConfig `toml:"appearance"`
	Plans      PlanOverrides    `toml:"plans"`
}

// GeneralConfig holds general preferences.
type GeneralConfig struct {
	KiroDir     string `toml:"kiro_dir,omitempty"`
	HistoryDays int    `toml:"history_days"`
}

// KiroConfig holds Kiro service API settings.
type KiroConfig struct {
	Token   string `toml:"token,omitempty"`
	BaseURL string `toml:"base_url,omitempty"`
}

// MonitorConfig holds monitor daemon settings.
type MonitorConfig struct {
	Listen          string `toml:"listen"`
	CooldownSeconds int    `toml:"cooldown_seconds"`
	HistoryPath     string `toml:"history_path,omitempty"`
}

// NotifyConfig holds webhook notification settings.
type NotifyConfig struct {
	WebhookURL string `toml:"webhook_url,omitempty"`
	Retries    int    `toml:"retries"`
}

// AppearanceConfig holds theme settings.
type AppearanceConfig struct {
	Theme string `toml:"theme"`
}

// PlanOverrides allows user-defined quotas for specific plans.
type PlanOverrides struct {
	Overrides map[string]PlanQuotaOverride `toml:"overrides,omitempty"`
}

// PlanQuotaOverride holds per-plan quota overrides.
type PlanQuotaOverride struct {
	MonthlyCredits *float64 `toml:"monthly_credits,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		General: GeneralConfig{
			HistoryDays: 30,
		},
		Monitor: MonitorConfig{
			Listen:          "127.0.0.1:8791",
			CooldownSeconds: 300,
		},
		Notify: NotifyConfig{
			Retries: 3,
		},
		Appearance: AppearanceConfig{
			Theme: "flexoki-dark",
		},
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "kirman")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "kirman")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// KiroDir returns the Kiro data directory, honoring the config override.
func KiroDir(cfg Config) string {
	if cfg.General.KiroDir != "" {
		return cfg.General.KiroDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".kiro")
}

// HistoryPath returns the switch history database path.
func HistoryPath(cfg Config) string {
	if cfg.Monitor.HistoryPath != "" {
		return cfg.Monitor.HistoryPath
	}
	return filepath.Join(ConfigDir(), "history.db")
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load() (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to disk.
func Save(cfg Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(ConfigPath(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// GetKiroToken returns the service token from env var or config, in that order.
func GetKiroToken(cfg Config) string {
	if tok := os.Getenv("KIRMAN_KIRO_TOKEN"); tok != "" {
		return tok
	}
	return cfg.Kiro.Token
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}
