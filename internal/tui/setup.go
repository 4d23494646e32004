package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chun1617/Kir-Manager-sub002/internal/config"
	"github.com/chun1617/Kir-Manager-sub002/internal/tui/theme"

	"github.com/charmbracelet/huh"
)

// setupValues receives the first-run form answers.
type setupValues struct {
	token   string
	kiroDir string
	theme   string
}

// newSetupForm builds the first-run form. backupCount personalizes the
// description so a returning user sees their data was found.
func newSetupForm(backupCount int, kiroDir string, vals *setupValues) *huh.Form {
	vals.kiroDir = kiroDir
	vals.theme = theme.Active.Name

	found := "No backups found yet."
	if backupCount == 1 {
		found = "Found 1 backup."
	} else if backupCount > 1 {
		found = fmt.Sprintf("Found %d backups.", backupCount)
	}

	themeOptions := make([]huh.Option[string], 0, len(theme.All))
	for _, th := range theme.All {
		themeOptions = append(themeOptions, huh.NewOption(th.Name, th.Name))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Kiro API token").
				Description(found+" A token enables live balance display; leave empty to use the active credential.").
				Placeholder("kiro_...").
				EchoMode(huh.EchoModePassword).
				Validate(validateSetupToken).
				Value(&vals.token),

			huh.NewInput().
				Title("Kiro directory").
				Description("Where Kiro keeps credentials and backups.").
				Placeholder("~/.kiro").
				Value(&vals.kiroDir),

			huh.NewSelect[string]().
				Title("Theme").
				Options(themeOptions...).
				Value(&vals.theme),
		),
	)
}

func validateSetupToken(s string) error {
	s = strings.TrimSpace(s)
	if s != "" && !strings.HasPrefix(s, "kiro_") {
		return errors.New(`tokens start with "kiro_"`)
	}
	return nil
}

// saveSetupConfig writes the completed form into the config file.
func (a *App) saveSetupConfig() {
	cfg, err := config.Load()
	if err != nil {
		cfg = config.DefaultConfig()
	}

	cfg.Kiro.Token = strings.TrimSpace(a.setupVals.token)
	if dir := strings.TrimSpace(a.setupVals.kiroDir); dir != "" {
		cfg.General.KiroDir = dir
		a.kiroDir = config.KiroDir(cfg)
	}
	cfg.Appearance.Theme = a.setupVals.theme
	theme.SetActive(a.setupVals.theme)

	// Best effort; the dashboard works without a config file.
	_ = config.Save(cfg)
}
