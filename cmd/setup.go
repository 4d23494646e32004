package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/chun1617/Kir-Manager-sub002/internal/cli"
	"github.com/chun1617/Kir-Manager-sub002/internal/config"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "First-time setup wizard",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(_ *cobra.Command, _ []string) error {
	if !cli.IsInteractive(os.Stdout) {
		return errors.New("setup needs an interactive terminal")
	}

	cfg, _ := config.Load()

	backups, _ := newBackupManager(cfg).Scan()

	fmt.Println()
	fmt.Println("  Welcome to kirman!")
	if len(backups) > 0 {
		fmt.Printf("  Found %d backups in %s\n", len(backups), kiroDir(cfg))
	}
	fmt.Println()

	var (
		token     string
		kiroDirIn = cfg.General.KiroDir
		webhook   = cfg.Notify.WebhookURL
		themeIn   = cfg.Appearance.Theme
	)
	if themeIn == "" {
		themeIn = "flexoki-dark"
	}

	tokenDesc := "Enables live balance display. Leave empty to use the active credential."
	if current := config.GetKiroToken(cfg); current != "" {
		tokenDesc = fmt.Sprintf("Current: %s. Leave empty to keep it.", cli.MaskToken(current))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Kiro API token").
				Description(tokenDesc).
				Placeholder("kiro_...").
				EchoMode(huh.EchoModePassword).
				Validate(func(s string) error {
					s = strings.TrimSpace(s)
					if s != "" && !strings.HasPrefix(s, "kiro_") {
						return errors.New(`tokens start with "kiro_"`)
					}
					return nil
				}).
				Value(&token),

			huh.NewInput().
				Title("Kiro directory").
				Description("Where Kiro keeps credentials and backups. Empty uses ~/.kiro.").
				Placeholder("~/.kiro").
				Value(&kiroDirIn),

			huh.NewInput().
				Title("Webhook URL").
				Description("Optional. The monitor POSTs switch events here.").
				Placeholder("https://...").
				Value(&webhook),

			huh.NewSelect[string]().
				Title("Theme").
				Options(
					huh.NewOption("Flexoki Dark", "flexoki-dark"),
					huh.NewOption("Catppuccin Mocha", "catppuccin-mocha"),
					huh.NewOption("Tokyo Night", "tokyo-night"),
					huh.NewOption("Terminal (ANSI 16)", "terminal"),
				).
				Value(&themeIn),
		),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("  Setup cancelled; nothing saved.")
			return nil
		}
		return err
	}

	if token = strings.TrimSpace(token); token != "" {
		cfg.Kiro.Token = token
	}
	cfg.General.KiroDir = strings.TrimSpace(kiroDirIn)
	cfg.Notify.WebhookURL = strings.TrimSpace(webhook)
	cfg.Appearance.Theme = themeIn

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Printf("  Saved to %s\n", config.ConfigPath())
	fmt.Println("  Run `kirman setup` anytime to reconfigure.")
	fmt.Println()

	return nil
}
