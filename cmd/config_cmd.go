// Package cmd implements the kirman CLI commands.
package cmd

import (
	"fmt"
	"sort"

	"github.com/chun1617/Kir-Manager-sub002/internal/cli"
	"github.com/chun1617/Kir-Manager-sub002/internal/config"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fmt.Printf("  Config file: %s\n", config.ConfigPath())
	if config.Exists() {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	fmt.Println("  [General]")
	fmt.Printf("    Kiro directory: %s\n", kiroDir(cfg))
	fmt.Printf("    History days:   %d\n", cfg.General.HistoryDays)
	fmt.Println()

	fmt.Println("  [Kiro]")
	if token := config.GetKiroToken(cfg); token != "" {
		fmt.Printf("    Token: %s\n", cli.MaskToken(token))
	} else {
		fmt.Println("    Token: not configured")
	}
	if cfg.Kiro.BaseURL != "" {
		fmt.Printf("    Base URL: %s\n", cfg.Kiro.BaseURL)
	}
	fmt.Println()

	fmt.Println("  [Monitor]")
	fmt.Printf("    Listen:   %s\n", monitorAddr(cfg))
	fmt.Printf("    Cooldown: %ds\n", cfg.Monitor.CooldownSeconds)
	fmt.Printf("    History:  %s\n", config.HistoryPath(cfg))
	fmt.Println()

	fmt.Println("  [Notify]")
	if cfg.Notify.WebhookURL != "" {
		fmt.Printf("    Webhook: %s\n", cfg.Notify.WebhookURL)
		fmt.Printf("    Retries: %d\n", cfg.Notify.Retries)
	} else {
		fmt.Println("    Webhook: not configured")
	}
	fmt.Println()

	fmt.Println("  [Appearance]")
	fmt.Printf("    Theme: %s\n", cfg.Appearance.Theme)
	fmt.Println()

	if len(cfg.Plans.Overrides) > 0 {
		fmt.Println("  [Plans]")
		names := make([]string, 0, len(cfg.Plans.Overrides))
		for name := range cfg.Plans.Overrides {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			ov := cfg.Plans.Overrides[name]
			if ov.MonthlyCredits != nil {
				fmt.Printf("    %-12s %s credits/mo\n", name, cli.FormatCredits(*ov.MonthlyCredits))
			}
		}
		fmt.Println()
	}

	fmt.Println("  Run `kirman setup` to reconfigure.")
	return nil
}
