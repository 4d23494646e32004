package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/chun1617/Kir-Manager-sub002/internal/autoswitch"
	"github.com/chun1617/Kir-Manager-sub002/internal/backup"
	"github.com/chun1617/Kir-Manager-sub002/internal/cli"
	"github.com/chun1617/Kir-Manager-sub002/internal/config"
	"github.com/chun1617/Kir-Manager-sub002/internal/kiro"
	"github.com/chun1617/Kir-Manager-sub002/internal/model"
	"github.com/chun1617/Kir-Manager-sub002/internal/monitor"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active account, balance, and monitor state",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfg, _ := config.Load()
	mgr := newBackupManager(cfg)

	token := config.GetKiroToken(cfg)
	if token == "" {
		// Fall back to the live credential the IDE is using.
		if creds, err := mgr.ActiveCredentials(); err == nil {
			token = creds.AccessToken
		}
	}
	if token == "" {
		fmt.Println()
		fmt.Println("  No Kiro token available.")
		fmt.Println()
		fmt.Println("  To get your access token:")
		fmt.Println("    1. Open Kiro and sign in to your account")
		fmt.Println("    2. The token is written to ~/.kiro/auth/credentials.json")
		fmt.Println()
		fmt.Println("  Then configure it:")
		fmt.Println("    kirman setup                                  (interactive)")
		fmt.Println("    KIRMAN_KIRO_TOKEN=kiro_... kirman status      (one-shot)")
		fmt.Println()
		return nil
	}

	var opts []kiro.Option
	if cfg.Kiro.BaseURL != "" {
		opts = append(opts, kiro.WithBaseURL(cfg.Kiro.BaseURL))
	}
	client := kiro.NewClient(token, opts...)
	if client == nil {
		return errors.New("invalid token format (expected kiro_... prefix)")
	}

	if !flagQuiet {
		fmt.Fprintf(os.Stderr, "  Fetching account data...\n")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data := client.FetchAll(ctx)

	if data.Error != nil {
		if errors.Is(data.Error, kiro.ErrUnauthorized) {
			return errors.New("token expired or invalid — sign in to Kiro again for a fresh one")
		}
		if errors.Is(data.Error, kiro.ErrRateLimited) {
			return errors.New("rate limited by the Kiro API — try again in a minute")
		}
		// Partial data may still be available, continue rendering
		if data.Balance == nil {
			return fmt.Errorf("fetch failed: %w", data.Error)
		}
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle("KIRO STATUS"))
	fmt.Println()

	if data.Account.Email != "" {
		fmt.Printf("  Account: %s\n", data.Account.Email)
		if data.Account.SubscriptionType != "" {
			fmt.Printf("  Plan:    %s\n", config.NormalizePlanName(data.Account.SubscriptionType))
		}
		fmt.Println()
	}

	if data.Balance != nil {
		fmt.Printf("  Balance: %s credits\n", cli.FormatCredits(data.Balance.Credits))

		pct := config.QuotaPercent(cfg, data.Account.SubscriptionType, data.Balance.Credits)
		if pct > 0 {
			used := 1 - pct/100
			fmt.Printf("  Quota:   %s %s remaining\n", cli.RenderQuotaBar(used, 20), cli.FormatPercent(pct/100))
		}
		if !data.Balance.ExpiresAt.IsZero() {
			if until := time.Until(data.Balance.ExpiresAt); until > 0 {
				fmt.Printf("  Resets:  %s\n", formatCountdown(until))
			}
		}
		fmt.Println()
	}

	printMonitorStatus(ctx, cfg)
	printBackupSummary(mgr)

	if data.Error != nil {
		warnStyle := lipgloss.NewStyle().Foreground(cli.ColorOrange)
		fmt.Printf("  %s\n\n", warnStyle.Render(fmt.Sprintf("Partial data — %s", data.Error)))
	}

	fmt.Printf("  Fetched at %s\n\n", data.FetchedAt.Format("3:04:05 PM"))
	return nil
}

func printMonitorStatus(ctx context.Context, cfg config.Config) {
	daemon := monitor.NewClient(monitorAddr(cfg))
	if !daemon.Healthy(ctx) {
		fmt.Println("  Monitor: not running (start with `kirman monitor --detach`)")
		fmt.Println()
		return
	}

	st, err := daemon.DaemonStatus(ctx)
	if err != nil {
		fmt.Printf("  Monitor: unreachable (%v)\n\n", err)
		return
	}

	proj := autoswitch.Project(model.AutoSwitchStatus{
		State:             st.State,
		LastBalance:       st.LastBalance,
		CooldownRemaining: st.CooldownRemaining,
		SwitchCount:       st.SwitchCount,
	})
	fmt.Printf("  Monitor: %s\n", cli.RenderStatus(proj))
	fmt.Printf("  Polling: every %dm, %d polls so far\n", st.PollIntervalMin, st.PollCount)
	if st.SwitchCount > 0 {
		fmt.Printf("  Switches: %d\n", st.SwitchCount)
	}
	if st.LastError != "" {
		fmt.Printf("  Last error: %s\n", st.LastError)
	}
	fmt.Println()
}

func printBackupSummary(mgr *backup.Manager) {
	backups, err := mgr.Scan()
	if err != nil || len(backups) == 0 {
		fmt.Println("  Backups: none yet (run `kirman backups add`)")
		fmt.Println()
		return
	}

	active := ""
	for _, b := range backups {
		if b.Active {
			active = b.Name
			break
		}
	}
	if active != "" {
		fmt.Printf("  Backups: %d stored, %s active\n", len(backups), active)
	} else {
		fmt.Printf("  Backups: %d stored, none match the live credential\n", len(backups))
	}
	fmt.Println()
}

func formatCountdown(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
