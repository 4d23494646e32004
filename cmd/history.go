package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chun1617/Kir-Manager-sub002/internal/cli"
	"github.com/chun1617/Kir-Manager-sub002/internal/config"
	"github.com/chun1617/Kir-Manager-sub002/internal/model"
	"github.com/chun1617/Kir-Manager-sub002/internal/store"
)

var (
	flagHistoryDays  int
	flagHistoryLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Credential switch history",
	RunE:  runHistory,
}

var historyBalanceCmd = &cobra.Command{
	Use:   "balance [backup]",
	Short: "Sampled balance trend",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistoryBalance,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop history older than the retention window",
	RunE:  runHistoryPrune,
}

func init() {
	historyCmd.PersistentFlags().IntVar(&flagHistoryDays, "days", 30, "Days of history to consider")
	historyCmd.Flags().IntVar(&flagHistoryLimit, "limit", 20, "Max switches to list")

	historyCmd.AddCommand(historyBalanceCmd)
	historyCmd.AddCommand(historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}

func openHistory() (*store.History, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return store.Open(config.HistoryPath(cfg))
}

// backupNames maps backup IDs to display names, falling back to the raw ID.
func backupNames() map[string]string {
	cfg, err := config.Load()
	if err != nil {
		return nil
	}
	files, err := newBackupManager(cfg).Scan()
	if err != nil {
		return nil
	}
	names := make(map[string]string, len(files))
	for _, f := range files {
		names[f.ID] = f.Name
	}
	return names
}

func displayName(names map[string]string, id string) string {
	if id == "" {
		return "-"
	}
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return id
}

func runHistory(_ *cobra.Command, _ []string) error {
	h, err := openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = h.Close() }()

	switches, err := h.RecentSwitches(flagHistoryLimit)
	if err != nil {
		return err
	}
	if len(switches) == 0 {
		fmt.Println("\n  No switches recorded yet.")
		return nil
	}

	names := backupNames()

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("SWITCH HISTORY  Last %d", len(switches))))
	fmt.Println()

	rows := make([][]string, 0, len(switches))
	for _, ev := range switches {
		rows = append(rows, []string{
			cli.FormatRelativeTime(ev.At),
			cli.Truncate(displayName(names, ev.FromBackup), 16),
			cli.Truncate(displayName(names, ev.ToBackup), 16),
			cli.FormatCredits(ev.Balance),
			ev.Reason,
		})
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"When", "From", "To", "Balance", "Reason"},
		Rows:    rows,
	}))

	counts, err := h.DailySwitchCounts(flagHistoryDays)
	if err != nil || len(counts) == 0 {
		return nil
	}

	maxCount := 0
	for _, dc := range counts {
		if dc.Count > maxCount {
			maxCount = dc.Count
		}
	}

	fmt.Println()
	fmt.Printf("  Switches per day (last %dd)\n", flagHistoryDays)
	fmt.Println()
	for _, dc := range counts {
		fmt.Println(cli.RenderHorizontalBar(dc.Day, float64(dc.Count), float64(maxCount), 30))
	}
	fmt.Println()
	return nil
}

func runHistoryBalance(_ *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	backupID := ""
	label := "all backups"
	if len(args) == 1 {
		f, err := resolveBackup(newBackupManager(cfg), args[0])
		if err != nil {
			return err
		}
		backupID = f.ID
		label = backupDisplayName(f)
	}

	h, err := store.Open(config.HistoryPath(cfg))
	if err != nil {
		return err
	}
	defer func() { _ = h.Close() }()

	since := time.Now().AddDate(0, 0, -flagHistoryDays)
	samples, err := h.SamplesSince(backupID, since)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Println("\n  No balance samples yet. The monitor records them while running.")
		return nil
	}

	values := make([]float64, 0, len(samples))
	for _, s := range samples {
		values = append(values, s.Balance)
	}
	latest := samples[len(samples)-1]

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("BALANCE TREND  Last %dd", flagHistoryDays)))
	fmt.Println()
	fmt.Printf("  %s, %d samples\n", label, len(samples))
	fmt.Println()
	fmt.Printf("  %s\n", cli.RenderSparkline(values))
	fmt.Println()
	fmt.Printf("  Latest: %s credits at %s\n",
		cli.FormatCredits(latest.Balance), cli.FormatRelativeTime(latest.At))
	fmt.Println()
	return nil
}

func runHistoryPrune(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	days := cfg.General.HistoryDays
	if cmd.Flags().Changed("days") || days < 1 {
		days = flagHistoryDays
	}

	h, err := store.Open(config.HistoryPath(cfg))
	if err != nil {
		return err
	}
	defer func() { _ = h.Close() }()

	if err := h.Prune(time.Now().AddDate(0, 0, -days)); err != nil {
		return err
	}
	fmt.Printf("  Pruned history older than %d days.\n", days)
	return nil
}

func backupDisplayName(b *model.Backup) string {
	if b.Name != "" {
		return b.Name
	}
	return b.ID
}
