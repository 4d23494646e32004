package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chun1617/Kir-Manager-sub002/internal/backup"
	"github.com/chun1617/Kir-Manager-sub002/internal/cli"
	"github.com/chun1617/Kir-Manager-sub002/internal/config"
	"github.com/chun1617/Kir-Manager-sub002/internal/model"
)

var backupsCmd = &cobra.Command{
	Use:   "backups",
	Short: "List stored credential backups",
	RunE:  runBackups,
}

var backupsAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Snapshot the live credential into a new backup",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBackupsAdd,
}

var backupsDeleteCmd = &cobra.Command{
	Use:   "delete <backup>",
	Short: "Delete a stored backup",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupsDelete,
}

var (
	backupsAddEmail  string
	backupsAddFolder string
	backupsAddPlan   string
)

func init() {
	backupsAddCmd.Flags().StringVar(&backupsAddEmail, "email", "", "Account email for the backup")
	backupsAddCmd.Flags().StringVar(&backupsAddFolder, "folder", "", "Folder id grouping this backup")
	backupsAddCmd.Flags().StringVar(&backupsAddPlan, "plan", "", "Subscription plan (free, pro, pro+, power)")

	backupsCmd.AddCommand(backupsAddCmd)
	backupsCmd.AddCommand(backupsDeleteCmd)
	rootCmd.AddCommand(backupsCmd)
}

func runBackups(_ *cobra.Command, _ []string) error {
	cfg, _ := config.Load()
	backups, err := newBackupManager(cfg).Scan()
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		fmt.Println("\n  No backups yet. Snapshot the live credential with `kirman backups add`.")
		return nil
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("BACKUPS  %d stored", len(backups))))
	fmt.Println()

	rows := make([][]string, 0, len(backups))
	for _, b := range backups {
		marker := ""
		if b.Active {
			marker = "●"
		}
		rows = append(rows, []string{
			marker,
			cli.Truncate(b.Name, 16),
			cli.Truncate(b.Email, 26),
			config.NormalizePlanName(b.SubscriptionType),
			cli.FormatCredits(b.Balance),
			cli.FormatRelativeTime(b.LastUsedAt),
		})
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"", "Name", "Email", "Plan", "Balance", "Last Used"},
		Rows:    rows,
	}))

	return nil
}

func runBackupsAdd(_ *cobra.Command, args []string) error {
	cfg, _ := config.Load()
	mgr := newBackupManager(cfg)

	meta := model.Backup{
		Email:            backupsAddEmail,
		SubscriptionType: backupsAddPlan,
		FolderID:         backupsAddFolder,
	}
	if len(args) > 0 {
		meta.Name = args[0]
	}

	b, err := mgr.Snapshot(meta)
	if err != nil {
		if errors.Is(err, backup.ErrNoActiveCredential) {
			return errors.New("no live credential to snapshot — sign in to Kiro first")
		}
		return err
	}

	fmt.Printf("  Saved backup %q (%s)\n", b.Name, b.ID)
	fmt.Printf("  File: %s\n", b.Path)
	return nil
}

func runBackupsDelete(_ *cobra.Command, args []string) error {
	cfg, _ := config.Load()
	mgr := newBackupManager(cfg)

	b, err := resolveBackup(mgr, args[0])
	if err != nil {
		return err
	}

	if err := mgr.Delete(b.ID); err != nil {
		return err
	}

	fmt.Printf("  Deleted backup %q (%s)\n", b.Name, b.ID)
	if b.Active {
		fmt.Println("  The live credential is untouched; snapshot it again with `kirman backups add`.")
	}
	return nil
}
