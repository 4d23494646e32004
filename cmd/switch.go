package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/chun1617/Kir-Manager-sub002/internal/backup"
	"github.com/chun1617/Kir-Manager-sub002/internal/config"
	"github.com/chun1617/Kir-Manager-sub002/internal/model"
	"github.com/chun1617/Kir-Manager-sub002/internal/store"
)

var switchCmd = &cobra.Command{
	Use:   "switch <backup>",
	Short: "Activate a stored backup as the live credential",
	Args:  cobra.ExactArgs(1),
	RunE:  runSwitch,
}

func init() {
	rootCmd.AddCommand(switchCmd)
}

func runSwitch(_ *cobra.Command, args []string) error {
	cfg, _ := config.Load()
	mgr := newBackupManager(cfg)

	target, err := resolveBackup(mgr, args[0])
	if err != nil {
		return err
	}
	if target.Active {
		fmt.Printf("  %q is already active.\n", target.Name)
		return nil
	}

	backups, _ := mgr.Scan()
	fromID, fromBalance := "", 0.0
	for _, b := range backups {
		if b.Active {
			fromID, fromBalance = b.ID, b.Balance
			break
		}
	}

	activated, err := mgr.Activate(target.ID)
	if err != nil {
		return err
	}

	fmt.Printf("  Switched to %q (%s)\n", activated.Name, activated.Email)

	// Record the manual switch alongside the monitor's history.
	if h, err := store.Open(config.HistoryPath(cfg)); err == nil {
		defer func() { _ = h.Close() }()
		_ = h.RecordSwitch(model.SwitchEvent{
			ID:         uuid.NewString(),
			At:         time.Now(),
			FromBackup: fromID,
			ToBackup:   activated.ID,
			Balance:    fromBalance,
			Reason:     "manual",
		})
	}
	return nil
}

// resolveBackup matches a backup by id, exact name, or unique prefix.
// On a miss it suggests the closest name by edit distance.
func resolveBackup(mgr *backup.Manager, query string) (*model.Backup, error) {
	backups, err := mgr.Scan()
	if err != nil {
		return nil, err
	}
	if len(backups) == 0 {
		return nil, errors.New("no backups stored")
	}

	q := strings.ToLower(query)

	for i := range backups {
		if backups[i].ID == query {
			return &backups[i], nil
		}
	}
	for i := range backups {
		if strings.ToLower(backups[i].Name) == q {
			return &backups[i], nil
		}
	}

	var match *model.Backup
	for i := range backups {
		if strings.HasPrefix(strings.ToLower(backups[i].ID), q) ||
			strings.HasPrefix(strings.ToLower(backups[i].Name), q) {
			if match != nil {
				return nil, fmt.Errorf("%q matches more than one backup", query)
			}
			match = &backups[i]
		}
	}
	if match != nil {
		return match, nil
	}

	if s := closestBackupName(backups, q); s != "" {
		return nil, fmt.Errorf("no backup %q — did you mean %q?", query, s)
	}
	return nil, fmt.Errorf("no backup %q", query)
}

// closestBackupName returns the nearest stored name, or "" when nothing
// is within a small edit distance.
func closestBackupName(backups []model.Backup, query string) string {
	best, bestDist := "", 4
	for _, b := range backups {
		d := levenshtein.ComputeDistance(query, strings.ToLower(b.Name))
		if d < bestDist {
			best, bestDist = b.Name, d
		}
	}
	return best
}
