package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/chun1617/Kir-Manager-sub002/internal/autoswitch"
	"github.com/chun1617/Kir-Manager-sub002/internal/backup"
	"github.com/chun1617/Kir-Manager-sub002/internal/config"
	"github.com/chun1617/Kir-Manager-sub002/internal/monitor"
)

var (
	flagKiroDir     string
	flagMonitorAddr string
	flagQuiet       bool
)

var rootCmd = &cobra.Command{
	Use:   "kirman",
	Short: "Kiro credential backup manager",
	Long:  "Manage Kiro IDE credential backups: snapshot accounts, switch between them, and auto-switch when the balance runs low.",
	RunE:  runStatus,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagKiroDir, "kiro-dir", "d", "", "Kiro data directory (default from config or ~/.kiro)")
	rootCmd.PersistentFlags().StringVar(&flagMonitorAddr, "addr", "", "Monitor daemon address (default from config)")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress output")
}

// kiroDir resolves the data directory from the flag, then the config.
func kiroDir(cfg config.Config) string {
	if flagKiroDir != "" {
		return flagKiroDir
	}
	return config.KiroDir(cfg)
}

func monitorAddr(cfg config.Config) string {
	if flagMonitorAddr != "" {
		return flagMonitorAddr
	}
	return cfg.Monitor.Listen
}

func newBackupManager(cfg config.Config) *backup.Manager {
	return backup.NewManager(kiroDir(cfg))
}

// newController builds an auto-switch controller wired to the daemon
// when it is reachable, or to the settings file on disk otherwise.
func newController(ctx context.Context) (*autoswitch.Controller, error) {
	cfg, _ := config.Load()
	remote := monitor.NewRemote(ctx, monitorAddr(cfg), config.SettingsPath())
	ctl := autoswitch.NewController(remote)
	if err := ctl.Load(ctx); err != nil {
		return nil, err
	}
	return ctl, nil
}
