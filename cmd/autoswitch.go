package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chun1617/Kir-Manager-sub002/internal/autoswitch"
	"github.com/chun1617/Kir-Manager-sub002/internal/cli"
	"github.com/chun1617/Kir-Manager-sub002/internal/model"
)

var autoswitchCmd = &cobra.Command{
	Use:   "autoswitch",
	Short: "Control balance-based automatic credential switching",
	RunE:  runAutoswitchStatus,
}

var autoswitchOnCmd = &cobra.Command{
	Use:   "on",
	Short: "Enable auto-switching and start the monitor",
	RunE:  func(cmd *cobra.Command, _ []string) error { return toggleAutoswitch(cmd, true) },
}

var autoswitchOffCmd = &cobra.Command{
	Use:   "off",
	Short: "Disable auto-switching and stop the monitor",
	RunE:  func(cmd *cobra.Command, _ []string) error { return toggleAutoswitch(cmd, false) },
}

var autoswitchThresholdCmd = &cobra.Command{
	Use:   "threshold <credits>",
	Short: "Switch away when the balance falls below this",
	Args:  cobra.ExactArgs(1),
	RunE:  runAutoswitchThreshold,
}

var autoswitchTargetCmd = &cobra.Command{
	Use:   "target <credits>",
	Short: "Only switch to backups holding at least this balance",
	Args:  cobra.ExactArgs(1),
	RunE:  runAutoswitchTarget,
}

var autoswitchFoldersCmd = &cobra.Command{
	Use:   "folders <add|remove> <id>",
	Short: "Limit switch candidates to specific folders",
	Args:  cobra.ExactArgs(2),
	RunE:  runAutoswitchFolders,
}

var autoswitchPlansCmd = &cobra.Command{
	Use:   "plans <add|remove> <type>",
	Short: "Limit switch candidates to specific subscription types",
	Args:  cobra.ExactArgs(2),
	RunE:  runAutoswitchPlans,
}

var autoswitchNotifyCmd = &cobra.Command{
	Use:   "notify <switch|low-balance> <on|off>",
	Short: "Toggle webhook notifications",
	Args:  cobra.ExactArgs(2),
	RunE:  runAutoswitchNotify,
}

func init() {
	autoswitchCmd.AddCommand(autoswitchOnCmd)
	autoswitchCmd.AddCommand(autoswitchOffCmd)
	autoswitchCmd.AddCommand(autoswitchThresholdCmd)
	autoswitchCmd.AddCommand(autoswitchTargetCmd)
	autoswitchCmd.AddCommand(autoswitchFoldersCmd)
	autoswitchCmd.AddCommand(autoswitchPlansCmd)
	autoswitchCmd.AddCommand(autoswitchNotifyCmd)
	rootCmd.AddCommand(autoswitchCmd)
}

func resultErr(res model.Result) error {
	if res.Success {
		return nil
	}
	return errors.New(res.Message)
}

func toggleAutoswitch(cmd *cobra.Command, enabled bool) error {
	ctx := cmd.Context()
	ctl, err := newController(ctx)
	if err != nil {
		return err
	}

	if err := resultErr(ctl.HandleAutoSwitchToggle(ctx, enabled)); err != nil {
		return err
	}

	if enabled {
		fmt.Println("  Auto-switch enabled.")
	} else {
		fmt.Println("  Auto-switch disabled.")
	}
	fmt.Printf("  Monitor: %s\n", cli.RenderStatus(autoswitch.Project(ctl.Status())))
	return nil
}

func runAutoswitchStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	ctl, err := newController(ctx)
	if err != nil {
		return err
	}

	settings := ctl.Settings()
	proj := autoswitch.Project(ctl.Status())

	fmt.Println()
	fmt.Println(cli.RenderTitle("AUTO-SWITCH"))
	fmt.Println()

	enabled := "disabled"
	if settings.Enabled {
		enabled = "enabled"
	}
	fmt.Printf("  Auto-switch: %s\n", enabled)
	fmt.Printf("  Monitor:     %s\n", cli.RenderStatus(proj))
	fmt.Println()
	fmt.Printf("  Threshold:   switch below %s credits\n", cli.FormatCredits(settings.BalanceThreshold))
	fmt.Printf("  Target:      candidates need at least %s credits\n", cli.FormatCredits(settings.MinTargetBalance))
	if len(settings.FolderIDs) > 0 {
		fmt.Printf("  Folders:     %s\n", strings.Join(settings.FolderIDs, ", "))
	}
	if len(settings.SubscriptionTypes) > 0 {
		fmt.Printf("  Plans:       %s\n", strings.Join(settings.SubscriptionTypes, ", "))
	}
	fmt.Printf("  Rules:       %d (see `kirman rules`)\n", len(settings.RefreshIntervals))
	fmt.Printf("  Notify:      switch %s, low balance %s\n",
		onOff(settings.NotifyOnSwitch), onOff(settings.NotifyOnLowBalance))
	fmt.Println()
	return nil
}

func runAutoswitchThreshold(cmd *cobra.Command, args []string) error {
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("threshold must be a number, got %q", args[0])
	}

	ctl, err := newController(cmd.Context())
	if err != nil {
		return err
	}
	if err := resultErr(ctl.SetBalanceThreshold(cmd.Context(), v)); err != nil {
		return err
	}
	fmt.Printf("  Switching below %s credits.\n", cli.FormatCredits(v))
	return nil
}

func runAutoswitchTarget(cmd *cobra.Command, args []string) error {
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("target must be a number, got %q", args[0])
	}

	ctl, err := newController(cmd.Context())
	if err != nil {
		return err
	}
	if err := resultErr(ctl.SetMinTargetBalance(cmd.Context(), v)); err != nil {
		return err
	}
	fmt.Printf("  Candidates need at least %s credits.\n", cli.FormatCredits(v))
	return nil
}

func runAutoswitchFolders(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ctl, err := newController(ctx)
	if err != nil {
		return err
	}

	switch args[0] {
	case "add":
		if err := resultErr(ctl.AddFolder(ctx, args[1])); err != nil {
			return err
		}
	case "remove":
		if err := resultErr(ctl.RemoveFolder(ctx, args[1])); err != nil {
			return err
		}
	default:
		return fmt.Errorf("expected add or remove, got %q", args[0])
	}

	folders := ctl.Settings().FolderIDs
	if len(folders) == 0 {
		fmt.Println("  Folder filter cleared; all folders are candidates.")
	} else {
		fmt.Printf("  Folder filter: %s\n", strings.Join(folders, ", "))
	}
	return nil
}

func runAutoswitchPlans(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	ctl, err := newController(ctx)
	if err != nil {
		return err
	}

	switch args[0] {
	case "add":
		if err := resultErr(ctl.AddSubscriptionType(ctx, args[1])); err != nil {
			return err
		}
	case "remove":
		if err := resultErr(ctl.RemoveSubscriptionType(ctx, args[1])); err != nil {
			return err
		}
	default:
		return fmt.Errorf("expected add or remove, got %q", args[0])
	}

	plans := ctl.Settings().SubscriptionTypes
	if len(plans) == 0 {
		fmt.Println("  Plan filter cleared; all subscription types are candidates.")
	} else {
		fmt.Printf("  Plan filter: %s\n", strings.Join(plans, ", "))
	}
	return nil
}

func runAutoswitchNotify(cmd *cobra.Command, args []string) error {
	on, err := parseOnOff(args[1])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	ctl, err := newController(ctx)
	if err != nil {
		return err
	}

	switch args[0] {
	case "switch":
		err = resultErr(ctl.SetNotifyOnSwitch(ctx, on))
	case "low-balance":
		err = resultErr(ctl.SetNotifyOnLowBalance(ctx, on))
	default:
		return fmt.Errorf("expected switch or low-balance, got %q", args[0])
	}
	if err != nil {
		return err
	}

	fmt.Printf("  Notifications for %s: %s\n", args[0], onOff(on))
	return nil
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes":
		return true, nil
	case "off", "false", "no":
		return false, nil
	default:
		return false, fmt.Errorf("expected on or off, got %q", s)
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
