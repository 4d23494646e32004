package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chun1617/Kir-Manager-sub002/internal/cli"
	"github.com/chun1617/Kir-Manager-sub002/internal/model"
	"github.com/chun1617/Kir-Manager-sub002/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Show the balance-to-interval refresh rules",
	RunE:  runRules,
}

var rulesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a refresh rule (edit it with `kirman rules set`)",
	RunE:  runRulesAdd,
}

var rulesSetCmd = &cobra.Command{
	Use:   "set <id> <min|max|interval> <value>",
	Short: "Edit one field of a refresh rule",
	Args:  cobra.ExactArgs(3),
	RunE:  runRulesSet,
}

var rulesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a refresh rule",
	Args:  cobra.ExactArgs(1),
	RunE:  runRulesDelete,
}

func init() {
	rulesCmd.AddCommand(rulesAddCmd)
	rulesCmd.AddCommand(rulesSetCmd)
	rulesCmd.AddCommand(rulesDeleteCmd)
	rootCmd.AddCommand(rulesCmd)
}

func runRules(cmd *cobra.Command, _ []string) error {
	ctl, err := newController(cmd.Context())
	if err != nil {
		return err
	}

	ruleSet := ctl.Rules()
	fmt.Println()
	fmt.Println(cli.RenderTitle("REFRESH RULES"))
	fmt.Println()

	rows := make([][]string, 0, len(ruleSet))
	for _, r := range ruleSet {
		rows = append(rows, []string{r.ID, rules.FormatRule(r)})
	}
	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"ID", "Rule"},
		Rows:    rows,
	}))

	fmt.Printf("  Rules map balance ranges to poll intervals; up to %d, ranges must not overlap.\n", rules.MaxRules)
	return nil
}

func runRulesAdd(cmd *cobra.Command, _ []string) error {
	ctl, err := newController(cmd.Context())
	if err != nil {
		return err
	}

	r := ctl.AddRefreshRule()
	if r == nil {
		return fmt.Errorf("cannot add a rule (limit is %d)", rules.MaxRules)
	}

	fmt.Printf("  Added rule %s: %s\n", r.ID, rules.FormatRule(*r))
	fmt.Printf("  Shape it with: kirman rules set %s min <balance>\n", r.ID)
	return nil
}

func runRulesSet(cmd *cobra.Command, args []string) error {
	ctl, err := newController(cmd.Context())
	if err != nil {
		return err
	}

	id, field, raw := args[0], args[1], args[2]
	canonical, value, err := parseRuleEdit(field, raw)
	if err != nil {
		return err
	}

	if res := ctl.UpdateRefreshRule(id, canonical, value); !res.Valid {
		return res.Err
	}

	for _, r := range ctl.Rules() {
		if r.ID == id {
			fmt.Printf("  Updated rule %s: %s\n", r.ID, rules.FormatRule(r))
			break
		}
	}
	return nil
}

func runRulesDelete(cmd *cobra.Command, args []string) error {
	ctl, err := newController(cmd.Context())
	if err != nil {
		return err
	}

	idx := ruleIndex(ctl.Rules(), args[0])
	if idx < 0 {
		return fmt.Errorf("no rule %q", args[0])
	}
	if !ctl.RemoveRefreshRule(idx) {
		return fmt.Errorf("the last remaining rule cannot be deleted")
	}

	fmt.Printf("  Deleted rule %s\n", args[0])
	return nil
}

// parseRuleEdit maps a CLI field name and raw value to the engine's
// field key and typed value.
func parseRuleEdit(field, raw string) (string, any, error) {
	switch strings.ToLower(field) {
	case "min", "minbalance":
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", nil, fmt.Errorf("min balance must be a number, got %q", raw)
		}
		return rules.FieldMinBalance, v, nil
	case "max", "maxbalance":
		switch strings.ToLower(raw) {
		case "unbounded", "none", "inf":
			return rules.FieldMaxBalance, true, nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", nil, fmt.Errorf("max balance must be a number or \"unbounded\", got %q", raw)
		}
		return rules.FieldMaxBalance, v, nil
	case "interval":
		v, err := strconv.Atoi(raw)
		if err != nil {
			return "", nil, fmt.Errorf("interval must be whole minutes, got %q", raw)
		}
		return rules.FieldInterval, v, nil
	default:
		return "", nil, fmt.Errorf("unknown field %q (use min, max, or interval)", field)
	}
}

func ruleIndex(list []model.RefreshRule, id string) int {
	for i, r := range list {
		if r.ID == id {
			return i
		}
	}
	return -1
}
