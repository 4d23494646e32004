package tui

import (
	"fmt"
	"strings"

	"github.com/chun1617/Kir-Manager-sub002/internal/autoswitch"
	"github.com/chun1617/Kir-Manager-sub002/internal/cli"
	"github.com/chun1617/Kir-Manager-sub002/internal/config"
	"github.com/chun1617/Kir-Manager-sub002/internal/model"
	"github.com/chun1617/Kir-Manager-sub002/internal/rules"
	"github.com/chun1617/Kir-Manager-sub002/internal/tui/components"
	"github.com/chun1617/Kir-Manager-sub002/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

// renderOverviewTab shows the at-a-glance dashboard: headline metrics, the
// live account, the balance trend, active rules, and recent switches.
func (a App) renderOverviewTab(cw int) string {
	var sections []string

	sections = append(sections, a.renderOverviewMetrics(cw))

	if a.isCompactLayout() {
		sections = append(sections,
			a.renderAccountCard(cw),
			a.renderTrendCard(cw),
			a.renderRulesCard(cw),
			a.renderSwitchesCard(cw),
		)
	} else {
		halves := components.LayoutRow(cw, 2)
		sections = append(sections,
			components.CardRow([]string{
				a.renderAccountCard(halves[0]),
				a.renderTrendCard(halves[1]),
			}),
			components.CardRow([]string{
				a.renderRulesCard(halves[0]),
				a.renderSwitchesCard(halves[1]),
			}),
		)
	}

	return strings.Join(sections, "\n")
}

func (a App) renderOverviewMetrics(cw int) string {
	st := a.ctl.Status()
	proj := autoswitch.Project(st)

	balanceValue := "—"
	balanceDetail := "no live account"
	switch {
	case a.snap.Account != nil && a.snap.Account.Balance != nil:
		balanceValue = cli.FormatCredits(a.snap.Account.Balance.Credits)
		balanceDetail = "credits remaining"
	case st.LastBalance > 0:
		balanceValue = cli.FormatCredits(st.LastBalance)
		balanceDetail = "last monitor sample"
	}

	monitorDetail := proj.Detail
	if monitorDetail == "" {
		if a.ctl.Enabled() {
			monitorDetail = "auto-switch on"
		} else {
			monitorDetail = "auto-switch off"
		}
	}

	activeName := "none active"
	for _, b := range a.snap.Backups {
		if b.Active {
			activeName = truncStr(backupLabel(b), 18)
			break
		}
	}

	cards := []components.Metric{
		{Label: "BALANCE", Value: balanceValue, Detail: balanceDetail},
		{Label: "MONITOR", Value: proj.Label, Detail: monitorDetail},
		{Label: "BACKUPS", Value: fmt.Sprintf("%d", len(a.snap.Backups)), Detail: activeName},
		{Label: "SWITCHES", Value: fmt.Sprintf("%d", st.SwitchCount), Detail: "since monitor start"},
	}

	return components.MetricCardRow(cards, cw)
}

func (a App) renderAccountCard(outerW int) string {
	t := theme.Active
	innerW := components.CardInnerWidth(outerW)

	dim := lipgloss.NewStyle().Foreground(t.TextDim)
	muted := lipgloss.NewStyle().Foreground(t.TextMuted)
	primary := lipgloss.NewStyle().Foreground(t.TextPrimary).Bold(true)

	var lines []string
	switch {
	case a.snap.Account == nil:
		lines = append(lines,
			dim.Render("No token configured."),
			dim.Render("Run `kirman setup` or set KIRMAN_KIRO_TOKEN."),
		)

	case a.snap.Account.Error != nil && a.snap.Account.Balance == nil:
		lines = append(lines,
			dim.Render("Account fetch failed:"),
			dim.Render(truncStr(a.snap.Account.Error.Error(), innerW)),
		)

	default:
		acct := a.snap.Account.Account
		head := primary.Render(truncStr(acct.Email, innerW))
		if plan := config.NormalizePlanName(acct.SubscriptionType); plan != "" {
			head += muted.Render("  " + plan)
		}
		lines = append(lines, head)

		if bal := a.snap.Account.Balance; bal != nil {
			lines = append(lines, muted.Render(cli.FormatCredits(bal.Credits)+" credits"))
			if bal.HasQuota && bal.Quota > 0 {
				used := 1 - bal.Credits/bal.Quota
				barW := innerW - 24
				if barW < 10 {
					barW = 10
				}
				lines = append(lines, components.QuotaBar("used", used, bal.ExpiresAt, 5, barW))
			}
		} else {
			lines = append(lines, dim.Render("balance unavailable"))
		}
	}

	return components.ContentCard("LIVE ACCOUNT", strings.Join(lines, "\n"), outerW)
}

func (a App) renderTrendCard(outerW int) string {
	t := theme.Active
	innerW := components.CardInnerWidth(outerW)

	dim := lipgloss.NewStyle().Foreground(t.TextDim)

	if len(a.snap.Samples) == 0 {
		body := dim.Render("No balance samples yet.") + "\n" +
			dim.Render("The monitor records one per poll.")
		return components.ContentCard("BALANCE 7D", body, outerW)
	}

	values := make([]float64, 0, len(a.snap.Samples))
	for _, s := range a.snap.Samples {
		values = append(values, s.Balance)
	}
	if len(values) > innerW {
		values = values[len(values)-innerW:]
	}

	latest := a.snap.Samples[len(a.snap.Samples)-1]
	body := components.Sparkline(values, t.Accent) + "\n" +
		dim.Render(fmt.Sprintf("%d samples, latest %s %s",
			len(a.snap.Samples),
			cli.FormatCredits(latest.Balance),
			cli.FormatRelativeTime(latest.At)))

	return components.ContentCard("BALANCE 7D", body, outerW)
}

func (a App) renderRulesCard(outerW int) string {
	t := theme.Active

	dim := lipgloss.NewStyle().Foreground(t.TextDim)
	muted := lipgloss.NewStyle().Foreground(t.TextMuted)
	primary := lipgloss.NewStyle().Foreground(t.TextPrimary)

	s := a.ctl.Settings()
	list := a.ctl.Rules()

	var lines []string
	lines = append(lines, muted.Render(fmt.Sprintf("switch below %s, target ≥ %s",
		cli.FormatCredits(s.BalanceThreshold),
		cli.FormatCredits(s.MinTargetBalance))))

	for i, r := range list {
		if i >= 4 {
			lines = append(lines, dim.Render(fmt.Sprintf("… %d more", len(list)-i)))
			break
		}
		lines = append(lines, primary.Render(rules.FormatRule(r)))
	}
	if len(list) == 0 {
		lines = append(lines, dim.Render("no rules, default poll interval applies"))
	}

	return components.ContentCard("REFRESH RULES", strings.Join(lines, "\n"), outerW)
}

func (a App) renderSwitchesCard(outerW int) string {
	t := theme.Active
	innerW := components.CardInnerWidth(outerW)

	dim := lipgloss.NewStyle().Foreground(t.TextDim)
	muted := lipgloss.NewStyle().Foreground(t.TextMuted)

	if len(a.snap.Switches) == 0 {
		return components.ContentCard("RECENT SWITCHES",
			dim.Render("No switches recorded yet."), outerW)
	}

	names := backupNameIndex(a.snap.Backups)

	var lines []string
	for _, ev := range a.snap.Switches {
		line := fmt.Sprintf("%-9s %s → %s",
			cli.FormatRelativeTime(ev.At),
			truncStr(nameOrDash(names, ev.FromBackup), 14),
			truncStr(nameOrDash(names, ev.ToBackup), 14))
		line = muted.Render(truncStr(line, innerW))
		if ev.Reason != "" {
			line += dim.Render("  " + truncStr(ev.Reason, 20))
		}
		lines = append(lines, line)
	}

	return components.ContentCard("RECENT SWITCHES", strings.Join(lines, "\n"), outerW)
}

func backupNameIndex(backups []model.Backup) map[string]string {
	m := make(map[string]string, len(backups))
	for _, b := range backups {
		m[b.ID] = backupLabel(b)
	}
	return m
}

func nameOrDash(names map[string]string, id string) string {
	if id == "" {
		return "-"
	}
	if n, ok := names[id]; ok && n != "" {
		return n
	}
	return id
}
