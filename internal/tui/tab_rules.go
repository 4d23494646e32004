package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chun1617/Kir-Manager-sub002/internal/autoswitch"
	"github.com/chun1617/Kir-Manager-sub002/internal/model"
	"github.com/chun1617/Kir-Manager-sub002/internal/rules"
	"github.com/chun1617/Kir-Manager-sub002/internal/tui/theme"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// rulesState holds cursor and inline edit state for the Rules tab.
type rulesState struct {
	cursor  int
	editing bool
	field   string
	ruleID  string
	input   textinput.Model
}

func (a App) updateRulesKeys(key string) (bool, tea.Model, tea.Cmd) {
	n := len(a.ctl.Rules())

	switch key {
	case "j", "down":
		if a.rulesState.cursor < n-1 {
			a.rulesState.cursor++
		}
		return true, a, nil

	case "k", "up":
		if a.rulesState.cursor > 0 {
			a.rulesState.cursor--
		}
		return true, a, nil

	case "g":
		a.rulesState.cursor = 0
		return true, a, nil

	case "G":
		if n > 0 {
			a.rulesState.cursor = n - 1
		}
		return true, a, nil

	case "a":
		if n >= rules.MaxRules {
			a.setFlash(fmt.Sprintf("rule limit reached (%d)", rules.MaxRules), true)
			return true, a, nil
		}
		return true, a, addRuleCmd(a.ctl)

	case "d":
		if n == 0 || a.rulesState.cursor >= n {
			return true, a, nil
		}
		if !a.ctl.CanDeleteRule() {
			a.setFlash("cannot delete the last rule", true)
			return true, a, nil
		}
		return true, a, deleteRuleCmd(a.ctl, a.rulesState.cursor)

	case "m":
		return true, a.startRuleEdit(rules.FieldMinBalance), nil

	// x jumps to the Settings tab, so max gets the capital.
	case "M":
		return true, a.startRuleEdit(rules.FieldMaxBalance), nil

	case "i", "enter":
		return true, a.startRuleEdit(rules.FieldInterval), nil
	}

	return false, a, nil
}

func (a App) startRuleEdit(field string) App {
	list := a.ctl.Rules()
	if len(list) == 0 || a.rulesState.cursor >= len(list) {
		return a
	}
	r := list[a.rulesState.cursor]

	ti := textinput.New()
	ti.CharLimit = 12
	ti.Width = 14
	switch field {
	case rules.FieldMinBalance:
		ti.SetValue(trimFloat(r.MinBalance))
	case rules.FieldMaxBalance:
		if !r.Unbounded() {
			ti.SetValue(trimFloat(r.MaxBalance))
		}
		ti.Placeholder = "empty = ∞"
	case rules.FieldInterval:
		ti.SetValue(strconv.Itoa(r.Interval))
	}
	ti.Focus()

	a.rulesState.editing = true
	a.rulesState.field = field
	a.rulesState.ruleID = r.ID
	a.rulesState.input = ti
	return a
}

func (a App) updateRulesInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.rulesState.editing = false
		return a, nil

	case "enter":
		raw := strings.TrimSpace(a.rulesState.input.Value())
		a.rulesState.editing = false

		var value float64
		unbounded := raw == "" || raw == "∞" || strings.EqualFold(raw, "inf")
		if a.rulesState.field == rules.FieldMaxBalance && unbounded {
			value = model.MaxBalanceUnbounded
		} else {
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				a.setFlash(fmt.Sprintf("not a number: %q", raw), true)
				return a, nil
			}
			value = f
		}

		return a, editRuleCmd(a.ctl, a.rulesState.ruleID, a.rulesState.field, value)
	}

	var cmd tea.Cmd
	a.rulesState.input, cmd = a.rulesState.input.Update(msg)
	return a, cmd
}

// Rule mutations persist through the controller, which may round-trip to
// the monitor; keep them off the update loop.
func addRuleCmd(ctl *autoswitch.Controller) tea.Cmd {
	return func() tea.Msg {
		if r := ctl.AddRefreshRule(); r == nil {
			// Debounced double-press; nothing to report.
			return RuleChangeMsg{}
		}
		return RuleChangeMsg{Flash: "Rule added"}
	}
}

func deleteRuleCmd(ctl *autoswitch.Controller, index int) tea.Cmd {
	return func() tea.Msg {
		if !ctl.RemoveRefreshRule(index) {
			return RuleChangeMsg{Err: errors.New("rule not deleted")}
		}
		return RuleChangeMsg{Flash: "Rule deleted"}
	}
}

func editRuleCmd(ctl *autoswitch.Controller, id, field string, value float64) tea.Cmd {
	return func() tea.Msg {
		if res := ctl.UpdateRefreshRule(id, field, value); res.Err != nil {
			return RuleChangeMsg{Err: res.Err}
		}
		return RuleChangeMsg{Flash: "Rule updated"}
	}
}

func (a App) renderRulesTab(cw int) string {
	t := theme.Active

	titleStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Bold(true).Background(t.Background)
	rowStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Background)
	selStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.SurfaceHover).Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Background)
	editStyle := lipgloss.NewStyle().Foreground(t.Yellow).Background(t.Background)

	list := a.ctl.Rules()

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf(" REFRESH RULES  %d/%d", len(list), rules.MaxRules)))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(" balance range → poll interval, highest minimum first"))
	b.WriteString("\n\n")

	if len(list) == 0 {
		b.WriteString(dimStyle.Render(" No rules. Press a to add one."))
		b.WriteString("\n")
	}

	for i, r := range list {
		if a.rulesState.editing && r.ID == a.rulesState.ruleID {
			b.WriteString(editStyle.Render(fmt.Sprintf(" %2d. %s = ", i+1, ruleFieldLabel(a.rulesState.field))))
			b.WriteString(a.rulesState.input.View())
			b.WriteString("\n")
			continue
		}

		line := fmt.Sprintf(" %2d. %s", i+1, rules.FormatRule(r))
		if i == a.rulesState.cursor {
			b.WriteString(selStyle.Render(truncStr(line, cw)))
		} else {
			b.WriteString(rowStyle.Render(truncStr(line, cw)))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render(" Balances outside every range poll every 5 min."))
	b.WriteString("\n\n")
	if a.rulesState.editing {
		b.WriteString(dimStyle.Render(" enter apply · esc cancel"))
	} else {
		b.WriteString(dimStyle.Render(" a add · d delete · m min · M max · i interval"))
	}

	return b.String()
}

func ruleFieldLabel(field string) string {
	switch field {
	case rules.FieldMinBalance:
		return "min"
	case rules.FieldMaxBalance:
		return "max"
	case rules.FieldInterval:
		return "interval (min)"
	}
	return field
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
