package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chun1617/Kir-Manager-sub002/internal/cli"
	"github.com/chun1617/Kir-Manager-sub002/internal/config"
	"github.com/chun1617/Kir-Manager-sub002/internal/model"
	"github.com/chun1617/Kir-Manager-sub002/internal/tui/theme"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	settingsFieldEnabled = iota
	settingsFieldThreshold
	settingsFieldTarget
	settingsFieldFolders
	settingsFieldPlans
	settingsFieldNotifySwitch
	settingsFieldNotifyLow
	settingsFieldToken
	settingsFieldTheme
	settingsFieldCount // sentinel
)

// settingsState tracks the settings tab state.
type settingsState struct {
	cursor  int
	editing bool
	input   textinput.Model
	saved   bool  // flash "saved" message briefly
	saveErr error // non-nil if last save failed
}

func (a App) updateSettingsKeys(key string) (bool, tea.Model, tea.Cmd) {
	switch key {
	case "j", "down":
		if a.settings.cursor < settingsFieldCount-1 {
			a.settings.cursor++
		}
		return true, a, nil

	case "k", "up":
		if a.settings.cursor > 0 {
			a.settings.cursor--
		}
		return true, a, nil

	case "g":
		a.settings.cursor = 0
		return true, a, nil

	case "G":
		a.settings.cursor = settingsFieldCount - 1
		return true, a, nil

	case "enter":
		return a.settingsActivate()
	}

	return false, a, nil
}

// settingsActivate toggles boolean fields in place and opens the inline
// editor for everything else.
func (a App) settingsActivate() (bool, tea.Model, tea.Cmd) {
	a.settings.saved = false
	a.settings.saveErr = nil

	switch a.settings.cursor {
	case settingsFieldEnabled:
		return true, a, toggleCmd(a.ctl, !a.ctl.Enabled())

	case settingsFieldNotifySwitch:
		next := !a.ctl.Settings().NotifyOnSwitch
		return true, a, settingCmd(func(ctx context.Context) model.Result {
			return a.ctl.SetNotifyOnSwitch(ctx, next)
		})

	case settingsFieldNotifyLow:
		next := !a.ctl.Settings().NotifyOnLowBalance
		return true, a, settingCmd(func(ctx context.Context) model.Result {
			return a.ctl.SetNotifyOnLowBalance(ctx, next)
		})

	case settingsFieldTheme:
		return true, a, cycleThemeCmd()

	default:
		return true, a.settingsStartEdit(), nil
	}
}

func (a App) settingsStartEdit() App {
	s := a.ctl.Settings()

	ti := textinput.New()
	ti.CharLimit = 120
	ti.Width = 40

	switch a.settings.cursor {
	case settingsFieldThreshold:
		ti.SetValue(trimFloat(s.BalanceThreshold))
		ti.CharLimit = 12
		ti.Width = 14

	case settingsFieldTarget:
		ti.SetValue(trimFloat(s.MinTargetBalance))
		ti.CharLimit = 12
		ti.Width = 14

	case settingsFieldFolders:
		ti.SetValue(strings.Join(s.FolderIDs, ", "))
		ti.Placeholder = "comma-separated ids, empty = all"

	case settingsFieldPlans:
		ti.SetValue(strings.Join(s.SubscriptionTypes, ", "))
		ti.Placeholder = "comma-separated types, empty = all"

	case settingsFieldToken:
		// Never echo the stored token back into an editable field.
		ti.EchoMode = textinput.EchoPassword
		ti.Placeholder = "kiro_..."
	}
	ti.Focus()

	a.settings.editing = true
	a.settings.input = ti
	return a
}

func (a App) updateSettingsInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		a.settings.editing = false
		return a, nil
	case "enter":
		return a.settingsSave()
	}

	var cmd tea.Cmd
	a.settings.input, cmd = a.settings.input.Update(msg)
	return a, cmd
}

func (a App) settingsSave() (tea.Model, tea.Cmd) {
	raw := strings.TrimSpace(a.settings.input.Value())
	a.settings.editing = false

	switch a.settings.cursor {
	case settingsFieldThreshold, settingsFieldTarget:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			a.settings.saveErr = fmt.Errorf("not a number: %q", raw)
			return a, nil
		}
		if a.settings.cursor == settingsFieldThreshold {
			return a, settingCmd(func(ctx context.Context) model.Result {
				return a.ctl.SetBalanceThreshold(ctx, f)
			})
		}
		return a, settingCmd(func(ctx context.Context) model.Result {
			return a.ctl.SetMinTargetBalance(ctx, f)
		})

	case settingsFieldFolders:
		return a, syncFilterCmd(splitCommaList(raw), a.ctl.Settings().FolderIDs,
			a.ctl.AddFolder, a.ctl.RemoveFolder)

	case settingsFieldPlans:
		return a, syncFilterCmd(splitCommaList(raw), a.ctl.Settings().SubscriptionTypes,
			a.ctl.AddSubscriptionType, a.ctl.RemoveSubscriptionType)

	case settingsFieldToken:
		if raw != "" && !strings.HasPrefix(raw, "kiro_") {
			a.settings.saveErr = errors.New(`token must start with "kiro_"`)
			return a, nil
		}
		return a, saveConfigCmd(func(cfg *config.Config) {
			cfg.Kiro.Token = raw
		})
	}

	return a, nil
}

// settingCmd runs one controller setter off the update loop; setters
// persist through the monitor and may block on it.
func settingCmd(set func(context.Context) model.Result) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return SettingsSavedMsg{Err: resultToErr(set(ctx))}
	}
}

// syncFilterCmd reconciles an edited id list against the current one with
// the controller's add and remove operations.
func syncFilterCmd(want, current []string,
	add, remove func(context.Context, string) model.Result) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		for _, id := range current {
			if !containsString(want, id) {
				if err := resultToErr(remove(ctx, id)); err != nil {
					return SettingsSavedMsg{Err: err}
				}
			}
		}
		for _, id := range want {
			if !containsString(current, id) {
				if err := resultToErr(add(ctx, id)); err != nil {
					return SettingsSavedMsg{Err: err}
				}
			}
		}
		return SettingsSavedMsg{}
	}
}

func saveConfigCmd(mutate func(*config.Config)) tea.Cmd {
	return func() tea.Msg {
		cfg, err := config.Load()
		if err != nil {
			return SettingsSavedMsg{Err: err}
		}
		mutate(&cfg)
		return SettingsSavedMsg{Err: config.Save(cfg)}
	}
}

func cycleThemeCmd() tea.Cmd {
	return func() tea.Msg {
		idx := 0
		for i, th := range theme.All {
			if th.Name == theme.Active.Name {
				idx = i
				break
			}
		}
		next := theme.All[(idx+1)%len(theme.All)]
		theme.SetActive(next.Name)

		cfg, err := config.Load()
		if err != nil {
			return SettingsSavedMsg{Err: err}
		}
		cfg.Appearance.Theme = next.Name
		return SettingsSavedMsg{Err: config.Save(cfg)}
	}
}

func (a App) renderSettingsTab(cw int) string {
	t := theme.Active
	s := a.ctl.Settings()

	titleStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Bold(true).Background(t.Background)
	labelStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Background)
	valueStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Background)
	selStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.SurfaceHover).Bold(true)
	editStyle := lipgloss.NewStyle().Foreground(t.Yellow).Background(t.Background)
	dimStyle := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Background)
	okStyle := lipgloss.NewStyle().Foreground(t.GreenBright).Background(t.Background)
	errStyle := lipgloss.NewStyle().Foreground(t.Red).Background(t.Background)

	token := a.snap.TokenMasked
	if token == "" {
		token = "not set"
	}

	rows := []struct{ label, value string }{
		{"Auto-switch", onOffLabel(a.ctl.Enabled())},
		{"Switch below", cli.FormatCredits(s.BalanceThreshold) + " credits"},
		{"Target at least", cli.FormatCredits(s.MinTargetBalance) + " credits"},
		{"Folder filter", listOrAll(s.FolderIDs, "all folders")},
		{"Plan filter", listOrAll(s.SubscriptionTypes, "all plans")},
		{"Notify on switch", onOffLabel(s.NotifyOnSwitch)},
		{"Notify on low balance", onOffLabel(s.NotifyOnLowBalance)},
		{"Kiro token", token},
		{"Theme", theme.Active.Name},
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(" SETTINGS"))
	b.WriteString("\n\n")

	for i, row := range rows {
		label := fmt.Sprintf(" %-22s ", row.label)

		if a.settings.editing && i == a.settings.cursor {
			b.WriteString(editStyle.Render(label))
			b.WriteString(a.settings.input.View())
			b.WriteString("\n")
			continue
		}

		if i == a.settings.cursor {
			b.WriteString(selStyle.Render(truncStr(label+row.value, cw)))
		} else {
			b.WriteString(labelStyle.Render(label))
			b.WriteString(valueStyle.Render(truncStr(row.value, cw-24)))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	switch {
	case a.settings.saveErr != nil:
		b.WriteString(errStyle.Render(" " + a.settings.saveErr.Error()))
	case a.settings.saved:
		b.WriteString(okStyle.Render(" Saved."))
	case a.settings.editing:
		b.WriteString(dimStyle.Render(" enter save · esc cancel"))
	default:
		b.WriteString(dimStyle.Render(" j/k move · enter edit or toggle"))
	}

	return b.String()
}

func onOffLabel(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func listOrAll(list []string, empty string) string {
	if len(list) == 0 {
		return empty
	}
	return strings.Join(list, ", ")
}

func splitCommaList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func resultToErr(res model.Result) error {
	if res.Success {
		return nil
	}
	return errors.New(res.Message)
}
