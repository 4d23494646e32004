// Package tui provides the interactive Bubble Tea dashboard for kirman.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chun1617/Kir-Manager-sub002/internal/autoswitch"
	"github.com/chun1617/Kir-Manager-sub002/internal/backup"
	"github.com/chun1617/Kir-Manager-sub002/internal/cli"
	"github.com/chun1617/Kir-Manager-sub002/internal/config"
	"github.com/chun1617/Kir-Manager-sub002/internal/kiro"
	"github.com/chun1617/Kir-Manager-sub002/internal/model"
	"github.com/chun1617/Kir-Manager-sub002/internal/monitor"
	"github.com/chun1617/Kir-Manager-sub002/internal/store"
	"github.com/chun1617/Kir-Manager-sub002/internal/tui/components"
	"github.com/chun1617/Kir-Manager-sub002/internal/tui/theme"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// DataLoadedMsg is sent when the initial load finishes.
type DataLoadedMsg struct {
	Ctl      *autoswitch.Controller
	Snapshot snapshot
	LoadTime time.Duration
}

// RefreshDataMsg is sent when a background data refresh completes.
type RefreshDataMsg struct {
	Snapshot snapshot
	LoadTime time.Duration
}

// StatusTickMsg signals that the monitor status was re-fetched.
type StatusTickMsg struct{}

// ToggleDoneMsg reports the outcome of an auto-switch toggle.
type ToggleDoneMsg struct {
	Enabled bool
	Result  model.Result
}

// SwitchDoneMsg reports the outcome of activating a backup.
type SwitchDoneMsg struct {
	Name string
	Err  error
}

// RuleChangeMsg reports the outcome of a rule mutation.
type RuleChangeMsg struct {
	Flash string
	Err   error
}

// SettingsSavedMsg reports the outcome of a settings tab save.
type SettingsSavedMsg struct {
	Err error
}

// snapshot is everything the dashboard reads besides controller state.
type snapshot struct {
	Backups  []model.Backup
	Account  *kiro.AccountData
	Switches []model.SwitchEvent
	Samples  []model.BalanceSample

	// TokenMasked is the configured token in display form, "" when unset.
	TokenMasked string
}

// App is the root Bubble Tea model.
type App struct {
	ctl *autoswitch.Controller

	// Data
	snap     snapshot
	loaded   bool
	loadTime time.Duration

	lastRefresh time.Time
	refreshing  bool

	// UI state
	width     int
	height    int
	activeTab int
	showHelp  bool

	// Transient action feedback
	flash    string
	flashErr bool

	// Per-tab state
	backupsState backupsState
	rulesState   rulesState
	settings     settingsState

	// First-run setup (huh form)
	setupForm *huh.Form
	setupVals setupValues
	needSetup bool

	// Loading
	spinner spinner.Model
	ticks   int

	kiroDir     string
	monitorAddr string
	historyPath string
}

// Tab indices follow the order of components.Tabs.
const (
	tabOverview = iota
	tabBackups
	tabRules
	tabSettings
)

const (
	minTerminalWidth = 70
	compactWidth     = 110
	maxContentWidth  = 160

	minContentHeight = 5

	statusEveryTicks  = 8   // status re-fetch cadence (ticks are 250ms)
	refreshEveryTicks = 120 // full data refresh cadence
)

// NewApp creates a new TUI app model.
func NewApp(kiroDir, monitorAddr, historyPath string) App {
	needSetup := !config.Exists()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.Active.Accent).Background(theme.Active.Surface)

	if cfg, err := config.Load(); err == nil {
		theme.SetActive(cfg.Appearance.Theme)
	}

	return App{
		kiroDir:     kiroDir,
		monitorAddr: monitorAddr,
		historyPath: historyPath,
		needSetup:   needSetup,
		spinner:     sp,
	}
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	return tea.Batch(
		tea.EnableMouseCellMotion,
		loadDataCmd(a.kiroDir, a.monitorAddr, a.historyPath),
		a.spinner.Tick,
		tickCmd(),
	)
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		if a.setupForm != nil {
			a.setupForm = a.setupForm.WithWidth(msg.Width).WithHeight(msg.Height)
		}
		return a, nil

	case tea.MouseMsg:
		if !a.loaded || a.showHelp || (a.needSetup && a.setupForm != nil) {
			return a, nil
		}

		switch msg.Button {
		case tea.MouseButtonWheelUp:
			if a.activeTab == tabBackups && a.backupsState.cursor > 0 {
				a.backupsState.cursor--
			}
			if a.activeTab == tabRules && a.rulesState.cursor > 0 {
				a.rulesState.cursor--
			}
			return a, nil

		case tea.MouseButtonWheelDown:
			if a.activeTab == tabBackups && a.backupsState.cursor < len(a.snap.Backups)-1 {
				a.backupsState.cursor++
			}
			if a.activeTab == tabRules && a.rulesState.cursor < len(a.ctl.Rules())-1 {
				a.rulesState.cursor++
			}
			return a, nil

		case tea.MouseButtonLeft:
			// Tab bar plus the context row under it
			if msg.Y <= 1 {
				if tab := a.tabAtX(msg.X); tab >= 0 && tab < len(components.Tabs) {
					a.activeTab = tab
				}
			}
			return a, nil
		}
		return a, nil

	case tea.KeyMsg:
		key := msg.String()

		if key == "ctrl+c" {
			return a, tea.Quit
		}

		if !a.loaded {
			return a, nil
		}

		// First-run setup wizard intercepts all keys
		if a.needSetup && a.setupForm != nil {
			return a.updateSetupForm(msg)
		}

		// Text input modes intercept all keys
		if a.activeTab == tabSettings && a.settings.editing {
			return a.updateSettingsInput(msg)
		}
		if a.activeTab == tabRules && a.rulesState.editing {
			return a.updateRulesInput(msg)
		}

		if key == "?" {
			a.showHelp = !a.showHelp
			return a, nil
		}
		if a.showHelp {
			a.showHelp = false
			return a, nil
		}

		a.flash = ""

		// Per-tab keybindings
		switch a.activeTab {
		case tabBackups:
			if handled, next, cmd := a.updateBackupsKeys(key); handled {
				return next, cmd
			}
		case tabRules:
			if handled, next, cmd := a.updateRulesKeys(key); handled {
				return next, cmd
			}
		case tabSettings:
			if handled, next, cmd := a.updateSettingsKeys(key); handled {
				return next, cmd
			}
		}

		switch key {
		case "q":
			return a, tea.Quit
		case "R":
			if !a.refreshing {
				a.refreshing = true
				return a, refreshDataCmd(a.kiroDir, a.historyPath)
			}
			return a, nil
		case "t":
			// Toggle auto-switch from any tab. Re-presses while a toggle
			// is in flight surface the controller's refusal as a flash.
			return a, toggleCmd(a.ctl, !a.ctl.Enabled())
		case "left":
			a.activeTab = (a.activeTab - 1 + len(components.Tabs)) % len(components.Tabs)
			return a, nil
		case "right":
			a.activeTab = (a.activeTab + 1) % len(components.Tabs)
			return a, nil
		}

		if len(key) == 1 {
			if idx := components.TabIdxByKey(rune(key[0])); idx >= 0 {
				a.activeTab = idx
			}
		}
		return a, nil

	case DataLoadedMsg:
		a.ctl = msg.Ctl
		a.snap = msg.Snapshot
		a.loaded = true
		a.loadTime = msg.LoadTime
		a.lastRefresh = time.Now()

		if a.needSetup {
			a.setupForm = newSetupForm(len(a.snap.Backups), a.kiroDir, &a.setupVals)
			if a.width > 0 {
				a.setupForm = a.setupForm.WithWidth(a.width).WithHeight(a.height)
			}
			return a, a.setupForm.Init()
		}
		return a, nil

	case RefreshDataMsg:
		a.refreshing = false
		a.lastRefresh = time.Now()
		a.snap = msg.Snapshot
		a.loadTime = msg.LoadTime
		a.clampCursors()
		return a, nil

	case StatusTickMsg:
		return a, nil

	case ToggleDoneMsg:
		if msg.Result.Success {
			if msg.Enabled {
				a.setFlash("Auto-switch enabled", false)
			} else {
				a.setFlash("Auto-switch disabled", false)
			}
		} else {
			a.setFlash(msg.Result.Message, true)
		}
		return a, nil

	case SwitchDoneMsg:
		if msg.Err != nil {
			a.setFlash(fmt.Sprintf("switch failed: %v", msg.Err), true)
			return a, nil
		}
		a.setFlash(fmt.Sprintf("Switched to %q", msg.Name), false)
		a.refreshing = true
		return a, refreshDataCmd(a.kiroDir, a.historyPath)

	case RuleChangeMsg:
		if msg.Err != nil {
			a.setFlash(msg.Err.Error(), true)
		} else if msg.Flash != "" {
			a.setFlash(msg.Flash, false)
		}
		return a, nil

	case SettingsSavedMsg:
		a.settings.saveErr = msg.Err
		a.settings.saved = msg.Err == nil
		return a, nil

	case spinner.TickMsg:
		if !a.loaded {
			var cmd tea.Cmd
			a.spinner, cmd = a.spinner.Update(msg)
			return a, cmd
		}
		return a, nil

	case tickMsg:
		a.ticks++
		cmds := []tea.Cmd{tickCmd()}

		if a.loaded && a.ticks%statusEveryTicks == 0 {
			cmds = append(cmds, statusCmd(a.ctl))
		}
		if a.loaded && !a.refreshing && a.ticks%refreshEveryTicks == 0 {
			a.refreshing = true
			cmds = append(cmds, refreshDataCmd(a.kiroDir, a.historyPath))
		}
		return a, tea.Batch(cmds...)
	}

	// Forward unhandled messages to the setup form (cursor blinks, etc.)
	if a.needSetup && a.setupForm != nil {
		return a.updateSetupForm(msg)
	}

	return a, nil
}

func (a *App) setFlash(msg string, isErr bool) {
	a.flash = msg
	a.flashErr = isErr
}

func (a *App) clampCursors() {
	if a.backupsState.cursor >= len(a.snap.Backups) {
		a.backupsState.cursor = len(a.snap.Backups) - 1
	}
	if a.backupsState.cursor < 0 {
		a.backupsState.cursor = 0
	}
	if n := len(a.ctl.Rules()); a.rulesState.cursor >= n {
		a.rulesState.cursor = n - 1
	}
	if a.rulesState.cursor < 0 {
		a.rulesState.cursor = 0
	}
}

func (a App) updateSetupForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := a.setupForm.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		a.setupForm = f
	}

	if a.setupForm.State == huh.StateCompleted {
		a.saveSetupConfig()
		a.needSetup = false
		a.setupForm = nil
		a.refreshing = true
		return a, refreshDataCmd(a.kiroDir, a.historyPath)
	}

	if a.setupForm.State == huh.StateAborted {
		a.needSetup = false
		a.setupForm = nil
		return a, nil
	}

	return a, cmd
}

func (a App) contentWidth() int {
	cw := a.width
	if cw > maxContentWidth {
		cw = maxContentWidth
	}
	return cw
}

func (a App) isCompactLayout() bool {
	return a.contentWidth() < compactWidth
}

// View implements tea.Model.
func (a App) View() string {
	if a.width == 0 {
		return ""
	}

	if a.width < minTerminalWidth {
		return a.viewTooNarrow()
	}

	if !a.loaded {
		return a.viewLoading()
	}

	if a.needSetup && a.setupForm != nil {
		return a.setupForm.View()
	}

	if a.showHelp {
		return a.viewHelp()
	}

	return a.viewMain()
}

func (a App) viewTooNarrow() string {
	h := a.height
	if h < 5 {
		h = 5
	}

	msg := fmt.Sprintf(
		"\n  Terminal too narrow (%d cols)\n\n  kirman needs at least %d columns.\n",
		a.width,
		minTerminalWidth,
	)

	return padHeight(truncateHeight(msg, h), h)
}

func (a App) viewLoading() string {
	t := theme.Active

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.BorderAccent).
		Background(t.Surface).
		Padding(2, 4)

	logoStyle := lipgloss.NewStyle().
		Foreground(t.AccentBright).
		Background(t.Surface).
		Bold(true)

	subtitleStyle := lipgloss.NewStyle().
		Foreground(t.TextMuted).
		Background(t.Surface)

	spinnerStyle := lipgloss.NewStyle().
		Foreground(t.Accent).
		Background(t.Surface)

	var b strings.Builder
	b.WriteString(logoStyle.Render("◈ kirman"))
	b.WriteString(subtitleStyle.Render(" · Kiro Credential Manager"))
	b.WriteString("\n\n")
	b.WriteString(spinnerStyle.Render(a.spinner.View()))
	b.WriteString(subtitleStyle.Render(" Scanning backups..."))

	card := cardStyle.Render(b.String())

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, card,
		lipgloss.WithWhitespaceBackground(t.Background))
}

func (a App) viewHelp() string {
	t := theme.Active

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.BorderAccent).
		Background(t.Surface).
		Padding(1, 3)

	titleStyle := lipgloss.NewStyle().
		Foreground(t.AccentBright).
		Background(t.Surface).
		Bold(true)

	sectionStyle := lipgloss.NewStyle().
		Foreground(t.Accent).
		Background(t.Surface).
		Bold(true)

	keyStyle := lipgloss.NewStyle().
		Foreground(t.Cyan).
		Background(t.Surface).
		Bold(true)

	descStyle := lipgloss.NewStyle().
		Foreground(t.TextMuted).
		Background(t.Surface)

	dimStyle := lipgloss.NewStyle().
		Foreground(t.TextDim).
		Background(t.Surface)

	var b strings.Builder
	b.WriteString(titleStyle.Render("◈ Keyboard Shortcuts"))
	b.WriteString("\n\n")

	b.WriteString(sectionStyle.Render("Navigation"))
	b.WriteString("\n")
	navBindings := []struct{ key, desc string }{
		{"o b r x", "Jump to tab"},
		{"← →", "Previous / Next tab"},
		{"j k", "Navigate lists"},
		{"g G", "First / Last entry"},
	}
	for _, bind := range navBindings {
		fmt.Fprintf(&b, "  %s  %s\n",
			keyStyle.Render(fmt.Sprintf("%-10s", bind.key)),
			descStyle.Render(bind.desc))
	}

	b.WriteString("\n")
	b.WriteString(sectionStyle.Render("Actions"))
	b.WriteString("\n")
	actionBindings := []struct{ key, desc string }{
		{"t", "Toggle auto-switch"},
		{"Enter", "Activate / Edit"},
		{"a", "Add rule (Rules tab)"},
		{"d", "Delete rule (Rules tab)"},
		{"m M i", "Edit rule min / max / interval"},
		{"Esc", "Back / Cancel"},
		{"R", "Refresh data"},
		{"?", "Toggle help"},
		{"q", "Quit"},
	}
	for _, bind := range actionBindings {
		fmt.Fprintf(&b, "  %s  %s\n",
			keyStyle.Render(fmt.Sprintf("%-10s", bind.key)),
			descStyle.Render(bind.desc))
	}

	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Press any key to close"))

	card := cardStyle.Render(b.String())

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, card,
		lipgloss.WithWhitespaceBackground(t.Background))
}

func (a App) viewMain() string {
	t := theme.Active
	w := a.width
	cw := a.contentWidth()
	h := a.height

	header := components.RenderTabBar(a.activeTab, w) + "\n" + a.renderContextRow(w)

	proj := autoswitch.Project(a.ctl.Status())
	dataAge := cli.FormatRelativeTime(a.lastRefresh)
	if a.refreshing {
		dataAge = "refreshing..."
	}
	statusBar := components.RenderStatusBar(w, proj.Label, dataAge)

	headerH := lipgloss.Height(header)
	statusH := lipgloss.Height(statusBar)
	contentH := h - headerH - statusH
	if contentH < minContentHeight {
		contentH = minContentHeight
	}

	var content string
	switch a.activeTab {
	case tabOverview:
		content = a.renderOverviewTab(cw)
	case tabBackups:
		content = a.renderBackupsTab(cw)
	case tabRules:
		content = a.renderRulesTab(cw)
	case tabSettings:
		content = a.renderSettingsTab(cw)
	}

	if a.flash != "" {
		flashStyle := lipgloss.NewStyle().Foreground(t.GreenBright).Background(t.Background)
		if a.flashErr {
			flashStyle = lipgloss.NewStyle().Foreground(t.Red).Background(t.Background)
		}
		content = flashStyle.Render(" "+a.flash) + "\n" + content
	}

	content = padHeight(truncateHeight(content, contentH), contentH)
	content = fillLinesWithBackground(content, cw, t.Background)
	content = lipgloss.Place(w, contentH, lipgloss.Center, lipgloss.Top, content,
		lipgloss.WithWhitespaceBackground(t.Background))

	output := lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)

	return lipgloss.Place(w, h, lipgloss.Left, lipgloss.Top, output,
		lipgloss.WithWhitespaceBackground(t.Background))
}

// renderContextRow shows the live account under the tab bar.
func (a App) renderContextRow(w int) string {
	t := theme.Active

	dimStyle := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Surface)
	accentStyle := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Surface).Bold(true)

	var row string
	switch {
	case a.snap.Account == nil:
		row = dimStyle.Render(" no live credential")
	case a.snap.Account.Error != nil && a.snap.Account.Balance == nil:
		row = dimStyle.Render(" account fetch failed")
	default:
		row = dimStyle.Render(" ") + accentStyle.Render(a.snap.Account.Account.Email)
		if a.snap.Account.Balance != nil {
			row += dimStyle.Render(" │ ") +
				accentStyle.Render(cli.FormatCredits(a.snap.Account.Balance.Credits)+" credits")
		}
		if plan := config.NormalizePlanName(a.snap.Account.Account.SubscriptionType); plan != "" {
			row += dimStyle.Render(" │ ") + dimStyle.Render(plan)
		}
	}

	rowStyle := lipgloss.NewStyle().Background(t.Surface).Width(w)
	return rowStyle.Render(row)
}

// ─── Mouse Support ──────────────────────────────────────────────

// tabAtX returns the tab index at the given X coordinate, or -1 if none.
// Hitboxes are derived from the same width rules used by RenderTabBar.
func (a App) tabAtX(x int) int {
	pos := 0
	for i, tab := range components.Tabs {
		tabW := components.TabVisualWidth(tab, i == a.activeTab)

		if x >= pos && x < pos+tabW {
			return i
		}
		pos += tabW

		// Separator is one column between tabs.
		if i < len(components.Tabs)-1 {
			pos++
		}
	}
	return -1
}

// ─── Commands ───────────────────────────────────────────────────

type tickMsg struct{}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

// collectSnapshot gathers everything the dashboard shows: stored backups,
// the live account, and recent history.
func collectSnapshot(ctx context.Context, kiroDir, historyPath string) snapshot {
	var snap snapshot

	mgr := backup.NewManager(kiroDir)
	snap.Backups, _ = mgr.Scan()

	if cfg, err := config.Load(); err == nil {
		token := config.GetKiroToken(cfg)
		if token != "" {
			snap.TokenMasked = cli.MaskToken(token)
		}
		if token == "" {
			if creds, cErr := mgr.ActiveCredentials(); cErr == nil {
				token = creds.AccessToken
			}
		}
		if token != "" {
			var opts []kiro.Option
			if cfg.Kiro.BaseURL != "" {
				opts = append(opts, kiro.WithBaseURL(cfg.Kiro.BaseURL))
			}
			if client := kiro.NewClient(token, opts...); client != nil {
				snap.Account = client.FetchAll(ctx)
			}
		}
	}

	if h, err := store.Open(historyPath); err == nil {
		snap.Switches, _ = h.RecentSwitches(5)
		snap.Samples, _ = h.SamplesSince("", time.Now().AddDate(0, 0, -7))
		_ = h.Close()
	}

	return snap
}

// loadDataCmd performs the initial load: build the controller against the
// daemon (or the settings file when it is down), then collect a snapshot.
func loadDataCmd(kiroDir, monitorAddr, historyPath string) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		remote := monitor.NewRemote(ctx, monitorAddr, config.SettingsPath())
		ctl := autoswitch.NewController(remote)
		if err := ctl.Load(ctx); err != nil {
			// Continue with empty settings; the dashboard still renders.
			ctl.RefreshStatus(ctx)
		}

		return DataLoadedMsg{
			Ctl:      ctl,
			Snapshot: collectSnapshot(ctx, kiroDir, historyPath),
			LoadTime: time.Since(start),
		}
	}
}

// refreshDataCmd re-collects the snapshot in the background.
func refreshDataCmd(kiroDir, historyPath string) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()

		return RefreshDataMsg{
			Snapshot: collectSnapshot(ctx, kiroDir, historyPath),
			LoadTime: time.Since(start),
		}
	}
}

func statusCmd(ctl *autoswitch.Controller) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ctl.RefreshStatus(ctx)
		return StatusTickMsg{}
	}
}

func toggleCmd(ctl *autoswitch.Controller, enabled bool) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return ToggleDoneMsg{Enabled: enabled, Result: ctl.HandleAutoSwitchToggle(ctx, enabled)}
	}
}

// ─── Helpers ────────────────────────────────────────────────────

func truncateHeight(s string, limit int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= limit {
		return s
	}
	return strings.Join(lines[:limit], "\n")
}

func padHeight(s string, h int) string {
	lines := strings.Split(s, "\n")
	if len(lines) >= h {
		return s
	}
	return s + strings.Repeat("\n", h-len(lines))
}

// fillLinesWithBackground pads each line to width w with background color
// so gaps between cards and blank lines keep the theme background.
func fillLinesWithBackground(s string, w int, bg lipgloss.Color) string {
	lines := strings.Split(s, "\n")

	var result strings.Builder
	for i, line := range lines {
		placed := lipgloss.PlaceHorizontal(w, lipgloss.Left, line,
			lipgloss.WithWhitespaceBackground(bg))
		result.WriteString(placed)
		if i < len(lines)-1 {
			result.WriteString("\n")
		}
	}
	return result.String()
}

func truncStr(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
