package tui

import (
	"fmt"
	"strings"

	"github.com/chun1617/Kir-Manager-sub002/internal/backup"
	"github.com/chun1617/Kir-Manager-sub002/internal/cli"
	"github.com/chun1617/Kir-Manager-sub002/internal/config"
	"github.com/chun1617/Kir-Manager-sub002/internal/model"
	"github.com/chun1617/Kir-Manager-sub002/internal/tui/components"
	"github.com/chun1617/Kir-Manager-sub002/internal/tui/theme"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// backupsState holds cursor position for the backup list.
type backupsState struct {
	cursor int
}

func backupLabel(b model.Backup) string {
	if b.Name != "" {
		return b.Name
	}
	return b.ID
}

// updateBackupsKeys handles keys scoped to the Backups tab. The first
// return value reports whether the key was consumed.
func (a App) updateBackupsKeys(key string) (bool, tea.Model, tea.Cmd) {
	n := len(a.snap.Backups)

	switch key {
	case "j", "down":
		if a.backupsState.cursor < n-1 {
			a.backupsState.cursor++
		}
		return true, a, nil

	case "k", "up":
		if a.backupsState.cursor > 0 {
			a.backupsState.cursor--
		}
		return true, a, nil

	case "g":
		a.backupsState.cursor = 0
		return true, a, nil

	case "G":
		if n > 0 {
			a.backupsState.cursor = n - 1
		}
		return true, a, nil

	case "enter":
		if n == 0 || a.backupsState.cursor >= n {
			return true, a, nil
		}
		sel := a.snap.Backups[a.backupsState.cursor]
		if sel.Active {
			a.setFlash("already active", false)
			return true, a, nil
		}
		a.setFlash(fmt.Sprintf("Switching to %q...", backupLabel(sel)), false)
		return true, a, activateBackupCmd(a.kiroDir, sel)
	}

	return false, a, nil
}

// activateBackupCmd restores the selected backup's credentials in the
// background; touching the credentials file wakes a running monitor.
func activateBackupCmd(kiroDir string, sel model.Backup) tea.Cmd {
	return func() tea.Msg {
		_, err := backup.NewManager(kiroDir).Activate(sel.ID)
		return SwitchDoneMsg{Name: backupLabel(sel), Err: err}
	}
}

func (a App) renderBackupsTab(cw int) string {
	t := theme.Active

	if len(a.snap.Backups) == 0 {
		dim := lipgloss.NewStyle().Foreground(t.TextDim)
		body := dim.Render("No backups found.") + "\n" +
			dim.Render("Create one with `kirman backups add <name>`.")
		return components.ContentCard("BACKUPS", body, cw)
	}

	headerStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Bold(true).Background(t.Background)
	rowStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.Background)
	activeStyle := lipgloss.NewStyle().Foreground(t.GreenBright).Background(t.Background)
	selStyle := lipgloss.NewStyle().Foreground(t.TextPrimary).Background(t.SurfaceHover).Bold(true)
	hintStyle := lipgloss.NewStyle().Foreground(t.TextDim).Background(t.Background)

	nameW, emailW, planW := 20, 26, 10
	if a.isCompactLayout() {
		nameW, emailW = 16, 20
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("   %-*s %-*s %-*s %9s  %s",
		nameW, "NAME", emailW, "EMAIL", planW, "PLAN", "BALANCE", "LAST USED")))
	b.WriteString("\n")

	for i, bk := range a.snap.Backups {
		marker := " "
		if bk.Active {
			marker = "●"
		}

		line := fmt.Sprintf(" %s %-*s %-*s %-*s %9s  %s",
			marker,
			nameW, truncStr(backupLabel(bk), nameW),
			emailW, truncStr(bk.Email, emailW),
			planW, truncStr(config.NormalizePlanName(bk.SubscriptionType), planW),
			cli.FormatCredits(bk.Balance),
			cli.FormatRelativeTime(bk.LastUsedAt))

		style := rowStyle
		switch {
		case i == a.backupsState.cursor:
			style = selStyle
		case bk.Active:
			style = activeStyle
		}

		b.WriteString(style.Render(truncStr(line, cw)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(hintStyle.Render(" j/k move · enter activate · ● = active credential"))

	return b.String()
}
