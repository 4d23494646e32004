package components

import (
	"strings"
	"testing"
	"time"

	"github.com/chun1617/Kir-Manager-sub002/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

func init() {
	// Force TrueColor output so ANSI codes are generated in tests
	lipgloss.SetColorProfile(termenv.TrueColor)
	theme.SetActive("flexoki-dark")
}

func TestLayoutRowSumsToTotal(t *testing.T) {
	cases := []struct{ total, n int }{
		{80, 4}, {81, 4}, {83, 4}, {100, 3}, {7, 2},
	}
	for _, tc := range cases {
		widths := LayoutRow(tc.total, tc.n)
		if len(widths) != tc.n {
			t.Fatalf("LayoutRow(%d, %d) returned %d widths", tc.total, tc.n, len(widths))
		}
		sum := 0
		for _, w := range widths {
			sum += w
		}
		if sum != tc.total {
			t.Errorf("LayoutRow(%d, %d) sums to %d", tc.total, tc.n, sum)
		}
	}
}

func TestLayoutRowRemainderGoesFirst(t *testing.T) {
	widths := LayoutRow(10, 3)
	want := []int{4, 3, 3}
	for i := range want {
		if widths[i] != want[i] {
			t.Errorf("widths[%d] = %d, want %d", i, widths[i], want[i])
		}
	}

	if LayoutRow(10, 0) != nil {
		t.Error("LayoutRow with n=0 should return nil")
	}
}

func TestMetricCardRowWidth(t *testing.T) {
	cards := []Metric{
		{Label: "BALANCE", Value: "250", Detail: "credits"},
		{Label: "MONITOR", Value: "running"},
		{Label: "BACKUPS", Value: "4", Detail: "1 active"},
		{Label: "SWITCHES", Value: "12"},
	}

	row := MetricCardRow(cards, 80)
	if got := lipgloss.Width(row); got != 80 {
		t.Errorf("row width = %d, want 80", got)
	}
}

func TestCardRowHeightMatchesTallest(t *testing.T) {
	short := ContentCard("Short", "one line", 22)
	tall := ContentCard("Tall", "1\n2\n3\n4\n5", 22)

	joined := CardRow([]string{tall, short})
	if got, want := lipgloss.Height(joined), lipgloss.Height(tall); got != want {
		t.Errorf("joined height = %d, want %d", got, want)
	}
}

func TestCardInnerWidth(t *testing.T) {
	if got := CardInnerWidth(30); got != 26 {
		t.Errorf("CardInnerWidth(30) = %d, want 26", got)
	}
	if got := CardInnerWidth(5); got != 10 {
		t.Errorf("CardInnerWidth(5) = %d, want clamp to 10", got)
	}
}

func TestTabVisualWidth(t *testing.T) {
	for _, tab := range Tabs {
		if got := TabVisualWidth(tab, true); got != len(tab.Name)+2 {
			t.Errorf("active %q width = %d, want %d", tab.Name, got, len(tab.Name)+2)
		}

		want := len(tab.Name) + 2
		if tab.KeyPos < 0 {
			want += 3 // "[k]" suffix
		}
		if got := TabVisualWidth(tab, false); got != want {
			t.Errorf("inactive %q width = %d, want %d", tab.Name, got, want)
		}
	}
}

func TestRenderTabBarFillsWidth(t *testing.T) {
	bar := RenderTabBar(0, 100)
	if got := lipgloss.Width(bar); got != 100 {
		t.Errorf("tab bar width = %d, want 100", got)
	}
}

func TestRenderStatusBar(t *testing.T) {
	bar := RenderStatusBar(90, "running", "2m ago")
	if got := lipgloss.Width(bar); got != 90 {
		t.Errorf("status bar width = %d, want 90", got)
	}
	if !strings.Contains(bar, "[q]uit") {
		t.Error("status bar should show the quit hint")
	}
	if !strings.Contains(bar, "running") {
		t.Error("status bar should show the monitor state")
	}
}

func TestSparkline(t *testing.T) {
	vals := []float64{0, 50, 100}
	out := Sparkline(vals, theme.Active.Accent)

	if got := lipgloss.Width(out); got != len(vals) {
		t.Errorf("sparkline width = %d, want %d", got, len(vals))
	}
	if !strings.Contains(out, "█") {
		t.Error("peak value should render the full block")
	}
	if !strings.Contains(out, "▁") {
		t.Error("zero value should render the lowest block")
	}

	if Sparkline(nil, theme.Active.Accent) != "" {
		t.Error("empty input should render nothing")
	}
}

func TestSparklineAllZeros(t *testing.T) {
	out := Sparkline([]float64{0, 0, 0}, theme.Active.Accent)
	if strings.Count(out, "▁") != 3 {
		t.Errorf("all-zero input should render three base blocks, got %q", out)
	}
}

func TestProgressBar(t *testing.T) {
	out := ProgressBar(0.5, 10)
	if !strings.Contains(out, "█████") {
		t.Errorf("expected 5 filled cells in %q", out)
	}
	if !strings.Contains(out, "░░░░░") {
		t.Errorf("expected 5 empty cells in %q", out)
	}
	if !strings.Contains(out, "50%") {
		t.Errorf("expected percentage in %q", out)
	}
}

func TestFormatCountdown(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{26 * time.Hour, "1d 2h"},
		{90 * time.Minute, "1h 30m"},
		{5 * time.Minute, "5m"},
	}
	for _, tc := range cases {
		if got := formatCountdown(tc.d); got != tc.want {
			t.Errorf("formatCountdown(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestQuotaBarShowsPercent(t *testing.T) {
	out := QuotaBar("used", 0.5, time.Time{}, 5, 10)
	if !strings.Contains(out, "50%") {
		t.Errorf("expected percentage in %q", out)
	}

	past := QuotaBar("used", 0.5, time.Now().Add(-time.Hour), 5, 10)
	if !strings.Contains(past, "now") {
		t.Errorf("past reset should show now, got %q", past)
	}
}

func TestColorForPct(t *testing.T) {
	th := theme.Active
	cases := []struct {
		pct  float64
		want string
	}{
		{0.95, string(th.Red)},
		{0.75, string(th.Orange)},
		{0.55, string(th.Yellow)},
		{0.10, string(th.Green)},
	}
	for _, tc := range cases {
		if got := ColorForPct(tc.pct); got != tc.want {
			t.Errorf("ColorForPct(%.2f) = %s, want %s", tc.pct, got, tc.want)
		}
	}
}
