// Package cli provides formatting and rendering utilities for terminal output.
package cli

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FormatCredits formats a credit balance, grouping thousands and keeping
// one decimal only when the value is fractional.
// e.g., 1234 -> "1,234", 72.5 -> "72.5"
func FormatCredits(v float64) string {
	if math.IsNaN(v) {
		return "0"
	}
	if v < 0 {
		return "-" + FormatCredits(-v)
	}
	r := math.Round(v*10) / 10
	if r == math.Trunc(r) {
		return FormatNumber(int64(r))
	}
	whole := math.Trunc(r)
	frac := int(math.Round((r - whole) * 10))
	return fmt.Sprintf("%s.%d", FormatNumber(int64(whole)), frac)
}

// FormatDuration formats seconds into a human-readable duration.
// e.g., 3725 -> "1h 2m", 125 -> "2m", 45 -> "45s"
func FormatDuration(secs int64) string {
	if secs <= 0 {
		return "0s"
	}

	hours := secs / 3600
	mins := (secs % 3600) / 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	if mins > 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%ds", secs)
}

// FormatRelativeTime renders how long ago t was, in the coarsest unit
// that still reads naturally.
func FormatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Local().Format("Jan 02")
	}
}

// FormatNumber adds comma separators to an integer.
// e.g., 1234567 -> "1,234,567"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}

	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}

// FormatPercent formats a 0-1 float as a percentage string.
func FormatPercent(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}

// MaskToken hides the middle of an access token for display.
func MaskToken(tok string) string {
	if len(tok) > 16 {
		return tok[:8] + "..." + tok[len(tok)-4:]
	}
	if len(tok) > 4 {
		return tok[:4] + "..."
	}
	return "****"
}

// Truncate shortens s to maxLen runes with an ellipsis.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-1]) + "…"
}
