package cli

import (
	"testing"
	"time"
)

func TestFormatCredits(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{72.5, "72.5"},
		{72.96, "73"},
		{1234, "1,234"},
		{1234.5, "1,234.5"},
		{-10.5, "-10.5"},
	}
	for _, tc := range cases {
		if got := FormatCredits(tc.in); got != tc.want {
			t.Errorf("FormatCredits(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		secs int64
		want string
	}{
		{0, "0s"},
		{45, "45s"},
		{125, "2m"},
		{3725, "1h 2m"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.secs); got != tc.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tc.secs, got, tc.want)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	if got := FormatNumber(999); got != "999" {
		t.Fatalf("999 = %q", got)
	}
	if got := FormatNumber(1234567); got != "1,234,567" {
		t.Fatalf("1234567 = %q", got)
	}
	if got := FormatNumber(-4200); got != "-4,200" {
		t.Fatalf("-4200 = %q", got)
	}
}

func TestFormatRelativeTime(t *testing.T) {
	if got := FormatRelativeTime(time.Time{}); got != "never" {
		t.Fatalf("zero time = %q, want never", got)
	}
	if got := FormatRelativeTime(time.Now().Add(-30 * time.Second)); got != "just now" {
		t.Fatalf("30s = %q, want just now", got)
	}
	if got := FormatRelativeTime(time.Now().Add(-5 * time.Minute)); got != "5m ago" {
		t.Fatalf("5m = %q, want 5m ago", got)
	}
	if got := FormatRelativeTime(time.Now().Add(-26 * time.Hour)); got != "1d ago" {
		t.Fatalf("26h = %q, want 1d ago", got)
	}
}

func TestMaskToken(t *testing.T) {
	if got := MaskToken("kiro_1234567890abcdef"); got != "kiro_123...cdef" {
		t.Fatalf("mask = %q", got)
	}
	if got := MaskToken("abc"); got != "****" {
		t.Fatalf("short mask = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Fatalf("truncate = %q", got)
	}
	if got := Truncate("a very long backup name", 10); got != "a very lo…" {
		t.Fatalf("truncate = %q", got)
	}
}
