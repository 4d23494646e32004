package config

import (
	"testing"
	"time"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		t.Fatalf("parse date %q: %v", s, err)
	}
	return d
}

func TestLookupQuotaAt_UsesEffectiveDate(t *testing.T) {
	plan := "test-plan-windowed"
	orig, had := defaultQuotaHistory[plan]
	if had {
		defer func() { defaultQuotaHistory[plan] = orig }()
	} else {
		defer delete(defaultQuotaHistory, plan)
	}

	defaultQuotaHistory[plan] = []planQuotaVersion{
		{
			EffectiveFrom: mustDate(t, "2025-01-01"),
			Quota:         PlanQuota{MonthlyCredits: 500},
		},
		{
			EffectiveFrom: mustDate(t, "2025-07-01"),
			Quota:         PlanQuota{MonthlyCredits: 1000},
		},
	}

	aprQuota, ok := LookupQuotaAt(plan, mustDate(t, "2025-04-15"))
	if !ok {
		t.Fatal("LookupQuotaAt returned !ok for historical plan")
	}
	if aprQuota.MonthlyCredits != 500 {
		t.Fatalf("April MonthlyCredits = %.0f, want 500", aprQuota.MonthlyCredits)
	}

	augQuota, ok := LookupQuotaAt(plan, mustDate(t, "2025-08-15"))
	if !ok {
		t.Fatal("LookupQuotaAt returned !ok for historical plan in later window")
	}
	if augQuota.MonthlyCredits != 1000 {
		t.Fatalf("August MonthlyCredits = %.0f, want 1000", augQuota.MonthlyCredits)
	}
}

func TestLookupQuotaAt_UsesLatestWhenTimeZero(t *testing.T) {
	plan := "test-plan-latest"
	orig, had := defaultQuotaHistory[plan]
	if had {
		defer func() { defaultQuotaHistory[plan] = orig }()
	} else {
		defer delete(defaultQuotaHistory, plan)
	}

	defaultQuotaHistory[plan] = []planQuotaVersion{
		{
			EffectiveFrom: mustDate(t, "2025-01-01"),
			Quota:         PlanQuota{MonthlyCredits: 500},
		},
		{
			EffectiveFrom: mustDate(t, "2025-09-01"),
			Quota:         PlanQuota{MonthlyCredits: 1500},
		},
	}

	quota, ok := LookupQuotaAt(plan, time.Time{})
	if !ok {
		t.Fatal("LookupQuotaAt returned !ok for plan with quota history")
	}
	if quota.MonthlyCredits != 1500 {
		t.Fatalf("zero-time lookup MonthlyCredits = %.0f, want 1500", quota.MonthlyCredits)
	}
}

func TestNormalizePlanName(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"kiro-pro", "kiro-pro"},
		{"Pro", "kiro-pro"},
		{"pro+", "kiro-pro-plus"},
		{"PRO_PLUS", "kiro-pro-plus"},
		{"  free  ", "kiro-free"},
		{"kiro-power-20250601", "kiro-power"},
		{"mystery-tier", "mystery-tier"},
	}

	for _, tt := range tests {
		if got := NormalizePlanName(tt.raw); got != tt.want {
			t.Errorf("NormalizePlanName(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestEffectiveQuota_Override(t *testing.T) {
	credits := 750.0
	cfg := DefaultConfig()
	cfg.Plans.Overrides = map[string]PlanQuotaOverride{
		"kiro-pro": {MonthlyCredits: &credits},
	}

	q, ok := EffectiveQuota(cfg, "Pro")
	if !ok {
		t.Fatal("EffectiveQuota returned !ok for known plan")
	}
	if q.MonthlyCredits != 750 {
		t.Errorf("MonthlyCredits = %.0f, want the 750 override", q.MonthlyCredits)
	}
	if q.BonusCredits != 100 {
		t.Errorf("BonusCredits = %.0f, want 100 from the base table", q.BonusCredits)
	}

	// Plans without overrides pass through the base table.
	q, ok = EffectiveQuota(cfg, "free")
	if !ok || q.MonthlyCredits != 50 {
		t.Errorf("free quota = (%.0f, %v), want (50, true)", q.MonthlyCredits, ok)
	}
}

func TestQuotaPercent(t *testing.T) {
	cfg := DefaultConfig()

	if got := QuotaPercent(cfg, "kiro-pro", 500); got != 50 {
		t.Errorf("QuotaPercent = %.1f, want 50", got)
	}
	if got := QuotaPercent(cfg, "mystery-tier", 500); got != 0 {
		t.Errorf("QuotaPercent for unknown plan = %.1f, want 0", got)
	}
}
