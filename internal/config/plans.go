package config

import (
	"strings"
	"time"
)

// PlanQuota holds the monthly credit allowance for a subscription plan.
type PlanQuota struct {
	MonthlyCredits float64
	BonusCredits   float64
}

type planQuotaVersion struct {
	EffectiveFrom time.Time
	Quota         PlanQuota
}

// DefaultQuotas maps plan base names to their quota.
var DefaultQuotas = map[string]PlanQuota{
	"kiro-free": {
		MonthlyCredits: 50,
	},
	"kiro-pro": {
		MonthlyCredits: 1000, BonusCredits: 100,
	},
	"kiro-pro-plus": {
		MonthlyCredits: 2000, BonusCredits: 250,
	},
	"kiro-power": {
		MonthlyCredits: 5000, BonusCredits: 500,
	},
}

// defaultQuotaHistory stores effective-dated quotas for each plan.
// Entries must be sorted by EffectiveFrom ascending.
var defaultQuotaHistory = makeDefaultQuotaHistory(DefaultQuotas)

func makeDefaultQuotaHistory(base map[string]PlanQuota) map[string][]planQuotaVersion {
	history := make(map[string][]planQuotaVersion, len(base))
	for planName, quota := range base {
		history[planName] = []planQuotaVersion{
			{Quota: quota},
		}
	}
	return history
}

func hasQuotaPlan(plan string) bool {
	if _, ok := defaultQuotaHistory[plan]; ok {
		return true
	}
	_, ok := DefaultQuotas[plan]
	return ok
}

// planAliases maps the plan spellings seen in credential files to the
// canonical quota table names.
var planAliases = map[string]string{
	"free":     "kiro-free",
	"pro":      "kiro-pro",
	"pro+":     "kiro-pro-plus",
	"pro_plus": "kiro-pro-plus",
	"proplus":  "kiro-pro-plus",
	"power":    "kiro-power",
}

// NormalizePlanName maps raw plan identifiers onto quota table names.
// e.g., "Pro+" -> "kiro-pro-plus", "kiro-pro-20250601" -> "kiro-pro"
func NormalizePlanName(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	if alias, ok := planAliases[name]; ok {
		return alias
	}
	if hasQuotaPlan(name) {
		return name
	}

	// Strip last segment if it looks like a date (all digits)
	parts := strings.Split(name, "-")
	if len(parts) >= 2 {
		last := parts[len(parts)-1]
		if isAllDigits(last) && len(last) >= 8 {
			candidate := strings.Join(parts[:len(parts)-1], "-")
			if hasQuotaPlan(candidate) {
				return candidate
			}
		}
	}

	return name
}

func isAllDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}

// LookupQuota returns the quota for a plan, normalizing the name first.
// Returns zero quota and false if the plan is unknown.
func LookupQuota(plan string) (PlanQuota, bool) {
	return LookupQuotaAt(plan, time.Now())
}

// LookupQuotaAt returns the quota for a plan at the given timestamp.
// If at is zero, the latest known quota entry is used.
func LookupQuotaAt(plan string, at time.Time) (PlanQuota, bool) {
	normalized := NormalizePlanName(plan)
	versions, ok := defaultQuotaHistory[normalized]
	if !ok || len(versions) == 0 {
		q, fallback := DefaultQuotas[normalized]
		return q, fallback
	}

	if at.IsZero() {
		return versions[len(versions)-1].Quota, true
	}

	at = at.UTC()
	selected := versions[0].Quota
	for _, v := range versions {
		if v.EffectiveFrom.IsZero() || !at.Before(v.EffectiveFrom.UTC()) {
			selected = v.Quota
			continue
		}
		break
	}
	return selected, true
}

// EffectiveQuota returns the quota for a plan with any config override
// applied. Overrides are keyed by normalized plan name.
func EffectiveQuota(cfg Config, plan string) (PlanQuota, bool) {
	q, ok := LookupQuota(plan)
	override, has := cfg.Plans.Overrides[NormalizePlanName(plan)]
	if !has {
		return q, ok
	}
	if override.MonthlyCredits != nil {
		q.MonthlyCredits = *override.MonthlyCredits
		ok = true
	}
	return q, ok
}

// QuotaPercent returns balance as a percentage of the plan's monthly
// allowance, or 0 when the plan is unknown or has no allowance.
func QuotaPercent(cfg Config, plan string, balance float64) float64 {
	q, ok := EffectiveQuota(cfg, plan)
	if !ok || q.MonthlyCredits <= 0 {
		return 0
	}
	return balance / q.MonthlyCredits * 100
}
