// Package model defines domain types for kirman backups, refresh rules, and monitor state.
package model

import "math"

// MaxBalanceUnbounded marks a refresh rule with no upper balance bound.
const MaxBalanceUnbounded = -1

// RefreshRule maps a balance range to a polling interval in minutes.
// The range is half-open [MinBalance, MaxBalance); MaxBalance equal to
// MaxBalanceUnbounded covers every balance above MinBalance.
type RefreshRule struct {
	ID         string  `json:"id"`
	MinBalance float64 `json:"min_balance"`
	MaxBalance float64 `json:"max_balance"`
	Interval   int     `json:"interval"`
}

// Unbounded reports whether the rule has no upper balance bound.
func (r RefreshRule) Unbounded() bool {
	return r.MaxBalance == MaxBalanceUnbounded
}

// EffectiveMax returns the exclusive upper bound, +Inf for unbounded rules.
func (r RefreshRule) EffectiveMax() float64 {
	if r.Unbounded() {
		return math.Inf(1)
	}
	return r.MaxBalance
}

// Contains reports whether balance falls inside [MinBalance, EffectiveMax).
func (r RefreshRule) Contains(balance float64) bool {
	return balance >= r.MinBalance && balance < r.EffectiveMax()
}
