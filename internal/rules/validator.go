// Package rules implements the balance-to-refresh-interval rule set:
// field validation, the owning engine, and interval selection.
package rules

import (
	"errors"
	"math"

	"github.com/chun1617/Kir-Manager-sub002/internal/model"
)

// Validation failures reported by rule mutations. Checked with errors.Is.
var (
	// ErrMinGreaterThanMax indicates a bounded rule whose minimum exceeds its maximum.
	ErrMinGreaterThanMax = errors.New("rules: minimum balance exceeds maximum")
	// ErrRangeOverlap indicates two rules whose balance ranges intersect.
	ErrRangeOverlap = errors.New("rules: balance ranges overlap")
	// ErrRuleNotFound indicates an edit addressed to an unknown rule id.
	ErrRuleNotFound = errors.New("rules: rule not found")
	// ErrInvalidField indicates an unknown field name or a value the field cannot hold.
	ErrInvalidField = errors.New("rules: invalid rule field")
)

// ValidationResult is the typed outcome of a rule mutation. Failures are
// carried in Err, never panicked.
type ValidationResult struct {
	Valid bool
	Err   error
}

func valid() ValidationResult {
	return ValidationResult{Valid: true}
}

func invalid(err error) ValidationResult {
	return ValidationResult{Err: err}
}

// ValidateMinBalance normalizes a minimum-balance edit. NaN and negative
// inputs become 0; everything else passes through. Never fails.
func ValidateMinBalance(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

// ValidateInterval normalizes an interval edit to whole minutes. NaN and
// values below 1 become 1. Never fails.
func ValidateInterval(v float64) int {
	if math.IsNaN(v) || v < 1 {
		return 1
	}
	// Clamp before converting; int(+Inf) is implementation-defined.
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}

// ValidateMaxBalance checks a maximum-balance edit against the rule's
// current minimum. -1 (unbounded) is always valid.
func ValidateMaxBalance(value, minBalance float64) ValidationResult {
	if value != model.MaxBalanceUnbounded && minBalance > value {
		return invalid(ErrMinGreaterThanMax)
	}
	return valid()
}

// CheckRangeOverlap reports whether the candidate's [min, effectiveMax)
// range intersects any rule in existing other than excludeID. An unbounded
// maximum is treated as +Inf; two half-open ranges [a,b) and [c,d) overlap
// iff a < d && b > c, so adjacent ranges do not collide.
func CheckRangeOverlap(candidate model.RefreshRule, existing []model.RefreshRule, excludeID string) bool {
	a, b := candidate.MinBalance, candidate.EffectiveMax()
	for _, r := range existing {
		if excludeID != "" && r.ID == excludeID {
			continue
		}
		c, d := r.MinBalance, r.EffectiveMax()
		if a < d && b > c {
			return true
		}
	}
	return false
}
