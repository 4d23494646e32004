package rules

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chun1617/Kir-Manager-sub002/internal/model"
)

const (
	// MaxRules caps the active rule set.
	MaxRules = 10
	// AddDebounce is the minimum gap between successful AddRule calls.
	AddDebounce = 500 * time.Millisecond

	// defaultBoundedMax is written when an unbounded rule is toggled back
	// to a bounded range.
	defaultBoundedMax = 100
)

// Field names accepted by UpdateRule.
const (
	FieldMinBalance = "minBalance"
	FieldMaxBalance = "maxBalance"
	FieldInterval   = "interval"
)

// SaveFunc receives a copy of the full rule sequence after every committed
// mutation. It runs synchronously under the engine lock and must not call
// back into the engine.
type SaveFunc func(rules []model.RefreshRule)

// Engine is the exclusive owner of the ordered rule set. Every mutation
// validates, re-sorts descending by minimum balance, and hands the full
// set to the save callback; reads return copies, so the collection is
// never aliased outside the engine.
type Engine struct {
	mu      sync.Mutex
	rules   []model.RefreshRule
	lastAdd time.Time
	onSave  SaveFunc

	now   func() time.Time
	newID func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine clock. Tests use it to drive the
// add-debounce window.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator overrides rule id generation.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		e.newID = gen
	}
}

// NewEngine returns an engine owning a copy of initial, re-sorted into the
// maintained descending order. onSave may be nil.
func NewEngine(initial []model.RefreshRule, onSave SaveFunc, opts ...Option) *Engine {
	e := &Engine{
		rules:  append([]model.RefreshRule(nil), initial...),
		onSave: onSave,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.sortLocked()
	return e
}

// AddRule appends a rule with default bounds (min 0, max 0, interval 1)
// and a fresh id, then persists. It returns nil without mutating when
// called within AddDebounce of the last successful add, or when the set
// already holds MaxRules entries.
func (e *Engine) AddRule() *model.RefreshRule {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if !e.lastAdd.IsZero() && now.Sub(e.lastAdd) < AddDebounce {
		return nil
	}
	if len(e.rules) >= MaxRules {
		return nil
	}

	rule := model.RefreshRule{
		ID:         e.newID(),
		MinBalance: 0,
		MaxBalance: 0,
		Interval:   1,
	}
	e.rules = append(e.rules, rule)
	e.sortLocked()
	e.lastAdd = now
	e.persistLocked()

	out := rule
	return &out
}

// UpdateRule applies a single-field edit to the rule with the given id.
// Field values are normalized before writing; when a post-write check
// fails (maximum below the new minimum, or a range overlap) the normalized
// value stays written and the failure is surfaced for the caller to
// re-correct. Only success paths re-sort and persist.
func (e *Engine) UpdateRule(id, field string, value any) ValidationResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.indexLocked(id)
	if idx < 0 {
		return invalid(ErrRuleNotFound)
	}
	rule := &e.rules[idx]

	rangeEdited := false
	switch field {
	case FieldMinBalance:
		v, ok := toFieldNumber(value)
		if !ok {
			return invalid(ErrInvalidField)
		}
		rule.MinBalance = ValidateMinBalance(v)
		if !rule.Unbounded() {
			if res := ValidateMaxBalance(rule.MaxBalance, rule.MinBalance); !res.Valid {
				return res
			}
		}
		rangeEdited = true

	case FieldMaxBalance:
		if unbounded, ok := value.(bool); ok {
			if unbounded {
				rule.MaxBalance = model.MaxBalanceUnbounded
			} else {
				rule.MaxBalance = defaultBoundedMax
			}
		} else {
			v, ok := toFieldNumber(value)
			if !ok || math.IsNaN(v) {
				return invalid(ErrInvalidField)
			}
			if res := ValidateMaxBalance(v, rule.MinBalance); !res.Valid {
				return res
			}
			rule.MaxBalance = v
		}
		rangeEdited = true

	case FieldInterval:
		v, ok := toFieldNumber(value)
		if !ok {
			return invalid(ErrInvalidField)
		}
		rule.Interval = ValidateInterval(v)

	default:
		return invalid(ErrInvalidField)
	}

	if rangeEdited && CheckRangeOverlap(*rule, e.rules, rule.ID) {
		return invalid(ErrRangeOverlap)
	}

	e.sortLocked()
	e.persistLocked()
	return valid()
}

// DeleteRule removes the rule with the given id and persists. It refuses
// without mutating when only one rule remains; the active set never drops
// below one entry.
func (e *Engine) DeleteRule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.rules) <= 1 {
		return false
	}
	idx := e.indexLocked(id)
	if idx < 0 {
		return false
	}
	e.rules = append(e.rules[:idx], e.rules[idx+1:]...)
	e.sortLocked()
	e.persistLocked()
	return true
}

// CanDeleteRule reports whether deletion is currently allowed. The answer
// depends only on the rule count, never on which rule would be removed.
func (e *Engine) CanDeleteRule() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.rules) > 1
}

// Rules returns a copy of the active rule set in descending order.
func (e *Engine) Rules() []model.RefreshRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.RefreshRule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Rule returns a copy of the rule with the given id.
func (e *Engine) Rule(id string) (model.RefreshRule, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if idx := e.indexLocked(id); idx >= 0 {
		return e.rules[idx], true
	}
	return model.RefreshRule{}, false
}

// Count returns the number of active rules.
func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.rules)
}

func (e *Engine) indexLocked(id string) int {
	for i, r := range e.rules {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) sortLocked() {
	sort.SliceStable(e.rules, func(i, j int) bool {
		return e.rules[i].MinBalance > e.rules[j].MinBalance
	})
}

func (e *Engine) persistLocked() {
	if e.onSave == nil {
		return
	}
	out := make([]model.RefreshRule, len(e.rules))
	copy(out, e.rules)
	e.onSave(out)
}

// IntervalFor returns the polling interval in minutes for the rule whose
// range contains balance. Disjoint ranges mean at most one rule can match;
// ok is false when none does.
func IntervalFor(rules []model.RefreshRule, balance float64) (int, bool) {
	for _, r := range rules {
		if r.Contains(balance) {
			return r.Interval, true
		}
	}
	return 0, false
}

// FormatRule renders a rule for display, e.g. "50 - 100 → 5 min".
// An unbounded maximum renders as ∞.
func FormatRule(r model.RefreshRule) string {
	maxStr := "∞"
	if !r.Unbounded() {
		maxStr = formatBalance(r.MaxBalance)
	}
	return fmt.Sprintf("%s - %s → %d min", formatBalance(r.MinBalance), maxStr, r.Interval)
}

func formatBalance(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// toFieldNumber coerces a field edit to float64. NaN is passed through for
// the normalizers to handle; infinities are rejected because no rule field
// can hold them.
func toFieldNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		return 0, false
	}
	if math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
