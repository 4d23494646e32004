package rules

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/chun1617/Kir-Manager-sub002/internal/model"
)

// saveRecorder captures every persistence callback invocation.
type saveRecorder struct {
	calls [][]model.RefreshRule
}

func (s *saveRecorder) save(rules []model.RefreshRule) {
	s.calls = append(s.calls, rules)
}

// fakeClock lets tests drive the add-debounce window deterministically.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("rule-%d", n)
	}
}

func newTestEngine(t *testing.T, initial []model.RefreshRule) (*Engine, *saveRecorder, *fakeClock) {
	t.Helper()
	rec := &saveRecorder{}
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	e := NewEngine(initial, rec.save, WithClock(clock.Now), WithIDGenerator(seqIDs()))
	return e, rec, clock
}

// assertOrderedDisjoint checks the standing invariant: descending by
// minimum balance, with no two ranges overlapping.
func assertOrderedDisjoint(t *testing.T, rules []model.RefreshRule) {
	t.Helper()
	for i := 1; i < len(rules); i++ {
		if rules[i-1].MinBalance < rules[i].MinBalance {
			t.Fatalf("rules not descending at %d: %v before %v", i, rules[i-1].MinBalance, rules[i].MinBalance)
		}
	}
	for i, r := range rules {
		rest := append([]model.RefreshRule(nil), rules[:i]...)
		rest = append(rest, rules[i+1:]...)
		if CheckRangeOverlap(r, rest, "") {
			t.Fatalf("rule %s overlaps another rule", r.ID)
		}
	}
}

func TestAddRule_Defaults(t *testing.T) {
	e, rec, _ := newTestEngine(t, nil)

	r := e.AddRule()
	if r == nil {
		t.Fatal("AddRule returned nil on empty engine")
	}
	if r.ID != "rule-1" {
		t.Errorf("ID = %q, want rule-1", r.ID)
	}
	if r.MinBalance != 0 || r.MaxBalance != 0 || r.Interval != 1 {
		t.Errorf("defaults = {%v, %v, %d}, want {0, 0, 1}", r.MinBalance, r.MaxBalance, r.Interval)
	}
	if e.Count() != 1 {
		t.Errorf("Count = %d, want 1", e.Count())
	}
	if len(rec.calls) != 1 {
		t.Fatalf("save calls = %d, want 1", len(rec.calls))
	}
	if len(rec.calls[0]) != 1 {
		t.Errorf("persisted %d rules, want 1", len(rec.calls[0]))
	}
}

func TestAddRule_DebounceWindow(t *testing.T) {
	e, rec, clock := newTestEngine(t, nil)

	if e.AddRule() == nil {
		t.Fatal("first add refused")
	}

	// Second add inside the window: refused, no mutation, no save.
	clock.Advance(499 * time.Millisecond)
	if r := e.AddRule(); r != nil {
		t.Fatalf("add inside debounce window returned %v, want nil", r)
	}
	if e.Count() != 1 {
		t.Errorf("Count = %d, want 1 after refused add", e.Count())
	}
	if len(rec.calls) != 1 {
		t.Errorf("save calls = %d, want 1 after refused add", len(rec.calls))
	}

	// At exactly the window boundary the add goes through again.
	clock.Advance(1 * time.Millisecond)
	if e.AddRule() == nil {
		t.Fatal("add at debounce boundary refused")
	}
	if e.Count() != 2 {
		t.Errorf("Count = %d, want 2", e.Count())
	}
}

func TestAddRule_CapAtMaxRules(t *testing.T) {
	initial := make([]model.RefreshRule, 0, MaxRules)
	for i := 0; i < MaxRules; i++ {
		initial = append(initial, rule(fmt.Sprintf("seed-%d", i), float64(i*10), float64((i+1)*10)))
	}
	e, rec, _ := newTestEngine(t, initial)

	if r := e.AddRule(); r != nil {
		t.Fatalf("AddRule at cap returned %v, want nil", r)
	}
	if e.Count() != MaxRules {
		t.Errorf("Count = %d, want %d", e.Count(), MaxRules)
	}
	if len(rec.calls) != 0 {
		t.Errorf("save calls = %d, want 0", len(rec.calls))
	}
}

func TestDeleteRule_RefusesLastRule(t *testing.T) {
	e, rec, _ := newTestEngine(t, []model.RefreshRule{rule("only", 0, model.MaxBalanceUnbounded)})

	if e.DeleteRule("only") {
		t.Fatal("DeleteRule removed the last remaining rule")
	}
	if e.Count() != 1 {
		t.Errorf("Count = %d, want 1", e.Count())
	}
	if len(rec.calls) != 0 {
		t.Errorf("save calls = %d, want 0", len(rec.calls))
	}
	if e.CanDeleteRule() {
		t.Error("CanDeleteRule = true with a single rule")
	}
}

func TestDeleteRule_RemovesAndPersists(t *testing.T) {
	e, rec, _ := newTestEngine(t, []model.RefreshRule{
		rule("low", 0, 50),
		rule("high", 50, model.MaxBalanceUnbounded),
	})

	if !e.CanDeleteRule() {
		t.Fatal("CanDeleteRule = false with two rules")
	}
	if !e.DeleteRule("low") {
		t.Fatal("DeleteRule failed")
	}
	if e.Count() != 1 {
		t.Errorf("Count = %d, want 1", e.Count())
	}
	if _, ok := e.Rule("low"); ok {
		t.Error("deleted rule still present")
	}
	if len(rec.calls) != 1 {
		t.Fatalf("save calls = %d, want 1", len(rec.calls))
	}
	if len(rec.calls[0]) != 1 || rec.calls[0][0].ID != "high" {
		t.Errorf("persisted set = %v, want just high", rec.calls[0])
	}
}

func TestDeleteRule_UnknownID(t *testing.T) {
	e, rec, _ := newTestEngine(t, []model.RefreshRule{
		rule("a", 0, 50),
		rule("b", 50, 100),
	})

	if e.DeleteRule("missing") {
		t.Fatal("DeleteRule returned true for unknown id")
	}
	if e.Count() != 2 {
		t.Errorf("Count = %d, want 2", e.Count())
	}
	if len(rec.calls) != 0 {
		t.Errorf("save calls = %d, want 0", len(rec.calls))
	}
}

func TestUpdateRule_NotFound(t *testing.T) {
	e, _, _ := newTestEngine(t, []model.RefreshRule{rule("a", 0, 50)})

	res := e.UpdateRule("missing", FieldMinBalance, 10.0)
	if res.Valid {
		t.Fatal("update of unknown rule succeeded")
	}
	if !errors.Is(res.Err, ErrRuleNotFound) {
		t.Errorf("err = %v, want ErrRuleNotFound", res.Err)
	}
}

func TestUpdateRule_InvalidField(t *testing.T) {
	e, rec, _ := newTestEngine(t, []model.RefreshRule{rule("a", 0, 50)})

	res := e.UpdateRule("a", "color", 10.0)
	if res.Valid || !errors.Is(res.Err, ErrInvalidField) {
		t.Errorf("unknown field: res = %+v, want ErrInvalidField", res)
	}

	res = e.UpdateRule("a", FieldMinBalance, "ten")
	if res.Valid || !errors.Is(res.Err, ErrInvalidField) {
		t.Errorf("string value: res = %+v, want ErrInvalidField", res)
	}
	if len(rec.calls) != 0 {
		t.Errorf("save calls = %d, want 0", len(rec.calls))
	}
}

func TestUpdateRule_MinBalanceNormalizes(t *testing.T) {
	e, rec, _ := newTestEngine(t, []model.RefreshRule{rule("a", 10, 50)})

	res := e.UpdateRule("a", FieldMinBalance, -5.0)
	if !res.Valid {
		t.Fatalf("update failed: %v", res.Err)
	}
	got, _ := e.Rule("a")
	if got.MinBalance != 0 {
		t.Errorf("MinBalance = %v, want 0 (normalized)", got.MinBalance)
	}
	if len(rec.calls) != 1 {
		t.Errorf("save calls = %d, want 1", len(rec.calls))
	}
}

func TestUpdateRule_MinAboveBoundedMax_NoRollback(t *testing.T) {
	e, rec, _ := newTestEngine(t, []model.RefreshRule{rule("a", 0, 50)})

	res := e.UpdateRule("a", FieldMinBalance, 60.0)
	if res.Valid {
		t.Fatal("min above bounded max should fail")
	}
	if !errors.Is(res.Err, ErrMinGreaterThanMax) {
		t.Errorf("err = %v, want ErrMinGreaterThanMax", res.Err)
	}

	// The normalized minimum stays written; the failure is surfaced for
	// the caller to re-correct, not rolled back.
	got, _ := e.Rule("a")
	if got.MinBalance != 60 {
		t.Errorf("MinBalance = %v, want 60 (no rollback)", got.MinBalance)
	}
	if len(rec.calls) != 0 {
		t.Errorf("save calls = %d, want 0 (failed update must not persist)", len(rec.calls))
	}
}

func TestUpdateRule_MinUnderUnboundedMaxSkipsMaxCheck(t *testing.T) {
	e, _, _ := newTestEngine(t, []model.RefreshRule{rule("a", 0, model.MaxBalanceUnbounded)})

	res := e.UpdateRule("a", FieldMinBalance, 5000.0)
	if !res.Valid {
		t.Fatalf("unbounded rule rejected large min: %v", res.Err)
	}
	got, _ := e.Rule("a")
	if got.MinBalance != 5000 {
		t.Errorf("MinBalance = %v, want 5000", got.MinBalance)
	}
}

func TestUpdateRule_OverlapNoRollback(t *testing.T) {
	e, rec, _ := newTestEngine(t, []model.RefreshRule{
		rule("low", 0, 50),
		rule("high", 50, 100),
	})

	res := e.UpdateRule("high", FieldMinBalance, 40.0)
	if res.Valid {
		t.Fatal("overlapping update should fail")
	}
	if !errors.Is(res.Err, ErrRangeOverlap) {
		t.Errorf("err = %v, want ErrRangeOverlap", res.Err)
	}

	got, _ := e.Rule("high")
	if got.MinBalance != 40 {
		t.Errorf("MinBalance = %v, want 40 (no rollback)", got.MinBalance)
	}
	if len(rec.calls) != 0 {
		t.Errorf("save calls = %d, want 0", len(rec.calls))
	}
}

func TestUpdateRule_ShiftMinWithinGap(t *testing.T) {
	// Shifting the middle rule's minimum from 50 to 60 opens a gap below
	// it but collides with nothing: 60 < 100 keeps it clear of the
	// unbounded top rule.
	e, rec, _ := newTestEngine(t, []model.RefreshRule{
		{ID: "r1", MinBalance: 0, MaxBalance: 50, Interval: 1},
		{ID: "r2", MinBalance: 50, MaxBalance: 100, Interval: 2},
		{ID: "r3", MinBalance: 100, MaxBalance: model.MaxBalanceUnbounded, Interval: 5},
	})

	res := e.UpdateRule("r2", FieldMinBalance, 60.0)
	if !res.Valid {
		t.Fatalf("update failed: %v", res.Err)
	}

	rules := e.Rules()
	assertOrderedDisjoint(t, rules)
	wantOrder := []string{"r3", "r2", "r1"}
	for i, id := range wantOrder {
		if rules[i].ID != id {
			t.Fatalf("rules[%d] = %s, want %s (full order %v)", i, rules[i].ID, id, rules)
		}
	}
	if rules[1].MinBalance != 60 {
		t.Errorf("r2 min = %v, want 60", rules[1].MinBalance)
	}
	if len(rec.calls) != 1 {
		t.Errorf("save calls = %d, want 1", len(rec.calls))
	}
}

func TestUpdateRule_MaxBalanceBoolToggle(t *testing.T) {
	e, _, _ := newTestEngine(t, []model.RefreshRule{rule("a", 20, 50)})

	res := e.UpdateRule("a", FieldMaxBalance, true)
	if !res.Valid {
		t.Fatalf("toggle to unbounded failed: %v", res.Err)
	}
	got, _ := e.Rule("a")
	if !got.Unbounded() {
		t.Errorf("MaxBalance = %v, want unbounded", got.MaxBalance)
	}

	res = e.UpdateRule("a", FieldMaxBalance, false)
	if !res.Valid {
		t.Fatalf("toggle to bounded failed: %v", res.Err)
	}
	got, _ = e.Rule("a")
	if got.MaxBalance != 100 {
		t.Errorf("MaxBalance = %v, want default bound 100", got.MaxBalance)
	}
}

func TestUpdateRule_MaxBalanceNumericValidatesBeforeWrite(t *testing.T) {
	e, rec, _ := newTestEngine(t, []model.RefreshRule{rule("a", 50, 100)})

	res := e.UpdateRule("a", FieldMaxBalance, 40.0)
	if res.Valid {
		t.Fatal("max below min should fail")
	}
	if !errors.Is(res.Err, ErrMinGreaterThanMax) {
		t.Errorf("err = %v, want ErrMinGreaterThanMax", res.Err)
	}

	// Unlike the minimum path, the maximum is validated before writing,
	// so the old value survives a failed edit.
	got, _ := e.Rule("a")
	if got.MaxBalance != 100 {
		t.Errorf("MaxBalance = %v, want 100 (unchanged)", got.MaxBalance)
	}
	if len(rec.calls) != 0 {
		t.Errorf("save calls = %d, want 0", len(rec.calls))
	}
}

func TestUpdateRule_Interval(t *testing.T) {
	e, rec, _ := newTestEngine(t, []model.RefreshRule{rule("a", 0, 50)})

	res := e.UpdateRule("a", FieldInterval, 0.0)
	if !res.Valid {
		t.Fatalf("interval update failed: %v", res.Err)
	}
	got, _ := e.Rule("a")
	if got.Interval != 1 {
		t.Errorf("Interval = %d, want 1 (normalized)", got.Interval)
	}

	res = e.UpdateRule("a", FieldInterval, 15)
	if !res.Valid {
		t.Fatalf("interval update failed: %v", res.Err)
	}
	got, _ = e.Rule("a")
	if got.Interval != 15 {
		t.Errorf("Interval = %d, want 15", got.Interval)
	}
	if len(rec.calls) != 2 {
		t.Errorf("save calls = %d, want 2", len(rec.calls))
	}
}

func TestEngine_SortedDisjointAfterMutations(t *testing.T) {
	e, _, clock := newTestEngine(t, []model.RefreshRule{
		{ID: "r1", MinBalance: 0, MaxBalance: 50, Interval: 1},
		{ID: "r2", MinBalance: 100, MaxBalance: model.MaxBalanceUnbounded, Interval: 5},
	})

	added := e.AddRule()
	if added == nil {
		t.Fatal("AddRule failed")
	}
	// Moving the fresh rule into the 50-100 gap takes two edits. The first
	// raises the minimum above the still-default maximum of 0, which is
	// surfaced but stays written; raising the maximum repairs the rule.
	if res := e.UpdateRule(added.ID, FieldMinBalance, 50.0); res.Valid || !errors.Is(res.Err, ErrMinGreaterThanMax) {
		t.Fatalf("min above default max: res = %+v, want ErrMinGreaterThanMax", res)
	}
	if res := e.UpdateRule(added.ID, FieldMaxBalance, 100.0); !res.Valid {
		t.Fatalf("max update failed: %v", res.Err)
	}
	if res := e.UpdateRule(added.ID, FieldInterval, 2.0); !res.Valid {
		t.Fatalf("interval update failed: %v", res.Err)
	}

	clock.Advance(time.Second)
	assertOrderedDisjoint(t, e.Rules())

	if !e.DeleteRule("r1") {
		t.Fatal("delete failed")
	}
	assertOrderedDisjoint(t, e.Rules())
}

func TestEngine_PersistReceivesCopy(t *testing.T) {
	e, rec, _ := newTestEngine(t, []model.RefreshRule{rule("a", 0, 50), rule("b", 50, 100)})

	if res := e.UpdateRule("a", FieldInterval, 3.0); !res.Valid {
		t.Fatalf("update failed: %v", res.Err)
	}
	if len(rec.calls) != 1 {
		t.Fatalf("save calls = %d, want 1", len(rec.calls))
	}

	// Mutating the persisted slice must not reach engine state.
	rec.calls[0][0].MinBalance = 9999
	got := e.Rules()
	for _, r := range got {
		if r.MinBalance == 9999 {
			t.Fatal("engine state aliased by persistence callback slice")
		}
	}
}

func TestFormatRule(t *testing.T) {
	tests := []struct {
		name string
		in   model.RefreshRule
		want string
	}{
		{"bounded", model.RefreshRule{MinBalance: 0, MaxBalance: 50, Interval: 1}, "0 - 50 → 1 min"},
		{"unbounded", model.RefreshRule{MinBalance: 50, MaxBalance: model.MaxBalanceUnbounded, Interval: 5}, "50 - ∞ → 5 min"},
		{"fractional bound", model.RefreshRule{MinBalance: 12.5, MaxBalance: 80, Interval: 10}, "12.5 - 80 → 10 min"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatRule(tt.in); got != tt.want {
				t.Errorf("FormatRule = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIntervalFor(t *testing.T) {
	rules := []model.RefreshRule{
		{ID: "top", MinBalance: 100, MaxBalance: model.MaxBalanceUnbounded, Interval: 30},
		{ID: "mid", MinBalance: 50, MaxBalance: 100, Interval: 15},
		{ID: "low", MinBalance: 0, MaxBalance: 50, Interval: 5},
	}

	tests := []struct {
		name    string
		balance float64
		want    int
		wantOK  bool
	}{
		{"bottom of low", 0, 5, true},
		{"inside low", 49.9, 5, true},
		{"boundary goes to mid", 50, 15, true},
		{"inside mid", 99.9, 15, true},
		{"boundary goes to top", 100, 30, true},
		{"deep in unbounded", 1e7, 30, true},
		{"below all ranges", -1, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := IntervalFor(rules, tt.balance)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("IntervalFor(%v) = (%d, %v), want (%d, %v)", tt.balance, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func BenchmarkIntervalFor(b *testing.B) {
	rules := make([]model.RefreshRule, 0, MaxRules)
	for i := MaxRules - 1; i >= 0; i-- {
		max := float64((i + 1) * 100)
		if i == MaxRules-1 {
			max = model.MaxBalanceUnbounded
		}
		rules = append(rules, model.RefreshRule{
			ID:         fmt.Sprintf("r%d", i),
			MinBalance: float64(i * 100),
			MaxBalance: max,
			Interval:   i + 1,
		})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		IntervalFor(rules, float64(i%1000))
	}
}
