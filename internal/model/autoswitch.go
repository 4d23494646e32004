package model

import "fmt"

// MonitorState is the lifecycle state reported by the remote monitor.
type MonitorState string

const (
	StateStopped  MonitorState = "stopped"
	StateRunning  MonitorState = "running"
	StateCooldown MonitorState = "cooldown"
)

// AutoSwitchSettings is the auto-switch settings document. It is owned by
// the monitor controller, mutated only through its methods, and persisted
// as one atomic unit.
type AutoSwitchSettings struct {
	Enabled            bool          `json:"enabled"`
	BalanceThreshold   float64       `json:"balance_threshold"`
	MinTargetBalance   float64       `json:"min_target_balance"`
	FolderIDs          []string      `json:"folder_ids"`
	SubscriptionTypes  []string      `json:"subscription_types"`
	RefreshIntervals   []RefreshRule `json:"refresh_intervals"`
	NotifyOnSwitch     bool          `json:"notify_on_switch"`
	NotifyOnLowBalance bool          `json:"notify_on_low_balance"`
}

// Clone returns a deep copy safe for the caller to hold or mutate.
func (s AutoSwitchSettings) Clone() AutoSwitchSettings {
	out := s
	out.FolderIDs = append([]string(nil), s.FolderIDs...)
	out.SubscriptionTypes = append([]string(nil), s.SubscriptionTypes...)
	out.RefreshIntervals = append([]RefreshRule(nil), s.RefreshIntervals...)
	return out
}

// HasFolder reports whether id is a member of the folder filter.
func (s AutoSwitchSettings) HasFolder(id string) bool {
	for _, f := range s.FolderIDs {
		if f == id {
			return true
		}
	}
	return false
}

// HasSubscriptionType reports whether t is a member of the subscription filter.
func (s AutoSwitchSettings) HasSubscriptionType(t string) bool {
	for _, st := range s.SubscriptionTypes {
		if st == t {
			return true
		}
	}
	return false
}

// AutoSwitchStatus is the monitor-reported runtime status. It is replaced
// wholesale on every refresh and never partially mutated locally.
type AutoSwitchStatus struct {
	State             MonitorState `json:"state"`
	LastBalance       float64      `json:"last_balance"`
	CooldownRemaining int          `json:"cooldown_remaining"`
	SwitchCount       int          `json:"switch_count"`
}

// Result is the outcome of an operation against a remote boundary.
// Failures are reported, never raised.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// OK returns a success result.
func OK() Result {
	return Result{Success: true}
}

// Failf returns a failure result with a formatted message.
func Failf(format string, args ...any) Result {
	return Result{Message: fmt.Sprintf(format, args...)}
}
