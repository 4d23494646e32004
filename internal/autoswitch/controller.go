// Package autoswitch owns the auto-switch settings document and drives
// the monitor through a guarded start/stop sequence. All remote failures
// degrade to a Result; nothing in this package panics across its
// public boundary.
package autoswitch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/chun1617/Kir-Manager-sub002/internal/model"
	"github.com/chun1617/Kir-Manager-sub002/internal/rules"
)

// Remote is the narrow boundary to the monitor process. Implementations
// talk to the daemon; the controller converts their errors into Result
// values and never assumes more than this contract.
type Remote interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status(ctx context.Context) (model.AutoSwitchStatus, error)
	SaveSettings(ctx context.Context, s model.AutoSwitchSettings) error
	LoadSettings(ctx context.Context) (model.AutoSwitchSettings, error)
}

// Controller mediates every transition of the monitor and every edit of
// the settings document. The toggle path is the one operation requiring
// mutual exclusion; re-entrant calls are rejected, not queued.
type Controller struct {
	mu       sync.Mutex
	remote   Remote
	settings model.AutoSwitchSettings
	status   model.AutoSwitchStatus
	engine   *rules.Engine

	engineOpts []rules.Option

	toggling atomic.Bool
	saving   atomic.Bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithEngineOptions forwards options to the embedded rule engine,
// including any engine rebuilt by a later Load.
func WithEngineOptions(opts ...rules.Option) Option {
	return func(c *Controller) {
		c.engineOpts = opts
	}
}

// NewController returns a controller with empty settings. Call Load to
// populate it from the remote side.
func NewController(remote Remote, opts ...Option) *Controller {
	c := &Controller{remote: remote}
	for _, opt := range opts {
		opt(c)
	}
	c.engine = rules.NewEngine(nil, c.persistRules, c.engineOpts...)
	return c
}

// Load replaces the settings document and the rule engine with the
// remote copy, then refreshes status. The previous state is discarded
// wholesale.
func (c *Controller) Load(ctx context.Context) error {
	s, err := c.remote.LoadSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	e := rules.NewEngine(s.RefreshIntervals, c.persistRules, c.engineOpts...)

	c.mu.Lock()
	c.settings = s.Clone()
	c.engine = e
	c.mu.Unlock()

	c.refreshStatus(ctx)
	return nil
}

// ToggleAutoSwitch applies the current enabled flag to the remote
// monitor. Settings are persisted first so the remote side sees the
// latest flag, then start or stop is requested. A failed start rolls
// the flag back to false and re-persists; stop is assumed idempotent
// and has no rollback path. Status is refreshed after every completed
// transition.
func (c *Controller) ToggleAutoSwitch(ctx context.Context) model.Result {
	if !c.toggling.CompareAndSwap(false, true) {
		return model.Failf("operation in progress")
	}
	defer c.toggling.Store(false)

	if res := c.SaveAutoSwitchSettings(ctx); !res.Success {
		return res
	}

	c.mu.Lock()
	enabled := c.settings.Enabled
	c.mu.Unlock()

	if enabled {
		if err := c.remote.Start(ctx); err != nil {
			c.mu.Lock()
			c.settings.Enabled = false
			c.mu.Unlock()
			if res := c.SaveAutoSwitchSettings(ctx); !res.Success {
				log.Printf("autoswitch: rollback save failed: %s", res.Message)
			}
			c.refreshStatus(ctx)
			return model.Failf("start monitor: %v", err)
		}
	} else {
		if err := c.remote.Stop(ctx); err != nil {
			return model.Failf("stop monitor: %v", err)
		}
	}

	c.refreshStatus(ctx)
	return model.OK()
}

// HandleAutoSwitchToggle sets the enabled flag and delegates to
// ToggleAutoSwitch.
func (c *Controller) HandleAutoSwitchToggle(ctx context.Context, enabled bool) model.Result {
	c.mu.Lock()
	c.settings.Enabled = enabled
	c.mu.Unlock()
	return c.ToggleAutoSwitch(ctx)
}

// SaveAutoSwitchSettings persists the full settings document remotely.
// Transport failures are reported in the Result, never raised.
func (c *Controller) SaveAutoSwitchSettings(ctx context.Context) model.Result {
	c.saving.Store(true)
	defer c.saving.Store(false)

	c.mu.Lock()
	snap := c.settings.Clone()
	c.mu.Unlock()

	if err := c.remote.SaveSettings(ctx, snap); err != nil {
		return model.Failf("save settings: %v", err)
	}
	return model.OK()
}

// AddFolder adds id to the folder filter and saves. Empty ids and
// existing members are no-ops that skip the save.
func (c *Controller) AddFolder(ctx context.Context, id string) model.Result {
	c.mu.Lock()
	if id == "" || c.settings.HasFolder(id) {
		c.mu.Unlock()
		return model.OK()
	}
	c.settings.FolderIDs = append(c.settings.FolderIDs, id)
	c.mu.Unlock()
	return c.SaveAutoSwitchSettings(ctx)
}

// RemoveFolder removes id from the folder filter and saves. Absent ids
// are no-ops that skip the save.
func (c *Controller) RemoveFolder(ctx context.Context, id string) model.Result {
	c.mu.Lock()
	kept, removed := removeString(c.settings.FolderIDs, id)
	if !removed {
		c.mu.Unlock()
		return model.OK()
	}
	c.settings.FolderIDs = kept
	c.mu.Unlock()
	return c.SaveAutoSwitchSettings(ctx)
}

// AddSubscriptionType adds t to the subscription filter and saves.
func (c *Controller) AddSubscriptionType(ctx context.Context, t string) model.Result {
	c.mu.Lock()
	if t == "" || c.settings.HasSubscriptionType(t) {
		c.mu.Unlock()
		return model.OK()
	}
	c.settings.SubscriptionTypes = append(c.settings.SubscriptionTypes, t)
	c.mu.Unlock()
	return c.SaveAutoSwitchSettings(ctx)
}

// RemoveSubscriptionType removes t from the subscription filter and saves.
func (c *Controller) RemoveSubscriptionType(ctx context.Context, t string) model.Result {
	c.mu.Lock()
	kept, removed := removeString(c.settings.SubscriptionTypes, t)
	if !removed {
		c.mu.Unlock()
		return model.OK()
	}
	c.settings.SubscriptionTypes = kept
	c.mu.Unlock()
	return c.SaveAutoSwitchSettings(ctx)
}

// SetBalanceThreshold updates the switch trigger threshold and saves.
func (c *Controller) SetBalanceThreshold(ctx context.Context, v float64) model.Result {
	c.mu.Lock()
	c.settings.BalanceThreshold = v
	c.mu.Unlock()
	return c.SaveAutoSwitchSettings(ctx)
}

// SetMinTargetBalance updates the candidate floor and saves.
func (c *Controller) SetMinTargetBalance(ctx context.Context, v float64) model.Result {
	c.mu.Lock()
	c.settings.MinTargetBalance = v
	c.mu.Unlock()
	return c.SaveAutoSwitchSettings(ctx)
}

// SetNotifyOnSwitch updates the switch notification flag and saves.
func (c *Controller) SetNotifyOnSwitch(ctx context.Context, on bool) model.Result {
	c.mu.Lock()
	c.settings.NotifyOnSwitch = on
	c.mu.Unlock()
	return c.SaveAutoSwitchSettings(ctx)
}

// SetNotifyOnLowBalance updates the low-balance notification flag and saves.
func (c *Controller) SetNotifyOnLowBalance(ctx context.Context, on bool) model.Result {
	c.mu.Lock()
	c.settings.NotifyOnLowBalance = on
	c.mu.Unlock()
	return c.SaveAutoSwitchSettings(ctx)
}

// AddRefreshRule appends a fresh default rule through the embedded
// engine. Returns nil when refused by the debounce window or the rule
// cap.
func (c *Controller) AddRefreshRule() *model.RefreshRule {
	return c.ruleEngine().AddRule()
}

// UpdateRefreshRule edits one field of a rule through the embedded engine.
func (c *Controller) UpdateRefreshRule(id, field string, value any) rules.ValidationResult {
	return c.ruleEngine().UpdateRule(id, field, value)
}

// RemoveRefreshRule deletes the rule at index in display order. Returns
// false for out-of-range indexes or when only one rule remains.
func (c *Controller) RemoveRefreshRule(index int) bool {
	e := c.ruleEngine()
	list := e.Rules()
	if index < 0 || index >= len(list) {
		return false
	}
	return e.DeleteRule(list[index].ID)
}

// CanDeleteRule reports whether any rule may currently be deleted.
func (c *Controller) CanDeleteRule() bool {
	return c.ruleEngine().CanDeleteRule()
}

// Rules returns the current rule set in display order.
func (c *Controller) Rules() []model.RefreshRule {
	return c.ruleEngine().Rules()
}

// Settings returns a deep copy of the current settings document.
func (c *Controller) Settings() model.AutoSwitchSettings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.Clone()
}

// Status returns the last fetched monitor status.
func (c *Controller) Status() model.AutoSwitchStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Enabled reports the local enabled flag.
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.Enabled
}

// Saving reports whether a settings save is in flight.
func (c *Controller) Saving() bool {
	return c.saving.Load()
}

// Toggling reports whether a toggle is in flight.
func (c *Controller) Toggling() bool {
	return c.toggling.Load()
}

// RefreshStatus re-fetches the monitor status. On fetch failure the
// previous status is kept and the failure is logged.
func (c *Controller) RefreshStatus(ctx context.Context) {
	c.refreshStatus(ctx)
}

func (c *Controller) refreshStatus(ctx context.Context) {
	st, err := c.remote.Status(ctx)
	if err != nil {
		log.Printf("autoswitch: refresh status: %v", err)
		return
	}
	c.mu.Lock()
	c.status = st
	c.mu.Unlock()
}

// persistRules is the engine's save callback. It runs under the engine
// lock, so it must not call back into the engine; the settings copy is
// taken from the list it was handed.
func (c *Controller) persistRules(list []model.RefreshRule) {
	c.mu.Lock()
	c.settings.RefreshIntervals = list
	snap := c.settings.Clone()
	c.mu.Unlock()

	c.saving.Store(true)
	defer c.saving.Store(false)
	if err := c.remote.SaveSettings(context.Background(), snap); err != nil {
		log.Printf("autoswitch: persist rules: %v", err)
	}
}

func (c *Controller) ruleEngine() *rules.Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine
}

func removeString(list []string, v string) ([]string, bool) {
	for i, s := range list {
		if s == v {
			return append(list[:i:i], list[i+1:]...), true
		}
	}
	return list, false
}
