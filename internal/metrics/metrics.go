// Package metrics exposes Prometheus metrics for the monitor daemon.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chun1617/Kir-Manager-sub002/internal/model"
)

// Collector holds the daemon's metric set on a private registry.
type Collector struct {
	registry      *prometheus.Registry
	pollsTotal    prometheus.Counter
	pollErrors    prometheus.Counter
	switchesTotal prometheus.Counter
	balance       *prometheus.GaugeVec
	pollInterval  prometheus.Gauge
	monitorState  *prometheus.GaugeVec
}

// NewCollector constructs a collector with the daemon's counters and gauges.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	pollsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kirman",
		Subsystem: "monitor",
		Name:      "polls_total",
		Help:      "Total number of balance polls.",
	})

	pollErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kirman",
		Subsystem: "monitor",
		Name:      "poll_errors_total",
		Help:      "Total number of failed balance polls.",
	})

	switchesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kirman",
		Subsystem: "monitor",
		Name:      "switches_total",
		Help:      "Total number of credential switches performed.",
	})

	balance := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "kirman",
		Subsystem: "monitor",
		Name:      "balance_credits",
		Help:      "Last observed balance per backup.",
	}, []string{"backup"})

	pollInterval := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kirman",
		Subsystem: "monitor",
		Name:      "poll_interval_minutes",
		Help:      "Current rule-driven poll interval.",
	})

	monitorState := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "kirman",
		Subsystem: "monitor",
		Name:      "state",
		Help:      "Monitor lifecycle state (1 for the active state).",
	}, []string{"state"})

	for _, c := range []prometheus.Collector{
		pollsTotal, pollErrors, switchesTotal, balance, pollInterval, monitorState,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &Collector{
		registry:      registry,
		pollsTotal:    pollsTotal,
		pollErrors:    pollErrors,
		switchesTotal: switchesTotal,
		balance:       balance,
		pollInterval:  pollInterval,
		monitorState:  monitorState,
	}, nil
}

// Handler returns an HTTP handler for exposing the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordPoll counts one poll, classifying it by outcome.
func (c *Collector) RecordPoll(err error) {
	c.pollsTotal.Inc()
	if err != nil {
		c.pollErrors.Inc()
	}
}

// RecordSwitch counts one completed credential switch.
func (c *Collector) RecordSwitch() {
	c.switchesTotal.Inc()
}

// SetBalance records the last observed balance for a backup.
func (c *Collector) SetBalance(backupID string, v float64) {
	c.balance.WithLabelValues(backupID).Set(v)
}

// SetPollInterval records the current rule-driven interval in minutes.
func (c *Collector) SetPollInterval(minutes int) {
	c.pollInterval.Set(float64(minutes))
}

// SetState marks the current monitor state, clearing the others.
func (c *Collector) SetState(state model.MonitorState) {
	for _, s := range []model.MonitorState{model.StateStopped, model.StateRunning, model.StateCooldown} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		c.monitorState.WithLabelValues(string(s)).Set(v)
	}
}
