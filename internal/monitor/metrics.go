package monitor

import (
	"github.com/prometheus/client_golang/prometheus"

	"quantsignal/internal/logger"
	"quantsignal/internal/pkg/circuit"
)

// Metrics holds the monitor's Prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	Ticks        *prometheus.CounterVec
	TickDuration prometheus.Histogram
	PairFailures *prometheus.CounterVec
	Alerts       prometheus.Counter
	Instruments  *prometheus.CounterVec
	Reloads      *prometheus.CounterVec
	BreakerState *prometheus.GaugeVec
}

// NewMetrics builds the collectors and registers them on reg when reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantsignal_monitor_ticks_total",
				Help: "Monitor ticks by result (ok, fetch_error, idle)",
			},
			[]string{"result"},
		),
		TickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quantsignal_monitor_tick_duration_seconds",
				Help:    "Wall time of one monitor tick",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		),
		PairFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantsignal_monitor_pair_failures_total",
				Help: "Failed (instrument, strategy) evaluations by kind",
			},
			[]string{"kind"},
		),
		Alerts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quantsignal_monitor_alerts_total",
				Help: "Alerts dispatched",
			},
		),
		Instruments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantsignal_monitor_instruments_total",
				Help: "Per-tick instrument outcomes (merged, stale, no_quote, no_window)",
			},
			[]string{"status"},
		),
		Reloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quantsignal_monitor_reloads_total",
				Help: "Strategy reloads by result",
			},
			[]string{"result"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "quantsignal_monitor_breaker_state",
				Help: "Snapshot circuit breaker state (0 closed, 1 open, 2 half-open)",
			},
			[]string{"breaker"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Ticks, m.TickDuration, m.PairFailures, m.Alerts, m.Instruments, m.Reloads, m.BreakerState)
	}
	return m
}

func (m *Metrics) observeTick(result string, r *TickReport) {
	if m == nil {
		return
	}
	m.Ticks.WithLabelValues(result).Inc()
	if r == nil {
		return
	}
	m.TickDuration.Observe(r.Duration().Seconds())
	for _, inst := range r.Instruments {
		m.Instruments.WithLabelValues(string(inst.Status)).Inc()
	}
	for _, p := range r.Pairs {
		if kind := p.FailureKind(); kind != "" {
			m.PairFailures.WithLabelValues(kind).Inc()
		}
	}
	m.Alerts.Add(float64(len(r.Alerts)))
}

func (m *Metrics) observeReload(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.Reloads.WithLabelValues("ok").Inc()
		return
	}
	m.Reloads.WithLabelValues("error").Inc()
}

// breakerChanged is installed as the snapshot breaker's state handler.
func (m *Metrics) breakerChanged(name string, from, to circuit.State) {
	logger.Warnf("monitor: breaker %s %s -> %s", name, from, to)
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(float64(to))
}
