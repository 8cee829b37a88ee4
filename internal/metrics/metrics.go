// Package metrics holds the Prometheus collectors for the scheduler.
//
// Every Metrics value owns its own registry so several schedulers (or
// tests) can live in one process. All methods are nil-safe.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bonfire"

// Schedule outcomes.
const (
	ScheduleNew       = "new"       // timer armed and record committed
	ScheduleLocal     = "local"     // record existed, timer armed locally only
	ScheduleDuplicate = "duplicate" // record and timer existed
)

type Metrics struct {
	Registry *prometheus.Registry

	pending     prometheus.Gauge
	scheduled   *prometheus.CounterVec
	fired       prometheus.Counter
	overdue     prometheus.Counter
	canceled    prometheus.Counter
	recovered   prometheus.Counter
	unknown     prometheus.Counter
	storeErrors *prometheus.CounterVec
	fireLag     prometheus.Histogram
}

// New creates the collectors and registers them (plus Go/process
// collectors) on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "pending_tasks",
			Help: "Tasks with a locally armed timer.",
		}),
		scheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "schedule_total",
			Help: "Schedule calls by outcome.",
		}, []string{"outcome"}),
		fired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "fired_total",
			Help: "Tasks delivered to the completion handler by a timer.",
		}),
		overdue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "overdue_total",
			Help: "Tasks found already due during recovery and delivered immediately.",
		}),
		canceled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "canceled_total",
			Help: "Tasks canceled before firing.",
		}),
		recovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "recovered_total",
			Help: "Future tasks re-armed from the durable store at start.",
		}),
		unknown: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "unknown_records_total",
			Help: "Stored records skipped during recovery because they did not decode.",
		}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "store_errors_total",
			Help: "Durable store failures by operation.",
		}, []string{"op"}),
		fireLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "fire_lag_seconds",
			Help:    "Delay between a task's scheduled instant and its delivery.",
			Buckets: []float64{.001, .01, .05, .1, .5, 1, 5, 30, 300, 3600},
		}),
	}
	m.Registry.MustRegister(
		m.pending, m.scheduled, m.fired, m.overdue, m.canceled,
		m.recovered, m.unknown, m.storeErrors, m.fireLag,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

func (m *Metrics) Scheduled(outcome string) {
	if m == nil {
		return
	}
	m.scheduled.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Fired(lag time.Duration) {
	if m == nil {
		return
	}
	m.fired.Inc()
	m.fireLag.Observe(lag.Seconds())
}

func (m *Metrics) Overdue(lag time.Duration) {
	if m == nil {
		return
	}
	m.overdue.Inc()
	m.fireLag.Observe(lag.Seconds())
}

func (m *Metrics) Canceled() {
	if m == nil {
		return
	}
	m.canceled.Inc()
}

func (m *Metrics) Recovered() {
	if m == nil {
		return
	}
	m.recovered.Inc()
}

func (m *Metrics) Unknown(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.unknown.Add(float64(n))
}

func (m *Metrics) StoreError(op string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(op).Inc()
}
