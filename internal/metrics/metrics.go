// Package metrics exposes trading counters and gauges to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"autostock/internal/models"
)

// Metrics methods are safe on a nil receiver.
type Metrics struct {
	Registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	intents       *prometheus.CounterVec
	orders        *prometheus.CounterVec
	pending       *prometheus.GaugeVec
	cooldowns     *prometheus.GaugeVec
	sessionOpen   *prometheus.GaugeVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autostock",
			Name:      "cycles_total",
			Help:      "Trading cycles by market, direction and outcome.",
		}, []string{"market", "direction", "outcome"}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "autostock",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of trading cycles.",
			Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"market", "direction"}),
		intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autostock",
			Name:      "intents_total",
			Help:      "Order intents produced by the strategy.",
		}, []string{"market", "side", "reason"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "autostock",
			Name:      "orders_total",
			Help:      "Orders that reached a terminal state.",
		}, []string{"market", "side", "state"}),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "autostock",
			Name:      "pending_orders",
			Help:      "Orders currently tracked.",
		}, []string{"market"}),
		cooldowns: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "autostock",
			Name:      "cooldown_symbols",
			Help:      "Symbols blocked after a stop-loss.",
		}, []string{"market"}),
		sessionOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "autostock",
			Name:      "session_open",
			Help:      "1 while the market session is open.",
		}, []string{"market"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.cycles, m.cycleDuration, m.intents, m.orders, m.pending, m.cooldowns, m.sessionOpen,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveCycle(market string, dir models.Direction, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(market, string(dir), outcome).Inc()
	m.cycleDuration.WithLabelValues(market, string(dir)).Observe(d.Seconds())
}

func (m *Metrics) IntentPlanned(market string, in models.Intent) {
	if m == nil {
		return
	}
	m.intents.WithLabelValues(market, string(in.Side), in.Reason).Inc()
}

func (m *Metrics) OrderFinished(o models.PendingOrder) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(o.Market, string(o.Side), string(o.Status)).Inc()
}

func (m *Metrics) SetPending(market string, n int) {
	if m == nil {
		return
	}
	m.pending.WithLabelValues(market).Set(float64(n))
}

func (m *Metrics) SetCooldowns(market string, n int) {
	if m == nil {
		return
	}
	m.cooldowns.WithLabelValues(market).Set(float64(n))
}

func (m *Metrics) SetSessionOpen(market string, open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.sessionOpen.WithLabelValues(market).Set(v)
}
