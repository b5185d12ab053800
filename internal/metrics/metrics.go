package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chartWizard/internal/domain"
)

const namespace = "chartwizard"

// Metrics implements ports.MetricsRecorder with Prometheus collectors.
type Metrics struct {
	ticksRouted    *prometheus.CounterVec
	ticksDropped   *prometheus.CounterVec
	barsClosed     prometheus.Counter
	historyBatches *prometheus.CounterVec
	trackedSymbols prometheus.Gauge
	historyErrors  prometheus.Counter
	subscriptions  prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ticksRouted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "ticks_routed_total",
				Help:      "Ticks applied to a bar aggregator",
			},
			[]string{"source"},
		),
		ticksDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "ticks_dropped_total",
				Help:      "Ticks dropped without changing any bar",
			},
			[]string{"reason"},
		),
		barsClosed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "bars_closed_total",
			Help:      "Bars finalized on bucket rollover",
		}),
		historyBatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "history",
				Name:      "batches_total",
				Help:      "History batches received, by outcome",
			},
			[]string{"outcome"},
		),
		trackedSymbols: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "tracked_symbols",
			Help:      "Symbols currently tracked",
		}),
		historyErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "fetch_errors_total",
			Help:      "History fetches that failed before producing a batch",
		}),
		subscriptions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "subscriptions_total",
			Help:      "Live tick streams started",
		}),
	}
}

func (m *Metrics) TickRouted(source domain.TickSource) {
	m.ticksRouted.WithLabelValues(string(source)).Inc()
}

func (m *Metrics) TickDropped(reason string) {
	m.ticksDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) BarClosed() {
	m.barsClosed.Inc()
}

func (m *Metrics) HistoryBatch(outcome string) {
	m.historyBatches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TrackedSymbols(n int) {
	m.trackedSymbols.Set(float64(n))
}

// HistoryFetchFailed counts a history fetch that produced no batch.
func (m *Metrics) HistoryFetchFailed() {
	m.historyErrors.Inc()
}

// SubscriptionStarted counts a live stream start.
func (m *Metrics) SubscriptionStarted() {
	m.subscriptions.Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
