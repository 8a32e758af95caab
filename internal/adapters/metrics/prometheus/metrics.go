package prometheus

import (
	"net/http"
	"time"

	"github.com/bnema/walletsync/internal/domain"
	"github.com/bnema/walletsync/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "walletsync"

// Metrics records coordination metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	operationsSubmitted prometheus.Counter
	operationsTerminal  *prometheus.CounterVec
	operationDuration   *prometheus.HistogramVec
	duplicateTerminals  prometheus.Counter
	refreshesPublished  *prometheus.CounterVec
	sessionsKnown       prometheus.Gauge
	sessionActive       prometheus.Gauge
	disconnects         *prometheus.CounterVec
}

var _ ports.Metrics = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operationsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_submitted_total",
			Help:      "Write operations handed to the ledger client.",
		}),
		operationsTerminal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_terminal_total",
			Help:      "Operations that reached a terminal state, by state.",
		}, []string{"state"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time from submission to terminal state.",
			Buckets:   []float64{1, 2, 5, 10, 15, 30, 60, 120, 300},
		}, []string{"state"}),
		duplicateTerminals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_terminal_suppressed_total",
			Help:      "Repeated terminal transitions whose side effects were suppressed.",
		}),
		refreshesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_published_total",
			Help:      "Refresh generations published, by source.",
		}, []string{"source"}),
		sessionsKnown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_known",
			Help:      "Wallet sessions currently held by the session store.",
		}),
		sessionActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_active",
			Help:      "1 when a session is active.",
		}),
		disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disconnects_total",
			Help:      "Session disconnect attempts, by batch and result.",
		}, []string{"batch", "result"}),
	}

	m.registry.MustRegister(
		m.operationsSubmitted,
		m.operationsTerminal,
		m.operationDuration,
		m.duplicateTerminals,
		m.refreshesPublished,
		m.sessionsKnown,
		m.sessionActive,
		m.disconnects,
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) OperationSubmitted() {
	m.operationsSubmitted.Inc()
}

func (m *Metrics) OperationTerminal(state domain.OperationState, elapsed time.Duration) {
	m.operationsTerminal.WithLabelValues(state.String()).Inc()
	m.operationDuration.WithLabelValues(state.String()).Observe(elapsed.Seconds())
}

func (m *Metrics) DuplicateTerminalSuppressed() {
	m.duplicateTerminals.Inc()
}

func (m *Metrics) RefreshPublished(source domain.RefreshSource) {
	m.refreshesPublished.WithLabelValues(string(source)).Inc()
}

func (m *Metrics) SessionsObserved(known int, active bool) {
	m.sessionsKnown.Set(float64(known))
	if active {
		m.sessionActive.Set(1)
		return
	}
	m.sessionActive.Set(0)
}

func (m *Metrics) DisconnectAttempted(batch string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.disconnects.WithLabelValues(batch, result).Inc()
}
