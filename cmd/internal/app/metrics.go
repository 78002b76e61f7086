package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"arcclient/cmd/internal/auth/session"
)

// Metrics exports session protocol outcomes. It implements session.Metrics.
type Metrics struct {
	reg *prometheus.Registry

	restores     *prometheus.CounterVec
	logouts      *prometheus.CounterVec
	syncFailures prometheus.Counter
}

var _ session.Metrics = (*Metrics)(nil)

// NewMetrics registers the agent collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		restores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arcclient_restore_total",
			Help: "Session restoration attempts by outcome.",
		}, []string{"outcome"}),
		logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arcclient_logout_total",
			Help: "Completed logouts by source (user or propagated).",
		}, []string{"source"}),
		syncFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arcclient_sync_failures_total",
			Help: "Non-fatal device sync failures after restoration.",
		}),
	}
	reg.MustRegister(
		m.restores,
		m.logouts,
		m.syncFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RestoreFinished counts one restoration attempt.
func (m *Metrics) RestoreFinished(outcome session.Outcome) {
	m.restores.WithLabelValues(string(outcome)).Inc()
}

// LogoutFinished counts one completed logout.
func (m *Metrics) LogoutFinished(source string) {
	m.logouts.WithLabelValues(source).Inc()
}

// SyncFailed counts one device sync failure.
func (m *Metrics) SyncFailed() { m.syncFailures.Inc() }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
