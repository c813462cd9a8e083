package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics agrupa los contadores de la migracion.
// Todos los metodos aceptan receptor nil.
type Metrics struct {
	registry *prometheus.Registry

	Decisions    *prometheus.CounterVec
	Provisioning *prometheus.CounterVec
	Handoffs     *prometheus.CounterVec
	JITRequests  *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idmigrate_decisions_total",
				Help: "Migration decisions by outcome and reason",
			},
			[]string{"outcome", "reason"},
		),
		Provisioning: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idmigrate_provisioning_total",
				Help: "Hosted user provisioning attempts by result",
			},
			[]string{"result"},
		),
		Handoffs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idmigrate_handoffs_total",
				Help: "Sign-in token handoffs by result",
			},
			[]string{"result"},
		),
		JITRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idmigrate_jit_requests_total",
				Help: "Just-in-time provisioning endpoint requests by result",
			},
			[]string{"result"},
		),
	}
	registry.MustRegister(m.Decisions, m.Provisioning, m.Handoffs, m.JITRequests)
	return m
}

func (m *Metrics) ObserveDecision(outcome, reason string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(outcome, reason).Inc()
}

func (m *Metrics) ObserveProvision(result string) {
	if m == nil {
		return
	}
	m.Provisioning.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveHandoff(result string) {
	if m == nil {
		return
	}
	m.Handoffs.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveJIT(result string) {
	if m == nil {
		return
	}
	m.JITRequests.WithLabelValues(result).Inc()
}

// Handler expone el registro en formato Prometheus.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
