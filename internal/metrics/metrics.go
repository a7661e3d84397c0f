// Package metrics exposes the dialer's Prometheus collectors.
//
// Every method is safe on a nil *Metrics so components can run without instrumentation in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	inboundEnqueued   prometheus.Counter
	claims            *prometheus.CounterVec
	outboundDials     *prometheus.CounterVec
	providerLatency   *prometheus.HistogramVec
	webhookRejections *prometheus.CounterVec
	waitingCalls      prometheus.Gauge
	availableAgents   prometheus.Gauge
}

// New builds a private registry so repeated construction in tests never double-registers.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		inboundEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dialer_inbound_enqueued_total",
			Help: "Inbound calls placed in the waiting queue",
		}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dialer_claims_total",
			Help: "Inbound claim attempts by outcome",
		}, []string{"outcome"}),
		outboundDials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dialer_outbound_dials_total",
			Help: "Outbound dial attempts by outcome",
		}, []string{"outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dialer_provider_request_duration_seconds",
			Help:    "Telephony provider REST latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		webhookRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dialer_webhook_rejections_total",
			Help: "Provider webhooks rejected for a bad signature",
		}, []string{"endpoint"}),
		waitingCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dialer_waiting_calls",
			Help: "Unclaimed inbound calls seen on the last queue read",
		}),
		availableAgents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dialer_available_agents",
			Help: "Agents currently marked available",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.inboundEnqueued,
		m.claims,
		m.outboundDials,
		m.providerLatency,
		m.webhookRejections,
		m.waitingCalls,
		m.availableAgents,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) InboundEnqueued() {
	if m == nil {
		return
	}
	m.inboundEnqueued.Inc()
}

// Claim outcomes: won, conflict, dial_failed.
func (m *Metrics) Claim(outcome string) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(outcome).Inc()
}

// OutboundDial outcomes: ok, busy, failed.
func (m *Metrics) OutboundDial(outcome string) {
	if m == nil {
		return
	}
	m.outboundDials.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveProvider(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.providerLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) WebhookRejected(endpoint string) {
	if m == nil {
		return
	}
	m.webhookRejections.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) SetWaitingCalls(n int) {
	if m == nil {
		return
	}
	m.waitingCalls.Set(float64(n))
}

func (m *Metrics) SetAvailableAgents(n int) {
	if m == nil {
		return
	}
	m.availableAgents.Set(float64(n))
}
