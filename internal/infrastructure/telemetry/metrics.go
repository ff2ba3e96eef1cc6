// Package telemetry exposes Prometheus metrics for the poller,
// interest queue and websocket gateway, with an optional HTTP
// listener serving /metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the instrument vectors shared by the subcommands.
type Metrics struct {
	pollTotal        *prometheus.CounterVec
	pollDuration     *prometheus.HistogramVec
	queueRequeues    prometheus.Counter
	queueDecays      prometheus.Counter
	clientsConnected prometheus.Gauge
	messagesTotal    *prometheus.CounterVec
}

// NewMetrics registers the metric vectors with the given registerer.
// A nil registerer falls back to the default registry.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		pollTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serverstf_polls_total",
				Help: "Total number of server polls by outcome",
			},
			[]string{"outcome"},
		),
		pollDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "serverstf_poll_duration_seconds",
				Help:    "Duration of full poll cycles in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"outcome"},
		),
		queueRequeues: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "serverstf_interest_queue_requeues_total",
				Help: "Total number of interest queue items re-enqueued after polling",
			},
		),
		queueDecays: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "serverstf_interest_queue_decays_total",
				Help: "Total number of interest queue items discarded after interest decay",
			},
		),
		clientsConnected: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "serverstf_websocket_clients",
				Help: "Current number of connected websocket clients",
			},
		),
		messagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "serverstf_websocket_messages_total",
				Help: "Total number of websocket messages by direction and type",
			},
			[]string{"direction", "type"},
		),
	}
}

// ObservePoll records one completed poll cycle.
func (m *Metrics) ObservePoll(outcome string, seconds float64) {
	m.pollTotal.WithLabelValues(outcome).Inc()
	m.pollDuration.WithLabelValues(outcome).Observe(seconds)
}

// ObserveRequeue records the settling of one interest queue item.
func (m *Metrics) ObserveRequeue(requeued bool) {
	if requeued {
		m.queueRequeues.Inc()
	} else {
		m.queueDecays.Inc()
	}
}

// ClientConnected records a websocket client arriving or leaving.
func (m *Metrics) ClientConnected(delta int) {
	m.clientsConnected.Add(float64(delta))
}

// ObserveMessage records one websocket message.
func (m *Metrics) ObserveMessage(direction, msgType string) {
	m.messagesTotal.WithLabelValues(direction, msgType).Inc()
}
