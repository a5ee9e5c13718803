package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	updates  *prometheus.CounterVec
	outcomes *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		updates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whoupdate_updates_total",
				Help: "Total number of received webhook updates",
			},
			[]string{"kind", "origin"},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whoupdate_outcomes_total",
				Help: "Total number of handled updates by outcome",
			},
			[]string{"outcome"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whoupdate_webhook_errors_total",
				Help: "Total number of swallowed webhook errors by stage",
			},
			[]string{"stage"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "whoupdate_webhook_duration_seconds",
				Help:    "Webhook handling latency",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	reg.MustRegister(m.updates, m.outcomes, m.errors, m.duration)

	return m
}
