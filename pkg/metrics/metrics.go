package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the application counters. Each process registers one instance.
type Metrics struct {
	VotesCast       *prometheus.CounterVec
	WebhookEvents   *prometheus.CounterVec
	SweepActions    *prometheus.CounterVec
	GatewayRequests *prometheus.CounterVec
}

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		VotesCast: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "askhub_votes_cast_total",
				Help: "Votes reconciled, by target kind and outcome",
			},
			[]string{"target", "outcome"},
		),
		WebhookEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "askhub_webhook_events_total",
				Help: "Stripe webhook events handled, by type and result",
			},
			[]string{"type", "result"},
		),
		SweepActions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "askhub_sweep_actions_total",
				Help: "Actions taken by periodic subscription sweeps",
			},
			[]string{"sweep", "action"},
		),
		GatewayRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "askhub_gateway_requests_total",
				Help: "Payment gateway calls, by operation and status",
			},
			[]string{"operation", "status"},
		),
	}

	reg.MustRegister(m.VotesCast, m.WebhookEvents, m.SweepActions, m.GatewayRequests)
	return m
}

// NewNop returns counters registered on a throwaway registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
