// Package metrics holds the Prometheus collectors for the invitation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "referrski"

var (
	// InvitationsCreated counts committed invitation inserts.
	InvitationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "invitations_created_total",
		Help:      "Invitations created.",
	})

	// Transitions counts committed lifecycle transitions.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transitions_total",
		Help:      "Invitation state transitions by kind (completed, signed_up).",
	}, []string{"transition"})

	// WebhookDeliveries counts webhook POSTs by event type and outcome.
	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_deliveries_total",
		Help:      "Webhook deliveries by event type and outcome (ok, rejected, error).",
	}, []string{"event_type", "outcome"})

	// WebhookDuration tracks tenant webhook round-trip latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "webhook_duration_seconds",
		Help:      "Webhook delivery duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})

	// PostCommitFailures counts best-effort effects that failed after a transition committed.
	PostCommitFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "post_commit_failures_total",
		Help:      "Failed post-commit effects by effect name.",
	}, []string{"effect"})

	// QuotaDenials counts creates rejected by the quota enforcer.
	QuotaDenials = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quota_denials_total",
		Help:      "Invitation creates denied by quota.",
	})

	// QuotaOvershoot counts increments that pushed an owner past their plan ceiling.
	QuotaOvershoot = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quota_overshoot_total",
		Help:      "Usage increments that landed above the plan ceiling.",
	})

	// StripeEvents counts billing webhook requests by event type and status.
	StripeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "stripe_events_total",
		Help:      "Stripe webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})
)
