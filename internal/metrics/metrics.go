// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Tool call outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeSimulated = "simulated"
	OutcomeFailed    = "failed"
	OutcomeInvalid   = "invalid"
	OutcomeUnknown   = "unknown"
)

var (
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alcance_commands_total",
			Help: "Commands routed, by backend and routing path",
		},
		[]string{"backend", "path"},
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alcance_provider_request_duration_seconds",
			Help:    "Chat-completion round trip duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"provider"},
	)

	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alcance_provider_errors_total",
			Help: "Chat-completion failures by provider and error kind",
		},
		[]string{"provider", "kind"},
	)

	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alcance_tool_calls_total",
			Help: "Dispatched tool calls by tool and outcome",
		},
		[]string{"tool", "outcome"},
	)

	UsageDenied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alcance_usage_denied_total",
			Help: "Commands rejected by the daily usage limit",
		},
	)

	StripeWebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alcance_stripe_webhook_events_total",
			Help: "Verified Stripe webhook events by type",
		},
		[]string{"type"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alcance_http_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	UsagePruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alcance_usage_counters_pruned_total",
			Help: "Usage counter rows removed by the maintenance job",
		},
	)
)
