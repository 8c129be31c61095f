// Package metrics exposes the authentication counters scraped by Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// LoginAttempts counts authentication attempts by flow and outcome.
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyward_login_attempts_total",
			Help: "Authentication attempts by flow and outcome.",
		},
		[]string{"flow", "outcome"},
	)

	// RateLimited counts requests denied by the rate limiter, by namespace.
	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyward_rate_limited_total",
			Help: "Requests denied by the rate limiter.",
		},
		[]string{"namespace"},
	)

	// TokenReuse counts refresh-token reuse detections. Any non-zero rate is
	// an alerting condition.
	TokenReuse = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keyward_token_reuse_detected_total",
			Help: "Refresh-token reuse detections (possible token theft).",
		},
	)

	// AuditSinkFailures counts login-attempt records that could not be
	// persisted. The authentication decision still completed.
	AuditSinkFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keyward_audit_sink_failures_total",
			Help: "Login audit records dropped because the sink was unavailable.",
		},
	)
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
