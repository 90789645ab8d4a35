// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "bhangaar"

var (
	// PickupsCreated counts pickup requests created by households.
	PickupsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pickups_created_total",
		Help:      "Pickup requests created.",
	})

	// StatusTransitions counts successful lifecycle transitions by target status.
	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pickup_transitions_total",
		Help:      "Pickup status transitions by target status.",
	}, []string{"status"})

	// EcoPointsAwarded sums eco points credited to households by waste type.
	EcoPointsAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "eco_points_awarded_total",
		Help:      "Eco points credited on pickup completion.",
	}, []string{"waste_type"})

	// CompletionCompensations counts completions whose status write was
	// reverted because the point award could not be applied.
	CompletionCompensations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "completion_compensations_total",
		Help:      "Completed-status writes reverted after a failed point award.",
	})

	// RateLimited counts requests rejected by the register/login limiter.
	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter.",
	}, []string{"transport"})

	// HTTPRequests counts served requests by route pattern, method and status code.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests served.",
	}, []string{"route", "method", "code"})
)
