// Package observability holds the loyalty console's Prometheus instruments.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pointsAwardedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "loyalty",
		Subsystem: "rewards",
		Name:      "points_awarded_total",
		Help:      "Total points credited to customers.",
	})

	redemptionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loyalty",
		Subsystem: "rewards",
		Name:      "redemptions_total",
		Help:      "Rewards redeemed, labeled by reward description.",
	}, []string{"reward"})

	mutationFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loyalty",
		Subsystem: "rewards",
		Name:      "mutation_failures_total",
		Help:      "Failed rewards writes, labeled by operation and cause.",
	}, []string{"operation", "cause"})

	activityAppendFailureCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "loyalty",
		Subsystem: "rewards",
		Name:      "activity_append_failures_total",
		Help:      "Activity log entries that could not be written after a points change.",
	})

	lastPointsChangeGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "loyalty",
		Subsystem: "rewards",
		Name:      "last_points_change_timestamp_seconds",
		Help:      "Unix timestamp of the most recent committed points change.",
	})

	authAttemptCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loyalty",
		Subsystem: "session",
		Name:      "auth_attempts_total",
		Help:      "Login and registration attempts, labeled by action and outcome.",
	}, []string{"action", "outcome"})

	httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "loyalty",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Latency of console requests by route pattern and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "status"})
)

func init() {
	prometheus.MustRegister(
		pointsAwardedCounter,
		redemptionCounter,
		mutationFailureCounter,
		activityAppendFailureCounter,
		lastPointsChangeGauge,
		authAttemptCounter,
		httpRequestDuration,
	)
}

// RecordPointsAwarded counts points credited at ts.
func RecordPointsAwarded(points int, ts time.Time) {
	if points > 0 {
		pointsAwardedCounter.Add(float64(points))
	}
	recordPointsChange(ts)
}

// RecordRedemption counts one redemption of reward at ts.
func RecordRedemption(reward string, ts time.Time) {
	redemptionCounter.WithLabelValues(reward).Inc()
	recordPointsChange(ts)
}

// RecordMutationFailure counts a failed write.
func RecordMutationFailure(operation, cause string) {
	mutationFailureCounter.WithLabelValues(operation, cause).Inc()
}

// RecordActivityAppendFailure counts an activity entry lost after a committed points change.
func RecordActivityAppendFailure() {
	activityAppendFailureCounter.Inc()
}

// RecordAuthAttempt counts a login or registration outcome.
func RecordAuthAttempt(action string, ok bool) {
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	authAttemptCounter.WithLabelValues(action, outcome).Inc()
}

// ObserveRequest records one served request.
func ObserveRequest(route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequestDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func recordPointsChange(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastPointsChangeGauge.Set(float64(ts.Unix()))
}
