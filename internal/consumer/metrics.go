package consumer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	changesAppliedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loyalty",
		Subsystem: "changefeed",
		Name:      "changes_applied_total",
		Help:      "Row changes handled and committed, by source table and change kind.",
	}, []string{"table", "event_type"})

	changeFailuresCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loyalty",
		Subsystem: "changefeed",
		Name:      "change_failures_total",
		Help:      "Row changes left uncommitted because the handler failed, by source table.",
	}, []string{"table", "event_type"})

	decodeErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "loyalty",
		Subsystem: "changefeed",
		Name:      "malformed_records_total",
		Help:      "Records without change headers or a JSON payload, skipped per topic.",
	}, []string{"topic"})

	lagGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "loyalty",
		Subsystem: "changefeed",
		Name:      "apply_lag_seconds",
		Help:      "Seconds between a row change being published and being applied, per source table.",
	}, []string{"table"})
)

func init() {
	prometheus.MustRegister(changesAppliedCounter, changeFailuresCounter, decodeErrorCounter, lagGauge)
}

func recordApplied(msg Message, now time.Time) {
	changesAppliedCounter.WithLabelValues(msg.Table, msg.EventType).Inc()
	if !msg.Timestamp.IsZero() {
		lagGauge.WithLabelValues(msg.Table).Set(now.Sub(msg.Timestamp).Seconds())
	}
}

func recordChangeFailure(msg Message) {
	changeFailuresCounter.WithLabelValues(msg.Table, msg.EventType).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}
