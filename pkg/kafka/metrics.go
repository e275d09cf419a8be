package kafka

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

var (
	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auth",
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Domain events handed to Kafka, by topic and outcome.",
		},
		[]string{"topic", "outcome"},
	)

	publishLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "auth",
			Subsystem: "events",
			Name:      "publish_seconds",
			Help:      "Time spent in a single WriteMessages call.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10),
		},
		[]string{"topic"},
	)
)

func observePublish(topic string, start time.Time, err error) {
	publishLatency.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
	}
	eventsPublished.WithLabelValues(topic, outcome).Inc()
}
