// Package metrics exposes the server's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mailbox"

var (
	stanzas = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stanzas_total",
		Help:      "Top-level stanzas dispatched, by name and result.",
	}, []string{"stanza", "result"})

	authOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_signed_total",
		Help:      "Signature verification attempts, by login branch and status.",
	}, []string{"branch", "status"})

	challenges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_challenges_total",
		Help:      "Challenge requests, by response status.",
	}, []string{"status"})

	ingested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "put_message_total",
		Help:      "Message ingestion transactions, by status.",
	}, []string{"status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_duration_seconds",
		Help:      "Time spent processing one stanza document.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"transport"})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "websocket_sessions",
		Help:      "Open websocket connections.",
	})
)

func Stanza(name, result string) {
	stanzas.WithLabelValues(name, result).Inc()
}

func Auth(branch, status string) {
	authOutcomes.WithLabelValues(branch, status).Inc()
}

func Challenge(status string) {
	challenges.WithLabelValues(status).Inc()
}

func Ingest(status string) {
	ingested.WithLabelValues(status).Inc()
}

func ObserveRequest(transport string, seconds float64) {
	requestDuration.WithLabelValues(transport).Observe(seconds)
}

func WebsocketOpened() {
	sessionsActive.Inc()
}

func WebsocketClosed() {
	sessionsActive.Dec()
}
