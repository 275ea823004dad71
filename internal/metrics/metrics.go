package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// message results
const (
	ResultStored   = "stored"
	ResultRejected = "rejected"
	ResultTooLarge = "too_large"
	ResultAborted  = "aborted"
)

var (
	Connections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smtpdump_connections_total",
			Help: "Accepted SMTP connections.",
		},
	)

	AcceptErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smtpdump_accept_errors_total",
			Help: "Errors returned by the listener while accepting.",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "smtpdump_sessions_active",
			Help: "SMTP sessions currently being served.",
		},
	)

	Commands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smtpdump_commands_total",
			Help: "SMTP commands received, by verb.",
		},
		[]string{"verb"},
	)

	Messages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smtpdump_messages_total",
			Help: "Completed or abandoned DATA transfers, by result.",
		},
		[]string{"result"},
	)

	Timeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "smtpdump_timeouts_total",
			Help: "Sessions closed because the peer went quiet.",
		},
	)

	MessageSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smtpdump_message_size_bytes",
			Help:    "Decoded size of stored messages.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 9),
		},
	)

	PublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smtpdump_publish_duration_seconds",
			Help:    "Time spent staging and publishing a message into the inbox.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.100, 0.5, 1, 5},
		},
	)
)
