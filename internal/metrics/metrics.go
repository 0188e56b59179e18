package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadbook",
			Name:      "http_requests_total",
			Help:      "Count of HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	bookingCommitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadbook",
			Name:      "booking_committed_total",
			Help:      "Count of booking commit attempts by outcome.",
		},
		[]string{"outcome"},
	)

	bookingCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadbook",
			Name:      "booking_cancelled_total",
			Help:      "Count of booking cancellations by outcome.",
		},
		[]string{"outcome"},
	)

	bookingConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "leadbook",
			Name:      "booking_conflicts_total",
			Help:      "Count of commits rejected by the server as conflicts.",
		},
	)

	feedErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "leadbook",
			Name:      "feed_errors_total",
			Help:      "Count of upstream feed call failures by operation.",
		},
		[]string{"op"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, bookingCommitted, bookingCancelled, bookingConflicts, feedErrors)
	})
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncCommit(outcome string) {
	bookingCommitted.WithLabelValues(outcome).Inc()
}

func IncCancel(outcome string) {
	bookingCancelled.WithLabelValues(outcome).Inc()
}

func IncConflict() {
	bookingConflicts.Inc()
}

func IncFeedError(op string) {
	feedErrors.WithLabelValues(op).Inc()
}
