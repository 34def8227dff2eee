package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "slotbook"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	grpcRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "gRPC requests by method and status code.",
		},
		[]string{"method", "code"},
	)

	bookingAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_attempts_total",
			Help:      "Booking commits by outcome (ok or rejection kind).",
		},
		[]string{"operation", "result"},
	)

	slotCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_cache_lookups_total",
			Help:      "Slot cache lookups by result.",
		},
		[]string{"result"},
	)

	slotGeneration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "slot_generation_seconds",
			Help:      "Time spent generating one slot listing.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	holdsSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "holds_swept_total",
			Help:      "Expired holds removed by the sweeper.",
		},
	)

	eventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events published by type.",
		},
		[]string{"type"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			grpcRequests,
			bookingAttempts,
			slotCache,
			slotGeneration,
			holdsSwept,
			eventsPublished,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncGRPC(method, code string) {
	grpcRequests.WithLabelValues(method, code).Inc()
}

// IncBooking records one create/reschedule/update outcome.
func IncBooking(operation, result string) {
	bookingAttempts.WithLabelValues(operation, result).Inc()
}

// IncSlotCache records a hit, miss or error.
func IncSlotCache(result string) {
	slotCache.WithLabelValues(result).Inc()
}

func ObserveSlotGeneration(d time.Duration) {
	slotGeneration.Observe(d.Seconds())
}

func AddHoldsSwept(n int64) {
	holdsSwept.Add(float64(n))
}

func IncEvent(eventType string) {
	eventsPublished.WithLabelValues(eventType).Inc()
}
