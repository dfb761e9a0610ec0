package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "create_attempts_total",
			Help:      "Booking creation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	lockWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "booking",
			Name:      "business_lock_seconds",
			Help:      "Time spent inside the per-business booking scope.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		},
	)

	slotQuery = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "booking",
			Name:      "slot_query_seconds",
			Help:      "Latency of available slot computations.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	statusChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "status_changes_total",
			Help:      "Booking status changes by target status.",
		},
		[]string{"status"},
	)

	settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "payment_settlements_total",
			Help:      "Payment settlements applied by resulting payment status.",
		},
		[]string{"payment_status"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingAttempts, lockWait, slotQuery, statusChanges, settlements)
	})
}

// IncCreateAttempt counts one creation attempt by outcome.
func IncCreateAttempt(outcome string) {
	bookingAttempts.WithLabelValues(outcome).Inc()
}

func ObserveLockHeld(d time.Duration) {
	lockWait.Observe(d.Seconds())
}

func ObserveSlotQuery(d time.Duration) {
	slotQuery.Observe(d.Seconds())
}

func IncStatusChange(status string) {
	statusChanges.WithLabelValues(status).Inc()
}

func IncSettlement(paymentStatus string) {
	settlements.WithLabelValues(paymentStatus).Inc()
}
