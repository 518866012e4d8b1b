package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservations_total",
			Help: "Reservation attempts by outcome",
		},
		[]string{"outcome"},
	)

	ticketsReserved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tickets_reserved_total",
			Help: "Total ticket units committed by successful reservations",
		},
	)

	reservationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reservation_duration_seconds",
			Help:    "Wall time of a reserve call, including lock waits",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)
)

// Metrics records reservation outcomes. A nil *Metrics is a no-op so tests
// and tools can run without a registry.
type Metrics struct{}

func New() *Metrics {
	return &Metrics{}
}

// ObserveReservation starts timing a reserve call; the returned func records
// the duration.
func (m *Metrics) ObserveReservation() func() {
	if m == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		reservationDuration.Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) ReservationCommitted(units int) {
	if m == nil {
		return
	}
	reservationsTotal.WithLabelValues("committed").Inc()
	ticketsReserved.Add(float64(units))
}

func (m *Metrics) ReservationRejected(reason string) {
	if m == nil {
		return
	}
	reservationsTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) ReservationFailed() {
	if m == nil {
		return
	}
	reservationsTotal.WithLabelValues("store_failure").Inc()
}
