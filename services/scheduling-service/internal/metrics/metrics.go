package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes counters and histograms for the scheduling core. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	bookings       *prometheus.CounterVec
	bookingRetries prometheus.Counter
	transitions    *prometheus.CounterVec
	slotQueries    *prometheus.CounterVec
	sweepRuns      *prometheus.CounterVec
	sweepDuration  prometheus.Histogram
	linkFailures   prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicsched",
			Subsystem: "booking",
			Name:      "operations_total",
			Help:      "Booking coordinator operations by operation and outcome",
		}, []string{"operation", "outcome"}),
		bookingRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicsched",
			Subsystem: "booking",
			Name:      "serialization_retries_total",
			Help:      "Booking transactions retried after a serialization failure or deadlock",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicsched",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Appointment status transitions by target status and trigger",
		}, []string{"to", "trigger"}),
		slotQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicsched",
			Subsystem: "slots",
			Name:      "queries_total",
			Help:      "Slot listings by result",
		}, []string{"result"}),
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicsched",
			Subsystem: "sweeper",
			Name:      "runs_total",
			Help:      "Status sweeper ticks by result",
		}, []string{"result"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinicsched",
			Subsystem: "sweeper",
			Name:      "run_duration_seconds",
			Help:      "Duration of status sweeper ticks",
			Buckets:   prometheus.DefBuckets,
		}),
		linkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicsched",
			Subsystem: "booking",
			Name:      "patient_provider_link_failures_total",
			Help:      "Best-effort patient/provider link writes that failed",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookings, m.bookingRetries, m.transitions, m.slotQueries, m.sweepRuns, m.sweepDuration, m.linkFailures)
	return m
}

func (m *Metrics) ObserveBooking(operation, outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.bookingRetries.Inc()
}

func (m *Metrics) ObserveTransition(to, trigger string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.transitions.WithLabelValues(to, trigger).Add(float64(n))
}

func (m *Metrics) ObserveSlotQuery(result string) {
	if m == nil {
		return
	}
	m.slotQueries.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveSweep(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(result).Inc()
	m.sweepDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveLinkFailure() {
	if m == nil {
		return
	}
	m.linkFailures.Inc()
}
