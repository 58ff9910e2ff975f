// Package metrics provides Prometheus observability for the booking service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Appointment lifecycle counters by channel / reason
	AppointmentsBooked    *prometheus.CounterVec
	AppointmentsCancelled prometheus.Counter
	AppointmentsRejected  *prometheus.CounterVec
	OutcomesRecorded      *prometheus.CounterVec

	// Meeting provisioning
	ProvisionAttempts prometheus.Counter
	ProvisionFailures prometheus.Counter
	ProvisionLatency  prometheus.Histogram
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		AppointmentsBooked: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "citas_appointments_booked_total",
			Help: "Appointments successfully booked, by channel",
		}, []string{"channel"}),

		AppointmentsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "citas_appointments_cancelled_total",
			Help: "Appointments cancelled by requesters or staff",
		}),

		AppointmentsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "citas_appointments_rejected_total",
			Help: "Booking attempts rejected, by reason (validation, conflict)",
		}, []string{"reason"}),

		OutcomesRecorded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "citas_outcomes_recorded_total",
			Help: "Advisory outcomes recorded, by result",
		}, []string{"result"}),

		ProvisionAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "citas_meeting_provision_attempts_total",
			Help: "Meeting provisioning attempts against the calendar provider",
		}),

		ProvisionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "citas_meeting_provision_failures_total",
			Help: "Meeting provisioning runs that exhausted their retry budget",
		}),

		ProvisionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "citas_meeting_provision_duration_seconds",
			Help:    "Duration of a full provisioning run including retries",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// IncrementBooked records a successful booking on the given channel.
func (m *Metrics) IncrementBooked(channel string) {
	if m != nil {
		m.AppointmentsBooked.WithLabelValues(channel).Inc()
	}
}

// IncrementCancelled records a cancellation.
func (m *Metrics) IncrementCancelled() {
	if m != nil {
		m.AppointmentsCancelled.Inc()
	}
}

// IncrementRejected records a rejected booking attempt.
func (m *Metrics) IncrementRejected(reason string) {
	if m != nil {
		m.AppointmentsRejected.WithLabelValues(reason).Inc()
	}
}

// IncrementOutcome records a recorded outcome.
func (m *Metrics) IncrementOutcome(result string) {
	if m != nil {
		m.OutcomesRecorded.WithLabelValues(result).Inc()
	}
}

// IncrementProvisionAttempt records one call to the meeting provider.
func (m *Metrics) IncrementProvisionAttempt() {
	if m != nil {
		m.ProvisionAttempts.Inc()
	}
}

// IncrementProvisionFailure records an exhausted provisioning run.
func (m *Metrics) IncrementProvisionFailure() {
	if m != nil {
		m.ProvisionFailures.Inc()
	}
}

// ObserveProvisionLatency records the duration of a provisioning run.
func (m *Metrics) ObserveProvisionLatency(d time.Duration) {
	if m != nil {
		m.ProvisionLatency.Observe(d.Seconds())
	}
}
