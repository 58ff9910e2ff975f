package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AppointmentRepository persists appointments. Create and Reschedule surface
// ConflictError when a unique constraint rejects the slot or the requester's
// active appointment.
type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// ActiveByDocument returns the scheduled appointment for a document with
	// a start on or after the given instant, or pgx.ErrNoRows.
	ActiveByDocument(ctx context.Context, docType, docNumber string, from time.Time) (*Appointment, error)
	// ListByDay returns all appointments whose slot falls on the given date.
	ListByDay(ctx context.Context, date time.Time) ([]*Appointment, error)
	// ScheduledStarts returns the occupied slot starts in [from, to).
	ScheduledStarts(ctx context.Context, from, to time.Time) ([]time.Time, error)
	// UpdateStatus transitions a scheduled appointment to a terminal status.
	// Terminal states are final: when the row is no longer scheduled the
	// update is rejected with NotCancellableError.
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, cancelledAt *time.Time) error
	// Reschedule moves a scheduled appointment to a new slot. A row that is
	// no longer scheduled is rejected with NotCancellableError.
	Reschedule(ctx context.Context, id uuid.UUID, date, start, end time.Time) error
	SetMeeting(ctx context.Context, id uuid.UUID, eventID, joinURL string) error
	ClearMeeting(ctx context.Context, id uuid.UUID) error
}

// OutcomeRepository persists advisory outcomes. Record assigns the daily
// sequential code, inserts the outcome and flips the appointment status in a
// single transaction; a duplicate appointment surfaces AlreadyRecordedError.
type OutcomeRepository interface {
	Record(ctx context.Context, o *Outcome) error
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Outcome, error)
	ListByDay(ctx context.Context, date time.Time) ([]*Outcome, error)
}

// BlockRepository persists availability blocks.
type BlockRepository interface {
	Create(ctx context.Context, b *AvailabilityBlock) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ListInRange returns blocks whose date falls in [from, to].
	ListInRange(ctx context.Context, from, to time.Time) ([]*AvailabilityBlock, error)
}
