package booking

import (
	"time"

	"github.com/google/uuid"
)

// Appointment statuses.
const (
	StatusScheduled = "scheduled"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
	StatusNoShow    = "no_show"
)

var validStatuses = map[string]bool{
	StatusScheduled: true,
	StatusCancelled: true,
	StatusCompleted: true,
	StatusNoShow:    true,
}

// Outcome results accepted when closing an appointment.
var validOutcomeResults = map[string]bool{
	StatusCompleted: true,
	StatusNoShow:    true,
}

// maxOutcomeNotesLen bounds the free-text notes on an outcome record.
const maxOutcomeNotesLen = 200

// Appointment is one reserved advisory slot. Exactly one of RequesterID and
// StaffUserID is set: citizen bookings carry the requester record, internal
// staff reservations carry the staff user instead.
type Appointment struct {
	ID      uuid.UUID `db:"id" json:"id"`
	Date    time.Time `db:"appt_date" json:"date"`
	Start   time.Time `db:"start_time" json:"start"`
	End     time.Time `db:"end_time" json:"end"`
	Status  string    `db:"status" json:"status"`
	Channel string    `db:"channel" json:"channel"`
	Topic   string    `db:"topic" json:"topic"`
	Notes   *string   `db:"notes" json:"notes,omitempty"`

	RequesterID *uuid.UUID `db:"requester_id" json:"requester_id,omitempty"`
	StaffUserID *string    `db:"staff_user_id" json:"staff_user_id,omitempty"`

	// Denormalized so the one-active-appointment rule survives re-intake.
	DocumentType   string `db:"document_type" json:"document_type"`
	DocumentNumber string `db:"document_number" json:"document_number"`

	MeetingEventID *string `db:"meeting_event_id" json:"-"`
	MeetingJoinURL *string `db:"meeting_join_url" json:"meeting_join_url,omitempty"`

	CancelledAt *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// IsScheduled reports whether the appointment still occupies its slot.
func (a *Appointment) IsScheduled() bool { return a.Status == StatusScheduled }

// Outcome records how a scheduled appointment ended. Codes follow the
// INT-YYYYMMDD-NNNN pattern with a per-day sequence starting at 0001.
type Outcome struct {
	ID            uuid.UUID `db:"id" json:"id"`
	AppointmentID uuid.UUID `db:"appointment_id" json:"appointment_id"`
	Code          string    `db:"code" json:"code"`
	Result        string    `db:"result" json:"result"`
	Notes         *string   `db:"notes" json:"notes,omitempty"`
	RecordedBy    string    `db:"recorded_by" json:"recorded_by"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// AvailabilityBlock removes slots from the bookable calendar, either a single
// slot (StartTime set) or a whole advisory day (StartTime nil).
type AvailabilityBlock struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Date      time.Time  `db:"block_date" json:"date"`
	StartTime *time.Time `db:"start_time" json:"start_time,omitempty"`
	Reason    string     `db:"reason" json:"reason"`
	CreatedBy string     `db:"created_by" json:"created_by"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// Covers reports whether the block removes the slot starting at start.
func (b *AvailabilityBlock) Covers(start time.Time) bool {
	y1, m1, d1 := b.Date.Date()
	y2, m2, d2 := start.Date()
	if y1 != y2 || m1 != m2 || d1 != d2 {
		return false
	}
	if b.StartTime == nil {
		return true
	}
	return b.StartTime.Equal(start)
}
