package booking

import "fmt"

// ValidationError reports a request that fails the booking rules before it
// ever reaches the database.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ConflictError reports a booking that lost a race: the slot or the
// requester's active appointment constraint was taken by a concurrent
// transaction.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// NotCancellableError reports a cancellation attempt on an appointment that
// is outside its cancellation window or no longer scheduled.
type NotCancellableError struct {
	Message string
}

func (e *NotCancellableError) Error() string { return e.Message }

// AlreadyRecordedError reports an attempt to record a second outcome for the
// same appointment.
type AlreadyRecordedError struct{}

func (e *AlreadyRecordedError) Error() string {
	return "la cita ya tiene un resultado registrado"
}
