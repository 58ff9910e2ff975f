package booking

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/agendamiento/citas/internal/domain/requester"
	"github.com/agendamiento/citas/internal/platform/metrics"
	"github.com/agendamiento/citas/internal/platform/notification"
)

// Event kinds published to listeners after a lifecycle change commits.
const (
	EventBooked      = "booked"
	EventCancelled   = "cancelled"
	EventRescheduled = "rescheduled"
)

// Event describes a committed lifecycle change. Listeners receive it after
// the database write succeeds.
type Event struct {
	Kind           string
	Appointment    *Appointment
	RecipientName  string
	RecipientEmail string
}

// Listener consumes lifecycle events. Notify must not block.
type Listener interface {
	Notify(evt Event)
}

// Service implements the appointment lifecycle.
type Service struct {
	appts      AppointmentRepository
	outcomes   OutcomeRepository
	blocks     BlockRepository
	requesters *requester.Service
	cal        *Calendar
	cancelLead time.Duration
	notifier   *notification.Notifier
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	listeners  []Listener

	now func() time.Time
}

// NewService wires the booking service.
func NewService(
	appts AppointmentRepository,
	outcomes OutcomeRepository,
	blocks BlockRepository,
	requesters *requester.Service,
	cal *Calendar,
	cancelLead time.Duration,
	notifier *notification.Notifier,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Service {
	return &Service{
		appts:      appts,
		outcomes:   outcomes,
		blocks:     blocks,
		requesters: requesters,
		cal:        cal,
		cancelLead: cancelLead,
		notifier:   notifier,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// AddListener registers a lifecycle listener. Not safe to call after the
// service starts handling requests.
func (s *Service) AddListener(l Listener) {
	s.listeners = append(s.listeners, l)
}

func (s *Service) publish(evt Event) {
	for _, l := range s.listeners {
		l.Notify(evt)
	}
}

// BookRequest carries one booking attempt. Citizen bookings provide Intake;
// internal staff holds provide StaffUserID instead.
type BookRequest struct {
	Intake      *requester.Requester
	StaffUserID string
	Start       time.Time
	Channel     string
	Topic       string
	Notes       *string
}

// Book reserves a slot. Intake and appointment are written as a pair: when
// the appointment is rejected after the identity record was stored, the
// record is removed again so failed attempts leave no trace.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if req.Channel != ChannelPublic && req.Channel != ChannelStaff {
		s.metrics.IncrementRejected("validation")
		return nil, &ValidationError{Field: "channel", Message: "canal de agendamiento inválido"}
	}
	if (req.Intake == nil) == (req.StaffUserID == "") {
		s.metrics.IncrementRejected("validation")
		return nil, &ValidationError{Message: "la cita debe tener exactamente un titular: ciudadano o asesor"}
	}
	if req.Intake == nil && req.Channel == ChannelPublic {
		s.metrics.IncrementRejected("validation")
		return nil, &ValidationError{Message: "las reservas internas solo están disponibles para asesores"}
	}
	if req.Topic == "" {
		s.metrics.IncrementRejected("validation")
		return nil, &ValidationError{Field: "topic", Message: "el tema de la asesoría es obligatorio"}
	}

	now := s.now()
	slot, err := s.cal.ValidateStart(req.Start, now, req.Channel)
	if err != nil {
		s.metrics.IncrementRejected("validation")
		return nil, err
	}
	if err := s.checkBlocked(ctx, slot.Start); err != nil {
		s.metrics.IncrementRejected("validation")
		return nil, err
	}

	appt := &Appointment{
		Date:    slot.Start,
		Start:   slot.Start,
		End:     slot.End,
		Status:  StatusScheduled,
		Channel: req.Channel,
		Topic:   req.Topic,
		Notes:   req.Notes,
	}

	var intakeID uuid.UUID
	if req.Intake != nil {
		// Cheap pre-check; the partial unique index has the final word.
		if _, err := s.appts.ActiveByDocument(ctx, strings.ToUpper(strings.TrimSpace(req.Intake.DocumentType)),
			strings.TrimSpace(req.Intake.DocumentNumber), now); err == nil {
			s.metrics.IncrementRejected("conflict")
			return nil, &ConflictError{Message: "el documento ya tiene una cita vigente"}
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}

		if err := s.requesters.Register(ctx, req.Intake); err != nil {
			s.metrics.IncrementRejected("validation")
			return nil, &ValidationError{Message: err.Error()}
		}
		intakeID = req.Intake.ID

		rid := req.Intake.ID
		appt.RequesterID = &rid
		appt.DocumentType = req.Intake.DocumentType
		appt.DocumentNumber = req.Intake.DocumentNumber
	} else {
		staffID := req.StaffUserID
		appt.StaffUserID = &staffID
	}

	if err := s.appts.Create(ctx, appt); err != nil {
		if intakeID != uuid.Nil {
			if rerr := s.requesters.Remove(ctx, intakeID); rerr != nil {
				s.logger.Error().Err(rerr).Str("requester_id", intakeID.String()).
					Msg("roll back intake record")
			}
		}
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			s.metrics.IncrementRejected("conflict")
		}
		return nil, err
	}

	s.metrics.IncrementBooked(req.Channel)
	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("channel", appt.Channel).
		Time("start", appt.Start).
		Msg("appointment booked")

	if req.Intake != nil {
		s.notifier.Send(ctx, notification.TemplateAppointmentConfirmed, req.Intake.Email, map[string]string{
			"name":         req.Intake.FullName(),
			"date":         slot.Start.Format("2006-01-02"),
			"start":        slot.Start.Format("15:04"),
			"end":          slot.End.Format("15:04"),
			"cancel_hours": formatLead(s.cancelLead),
		})
		s.publish(Event{
			Kind:           EventBooked,
			Appointment:    appt,
			RecipientName:  req.Intake.FullName(),
			RecipientEmail: req.Intake.Email,
		})
	}
	return appt, nil
}

func (s *Service) checkBlocked(ctx context.Context, start time.Time) error {
	dayStart := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, s.cal.Location())
	blocks, err := s.blocks.ListInRange(ctx, dayStart, dayStart)
	if err != nil {
		return err
	}
	for _, b := range blocks {
		if b.Covers(start) {
			return &ValidationError{Field: "start_time", Message: "el horario no está disponible"}
		}
	}
	return nil
}

// LookupActive finds the requester's scheduled appointment after verifying
// the supplied contact details. Mismatches return a generic error.
func (s *Service) LookupActive(ctx context.Context, docType, docNumber, phone, email string) (*Appointment, error) {
	docType = strings.ToUpper(strings.TrimSpace(docType))
	docNumber = strings.TrimSpace(docNumber)

	rec, err := s.requesters.Latest(ctx, docType, docNumber)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &requester.IdentityMismatchError{}
	}
	if err != nil {
		return nil, err
	}
	if err := s.requesters.VerifyContact(rec, phone, email); err != nil {
		return nil, err
	}

	appt, err := s.appts.ActiveByDocument(ctx, docType, docNumber, s.now())
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ValidationError{Message: "no hay una cita vigente para este documento"}
	}
	if err != nil {
		return nil, err
	}
	return appt, nil
}

// CancelByRequester cancels the caller's scheduled appointment after identity
// verification, enforcing the cancellation lead time.
func (s *Service) CancelByRequester(ctx context.Context, docType, docNumber, phone, email string) (*Appointment, error) {
	appt, err := s.LookupActive(ctx, docType, docNumber, phone, email)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if appt.Start.Sub(now) < s.cancelLead {
		return nil, &NotCancellableError{
			Message: "la cita solo puede cancelarse con al menos " + formatLead(s.cancelLead) + " de antelación",
		}
	}
	return s.cancel(ctx, appt, now)
}

// CancelByStaff cancels any scheduled appointment without a lead-time check.
func (s *Service) CancelByStaff(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !appt.IsScheduled() {
		return nil, &NotCancellableError{Message: "la cita ya no está vigente"}
	}
	return s.cancel(ctx, appt, s.now())
}

func (s *Service) cancel(ctx context.Context, appt *Appointment, now time.Time) (*Appointment, error) {
	if err := s.appts.UpdateStatus(ctx, appt.ID, StatusCancelled, &now); err != nil {
		return nil, err
	}
	appt.Status = StatusCancelled
	appt.CancelledAt = &now

	s.metrics.IncrementCancelled()
	s.logger.Info().Str("appointment_id", appt.ID.String()).Msg("appointment cancelled")

	name, email := s.recipient(ctx, appt)
	if email != "" {
		s.notifier.Send(ctx, notification.TemplateAppointmentCancelled, email, map[string]string{
			"name":  name,
			"date":  appt.Start.In(s.cal.Location()).Format("2006-01-02"),
			"start": appt.Start.In(s.cal.Location()).Format("15:04"),
		})
	}
	s.publish(Event{Kind: EventCancelled, Appointment: appt, RecipientName: name, RecipientEmail: email})
	return appt, nil
}

func (s *Service) recipient(ctx context.Context, appt *Appointment) (name, email string) {
	if appt.RequesterID == nil {
		return "", ""
	}
	rec, err := s.requesters.Get(ctx, *appt.RequesterID)
	if err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", appt.ID.String()).Msg("load recipient")
		return "", ""
	}
	return rec.FullName(), rec.Email
}

// RecordOutcome closes a scheduled appointment with its advisory result and
// assigns the daily sequential code.
func (s *Service) RecordOutcome(ctx context.Context, appointmentID uuid.UUID, result string, notes *string, recordedBy string) (*Outcome, error) {
	if !validOutcomeResults[result] {
		return nil, &ValidationError{Field: "result", Message: "resultado inválido"}
	}
	if notes != nil && utf8.RuneCountInString(*notes) > maxOutcomeNotesLen {
		return nil, &ValidationError{Field: "notes", Message: "las observaciones no pueden superar 200 caracteres"}
	}
	appt, err := s.appts.GetByID(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appt.Status == StatusCancelled {
		return nil, &ValidationError{Field: "status", Message: "la cita no está vigente"}
	}
	if !appt.IsScheduled() {
		return nil, &AlreadyRecordedError{}
	}

	o := &Outcome{
		AppointmentID: appointmentID,
		Result:        result,
		Notes:         notes,
		RecordedBy:    recordedBy,
	}
	if err := s.outcomes.Record(ctx, o); err != nil {
		return nil, err
	}

	s.metrics.IncrementOutcome(result)
	s.logger.Info().
		Str("appointment_id", appointmentID.String()).
		Str("code", o.Code).
		Str("result", result).
		Msg("outcome recorded")
	return o, nil
}

// Reschedule moves a scheduled appointment to a new slot. Staff only.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newStart time.Time) (*Appointment, error) {
	appt, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !appt.IsScheduled() {
		return nil, &NotCancellableError{Message: "solo las citas vigentes pueden reprogramarse"}
	}

	now := s.now()
	slot, err := s.cal.ValidateStart(newStart, now, ChannelStaff)
	if err != nil {
		return nil, err
	}
	if err := s.checkBlocked(ctx, slot.Start); err != nil {
		return nil, err
	}

	if err := s.appts.Reschedule(ctx, id, slot.Start, slot.Start, slot.End); err != nil {
		return nil, err
	}
	appt.Date = slot.Start
	appt.Start = slot.Start
	appt.End = slot.End

	s.logger.Info().
		Str("appointment_id", id.String()).
		Time("new_start", slot.Start).
		Msg("appointment rescheduled")

	name, email := s.recipient(ctx, appt)
	s.publish(Event{Kind: EventRescheduled, Appointment: appt, RecipientName: name, RecipientEmail: email})
	return appt, nil
}

// AvailableSlots returns the bookable slots on a date for a channel: the
// calendar's slots minus occupied ones and availability blocks.
func (s *Service) AvailableSlots(ctx context.Context, year int, month time.Month, day int, channel string) ([]Slot, error) {
	slots := s.cal.BookableSlots(year, month, day, s.now(), channel)
	if len(slots) == 0 {
		return nil, nil
	}

	dayStart := time.Date(year, month, day, 0, 0, 0, 0, s.cal.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	taken, err := s.appts.ScheduledStarts(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	occupied := make(map[int64]bool, len(taken))
	for _, t := range taken {
		occupied[t.Unix()] = true
	}

	blocks, err := s.blocks.ListInRange(ctx, dayStart, dayStart)
	if err != nil {
		return nil, err
	}

	var out []Slot
	for _, slot := range slots {
		if occupied[slot.Start.Unix()] {
			continue
		}
		blocked := false
		for _, b := range blocks {
			if b.Covers(slot.Start) {
				blocked = true
				break
			}
		}
		if !blocked {
			out = append(out, slot)
		}
	}
	return out, nil
}

// Get returns an appointment by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appts.GetByID(ctx, id)
}

// DayAgenda lists every appointment on a date, for the staff console.
func (s *Service) DayAgenda(ctx context.Context, date time.Time) ([]*Appointment, error) {
	return s.appts.ListByDay(ctx, date)
}

// DayOutcomes lists the outcomes recorded on a date, in code order.
func (s *Service) DayOutcomes(ctx context.Context, date time.Time) ([]*Outcome, error) {
	return s.outcomes.ListByDay(ctx, date)
}

// CreateBlock removes a slot or whole day from the bookable calendar.
func (s *Service) CreateBlock(ctx context.Context, b *AvailabilityBlock) error {
	if b.Reason == "" {
		return &ValidationError{Field: "reason", Message: "el motivo del bloqueo es obligatorio"}
	}
	if !isAdvisoryDay(b.Date.Weekday()) {
		return &ValidationError{Field: "date", Message: "solo pueden bloquearse días de atención"}
	}
	if b.StartTime != nil {
		slot, err := s.cal.ValidateStart(*b.StartTime, time.Time{}, ChannelStaff)
		if err != nil {
			return err
		}
		start := slot.Start
		b.StartTime = &start
	}
	return s.blocks.Create(ctx, b)
}

// DeleteBlock removes an availability block.
func (s *Service) DeleteBlock(ctx context.Context, id uuid.UUID) error {
	return s.blocks.Delete(ctx, id)
}

// ListBlocks returns blocks between two dates inclusive.
func (s *Service) ListBlocks(ctx context.Context, from, to time.Time) ([]*AvailabilityBlock, error) {
	return s.blocks.ListInRange(ctx, from, to)
}
