package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/agendamiento/citas/internal/platform/meetings"
	"github.com/agendamiento/citas/internal/platform/metrics"
	"github.com/agendamiento/citas/internal/platform/notification"
)

// Provisioner attaches online meetings to booked appointments asynchronously.
// It listens for lifecycle events, retries transient provider failures a fixed
// number of times and never blocks the booking path: a booking whose meeting
// cannot be provisioned stays booked.
type Provisioner struct {
	provider   meetings.Provider
	appts      AppointmentRepository
	notifier   *notification.Notifier
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	loc        *time.Location
	maxRetries int
	retryDelay time.Duration

	queue chan Event
}

// NewProvisioner builds a Provisioner. maxRetries is the total number of
// provider attempts per event; retryDelay is the fixed pause between them.
func NewProvisioner(
	provider meetings.Provider,
	appts AppointmentRepository,
	notifier *notification.Notifier,
	m *metrics.Metrics,
	logger zerolog.Logger,
	loc *time.Location,
	maxRetries int,
	retryDelay time.Duration,
) *Provisioner {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Provisioner{
		provider:   provider,
		appts:      appts,
		notifier:   notifier,
		metrics:    m,
		logger:     logger,
		loc:        loc,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		queue:      make(chan Event, 64),
	}
}

// Notify implements Listener. It never blocks; when the queue is full the
// event is dropped and logged, leaving the appointment without a meeting
// rather than stalling the request path.
func (p *Provisioner) Notify(evt Event) {
	select {
	case p.queue <- evt:
	default:
		p.logger.Error().
			Str("kind", evt.Kind).
			Str("appointment_id", evt.Appointment.ID.String()).
			Msg("provisioning queue full, event dropped")
	}
}

// Start consumes lifecycle events until the context is cancelled. Run it in
// its own goroutine.
func (p *Provisioner) Start(ctx context.Context) {
	p.logger.Info().Msg("meeting provisioner started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("meeting provisioner stopped")
			return
		case evt := <-p.queue:
			p.handle(ctx, evt)
		}
	}
}

func (p *Provisioner) handle(ctx context.Context, evt Event) {
	switch evt.Kind {
	case EventBooked:
		p.provision(ctx, evt)
	case EventCancelled:
		p.teardown(ctx, evt)
	case EventRescheduled:
		if evt.Appointment.MeetingEventID == nil {
			p.provision(ctx, evt)
			return
		}
		p.move(ctx, evt)
	}
}

func (p *Provisioner) spec(evt Event) meetings.MeetingSpec {
	appt := evt.Appointment
	return meetings.MeetingSpec{
		Subject:       fmt.Sprintf("Asesoría virtual %s", appt.Start.In(p.loc).Format("2006-01-02 15:04")),
		Description:   fmt.Sprintf("Asesoría sobre %s agendada a través del sistema de citas.", appt.Topic),
		Start:         appt.Start.In(p.loc),
		End:           appt.End.In(p.loc),
		Timezone:      p.loc.String(),
		AttendeeName:  evt.RecipientName,
		AttendeeEmail: evt.RecipientEmail,
	}
}

// provision creates the meeting with bounded retries, persists the handle and
// emails the join link.
func (p *Provisioner) provision(ctx context.Context, evt Event) {
	appt := evt.Appointment
	started := time.Now()
	defer func() { p.metrics.ObserveProvisionLatency(time.Since(started)) }()

	var handle *meetings.Handle
	var err error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		p.metrics.IncrementProvisionAttempt()
		handle, err = p.provider.CreateMeeting(ctx, p.spec(evt))
		if err == nil {
			break
		}
		if errors.Is(err, meetings.ErrUnrecoverable) {
			p.logger.Error().Err(err).
				Str("appointment_id", appt.ID.String()).
				Int("attempt", attempt).
				Msg("unrecoverable provisioning error, giving up")
			p.metrics.IncrementProvisionFailure()
			return
		}
		p.logger.Warn().Err(err).
			Str("appointment_id", appt.ID.String()).
			Int("attempt", attempt).
			Msg("meeting provisioning failed")
		if attempt < p.maxRetries {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.retryDelay):
			}
		}
	}
	if err != nil {
		p.metrics.IncrementProvisionFailure()
		p.logger.Error().Err(err).
			Str("appointment_id", appt.ID.String()).
			Int("attempts", p.maxRetries).
			Msg("meeting provisioning exhausted retries")
		return
	}

	if err := p.appts.SetMeeting(ctx, appt.ID, handle.EventID, handle.JoinURL); err != nil {
		p.logger.Error().Err(err).
			Str("appointment_id", appt.ID.String()).
			Msg("persist meeting handle")
		return
	}
	appt.MeetingEventID = &handle.EventID
	appt.MeetingJoinURL = &handle.JoinURL

	p.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("event_id", handle.EventID).
		Msg("meeting provisioned")

	p.notifier.Send(ctx, notification.TemplateMeetingReady, evt.RecipientEmail, map[string]string{
		"name":     evt.RecipientName,
		"date":     appt.Start.In(p.loc).Format("2006-01-02"),
		"start":    appt.Start.In(p.loc).Format("15:04"),
		"join_url": handle.JoinURL,
	})
}

// teardown deletes the meeting behind a cancelled appointment. Best effort:
// a failed delete only leaves an orphaned calendar event.
func (p *Provisioner) teardown(ctx context.Context, evt Event) {
	appt := evt.Appointment
	if appt.MeetingEventID == nil {
		return
	}
	if err := p.provider.DeleteMeeting(ctx, *appt.MeetingEventID); err != nil {
		p.logger.Warn().Err(err).
			Str("appointment_id", appt.ID.String()).
			Str("event_id", *appt.MeetingEventID).
			Msg("delete meeting")
		return
	}
	if err := p.appts.ClearMeeting(ctx, appt.ID); err != nil {
		p.logger.Error().Err(err).
			Str("appointment_id", appt.ID.String()).
			Msg("clear meeting handle")
	}
}

// move updates the existing meeting to the appointment's new slot and emails
// the new schedule with the unchanged join link.
func (p *Provisioner) move(ctx context.Context, evt Event) {
	appt := evt.Appointment
	if err := p.provider.UpdateMeeting(ctx, *appt.MeetingEventID, p.spec(evt)); err != nil {
		p.logger.Error().Err(err).
			Str("appointment_id", appt.ID.String()).
			Str("event_id", *appt.MeetingEventID).
			Msg("update meeting")
		return
	}

	joinURL := ""
	if appt.MeetingJoinURL != nil {
		joinURL = *appt.MeetingJoinURL
	}
	p.notifier.Send(ctx, notification.TemplateMeetingUpdated, evt.RecipientEmail, map[string]string{
		"name":     evt.RecipientName,
		"date":     appt.Start.In(p.loc).Format("2006-01-02"),
		"start":    appt.Start.In(p.loc).Format("15:04"),
		"end":      appt.End.In(p.loc).Format("15:04"),
		"join_url": joinURL,
	})
}
