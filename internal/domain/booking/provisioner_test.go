package booking

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agendamiento/citas/internal/platform/meetings"
	"github.com/agendamiento/citas/internal/platform/notification"
)

type provisionerEnv struct {
	prov     *Provisioner
	provider *meetings.MockProvider
	appts    *mockApptRepo
	emails   *notification.MockEmailSender
	loc      *time.Location
}

func newProvisionerEnv(t *testing.T, provider *meetings.MockProvider) *provisionerEnv {
	t.Helper()
	loc, err := time.LoadLocation("America/Bogota")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	appts := newMockApptRepo()
	emails := &notification.MockEmailSender{}
	notifier := notification.NewNotifier(emails, notification.NewTemplateEngine(), zerolog.Nop())

	return &provisionerEnv{
		prov:     NewProvisioner(provider, appts, notifier, nil, zerolog.Nop(), loc, 3, time.Millisecond),
		provider: provider,
		appts:    appts,
		emails:   emails,
		loc:      loc,
	}
}

func (e *provisionerEnv) bookedEvent(t *testing.T) Event {
	t.Helper()
	appt := &Appointment{
		Date:           time.Date(2026, time.September, 8, 14, 20, 0, 0, e.loc),
		Start:          time.Date(2026, time.September, 8, 14, 20, 0, 0, e.loc),
		End:            time.Date(2026, time.September, 8, 14, 40, 0, 0, e.loc),
		Status:         StatusScheduled,
		Channel:        ChannelPublic,
		Topic:          "creación de empresa",
		DocumentType:   "CC",
		DocumentNumber: "1032456789",
	}
	if err := e.appts.Create(context.Background(), appt); err != nil {
		t.Fatalf("seed appointment: %v", err)
	}
	return Event{
		Kind:           EventBooked,
		Appointment:    appt,
		RecipientName:  "Laura Gómez",
		RecipientEmail: "laura@example.com",
	}
}

func TestProvisioner_ProvisionsAndEmailsJoinLink(t *testing.T) {
	env := newProvisionerEnv(t, &meetings.MockProvider{})
	evt := env.bookedEvent(t)

	env.prov.handle(context.Background(), evt)

	stored, err := env.appts.GetByID(context.Background(), evt.Appointment.ID)
	if err != nil {
		t.Fatalf("load appointment: %v", err)
	}
	if stored.MeetingEventID == nil || stored.MeetingJoinURL == nil {
		t.Fatal("expected meeting handle to be persisted")
	}

	calls := env.emails.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected one meeting-ready email, got %d", len(calls))
	}
	if !strings.Contains(calls[0].Body, *stored.MeetingJoinURL) {
		t.Errorf("expected join link in email, got %q", calls[0].Body)
	}
}

func TestProvisioner_RetriesTransientFailures(t *testing.T) {
	env := newProvisionerEnv(t, &meetings.MockProvider{FailCreates: 2})
	evt := env.bookedEvent(t)

	env.prov.handle(context.Background(), evt)

	if len(env.provider.Created()) != 1 {
		t.Fatal("expected the third attempt to succeed")
	}
	stored, _ := env.appts.GetByID(context.Background(), evt.Appointment.ID)
	if stored.MeetingEventID == nil {
		t.Error("expected meeting handle after retries")
	}
}

func TestProvisioner_ExhaustsRetryBudget(t *testing.T) {
	env := newProvisionerEnv(t, &meetings.MockProvider{FailCreates: 3})
	evt := env.bookedEvent(t)

	env.prov.handle(context.Background(), evt)

	stored, _ := env.appts.GetByID(context.Background(), evt.Appointment.ID)
	if stored.MeetingEventID != nil {
		t.Error("expected no meeting after exhausted retries")
	}
	if stored.Status != StatusScheduled {
		t.Error("a failed provisioning run must not touch the appointment status")
	}
	if len(env.emails.Calls()) != 0 {
		t.Error("expected no email without a meeting")
	}
}

func TestProvisioner_UnrecoverableStopsImmediately(t *testing.T) {
	provider := &meetings.MockProvider{FailCreates: 3, CreateErr: meetings.ErrUnrecoverable}
	env := newProvisionerEnv(t, provider)
	evt := env.bookedEvent(t)

	env.prov.handle(context.Background(), evt)

	// Only one of the three budgeted failures was consumed.
	if provider.FailCreates != 2 {
		t.Errorf("expected a single attempt, %d failures left", provider.FailCreates)
	}
}

func TestProvisioner_CancelTearsDownMeeting(t *testing.T) {
	env := newProvisionerEnv(t, &meetings.MockProvider{})
	evt := env.bookedEvent(t)
	env.prov.handle(context.Background(), evt)

	stored, _ := env.appts.GetByID(context.Background(), evt.Appointment.ID)
	eventID := *stored.MeetingEventID

	env.prov.handle(context.Background(), Event{
		Kind:        EventCancelled,
		Appointment: stored,
	})

	deleted := env.provider.Deleted()
	if len(deleted) != 1 || deleted[0] != eventID {
		t.Fatalf("expected meeting %s deleted, got %v", eventID, deleted)
	}
	after, _ := env.appts.GetByID(context.Background(), evt.Appointment.ID)
	if after.MeetingEventID != nil {
		t.Error("expected meeting handle cleared")
	}
}

func TestProvisioner_RescheduleUpdatesMeeting(t *testing.T) {
	env := newProvisionerEnv(t, &meetings.MockProvider{})
	evt := env.bookedEvent(t)
	env.prov.handle(context.Background(), evt)

	stored, _ := env.appts.GetByID(context.Background(), evt.Appointment.ID)
	stored.Start = stored.Start.Add(24 * time.Hour)
	stored.End = stored.End.Add(24 * time.Hour)

	env.prov.handle(context.Background(), Event{
		Kind:           EventRescheduled,
		Appointment:    stored,
		RecipientName:  "Laura Gómez",
		RecipientEmail: "laura@example.com",
	})

	updated := env.provider.Updated()
	if len(updated) != 1 || updated[0] != *stored.MeetingEventID {
		t.Fatalf("expected meeting update, got %v", updated)
	}

	calls := env.emails.Calls()
	last := calls[len(calls)-1]
	if !strings.Contains(last.Subject, "cambió") {
		t.Errorf("expected reschedule email, got %q", last.Subject)
	}
}

func TestProvisioner_RescheduleWithoutMeetingProvisions(t *testing.T) {
	env := newProvisionerEnv(t, &meetings.MockProvider{})
	evt := env.bookedEvent(t)
	evt.Kind = EventRescheduled

	env.prov.handle(context.Background(), evt)

	stored, _ := env.appts.GetByID(context.Background(), evt.Appointment.ID)
	if stored.MeetingEventID == nil {
		t.Error("expected a fresh meeting when none existed")
	}
}

func TestProvisioner_NotifyNeverBlocks(t *testing.T) {
	env := newProvisionerEnv(t, &meetings.MockProvider{})

	evt := Event{Kind: EventCancelled, Appointment: &Appointment{ID: uuid.New()}}
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			env.prov.Notify(evt)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full queue")
	}
}

func TestProvisioner_StartStopsOnContextCancel(t *testing.T) {
	env := newProvisionerEnv(t, &meetings.MockProvider{})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		env.prov.Start(ctx)
		close(stopped)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancellation")
	}
}
