package booking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/agendamiento/citas/internal/domain/requester"
)

type mockApptRepo struct {
	mu    sync.Mutex
	appts map[uuid.UUID]*Appointment
}

func newMockApptRepo() *mockApptRepo {
	return &mockApptRepo{appts: make(map[uuid.UUID]*Appointment)}
}

func (m *mockApptRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.appts {
		if other.Status != StatusScheduled {
			continue
		}
		if other.Start.Equal(a.Start) {
			return &ConflictError{Message: "el horario seleccionado ya fue tomado"}
		}
		if a.DocumentNumber != "" &&
			other.DocumentType == a.DocumentType && other.DocumentNumber == a.DocumentNumber {
			return &ConflictError{Message: "el documento ya tiene una cita vigente"}
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockApptRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (m *mockApptRepo) ActiveByDocument(_ context.Context, docType, docNumber string, from time.Time) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *Appointment
	for _, a := range m.appts {
		if a.Status == StatusScheduled && a.DocumentType == docType && a.DocumentNumber == docNumber &&
			!a.Start.Before(from) {
			if found == nil || a.Start.Before(found.Start) {
				found = a
			}
		}
	}
	if found == nil {
		return nil, pgx.ErrNoRows
	}
	cp := *found
	return &cp, nil
}

func (m *mockApptRepo) ListByDay(_ context.Context, date time.Time) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	y, mo, d := date.Date()
	var out []*Appointment
	for _, a := range m.appts {
		ay, am, ad := a.Start.Date()
		if ay == y && am == mo && ad == d {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (m *mockApptRepo) ScheduledStarts(_ context.Context, from, to time.Time) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Time
	for _, a := range m.appts {
		if a.Status == StatusScheduled && !a.Start.Before(from) && a.Start.Before(to) {
			out = append(out, a.Start)
		}
	}
	return out, nil
}

func (m *mockApptRepo) UpdateStatus(_ context.Context, id uuid.UUID, status string, cancelledAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if a.Status != StatusScheduled {
		return &NotCancellableError{Message: "la cita ya no está vigente"}
	}
	a.Status = status
	a.CancelledAt = cancelledAt
	return nil
}

func (m *mockApptRepo) Reschedule(_ context.Context, id uuid.UUID, date, start, end time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.appts {
		if other.ID != id && other.Status == StatusScheduled && other.Start.Equal(start) {
			return &ConflictError{Message: "el horario seleccionado ya fue tomado"}
		}
	}
	a, ok := m.appts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if a.Status != StatusScheduled {
		return &NotCancellableError{Message: "solo las citas vigentes pueden reprogramarse"}
	}
	a.Date = date
	a.Start = start
	a.End = end
	return nil
}

func (m *mockApptRepo) SetMeeting(_ context.Context, id uuid.UUID, eventID, joinURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.MeetingEventID = &eventID
	a.MeetingJoinURL = &joinURL
	return nil
}

func (m *mockApptRepo) ClearMeeting(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return pgx.ErrNoRows
	}
	a.MeetingEventID = nil
	a.MeetingJoinURL = nil
	return nil
}

type mockOutcomeRepo struct {
	mu     sync.Mutex
	appts  *mockApptRepo
	byAppt map[uuid.UUID]*Outcome
	daySeq map[string]int
	loc    *time.Location
}

func newMockOutcomeRepo(appts *mockApptRepo, loc *time.Location) *mockOutcomeRepo {
	return &mockOutcomeRepo{
		appts:  appts,
		byAppt: make(map[uuid.UUID]*Outcome),
		daySeq: make(map[string]int),
		loc:    loc,
	}
}

func (m *mockOutcomeRepo) Record(ctx context.Context, o *Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byAppt[o.AppointmentID]; exists {
		return &AlreadyRecordedError{}
	}

	day := time.Now().In(m.loc).Format("20060102")
	m.daySeq[day]++
	o.ID = uuid.New()
	o.Code = fmt.Sprintf("INT-%s-%04d", day, m.daySeq[day])
	o.CreatedAt = time.Now()

	if err := m.appts.UpdateStatus(ctx, o.AppointmentID, o.Result, nil); err != nil {
		return err
	}
	cp := *o
	m.byAppt[o.AppointmentID] = &cp
	return nil
}

func (m *mockOutcomeRepo) GetByAppointment(_ context.Context, appointmentID uuid.UUID) (*Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.byAppt[appointmentID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return o, nil
}

func (m *mockOutcomeRepo) ListByDay(_ context.Context, date time.Time) ([]*Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := "INT-" + date.In(m.loc).Format("20060102") + "-"
	var out []*Outcome
	for _, o := range m.byAppt {
		if len(o.Code) >= len(prefix) && o.Code[:len(prefix)] == prefix {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

type mockBlockRepo struct {
	mu     sync.Mutex
	blocks map[uuid.UUID]*AvailabilityBlock
}

func newMockBlockRepo() *mockBlockRepo {
	return &mockBlockRepo{blocks: make(map[uuid.UUID]*AvailabilityBlock)}
}

func (m *mockBlockRepo) Create(_ context.Context, b *AvailabilityBlock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.ID = uuid.New()
	b.CreatedAt = time.Now()
	cp := *b
	m.blocks[b.ID] = &cp
	return nil
}

func (m *mockBlockRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blocks, id)
	return nil
}

func (m *mockBlockRepo) ListInRange(_ context.Context, from, to time.Time) ([]*AvailabilityBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*AvailabilityBlock
	for _, b := range m.blocks {
		if !b.Date.Before(from) && !b.Date.After(to) {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

type mockRequesterRepo struct {
	mu         sync.Mutex
	requesters map[uuid.UUID]*requester.Requester
}

func newMockRequesterRepo() *mockRequesterRepo {
	return &mockRequesterRepo{requesters: make(map[uuid.UUID]*requester.Requester)}
}

func (m *mockRequesterRepo) Create(_ context.Context, q *requester.Requester) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q.ID = uuid.New()
	q.CreatedAt = time.Now()
	cp := *q
	m.requesters[q.ID] = &cp
	return nil
}

func (m *mockRequesterRepo) GetByID(_ context.Context, id uuid.UUID) (*requester.Requester, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.requesters[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return q, nil
}

func (m *mockRequesterRepo) Latest(_ context.Context, docType, docNumber string) (*requester.Requester, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *requester.Requester
	for _, q := range m.requesters {
		if q.DocumentType == docType && q.DocumentNumber == docNumber {
			if latest == nil || q.CreatedAt.After(latest.CreatedAt) {
				latest = q
			}
		}
	}
	if latest == nil {
		return nil, pgx.ErrNoRows
	}
	return latest, nil
}

func (m *mockRequesterRepo) History(_ context.Context, docType, docNumber string, limit, offset int) ([]*requester.Requester, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*requester.Requester
	for _, q := range m.requesters {
		if q.DocumentType == docType && q.DocumentNumber == docNumber {
			all = append(all, q)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return all, len(all), nil
}

func (m *mockRequesterRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.requesters, id)
	return nil
}

func (m *mockRequesterRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requesters)
}

type capturedEvents struct {
	mu     sync.Mutex
	events []Event
}

func (c *capturedEvents) Notify(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *capturedEvents) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}
