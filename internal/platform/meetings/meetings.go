// Package meetings provisions online meetings for advisory appointments.
package meetings

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrUnrecoverable marks provider failures that will not succeed on retry,
// such as TLS trust errors. Callers should stop retrying when they see it.
var ErrUnrecoverable = errors.New("meetings: unrecoverable provider error")

// MeetingSpec describes the meeting to create or update.
type MeetingSpec struct {
	Subject       string
	Description   string
	Start         time.Time
	End           time.Time
	Timezone      string
	AttendeeName  string
	AttendeeEmail string
}

// Handle identifies a provisioned meeting.
type Handle struct {
	EventID string
	JoinURL string
}

// Provider creates, updates and removes online meetings.
type Provider interface {
	CreateMeeting(ctx context.Context, spec MeetingSpec) (*Handle, error)
	UpdateMeeting(ctx context.Context, eventID string, spec MeetingSpec) error
	DeleteMeeting(ctx context.Context, eventID string) error
	CheckConnectivity(ctx context.Context) error
}

// MockProvider is a test double for Provider.
type MockProvider struct {
	mu      sync.Mutex
	created []MeetingSpec
	updated []string
	deleted []string

	FailCreates int // number of leading CreateMeeting calls that fail
	CreateErr   error
	UpdateErr   error
	DeleteErr   error

	nextID int
}

func (m *MockProvider) CreateMeeting(_ context.Context, spec MeetingSpec) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreates > 0 {
		m.FailCreates--
		err := m.CreateErr
		if err == nil {
			err = errors.New("provider unavailable")
		}
		return nil, err
	}
	m.created = append(m.created, spec)
	m.nextID++
	return &Handle{
		EventID: fmt.Sprintf("evt-%d", m.nextID),
		JoinURL: fmt.Sprintf("https://teams.example.com/meet/%d", m.nextID),
	}, nil
}

func (m *MockProvider) UpdateMeeting(_ context.Context, eventID string, _ MeetingSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	m.updated = append(m.updated, eventID)
	return nil
}

func (m *MockProvider) DeleteMeeting(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.deleted = append(m.deleted, eventID)
	return nil
}

func (m *MockProvider) CheckConnectivity(_ context.Context) error { return nil }

// Created returns a copy of specs passed to successful CreateMeeting calls.
func (m *MockProvider) Created() []MeetingSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MeetingSpec, len(m.created))
	copy(out, m.created)
	return out
}

// Updated returns the event ids passed to UpdateMeeting.
func (m *MockProvider) Updated() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.updated))
	copy(out, m.updated)
	return out
}

// Deleted returns the event ids passed to DeleteMeeting.
func (m *MockProvider) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.deleted))
	copy(out, m.deleted)
	return out
}
