package booking

import (
	"errors"
	"testing"
	"time"
)

func testCalendar(t *testing.T) *Calendar {
	t.Helper()
	loc, err := time.LoadLocation("America/Bogota")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return NewCalendar(loc, 2*time.Hour, time.Hour)
}

func TestSlotsForDate_AdvisoryDay(t *testing.T) {
	cal := testCalendar(t)

	// 2026-09-08 is a Tuesday.
	slots := cal.SlotsForDate(2026, time.September, 8)
	if len(slots) != 7 {
		t.Fatalf("expected 7 slots, got %d", len(slots))
	}
	first := time.Date(2026, time.September, 8, 14, 0, 0, 0, cal.Location())
	if !slots[0].Start.Equal(first) {
		t.Errorf("expected first slot at 14:00, got %v", slots[0].Start)
	}
	last := time.Date(2026, time.September, 8, 16, 0, 0, 0, cal.Location())
	if !slots[6].Start.Equal(last) {
		t.Errorf("expected last slot at 16:00, got %v", slots[6].Start)
	}
	for i, s := range slots {
		if s.End.Sub(s.Start) != SlotDuration {
			t.Errorf("slot %d has wrong duration %v", i, s.End.Sub(s.Start))
		}
	}
}

func TestSlotsForDate_NonAdvisoryDay(t *testing.T) {
	cal := testCalendar(t)
	for _, day := range []int{7, 11, 12, 13} { // Mon, Fri, Sat, Sun
		if slots := cal.SlotsForDate(2026, time.September, day); len(slots) != 0 {
			t.Errorf("expected no slots on 2026-09-%02d, got %d", day, len(slots))
		}
	}
}

func TestBookableSlots_LeadTimeFloor(t *testing.T) {
	cal := testCalendar(t)
	now := time.Date(2026, time.September, 8, 13, 30, 0, 0, cal.Location())

	// Public floor is 15:30: only 15:40 and 16:00 remain.
	public := cal.BookableSlots(2026, time.September, 8, now, ChannelPublic)
	if len(public) != 2 {
		t.Errorf("expected 2 public slots, got %d", len(public))
	}

	// Staff floor is 14:30: 14:40 through 16:00 remain.
	staff := cal.BookableSlots(2026, time.September, 8, now, ChannelStaff)
	if len(staff) != 5 {
		t.Errorf("expected 5 staff slots, got %d", len(staff))
	}
}

func TestValidateStart_Valid(t *testing.T) {
	cal := testCalendar(t)
	now := time.Date(2026, time.September, 7, 9, 0, 0, 0, cal.Location())
	start := time.Date(2026, time.September, 8, 14, 20, 0, 0, cal.Location())

	slot, err := cal.ValidateStart(start, now, ChannelPublic)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slot.End.Equal(start.Add(SlotDuration)) {
		t.Errorf("unexpected slot end %v", slot.End)
	}
}

func TestValidateStart_OffGridStart(t *testing.T) {
	cal := testCalendar(t)
	now := time.Date(2026, time.September, 7, 9, 0, 0, 0, cal.Location())

	for _, tc := range []struct {
		name  string
		start time.Time
	}{
		{"between slots", time.Date(2026, time.September, 8, 14, 10, 0, 0, cal.Location())},
		{"before window", time.Date(2026, time.September, 8, 13, 40, 0, 0, cal.Location())},
		{"after window", time.Date(2026, time.September, 8, 16, 20, 0, 0, cal.Location())},
	} {
		if _, err := cal.ValidateStart(tc.start, now, ChannelPublic); err == nil {
			t.Errorf("%s: expected error for %v", tc.name, tc.start)
		}
	}
}

func TestValidateStart_NonAdvisoryDay(t *testing.T) {
	cal := testCalendar(t)
	now := time.Date(2026, time.September, 7, 9, 0, 0, 0, cal.Location())
	start := time.Date(2026, time.September, 11, 14, 0, 0, 0, cal.Location()) // Friday

	var validation *ValidationError
	_, err := cal.ValidateStart(start, now, ChannelPublic)
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestValidateStart_LeadTimeByChannel(t *testing.T) {
	cal := testCalendar(t)
	start := time.Date(2026, time.September, 8, 14, 0, 0, 0, cal.Location())

	// 30 minutes ahead: too short for either channel.
	now := start.Add(-30 * time.Minute)
	if _, err := cal.ValidateStart(start, now, ChannelPublic); err == nil {
		t.Error("expected public booking 30m ahead to fail")
	}

	// 90 minutes ahead: enough for staff, not for the public channel.
	now = start.Add(-90 * time.Minute)
	if _, err := cal.ValidateStart(start, now, ChannelStaff); err != nil {
		t.Errorf("expected staff booking 90m ahead to pass, got %v", err)
	}
	if _, err := cal.ValidateStart(start, now, ChannelPublic); err == nil {
		t.Error("expected public booking 90m ahead to fail")
	}

	// Five hours ahead works everywhere.
	now = start.Add(-5 * time.Hour)
	if _, err := cal.ValidateStart(start, now, ChannelPublic); err != nil {
		t.Errorf("expected public booking 5h ahead to pass, got %v", err)
	}
}
