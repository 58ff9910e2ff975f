// Package booking implements the advisory appointment lifecycle: slot
// computation, conflict-safe booking, cancellation, outcome recording and
// asynchronous meeting provisioning.
package booking

import (
	"fmt"
	"time"
)

// Booking channels. The channel decides which lead-time floor applies.
const (
	ChannelPublic = "public"
	ChannelStaff  = "staff"
)

// SlotDuration is the fixed length of every advisory slot.
const SlotDuration = 20 * time.Minute

// The advisory window runs Tuesday through Thursday with seven fixed start
// times from 14:00 to 16:00 inclusive.
const (
	windowStartHour = 14
	windowEndHour   = 16
	slotsPerDay     = 7
)

// Slot is a bookable interval on the advisory calendar.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Calendar computes bookable slots. All computation happens in the configured
// location so the advisory window stays anchored to local civil time.
type Calendar struct {
	loc        *time.Location
	publicLead time.Duration
	staffLead  time.Duration
}

// NewCalendar builds a Calendar for the given location and per-channel
// lead-time floors.
func NewCalendar(loc *time.Location, publicLead, staffLead time.Duration) *Calendar {
	return &Calendar{loc: loc, publicLead: publicLead, staffLead: staffLead}
}

// Location returns the calendar's time zone.
func (c *Calendar) Location() *time.Location { return c.loc }

// LeadTime returns the lead-time floor for a channel. Unknown channels get the
// stricter public floor.
func (c *Calendar) LeadTime(channel string) time.Duration {
	if channel == ChannelStaff {
		return c.staffLead
	}
	return c.publicLead
}

func isAdvisoryDay(d time.Weekday) bool {
	return d == time.Tuesday || d == time.Wednesday || d == time.Thursday
}

// SlotsForDate returns every slot on the given calendar date, regardless of
// availability. Non-advisory days yield an empty list.
func (c *Calendar) SlotsForDate(year int, month time.Month, day int) []Slot {
	first := time.Date(year, month, day, windowStartHour, 0, 0, 0, c.loc)
	if !isAdvisoryDay(first.Weekday()) {
		return nil
	}
	slots := make([]Slot, 0, slotsPerDay)
	for i := 0; i < slotsPerDay; i++ {
		start := first.Add(time.Duration(i) * SlotDuration)
		slots = append(slots, Slot{Start: start, End: start.Add(SlotDuration)})
	}
	return slots
}

// BookableSlots returns the slots on a date that still satisfy the channel's
// lead-time floor relative to now.
func (c *Calendar) BookableSlots(year int, month time.Month, day int, now time.Time, channel string) []Slot {
	floor := now.Add(c.LeadTime(channel))
	var out []Slot
	for _, s := range c.SlotsForDate(year, month, day) {
		if !s.Start.Before(floor) {
			out = append(out, s)
		}
	}
	return out
}

// ValidateStart checks that start is a legal slot start on the advisory
// calendar and that it satisfies the channel's lead-time floor. It returns the
// normalized slot on success.
func (c *Calendar) ValidateStart(start, now time.Time, channel string) (Slot, error) {
	start = start.In(c.loc)

	if !isAdvisoryDay(start.Weekday()) {
		return Slot{}, &ValidationError{Field: "start_time", Message: "las asesorías solo se atienden martes, miércoles y jueves"}
	}
	if start.Second() != 0 || start.Nanosecond() != 0 {
		return Slot{}, &ValidationError{Field: "start_time", Message: "hora de inicio inválida"}
	}

	dayStart := time.Date(start.Year(), start.Month(), start.Day(), windowStartHour, 0, 0, 0, c.loc)
	offset := start.Sub(dayStart)
	slotIndex := int(offset / SlotDuration)
	if offset < 0 || slotIndex >= slotsPerDay || offset%SlotDuration != 0 {
		return Slot{}, &ValidationError{
			Field:   "start_time",
			Message: fmt.Sprintf("la hora de inicio debe ser uno de los %d turnos entre %02d:00 y %02d:00", slotsPerDay, windowStartHour, windowEndHour),
		}
	}

	if start.Before(now.Add(c.LeadTime(channel))) {
		return Slot{}, &ValidationError{
			Field:   "start_time",
			Message: fmt.Sprintf("la cita debe agendarse con al menos %s de antelación", formatLead(c.LeadTime(channel))),
		}
	}

	return Slot{Start: start, End: start.Add(SlotDuration)}, nil
}

func formatLead(d time.Duration) string {
	if d%time.Hour == 0 {
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hora"
		}
		return fmt.Sprintf("%d horas", h)
	}
	return fmt.Sprintf("%d minutos", int(d/time.Minute))
}
