// Package lifecycle derives the lifecycle state of an event from its calendar
// date.  Status is never stored: every read path recomputes it from the event
// date and "today" so it cannot go stale relative to the wall clock.
package lifecycle

import (
	"fmt"
	"strings"
	"time"
)

// Status is the derived lifecycle state of an event.
type Status string

const (
	Upcoming  Status = "Upcoming"
	Ongoing   Status = "Ongoing"
	Completed Status = "Completed"
)

// Today truncates now to a calendar date (midnight) in loc.  A nil loc is
// treated as UTC.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return calendarDay(now.In(loc))
}

// DeriveStatus maps an event date to Upcoming, Ongoing or Completed by
// comparing calendar days only: equal days are Ongoing, earlier days are
// Completed, later days are Upcoming.  Both arguments are reduced to their
// year/month/day in their own location before comparing.
func DeriveStatus(eventDate, today time.Time) Status {
	d, t := calendarDay(eventDate), calendarDay(today)
	switch {
	case d.Equal(t):
		return Ongoing
	case d.Before(t):
		return Completed
	default:
		return Upcoming
	}
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Policy decides whether a booking for an event may still be cancelled.
type Policy string

const (
	// Strict blocks cancellation once the event day has arrived.
	Strict Policy = "strict"
	// SameDay keeps same-day (Ongoing) events cancellable and only blocks
	// Completed ones.
	SameDay Policy = "same_day"
)

// ParsePolicy accepts "strict" or "same_day" (case-insensitive).  An empty
// string yields Strict.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(Strict):
		return Strict, nil
	case string(SameDay), "sameday", "same-day":
		return SameDay, nil
	}
	return "", fmt.Errorf("unknown cancel policy %q", s)
}

// CanCancel reports whether a booking for an event on eventDate may be
// cancelled on today.
func (p Policy) CanCancel(eventDate, today time.Time) bool {
	switch DeriveStatus(eventDate, today) {
	case Upcoming:
		return true
	case Ongoing:
		return p == SameDay
	default:
		return false
	}
}

// Bookable reports whether new seats may be requested for an event on
// eventDate.  Completed events are closed; same-day events stay open.
func Bookable(eventDate, today time.Time) bool {
	return DeriveStatus(eventDate, today) != Completed
}
