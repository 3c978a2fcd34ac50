package model

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/eventease/booking-service/internal/lifecycle"
)

func TestNewEventCode(t *testing.T) {
	now := time.Date(2026, time.October, 15, 9, 0, 0, 0, time.UTC)
	pattern := regexp.MustCompile(`^EVT-OCT2026-[0-9A-F]{3}$`)

	for i := 0; i < 20; i++ {
		code := NewEventCode(now)
		assert.Regexp(t, pattern, code)
	}
}

func TestNormalizeLocationType(t *testing.T) {
	testCases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"", LocationInPerson, true},
		{"online", LocationOnline, true},
		{"Online", LocationOnline, true},
		{"In-Person", LocationInPerson, true},
		{"in person", LocationInPerson, true},
		{"hybrid", "", false},
	}
	for _, tc := range testCases {
		got, ok := NormalizeLocationType(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestEventRefreshAndAvailability(t *testing.T) {
	today := time.Date(2026, time.October, 15, 0, 0, 0, 0, time.UTC)
	e := Event{Date: today, Capacity: 3, BookedSeats: 2, Status: lifecycle.Upcoming}

	e.Refresh(today)
	assert.Equal(t, lifecycle.Ongoing, e.Status)
	assert.Equal(t, 1, e.AvailableSeats())

	e.BookedSeats = 5
	assert.Equal(t, 0, e.AvailableSeats())
}
