package model

import "time"

// BookingStatus is the state of a booking.  A booking starts Confirmed and
// can only move to Cancelled; it is never deleted.
type BookingStatus string

const (
	BookingConfirmed BookingStatus = "Confirmed"
	BookingCancelled BookingStatus = "Cancelled"
)

// Seat limits per booking.
const (
	MinSeatsPerBooking = 1
	MaxSeatsPerBooking = 2
)

// Booking records a user's seats for one event.  It corresponds to a row in
// the `bookings` table.
type Booking struct {
	ID       uint64        `json:"id"`       // bookings.id
	UserID   uint64        `json:"user"`     // bookings.user_id
	EventID  uint64        `json:"event"`    // bookings.event_id
	Seats    int           `json:"seats"`    // bookings.seats
	Status   BookingStatus `json:"status"`   // bookings.status
	BookedAt time.Time     `json:"bookedAt"` // bookings.booked_at
}

// EventSummary is the subset of an event shown next to a user's bookings.
type EventSummary struct {
	ID       uint64    `json:"id"`
	Code     string    `json:"eventId"`
	Title    string    `json:"title"`
	Date     time.Time `json:"date"`
	Location string    `json:"location"`
	Status   string    `json:"status"`
}

// UserBooking is a booking joined with its event.  Event is nil when the
// event has been deleted since the booking was made.
type UserBooking struct {
	ID       uint64        `json:"id"`
	Seats    int           `json:"seats"`
	Status   BookingStatus `json:"status"`
	BookedAt time.Time     `json:"bookedAt"`
	Event    *EventSummary `json:"event"`
}

// Attendee is a confirmed booking with the booking user's display fields.
type Attendee struct {
	BookingID uint64    `json:"id"`
	Seats     int       `json:"seats"`
	BookedAt  time.Time `json:"bookedAt"`
	User      UserInfo  `json:"user"`
}

// AuditRecord is handed to the audit collaborator after a booking commits.
type AuditRecord struct {
	BookingID uint64
	UserID    uint64
	UserName  string
	UserEmail string
	EventID   uint64
	EventCode string
	Seats     int
	BookedAt  time.Time
}
