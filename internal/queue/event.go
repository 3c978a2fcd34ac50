// Package queue carries booking audit notifications over RabbitMQ.  The
// publisher side implements the allocator's audit collaborator and the
// consumer side appends one line per confirmed booking to booking.log.
package queue

import (
	"fmt"
	"time"

	"github.com/eventease/booking-service/internal/model"
)

// BookingConfirmedQueue is the durable queue audit messages travel on.
const BookingConfirmedQueue = "booking.confirmed"

// BookingConfirmedEvent is published after a booking commits.  It contains
// enough information for the consumer to write the audit line without
// querying the primary database.
type BookingConfirmedEvent struct {
	BookingID uint64 `json:"booking_id"`
	UserID    uint64 `json:"user_id"`
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
	EventID   uint64 `json:"event_id"`
	EventCode string `json:"event_code"`
	Seats     int    `json:"seats"`
	BookedAt  string `json:"booked_at"`
}

// NewBookingConfirmedEvent converts an audit record into its wire form.
func NewBookingConfirmedEvent(rec model.AuditRecord) BookingConfirmedEvent {
	return BookingConfirmedEvent{
		BookingID: rec.BookingID,
		UserID:    rec.UserID,
		UserName:  rec.UserName,
		UserEmail: rec.UserEmail,
		EventID:   rec.EventID,
		EventCode: rec.EventCode,
		Seats:     rec.Seats,
		BookedAt:  rec.BookedAt.UTC().Format(time.RFC3339),
	}
}

// Line renders the audit line written to booking.log.  A user whose name
// could not be resolved is shown by ID.
func (e BookingConfirmedEvent) Line() string {
	who := e.UserName
	if who == "" {
		who = fmt.Sprintf("#%d", e.UserID)
	}
	return fmt.Sprintf("[BOOKING] User: %s (%s) booked %d seat(s) for Event ID: %d at %s",
		who, e.UserEmail, e.Seats, e.EventID, e.BookedAt)
}
