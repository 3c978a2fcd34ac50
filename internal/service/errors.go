package service

import "errors"

// Rejections reported by the allocator and the catalog.  Each maps to a
// distinct caller-visible response; handlers compare with errors.Is.
var (
	// ErrInvalidRequest is returned for a seat count outside [1, 2] or an
	// otherwise malformed request.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotFound is returned when an event or booking does not exist, or
	// when a booking exists but belongs to another user.
	ErrNotFound = errors.New("not found")
	// ErrCapacityExceeded is returned when the requested seats would push
	// confirmed seats past the event capacity.
	ErrCapacityExceeded = errors.New("not enough seats available")
	// ErrDuplicateBooking is returned when the user already holds a
	// confirmed booking for the event.
	ErrDuplicateBooking = errors.New("already booked this event")
	// ErrAlreadyCancelled is returned when cancelling a cancelled booking.
	ErrAlreadyCancelled = errors.New("booking already cancelled")
	// ErrPastEvent is returned when the event date blocks the operation.
	ErrPastEvent = errors.New("event already took place")

	// ErrInvalidEvent is returned by the catalog for invalid event fields.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrCapacityBelowBooked is returned when an edit would lower capacity
	// under the seats already confirmed.
	ErrCapacityBelowBooked = errors.New("capacity below confirmed seats")
)
