package service

import (
	"context"

	"github.com/eventease/booking-service/internal/model"
)

// Tx is the set of persistence operations available inside one atomic
// decision unit.  Every call made through a Tx observes and mutates state
// under the lock taken by Locker.WithinEventLock.
type Tx interface {
	FindEvent(ctx context.Context, eventID uint64) (*model.Event, error)
	CountConfirmedSeats(ctx context.Context, eventID uint64) (int, error)
	// FindConfirmedBooking returns storage.ErrNotFound when the user has
	// no confirmed booking for the event.
	FindConfirmedBooking(ctx context.Context, userID, eventID uint64) (*model.Booking, error)
	// InsertBooking assigns b.ID.  A storage-level uniqueness violation on
	// (user, event, Confirmed) is reported as storage.ErrDuplicate.
	InsertBooking(ctx context.Context, b *model.Booking) error
	SetBookingStatus(ctx context.Context, bookingID uint64, status model.BookingStatus) error
	FindBooking(ctx context.Context, bookingID uint64) (*model.Booking, error)
	UpdateEvent(ctx context.Context, e *model.Event) error
}

// Locker serializes all decisions made against one event.  fn runs with
// exclusive access to the event; if fn returns an error nothing it did is
// kept.  When the event does not exist, storage.ErrNotFound is returned
// and fn is not called.
type Locker interface {
	WithinEventLock(ctx context.Context, eventID uint64, fn func(tx Tx) error) error
}

// BookingStore is the persistence collaborator of the allocator.
type BookingStore interface {
	Locker
	GetByID(ctx context.Context, bookingID uint64) (*model.Booking, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.UserBooking, error)
	// ListAttendees returns storage.ErrNotFound for an unknown event.
	ListAttendees(ctx context.Context, eventID uint64) ([]model.Attendee, error)
}

// EventStore is the persistence collaborator of the catalog.  Returned
// events carry a live BookedSeats aggregate; Status is left to the caller.
type EventStore interface {
	Create(ctx context.Context, e *model.Event) error
	GetByID(ctx context.Context, eventID uint64) (*model.Event, error)
	List(ctx context.Context, f model.EventFilter) ([]model.Event, error)
	Delete(ctx context.Context, eventID uint64) error
}

// UserFinder resolves display fields for audit records.
type UserFinder interface {
	GetByID(ctx context.Context, userID uint64) (*model.User, error)
}

// Auditor receives a notification for every confirmed booking.  Failures
// are logged and never affect the booking.
type Auditor interface {
	BookingConfirmed(ctx context.Context, rec model.AuditRecord) error
}

// CacheInvalidator drops cached representations of an event and of the
// event listing after a change.
type CacheInvalidator interface {
	InvalidateEvent(ctx context.Context, eventID uint64) error
}
