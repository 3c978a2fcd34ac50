// Package service implements the booking allocator and the event catalog.
// It decides admissibility of seat requests and cancellations and delegates
// persistence to the collaborators declared in ports.go.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eventease/booking-service/internal/lib/logger/sl"
	"github.com/eventease/booking-service/internal/lifecycle"
	"github.com/eventease/booking-service/internal/model"
	"github.com/eventease/booking-service/internal/storage"
)

// auditTimeout bounds a single audit notification.
const auditTimeout = 5 * time.Second

// Clock returns the current instant.  Tests replace it with a fixed time.
type Clock func() time.Time

// Allocator decides whether seat requests and cancellations are admissible
// and commits them.  Every decision for an event runs inside
// BookingStore.WithinEventLock so the capacity check, the duplicate check
// and the write cannot interleave with another decision for that event.
type Allocator struct {
	log      *slog.Logger
	bookings BookingStore
	users    UserFinder
	auditor  Auditor
	cache    CacheInvalidator
	policy   lifecycle.Policy
	loc      *time.Location
	now      Clock

	pending sync.WaitGroup
}

// AllocatorOption customises an Allocator.
type AllocatorOption func(*Allocator)

// WithAuditor sets the audit collaborator.
func WithAuditor(a Auditor) AllocatorOption { return func(al *Allocator) { al.auditor = a } }

// WithUsers sets the lookup used to enrich audit records.
func WithUsers(u UserFinder) AllocatorOption { return func(al *Allocator) { al.users = u } }

// WithCache sets the cache invalidator notified after every change.
func WithCache(c CacheInvalidator) AllocatorOption { return func(al *Allocator) { al.cache = c } }

// WithPolicy sets the cancellation policy (default lifecycle.Strict).
func WithPolicy(p lifecycle.Policy) AllocatorOption { return func(al *Allocator) { al.policy = p } }

// WithLocation sets the location in which "today" is computed.
func WithLocation(loc *time.Location) AllocatorOption {
	return func(al *Allocator) { al.loc = loc }
}

// WithClock replaces time.Now.
func WithClock(c Clock) AllocatorOption { return func(al *Allocator) { al.now = c } }

// NewAllocator constructs an Allocator.  bookings must be non-nil.
func NewAllocator(log *slog.Logger, bookings BookingStore, opts ...AllocatorOption) *Allocator {
	if bookings == nil {
		panic("nil booking store passed to NewAllocator")
	}
	a := &Allocator{
		log:      log,
		bookings: bookings,
		policy:   lifecycle.Strict,
		loc:      time.UTC,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Allocator) today() time.Time { return lifecycle.Today(a.now(), a.loc) }

// RequestBooking reserves seats for userID on eventID.  Checks run in this
// order: seat count, event existence, capacity against the live sum of
// confirmed seats, existing confirmed booking for the user, and finally
// whether the event is already over.
func (a *Allocator) RequestBooking(ctx context.Context, userID, eventID uint64, seats int) (*model.Booking, error) {
	const op = "service.Allocator.RequestBooking"

	log := a.log.With(
		slog.String("op", op),
		slog.Uint64("user_id", userID),
		slog.Uint64("event_id", eventID),
		slog.Int("seats", seats),
	)

	if seats < model.MinSeatsPerBooking || seats > model.MaxSeatsPerBooking {
		return nil, fmt.Errorf("%w: seats must be %d or %d", ErrInvalidRequest, model.MinSeatsPerBooking, model.MaxSeatsPerBooking)
	}

	var (
		booking *model.Booking
		event   *model.Event
	)
	err := a.bookings.WithinEventLock(ctx, eventID, func(tx Tx) error {
		var err error
		event, err = tx.FindEvent(ctx, eventID)
		if err != nil {
			return err
		}

		confirmed, err := tx.CountConfirmedSeats(ctx, eventID)
		if err != nil {
			return fmt.Errorf("count confirmed seats: %w", err)
		}
		if confirmed+seats > event.Capacity {
			return fmt.Errorf("%w: %d of %d seats taken", ErrCapacityExceeded, confirmed, event.Capacity)
		}

		if _, err := tx.FindConfirmedBooking(ctx, userID, eventID); err == nil {
			return ErrDuplicateBooking
		} else if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("find confirmed booking: %w", err)
		}

		if !lifecycle.Bookable(event.Date, a.today()) {
			return ErrPastEvent
		}

		booking = &model.Booking{
			UserID:   userID,
			EventID:  eventID,
			Seats:    seats,
			Status:   model.BookingConfirmed,
			BookedAt: a.now().UTC(),
		}
		if err := tx.InsertBooking(ctx, booking); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return ErrDuplicateBooking
			}
			return fmt.Errorf("insert booking: %w", err)
		}
		return nil
	})
	if err != nil {
		err = translate(err)
		if isRejection(err) {
			log.Info("booking rejected", sl.Err(err))
		} else {
			log.Error("booking failed", sl.Err(err))
		}
		return nil, err
	}

	log.Info("booking confirmed", slog.Uint64("booking_id", booking.ID))

	a.invalidate(ctx, eventID)
	a.audit(booking, event)

	return booking, nil
}

// CancelBooking soft-cancels a booking owned by requesterID.  A booking that
// does not exist and a booking owned by someone else are both reported as
// ErrNotFound.
func (a *Allocator) CancelBooking(ctx context.Context, requesterID, bookingID uint64) (*model.Booking, error) {
	const op = "service.Allocator.CancelBooking"

	log := a.log.With(
		slog.String("op", op),
		slog.Uint64("user_id", requesterID),
		slog.Uint64("booking_id", bookingID),
	)

	b, err := a.bookings.GetByID(ctx, bookingID)
	if err != nil {
		err = translate(err)
		if !errors.Is(err, ErrNotFound) {
			log.Error("load booking failed", sl.Err(err))
		}
		return nil, err
	}
	if b.UserID != requesterID {
		return nil, ErrNotFound
	}

	var cancelled *model.Booking
	err = a.bookings.WithinEventLock(ctx, b.EventID, func(tx Tx) error {
		// Re-read under the lock; a concurrent cancel may have won.
		cur, err := tx.FindBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if cur.Status == model.BookingCancelled {
			return ErrAlreadyCancelled
		}

		event, err := tx.FindEvent(ctx, cur.EventID)
		if err != nil {
			return err
		}
		if !a.policy.CanCancel(event.Date, a.today()) {
			return ErrPastEvent
		}

		if err := tx.SetBookingStatus(ctx, cur.ID, model.BookingCancelled); err != nil {
			return fmt.Errorf("set booking status: %w", err)
		}
		cur.Status = model.BookingCancelled
		cancelled = cur
		return nil
	})
	if err != nil {
		err = translate(err)
		if isRejection(err) {
			log.Info("cancellation rejected", sl.Err(err))
		} else {
			log.Error("cancellation failed", sl.Err(err))
		}
		return nil, err
	}

	log.Info("booking cancelled", slog.Uint64("event_id", cancelled.EventID))
	a.invalidate(ctx, cancelled.EventID)

	return cancelled, nil
}

// ListConfirmedAttendees returns the confirmed bookings of an event with the
// booking users attached.
func (a *Allocator) ListConfirmedAttendees(ctx context.Context, eventID uint64) ([]model.Attendee, error) {
	out, err := a.bookings.ListAttendees(ctx, eventID)
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}

// ListUserBookings returns every booking of userID, newest first, with the
// event summary status derived for today.  Bookings whose event was deleted
// carry a nil Event.
func (a *Allocator) ListUserBookings(ctx context.Context, userID uint64) ([]model.UserBooking, error) {
	out, err := a.bookings.ListByUser(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}
	today := a.today()
	for i := range out {
		if ev := out[i].Event; ev != nil {
			ev.Status = string(lifecycle.DeriveStatus(ev.Date, today))
		}
	}
	return out, nil
}

// Wait blocks until every in-flight audit notification has finished.
func (a *Allocator) Wait() { a.pending.Wait() }

func (a *Allocator) invalidate(ctx context.Context, eventID uint64) {
	if a.cache == nil {
		return
	}
	if err := a.cache.InvalidateEvent(ctx, eventID); err != nil {
		a.log.Warn("cache invalidation failed", slog.Uint64("event_id", eventID), sl.Err(err))
	}
}

// audit notifies the auditor in the background.  The booking is already
// committed; nothing here can undo it.
func (a *Allocator) audit(b *model.Booking, e *model.Event) {
	if a.auditor == nil {
		return
	}
	rec := model.AuditRecord{
		BookingID: b.ID,
		UserID:    b.UserID,
		EventID:   b.EventID,
		Seats:     b.Seats,
		BookedAt:  b.BookedAt,
	}
	if e != nil {
		rec.EventCode = e.Code
	}

	a.pending.Add(1)
	go func() {
		defer a.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				a.log.Error("audit panicked", slog.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()

		if a.users != nil {
			if u, err := a.users.GetByID(ctx, rec.UserID); err == nil {
				rec.UserName, rec.UserEmail = u.Name, u.Email
			}
		}
		if err := a.auditor.BookingConfirmed(ctx, rec); err != nil {
			a.log.Warn("audit notification failed",
				slog.Uint64("booking_id", rec.BookingID), sl.Err(err))
		}
	}()
}

// translate maps storage sentinels onto service errors.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, storage.ErrDuplicate):
		return ErrDuplicateBooking
	}
	return err
}

func isRejection(err error) bool {
	for _, target := range []error{
		ErrInvalidRequest, ErrNotFound, ErrCapacityExceeded, ErrDuplicateBooking,
		ErrAlreadyCancelled, ErrPastEvent, ErrInvalidEvent, ErrCapacityBelowBooked,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
