package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/eventease/booking-service/internal/lib/logger/sl"
	"github.com/eventease/booking-service/internal/lifecycle"
	"github.com/eventease/booking-service/internal/model"
	"github.com/eventease/booking-service/internal/storage"
)

// codeAttempts bounds regeneration of an event code on a unique collision.
const codeAttempts = 5

// EventInput carries the fields an administrator supplies when creating an
// event.
type EventInput struct {
	Title        string
	Description  string
	Date         time.Time
	Location     string
	LocationType string
	Category     string
	Capacity     int
	ImageURL     *string
}

// EventPatch carries an administrator's edit.  Nil fields are left as they
// are.  The event code, booked seats and status cannot be edited.
type EventPatch struct {
	Title        *string
	Description  *string
	Date         *time.Time
	Location     *string
	LocationType *string
	Category     *string
	Capacity     *int
	ImageURL     *string
}

// Catalog manages events on behalf of administrators and serves the public
// listing.  Every event it returns has its status derived for today.
type Catalog struct {
	log    *slog.Logger
	events EventStore
	locker Locker
	cache  CacheInvalidator
	loc    *time.Location
	now    Clock
}

// NewCatalog constructs a Catalog.  locker is used for edits so a capacity
// change is checked against confirmed seats under the same lock the
// allocator takes.
func NewCatalog(log *slog.Logger, events EventStore, locker Locker, cache CacheInvalidator, loc *time.Location, now Clock) *Catalog {
	if events == nil || locker == nil {
		panic("nil store passed to NewCatalog")
	}
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Catalog{log: log, events: events, locker: locker, cache: cache, loc: loc, now: now}
}

func (c *Catalog) today() time.Time { return lifecycle.Today(c.now(), c.loc) }

// CreateEvent validates in and stores a new event with a fresh event code.
func (c *Catalog) CreateEvent(ctx context.Context, in EventInput) (*model.Event, error) {
	const op = "service.Catalog.CreateEvent"

	e := &model.Event{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Date:        dateOnly(in.Date),
		Location:    strings.TrimSpace(in.Location),
		Category:    strings.TrimSpace(in.Category),
		Capacity:    in.Capacity,
		ImageURL:    in.ImageURL,
	}
	lt, ok := model.NormalizeLocationType(in.LocationType)
	if !ok {
		return nil, fmt.Errorf("%w: locationType must be Online or In-Person", ErrInvalidEvent)
	}
	e.LocationType = lt
	if err := validateEvent(e); err != nil {
		return nil, err
	}

	var err error
	for attempt := 0; attempt < codeAttempts; attempt++ {
		e.Code = model.NewEventCode(c.now().In(c.loc))
		if err = c.events.Create(ctx, e); !errors.Is(err, storage.ErrDuplicate) {
			break
		}
		c.log.Debug("event code collision, regenerating", slog.String("op", op), slog.String("code", e.Code))
	}
	if err != nil {
		c.log.Error("create event failed", slog.String("op", op), sl.Err(err))
		return nil, fmt.Errorf("create event: %w", err)
	}

	e.Refresh(c.today())
	c.invalidate(ctx, e.ID)
	c.log.Info("event created", slog.String("op", op), slog.Uint64("event_id", e.ID), slog.String("code", e.Code))
	return e, nil
}

// UpdateEvent applies p to an existing event.  Lowering capacity below the
// seats already confirmed is rejected with ErrCapacityBelowBooked.
func (c *Catalog) UpdateEvent(ctx context.Context, eventID uint64, p EventPatch) (*model.Event, error) {
	const op = "service.Catalog.UpdateEvent"

	var updated *model.Event
	err := c.locker.WithinEventLock(ctx, eventID, func(tx Tx) error {
		e, err := tx.FindEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if err := applyPatch(e, p); err != nil {
			return err
		}
		if err := validateEvent(e); err != nil {
			return err
		}

		confirmed, err := tx.CountConfirmedSeats(ctx, eventID)
		if err != nil {
			return fmt.Errorf("count confirmed seats: %w", err)
		}
		if e.Capacity < confirmed {
			return fmt.Errorf("%w: %d seats already confirmed", ErrCapacityBelowBooked, confirmed)
		}
		if err := tx.UpdateEvent(ctx, e); err != nil {
			return fmt.Errorf("update event: %w", err)
		}
		e.BookedSeats = confirmed
		updated = e
		return nil
	})
	if err != nil {
		err = translate(err)
		if !isRejection(err) {
			c.log.Error("update event failed", slog.String("op", op), slog.Uint64("event_id", eventID), sl.Err(err))
		}
		return nil, err
	}

	updated.Refresh(c.today())
	c.invalidate(ctx, eventID)
	return updated, nil
}

// DeleteEvent removes an event.  Its bookings are kept and become orphaned.
func (c *Catalog) DeleteEvent(ctx context.Context, eventID uint64) error {
	if err := c.events.Delete(ctx, eventID); err != nil {
		return translate(err)
	}
	c.invalidate(ctx, eventID)
	c.log.Info("event deleted", slog.Uint64("event_id", eventID))
	return nil
}

// GetEvent returns an event with its live booked seat count and status.
func (c *Catalog) GetEvent(ctx context.Context, eventID uint64) (*model.Event, error) {
	e, err := c.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, translate(err)
	}
	e.Refresh(c.today())
	return e, nil
}

// ListEvents returns events matching f ordered by date.
func (c *Catalog) ListEvents(ctx context.Context, f model.EventFilter) ([]model.Event, error) {
	out, err := c.events.List(ctx, f)
	if err != nil {
		return nil, translate(err)
	}
	today := c.today()
	for i := range out {
		out[i].Refresh(today)
	}
	return out, nil
}

func (c *Catalog) invalidate(ctx context.Context, eventID uint64) {
	if c.cache == nil {
		return
	}
	if err := c.cache.InvalidateEvent(ctx, eventID); err != nil {
		c.log.Warn("cache invalidation failed", slog.Uint64("event_id", eventID), sl.Err(err))
	}
}

func applyPatch(e *model.Event, p EventPatch) error {
	if p.Title != nil {
		e.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		e.Description = strings.TrimSpace(*p.Description)
	}
	if p.Date != nil {
		e.Date = dateOnly(*p.Date)
	}
	if p.Location != nil {
		e.Location = strings.TrimSpace(*p.Location)
	}
	if p.LocationType != nil {
		lt, ok := model.NormalizeLocationType(*p.LocationType)
		if !ok {
			return fmt.Errorf("%w: locationType must be Online or In-Person", ErrInvalidEvent)
		}
		e.LocationType = lt
	}
	if p.Category != nil {
		e.Category = strings.TrimSpace(*p.Category)
	}
	if p.Capacity != nil {
		e.Capacity = *p.Capacity
	}
	if p.ImageURL != nil {
		url := strings.TrimSpace(*p.ImageURL)
		if url == "" {
			e.ImageURL = nil
		} else {
			e.ImageURL = &url
		}
	}
	return nil
}

func validateEvent(e *model.Event) error {
	switch {
	case e.Title == "":
		return fmt.Errorf("%w: title is required", ErrInvalidEvent)
	case e.Description == "":
		return fmt.Errorf("%w: description is required", ErrInvalidEvent)
	case e.Location == "":
		return fmt.Errorf("%w: location is required", ErrInvalidEvent)
	case e.Category == "":
		return fmt.Errorf("%w: category is required", ErrInvalidEvent)
	case e.Date.IsZero():
		return fmt.Errorf("%w: date is required", ErrInvalidEvent)
	case e.Capacity <= 0:
		return fmt.Errorf("%w: capacity must be a positive integer", ErrInvalidEvent)
	}
	return nil
}

// dateOnly keeps the calendar date of t and drops the time of day.
func dateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
