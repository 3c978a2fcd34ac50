// Package handler exposes the HTTP handlers of the booking API.  Handlers
// bind and validate input, call the service layer and map its errors onto
// status codes and user-facing messages.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eventease/booking-service/internal/lib/logger/sl"
	"github.com/eventease/booking-service/internal/middleware"
	"github.com/eventease/booking-service/internal/model"
	"github.com/eventease/booking-service/internal/service"
)

// requestTimeout bounds the storage work of a single request.
const requestTimeout = 5 * time.Second

// BookingService is the allocator as seen by the handlers.
type BookingService interface {
	RequestBooking(ctx context.Context, userID, eventID uint64, seats int) (*model.Booking, error)
	CancelBooking(ctx context.Context, requesterID, bookingID uint64) (*model.Booking, error)
	ListUserBookings(ctx context.Context, userID uint64) ([]model.UserBooking, error)
	ListConfirmedAttendees(ctx context.Context, eventID uint64) ([]model.Attendee, error)
}

// EventService is the catalog as seen by the handlers.
type EventService interface {
	CreateEvent(ctx context.Context, in service.EventInput) (*model.Event, error)
	UpdateEvent(ctx context.Context, eventID uint64, p service.EventPatch) (*model.Event, error)
	DeleteEvent(ctx context.Context, eventID uint64) error
	GetEvent(ctx context.Context, eventID uint64) (*model.Event, error)
	ListEvents(ctx context.Context, f model.EventFilter) ([]model.Event, error)
}

// Messages returned to clients.
const (
	msgSeats          = "Seats must be 1 or 2"
	msgNoSeats        = "Not enough seats available"
	msgAlreadyBooked  = "You already booked this event"
	msgBookingMissing = "Booking not found"
	msgCancelled      = "Already cancelled"
	msgPastCancel     = "Cannot cancel past event"
	msgPastBook       = "Cannot book past event"
	msgEventMissing   = "Event not found"
	msgCapacityBelow  = "Capacity cannot be lower than booked seats"
	msgInvalidID      = "Invalid id"
	msgInternal       = "Internal server error"
)

func message(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"message": msg})
}

// writeError maps a service error to a response.  notFound is the message
// used for ErrNotFound, which depends on what was being looked up.  pastMsg
// likewise depends on whether a booking or a cancellation was refused.
func writeError(c echo.Context, log *slog.Logger, err error, notFound, pastMsg string) error {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return message(c, http.StatusBadRequest, msgSeats)
	case errors.Is(err, service.ErrNotFound):
		return message(c, http.StatusNotFound, notFound)
	case errors.Is(err, service.ErrCapacityExceeded):
		return message(c, http.StatusBadRequest, msgNoSeats)
	case errors.Is(err, service.ErrDuplicateBooking):
		return message(c, http.StatusBadRequest, msgAlreadyBooked)
	case errors.Is(err, service.ErrAlreadyCancelled):
		return message(c, http.StatusBadRequest, msgCancelled)
	case errors.Is(err, service.ErrPastEvent):
		return message(c, http.StatusBadRequest, pastMsg)
	case errors.Is(err, service.ErrInvalidEvent):
		return message(c, http.StatusBadRequest, strings.TrimPrefix(err.Error(), service.ErrInvalidEvent.Error()+": "))
	case errors.Is(err, service.ErrCapacityBelowBooked):
		return message(c, http.StatusConflict, msgCapacityBelow)
	case errors.Is(err, context.DeadlineExceeded):
		return message(c, http.StatusGatewayTimeout, "Request timed out")
	}
	log.Error("request failed", slog.String("path", c.Path()), sl.Err(err))
	return message(c, http.StatusInternalServerError, msgInternal)
}

// getUserID returns the user ID stored by the JWT middleware.
func getUserID(c echo.Context) (uint64, bool) {
	return middleware.UserID(c)
}

// parseID reads a positive integer path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// parseDate accepts a calendar date (2006-01-02) or an RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

func withTimeout(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}
