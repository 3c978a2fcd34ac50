package handler

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// BookingHandler serves /api/bookings.  All routes require authentication.
type BookingHandler struct {
	log      *slog.Logger
	bookings BookingService
}

func NewBookingHandler(log *slog.Logger, bookings BookingService) *BookingHandler {
	if bookings == nil {
		panic("nil booking service passed to NewBookingHandler")
	}
	return &BookingHandler{log: log.With(slog.String("component", "handler/booking")), bookings: bookings}
}

type bookingRequest struct {
	Event uint64 `json:"event"`
	Seats int    `json:"seats"`
}

// Create handles POST /api/bookings with body {"event": id, "seats": n}.
// Seat count is validated before the event is looked up, so an invalid
// count is reported even for an unknown event.
func (h *BookingHandler) Create(c echo.Context) error {
	userID, ok := getUserID(c)
	if !ok {
		return message(c, http.StatusUnauthorized, "Not authorized")
	}
	var req bookingRequest
	if err := c.Bind(&req); err != nil {
		return message(c, http.StatusBadRequest, "Invalid request body")
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	b, err := h.bookings.RequestBooking(ctx, userID, req.Event, req.Seats)
	if err != nil {
		return writeError(c, h.log, err, msgEventMissing, msgPastBook)
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "booking": b})
}

// Mine handles GET /api/bookings/my: the caller's bookings, newest first.
func (h *BookingHandler) Mine(c echo.Context) error {
	userID, ok := getUserID(c)
	if !ok {
		return message(c, http.StatusUnauthorized, "Not authorized")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	out, err := h.bookings.ListUserBookings(ctx, userID)
	if err != nil {
		return writeError(c, h.log, err, msgBookingMissing, msgPastCancel)
	}
	return c.JSON(http.StatusOK, out)
}

// Cancel handles DELETE /api/bookings/:id.  Bookings of other users are
// reported as not found.
func (h *BookingHandler) Cancel(c echo.Context) error {
	userID, ok := getUserID(c)
	if !ok {
		return message(c, http.StatusUnauthorized, "Not authorized")
	}
	bookingID, ok := parseID(c, "id")
	if !ok {
		return message(c, http.StatusNotFound, msgBookingMissing)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	if _, err := h.bookings.CancelBooking(ctx, userID, bookingID); err != nil {
		return writeError(c, h.log, err, msgBookingMissing, msgPastCancel)
	}
	return message(c, http.StatusOK, "Booking cancelled successfully")
}
