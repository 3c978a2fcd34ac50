package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eventease/booking-service/internal/model"
	"github.com/eventease/booking-service/internal/service"
)

// EventHandler serves the public event listing and the admin event
// management routes.
type EventHandler struct {
	log      *slog.Logger
	events   EventService
	bookings BookingService
}

func NewEventHandler(log *slog.Logger, events EventService, bookings BookingService) *EventHandler {
	if events == nil || bookings == nil {
		panic("nil service passed to NewEventHandler")
	}
	return &EventHandler{log: log.With(slog.String("component", "handler/event")), events: events, bookings: bookings}
}

// List handles GET /api/events?category=&location=&startDate=&endDate=.
func (h *EventHandler) List(c echo.Context) error {
	f := model.EventFilter{
		Category: strings.TrimSpace(c.QueryParam("category")),
		Location: strings.TrimSpace(c.QueryParam("location")),
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"startDate", &f.StartDate}, {"endDate", &f.EndDate}} {
		raw := c.QueryParam(p.name)
		if raw == "" {
			continue
		}
		t, err := parseDate(raw)
		if err != nil {
			return message(c, http.StatusBadRequest, "Invalid "+p.name)
		}
		*p.dst = &t
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	out, err := h.events.ListEvents(ctx, f)
	if err != nil {
		return writeError(c, h.log, err, msgEventMissing, msgPastBook)
	}
	return c.JSON(http.StatusOK, out)
}

// Get handles GET /api/events/:id.  The response carries the live booked
// seat count and the derived status.
func (h *EventHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return message(c, http.StatusNotFound, msgEventMissing)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	e, err := h.events.GetEvent(ctx, id)
	if err != nil {
		return writeError(c, h.log, err, msgEventMissing, msgPastBook)
	}
	return c.JSON(http.StatusOK, e)
}

type createEventRequest struct {
	Title        string  `json:"title" validate:"required"`
	Description  string  `json:"description" validate:"required"`
	Date         string  `json:"date" validate:"required"`
	Location     string  `json:"location" validate:"required"`
	LocationType string  `json:"locationType" validate:"omitempty,oneof=Online In-Person online in-person"`
	Category     string  `json:"category" validate:"required"`
	Capacity     int     `json:"capacity" validate:"required,gt=0"`
	ImageURL     *string `json:"imageUrl" validate:"omitempty,url"`
}

type updateEventRequest struct {
	Title        *string `json:"title" validate:"omitempty,min=1"`
	Description  *string `json:"description" validate:"omitempty,min=1"`
	Date         *string `json:"date"`
	Location     *string `json:"location" validate:"omitempty,min=1"`
	LocationType *string `json:"locationType" validate:"omitempty,oneof=Online In-Person online in-person"`
	Category     *string `json:"category" validate:"omitempty,min=1"`
	Capacity     *int    `json:"capacity" validate:"omitempty,gt=0"`
	ImageURL     *string `json:"imageUrl"`
}

// Create handles POST /api/admin/events.
func (h *EventHandler) Create(c echo.Context) error {
	var req createEventRequest
	if err := c.Bind(&req); err != nil {
		return message(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return message(c, http.StatusBadRequest, err.Error())
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return message(c, http.StatusBadRequest, "Invalid date")
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	e, err := h.events.CreateEvent(ctx, service.EventInput{
		Title:        req.Title,
		Description:  req.Description,
		Date:         date,
		Location:     req.Location,
		LocationType: req.LocationType,
		Category:     req.Category,
		Capacity:     req.Capacity,
		ImageURL:     req.ImageURL,
	})
	if err != nil {
		return writeError(c, h.log, err, msgEventMissing, msgPastBook)
	}
	return c.JSON(http.StatusCreated, e)
}

// Update handles PUT /api/admin/events/:id.  Absent fields are unchanged.
func (h *EventHandler) Update(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return message(c, http.StatusNotFound, msgEventMissing)
	}
	var req updateEventRequest
	if err := c.Bind(&req); err != nil {
		return message(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return message(c, http.StatusBadRequest, err.Error())
	}

	p := service.EventPatch{
		Title:        req.Title,
		Description:  req.Description,
		Location:     req.Location,
		LocationType: req.LocationType,
		Category:     req.Category,
		Capacity:     req.Capacity,
		ImageURL:     req.ImageURL,
	}
	if req.Date != nil {
		d, err := parseDate(*req.Date)
		if err != nil {
			return message(c, http.StatusBadRequest, "Invalid date")
		}
		p.Date = &d
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	e, err := h.events.UpdateEvent(ctx, id, p)
	if err != nil {
		return writeError(c, h.log, err, msgEventMissing, msgPastBook)
	}
	return c.JSON(http.StatusOK, e)
}

// Delete handles DELETE /api/admin/events/:id.  Bookings of the event are
// kept.
func (h *EventHandler) Delete(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return message(c, http.StatusNotFound, msgEventMissing)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	if err := h.events.DeleteEvent(ctx, id); err != nil {
		return writeError(c, h.log, err, msgEventMissing, msgPastBook)
	}
	return message(c, http.StatusOK, "Event deleted")
}

// Attendees handles GET /api/admin/events/:eventId/attendees.
func (h *EventHandler) Attendees(c echo.Context) error {
	id, ok := parseID(c, "eventId")
	if !ok {
		return message(c, http.StatusNotFound, msgEventMissing)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	out, err := h.bookings.ListConfirmedAttendees(ctx, id)
	if err != nil {
		return writeError(c, h.log, err, msgEventMissing, msgPastBook)
	}
	return c.JSON(http.StatusOK, out)
}
