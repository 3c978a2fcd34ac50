package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eventease/booking-service/internal/lifecycle"
)

// Location types accepted for an event.
const (
	LocationOnline   = "Online"
	LocationInPerson = "In-Person"
)

// Event represents a published event with fixed seating capacity.  It
// corresponds to a row in the `events` table.  BookedSeats and Status are
// not columns: they are derived on every read (live sum of confirmed seats
// and the date comparison in package lifecycle).
//
// Fields:
//
//	ID           – primary key identifier.
//	Code         – human-readable code (EVT-<MON><YYYY>-<XXX>), assigned once.
//	Title        – event title.
//	Description  – free text description.
//	Date         – calendar date of the event (no time component).
//	Location     – venue or URL.
//	LocationType – Online or In-Person.
//	Category     – free-form category used for filtering.
//	Capacity     – total number of seats (> 0).
//	ImageURL     – optional image reference.
type Event struct {
	ID           uint64           `json:"id"`                 // events.id
	Code         string           `json:"eventId"`            // events.event_code
	Title        string           `json:"title"`              // events.title
	Description  string           `json:"description"`        // events.description
	Date         time.Time        `json:"date"`               // events.event_date
	Location     string           `json:"location"`           // events.location
	LocationType string           `json:"locationType"`       // events.location_type
	Category     string           `json:"category"`           // events.category
	Capacity     int              `json:"capacity"`           // events.capacity
	ImageURL     *string          `json:"imageUrl,omitempty"` // events.image_url (nullable)
	BookedSeats  int              `json:"bookedSeats"`        // derived
	Status       lifecycle.Status `json:"status"`             // derived
	CreatedAt    time.Time        `json:"createdAt"`          // events.created_at
	UpdatedAt    time.Time        `json:"updatedAt"`          // events.updated_at
}

// Refresh recomputes the derived status for the given day.  It must be
// called on every read path before the event is returned to a caller.
func (e *Event) Refresh(today time.Time) {
	e.Status = lifecycle.DeriveStatus(e.Date, today)
}

// AvailableSeats returns capacity minus the confirmed seats, never negative.
func (e *Event) AvailableSeats() int {
	if n := e.Capacity - e.BookedSeats; n > 0 {
		return n
	}
	return 0
}

// EventFilter narrows the public event listing.  Zero values disable the
// corresponding filter.  Location matches as a case-insensitive substring;
// StartDate and EndDate are inclusive.
type EventFilter struct {
	Category  string
	Location  string
	StartDate *time.Time
	EndDate   *time.Time
}

// NewEventCode builds an event code of the form EVT-<MON><YYYY>-<XXX> where
// MON and YYYY come from now and XXX are the first three characters of a
// random UUID, upper-cased.
func NewEventCode(now time.Time) string {
	month := strings.ToUpper(now.Month().String()[:3])
	suffix := strings.ToUpper(uuid.NewString()[:3])
	return fmt.Sprintf("EVT-%s%d-%s", month, now.Year(), suffix)
}

// NormalizeLocationType maps loose client input onto the two accepted
// location types.  Empty input defaults to In-Person; unknown input returns
// false.
func NormalizeLocationType(s string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return LocationInPerson, true
	case "online":
		return LocationOnline, true
	case "in-person", "in person", "inperson":
		return LocationInPerson, true
	}
	return "", false
}
