package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/eventease/booking-service/internal/model"
	"github.com/eventease/booking-service/internal/storage"
)

// dateLayout is the format of the DATE column event_date.
const dateLayout = "2006-01-02"

// EventRepo provides CRUD operations for events.  Every event it returns
// carries BookedSeats computed from confirmed bookings at query time; there
// is no stored counter that could drift.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo returns a new EventRepo bound to the given database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// eventColumns selects an event and its live confirmed seat count.  The
// joined derived table sums seats of confirmed bookings per event.
const eventColumns = `SELECT e.id, e.event_code, e.title, e.description, e.event_date, e.location,
       e.location_type, e.category, e.capacity, e.image_url, e.created_at, e.updated_at,
       COALESCE(s.booked, 0)
FROM events e
LEFT JOIN (SELECT event_id, SUM(seats) AS booked FROM bookings
           WHERE status = 'Confirmed' GROUP BY event_id) s ON s.event_id = e.id`

const selectEventByID = eventColumns + ` WHERE e.id = ?`

func scanEvent(row rowScanner) (*model.Event, error) {
	var (
		e     model.Event
		image sql.NullString
	)
	err := row.Scan(&e.ID, &e.Code, &e.Title, &e.Description, &e.Date, &e.Location,
		&e.LocationType, &e.Category, &e.Capacity, &image, &e.CreatedAt, &e.UpdatedAt,
		&e.BookedSeats)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	if image.Valid {
		img := image.String
		e.ImageURL = &img
	}
	return &e, nil
}

// Create inserts e and populates its ID and timestamps.  A collision on the
// event code is reported as storage.ErrDuplicate so the caller can retry
// with a new code.
func (r *EventRepo) Create(ctx context.Context, e *model.Event) error {
	const q = `INSERT INTO events (event_code, title, description, event_date, location,
                                   location_type, category, capacity, image_url)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, e.Code, e.Title, e.Description, e.Date.Format(dateLayout),
		e.Location, e.LocationType, e.Category, e.Capacity, nullString(e.ImageURL))
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrDuplicate
		}
		return fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)

	// Query back timestamps set by column defaults.
	err = r.db.QueryRowContext(ctx, `SELECT created_at, updated_at FROM events WHERE id = ?`, e.ID).
		Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("reload event: %w", err)
	}
	return nil
}

// GetByID returns a single event or storage.ErrNotFound.
func (r *EventRepo) GetByID(ctx context.Context, eventID uint64) (*model.Event, error) {
	return scanEvent(r.db.QueryRowContext(ctx, selectEventByID, eventID))
}

// List returns events matching f ordered by date ascending.  Category is an
// exact match, Location a substring match (case-insensitive under the
// table's default collation) and the date bounds are inclusive.
func (r *EventRepo) List(ctx context.Context, f model.EventFilter) ([]model.Event, error) {
	var (
		where []string
		args  []any
	)
	if c := strings.TrimSpace(f.Category); c != "" {
		where = append(where, "e.category = ?")
		args = append(args, c)
	}
	if l := strings.TrimSpace(f.Location); l != "" {
		where = append(where, "e.location LIKE CONCAT('%', ?, '%')")
		args = append(args, l)
	}
	if f.StartDate != nil {
		where = append(where, "e.event_date >= ?")
		args = append(args, f.StartDate.Format(dateLayout))
	}
	if f.EndDate != nil {
		where = append(where, "e.event_date <= ?")
		args = append(args, f.EndDate.Format(dateLayout))
	}

	q := eventColumns
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY e.event_date ASC, e.id ASC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	out := make([]model.Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Delete removes an event.  Bookings referencing it are left untouched.
func (r *EventRepo) Delete(ctx context.Context, eventID uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, eventID)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
