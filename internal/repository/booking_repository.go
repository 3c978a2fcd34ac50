package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eventease/booking-service/internal/model"
	"github.com/eventease/booking-service/internal/service"
	"github.com/eventease/booking-service/internal/storage"
)

// BookingRepo persists bookings and provides the per-event atomic decision
// unit used by the allocator.  All timestamps are stored in UTC.
type BookingRepo struct {
	db      *sql.DB
	retries int
}

// NewBookingRepo returns a BookingRepo bound to db.  retries is the number
// of additional attempts made when a transaction deadlocks or times out
// waiting for a lock.
func NewBookingRepo(db *sql.DB, retries int) *BookingRepo {
	if retries < 0 {
		retries = 0
	}
	return &BookingRepo{db: db, retries: retries}
}

// WithinEventLock opens a transaction, takes an exclusive row lock on the
// event with SELECT ... FOR UPDATE and runs fn.  Every other decision for
// the same event blocks on that lock until this transaction commits or
// rolls back.  Deadlocks and lock wait timeouts are retried.
func (r *BookingRepo) WithinEventLock(ctx context.Context, eventID uint64, fn func(tx service.Tx) error) error {
	var err error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 25 * time.Millisecond):
			}
		}
		err = r.runLocked(ctx, eventID, fn)
		if !isRetryable(err) {
			return err
		}
	}
	return err
}

func (r *BookingRepo) runLocked(ctx context.Context, eventID uint64, fn func(tx service.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var id uint64
	err = tx.QueryRowContext(ctx, `SELECT id FROM events WHERE id = ? FOR UPDATE`, eventID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("lock event row: %w", err)
	}

	if err := fn(&bookingTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

// GetByID loads a booking outside of any lock.
func (r *BookingRepo) GetByID(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	return scanBooking(r.db.QueryRowContext(ctx, selectBookingByID, bookingID))
}

// ListByUser returns all bookings of a user, newest first.  Bookings whose
// event has been deleted come back with a nil Event.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]model.UserBooking, error) {
	const q = `SELECT b.id, b.seats, b.status, b.booked_at,
                      e.id, e.event_code, e.title, e.event_date, e.location
               FROM bookings b
               LEFT JOIN events e ON e.id = b.event_id
               WHERE b.user_id = ?
               ORDER BY b.booked_at DESC, b.id DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list bookings by user: %w", err)
	}
	defer rows.Close()

	out := make([]model.UserBooking, 0)
	for rows.Next() {
		var (
			ub       model.UserBooking
			status   string
			eventID  sql.NullInt64
			code     sql.NullString
			title    sql.NullString
			date     sql.NullTime
			location sql.NullString
		)
		if err := rows.Scan(&ub.ID, &ub.Seats, &status, &ub.BookedAt,
			&eventID, &code, &title, &date, &location); err != nil {
			return nil, fmt.Errorf("scan user booking: %w", err)
		}
		ub.Status = model.BookingStatus(status)
		if eventID.Valid {
			ub.Event = &model.EventSummary{
				ID:       uint64(eventID.Int64),
				Code:     code.String,
				Title:    title.String,
				Date:     date.Time,
				Location: location.String,
			}
		}
		out = append(out, ub)
	}
	return out, rows.Err()
}

// ListAttendees returns confirmed bookings of an event joined with their
// users, oldest first.  storage.ErrNotFound is returned when the event does
// not exist.
func (r *BookingRepo) ListAttendees(ctx context.Context, eventID uint64) ([]model.Attendee, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM events WHERE id = ?`, eventID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("check event: %w", err)
	}

	const q = `SELECT b.id, b.seats, b.booked_at, u.id, u.name, u.email, u.role
               FROM bookings b
               JOIN users u ON u.id = b.user_id
               WHERE b.event_id = ? AND b.status = 'Confirmed'
               ORDER BY b.booked_at ASC, b.id ASC`
	rows, err := r.db.QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	defer rows.Close()

	out := make([]model.Attendee, 0)
	for rows.Next() {
		var a model.Attendee
		if err := rows.Scan(&a.BookingID, &a.Seats, &a.BookedAt,
			&a.User.ID, &a.User.Name, &a.User.Email, &a.User.Role); err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const selectBookingByID = `SELECT id, user_id, event_id, seats, status, booked_at FROM bookings WHERE id = ?`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*model.Booking, error) {
	var (
		b      model.Booking
		status string
	)
	if err := row.Scan(&b.ID, &b.UserID, &b.EventID, &b.Seats, &status, &b.BookedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("scan booking: %w", err)
	}
	b.Status = model.BookingStatus(status)
	return &b, nil
}

// bookingTx implements service.Tx on top of a locked *sql.Tx.
type bookingTx struct {
	tx *sql.Tx
}

func (t *bookingTx) FindEvent(ctx context.Context, eventID uint64) (*model.Event, error) {
	return scanEvent(t.tx.QueryRowContext(ctx, selectEventByID, eventID))
}

func (t *bookingTx) CountConfirmedSeats(ctx context.Context, eventID uint64) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(seats), 0) FROM bookings WHERE event_id = ? AND status = 'Confirmed'`,
		eventID).Scan(&n)
	return n, err
}

func (t *bookingTx) FindConfirmedBooking(ctx context.Context, userID, eventID uint64) (*model.Booking, error) {
	const q = `SELECT id, user_id, event_id, seats, status, booked_at FROM bookings
               WHERE user_id = ? AND event_id = ? AND status = 'Confirmed' LIMIT 1`
	return scanBooking(t.tx.QueryRowContext(ctx, q, userID, eventID))
}

func (t *bookingTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	const q = `INSERT INTO bookings (user_id, event_id, seats, status, booked_at) VALUES (?, ?, ?, ?, ?)`
	res, err := t.tx.ExecContext(ctx, q, b.UserID, b.EventID, b.Seats, string(b.Status), b.BookedAt.UTC())
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	return nil
}

func (t *bookingTx) SetBookingStatus(ctx context.Context, bookingID uint64, status model.BookingStatus) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE bookings SET status = ? WHERE id = ?`, string(status), bookingID)
	return err
}

func (t *bookingTx) FindBooking(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	return scanBooking(t.tx.QueryRowContext(ctx, selectBookingByID+` FOR UPDATE`, bookingID))
}

func (t *bookingTx) UpdateEvent(ctx context.Context, e *model.Event) error {
	const q = `UPDATE events
               SET title = ?, description = ?, event_date = ?, location = ?, location_type = ?,
                   category = ?, capacity = ?, image_url = ?
               WHERE id = ?`
	_, err := t.tx.ExecContext(ctx, q, e.Title, e.Description, e.Date.Format(dateLayout), e.Location,
		e.LocationType, e.Category, e.Capacity, nullString(e.ImageURL), e.ID)
	return err
}
