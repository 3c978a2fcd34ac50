package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventease/booking-service/internal/model"
	"github.com/eventease/booking-service/internal/service"
	"github.com/eventease/booking-service/internal/storage"
)

var (
	lockQuery   = regexp.QuoteMeta(`SELECT id FROM events WHERE id = ? FOR UPDATE`)
	insertQuery = regexp.QuoteMeta(`INSERT INTO bookings (user_id, event_id, seats, status, booked_at)`)
	deadlock    = &mysql.MySQLError{Number: errDeadlock, Message: "Deadlock found when trying to get lock"}
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func insertOne(ctx context.Context, b *model.Booking) func(tx service.Tx) error {
	return func(tx service.Tx) error { return tx.InsertBooking(ctx, b) }
}

func TestWithinEventLockCommits(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db, 0)
	ctx := context.Background()
	at := time.Date(2030, 6, 15, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec(insertQuery).WithArgs(uint64(3), uint64(7), 2, "Confirmed", at).
		WillReturnResult(sqlmock.NewResult(41, 1))
	mock.ExpectCommit()

	b := &model.Booking{UserID: 3, EventID: 7, Seats: 2, Status: model.BookingConfirmed, BookedAt: at}
	require.NoError(t, repo.WithinEventLock(ctx, 7, insertOne(ctx, b)))
	assert.Equal(t, uint64(41), b.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinEventLockUnknownEvent(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db, 0)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WithArgs(uint64(9)).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	called := false
	err := repo.WithinEventLock(context.Background(), 9, func(service.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.False(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinEventLockRollsBackOnError(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db, 2)
	rejected := errors.New("rejected")

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectRollback()

	err := repo.WithinEventLock(context.Background(), 1, func(service.Tx) error { return rejected })
	assert.ErrorIs(t, err, rejected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinEventLockDuplicateKey(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db, 2)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec(insertQuery).WillReturnError(&mysql.MySQLError{Number: errDupEntry, Message: "Duplicate entry"})
	mock.ExpectRollback()

	b := &model.Booking{UserID: 3, EventID: 7, Seats: 1, Status: model.BookingConfirmed, BookedAt: time.Now()}
	err := repo.WithinEventLock(ctx, 7, insertOne(ctx, b))
	assert.ErrorIs(t, err, storage.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinEventLockRetriesDeadlock(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db, 1)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec(insertQuery).WillReturnError(deadlock)
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectExec(insertQuery).WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectCommit()

	b := &model.Booking{UserID: 3, EventID: 7, Seats: 1, Status: model.BookingConfirmed, BookedAt: time.Now()}
	require.NoError(t, repo.WithinEventLock(ctx, 7, insertOne(ctx, b)))
	assert.Equal(t, uint64(5), b.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinEventLockGivesUpAfterRetries(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db, 1)

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).WillReturnError(deadlock)
		mock.ExpectRollback()
	}

	err := repo.WithinEventLock(context.Background(), 7, func(service.Tx) error { return nil })
	var me *mysql.MySQLError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, uint16(errDeadlock), me.Number)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingTxQueries(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db, 0)
	ctx := context.Background()
	day := time.Date(2030, 7, 1, 0, 0, 0, 0, time.UTC)
	at := time.Date(2030, 6, 15, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(lockQuery).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE e.id = ?`)).WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "event_code", "title", "description", "event_date", "location",
			"location_type", "category", "capacity", "image_url", "created_at", "updated_at", "booked",
		}).AddRow(7, "EVT-JUN2030-ABC", "Jazz", "Quartet", day, "Berlin", "In-Person", "music", 10, nil, at, at, 4))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COALESCE(SUM(seats), 0) FROM bookings WHERE event_id = ? AND status = 'Confirmed'`)).
		WithArgs(uint64(7)).WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(4))
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE user_id = ? AND event_id = ? AND status = 'Confirmed' LIMIT 1`)).
		WithArgs(uint64(3), uint64(7)).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM bookings WHERE id = ? FOR UPDATE`)).WithArgs(uint64(12)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "event_id", "seats", "status", "booked_at"}).
			AddRow(12, 3, 7, 2, "Confirmed", at))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE bookings SET status = ? WHERE id = ?`)).
		WithArgs("Cancelled", uint64(12)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.WithinEventLock(ctx, 7, func(tx service.Tx) error {
		e, err := tx.FindEvent(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, "EVT-JUN2030-ABC", e.Code)
		assert.Equal(t, 4, e.BookedSeats)
		assert.Nil(t, e.ImageURL)
		assert.True(t, e.Date.Equal(day))

		n, err := tx.CountConfirmedSeats(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, 4, n)

		_, err = tx.FindConfirmedBooking(ctx, 3, 7)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		b, err := tx.FindBooking(ctx, 12)
		require.NoError(t, err)
		assert.Equal(t, model.BookingConfirmed, b.Status)

		return tx.SetBookingStatus(ctx, 12, model.BookingCancelled)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByUserOrphanedBooking(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db, 0)
	day := time.Date(2030, 7, 1, 0, 0, 0, 0, time.UTC)
	at := time.Date(2030, 6, 15, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`LEFT JOIN events e ON e.id = b.event_id`)).WithArgs(uint64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "seats", "status", "booked_at", "eid", "code", "title", "date", "location"}).
			AddRow(2, 1, "Cancelled", at, 7, "EVT-JUN2030-ABC", "Jazz", day, "Berlin").
			AddRow(1, 2, "Confirmed", at.Add(-time.Hour), nil, nil, nil, nil, nil))

	out, err := repo.ListByUser(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.NotNil(t, out[0].Event)
	assert.Equal(t, "EVT-JUN2030-ABC", out[0].Event.Code)
	assert.Equal(t, model.BookingCancelled, out[0].Status)
	assert.Nil(t, out[1].Event)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListAttendees(t *testing.T) {
	db, mock := newMock(t)
	repo := NewBookingRepo(db, 0)
	at := time.Date(2030, 6, 15, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM events WHERE id = ?`)).WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`JOIN users u ON u.id = b.user_id`)).WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "seats", "booked_at", "uid", "name", "email", "role"}).
			AddRow(4, 2, at, 3, "Ada", "ada@example.com", "user"))

	out, err := repo.ListAttendees(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, uint64(4), out[0].BookingID)
	assert.Equal(t, "ada@example.com", out[0].User.Email)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM events WHERE id = ?`)).WithArgs(uint64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"one"}))
	_, err = repo.ListAttendees(context.Background(), 8)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepoCreate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewEventRepo(db)
	at := time.Date(2030, 6, 15, 12, 0, 0, 0, time.UTC)
	e := &model.Event{
		Code: "EVT-JUN2030-ABC", Title: "Jazz", Description: "Quartet",
		Date: time.Date(2030, 7, 1, 0, 0, 0, 0, time.UTC), Location: "Berlin",
		LocationType: model.LocationInPerson, Category: "music", Capacity: 10,
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO events`)).
		WithArgs("EVT-JUN2030-ABC", "Jazz", "Quartet", "2030-07-01", "Berlin", "In-Person", "music", 10, nil).
		WillReturnError(&mysql.MySQLError{Number: errDupEntry, Message: "Duplicate entry"})
	assert.ErrorIs(t, repo.Create(context.Background(), e), storage.ErrDuplicate)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO events`)).WillReturnResult(sqlmock.NewResult(12, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT created_at, updated_at FROM events WHERE id = ?`)).WithArgs(uint64(12)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(at, at))
	require.NoError(t, repo.Create(context.Background(), e))
	assert.Equal(t, uint64(12), e.ID)
	assert.True(t, e.CreatedAt.Equal(at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepoListFilters(t *testing.T) {
	db, mock := newMock(t)
	repo := NewEventRepo(db)
	from := time.Date(2030, 7, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(
		`WHERE e.category = ? AND e.location LIKE CONCAT('%', ?, '%') AND e.event_date >= ? ORDER BY e.event_date ASC, e.id ASC`)).
		WithArgs("music", "berlin", "2030-07-01").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	out, err := repo.List(context.Background(), model.EventFilter{Category: "music", Location: " berlin ", StartDate: &from})
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepoDelete(t *testing.T) {
	db, mock := newMock(t)
	repo := NewEventRepo(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM events WHERE id = ?`)).WithArgs(uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM events WHERE id = ?`)).WithArgs(uint64(6)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.Delete(context.Background(), 5))
	assert.ErrorIs(t, repo.Delete(context.Background(), 6), storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepo(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WithArgs("Ada", "ada@example.com", sqlmock.AnyArg(), model.RoleUser).
		WillReturnError(&mysql.MySQLError{Number: errDupEntry, Message: "Duplicate entry"})
	_, err := repo.Create(ctx, " Ada ", "ADA@example.com", "secret123", model.RoleUser, 4)
	assert.ErrorIs(t, err, storage.ErrEmailExists)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE email=?`)).WithArgs("ada@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = repo.GetByEmail(ctx, "Ada@Example.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepoValidateRefresh(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepo(db)
	ctx := context.Background()
	q := regexp.QuoteMeta(`SELECT user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash=?`)
	future := time.Now().Add(time.Hour).UTC()

	mock.ExpectQuery(q).WithArgs("live").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at", "revoked_at"}).AddRow(3, future, nil))
	mock.ExpectQuery(q).WithArgs("revoked").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at", "revoked_at"}).AddRow(3, future, time.Now()))
	mock.ExpectQuery(q).WithArgs("expired").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "expires_at", "revoked_at"}).AddRow(3, time.Now().Add(-time.Hour), nil))

	id, err := repo.ValidateRefresh(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), id)

	_, err = repo.ValidateRefresh(ctx, "revoked")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = repo.ValidateRefresh(ctx, "expired")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepoRevokeByHash(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepo(db)
	q := regexp.QuoteMeta(`UPDATE refresh_tokens SET revoked_at=UTC_TIMESTAMP() WHERE token_hash=? AND revoked_at IS NULL`)

	mock.ExpectExec(q).WithArgs("live").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("live").WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.RevokeByHash(context.Background(), "live"))
	assert.ErrorIs(t, repo.RevokeByHash(context.Background(), "live"), storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
