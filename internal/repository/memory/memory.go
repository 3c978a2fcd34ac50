// Package memory is an in-process implementation of the persistence
// collaborators.  It backs STORAGE_DRIVER=memory and the service tests.
// Decisions for one event are serialized by a per-event mutex; the maps
// themselves are guarded by a single RWMutex.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/eventease/booking-service/internal/model"
	"github.com/eventease/booking-service/internal/service"
	"github.com/eventease/booking-service/internal/storage"
	"github.com/eventease/booking-service/internal/utils"
)

// DB holds all tables.  Use the Events, Bookings, Users and Tokens views to
// access them.
type DB struct {
	mu       sync.RWMutex
	events   map[uint64]*model.Event
	bookings map[uint64]*model.Booking
	users    map[uint64]*model.User
	tokens   map[string]*model.RefreshToken
	seq      struct{ event, booking, user, token uint64 }

	lockMu     sync.Mutex
	eventLocks map[uint64]*sync.Mutex
}

// New returns an empty DB.
func New() *DB {
	return &DB{
		events:     make(map[uint64]*model.Event),
		bookings:   make(map[uint64]*model.Booking),
		users:      make(map[uint64]*model.User),
		tokens:     make(map[string]*model.RefreshToken),
		eventLocks: make(map[uint64]*sync.Mutex),
	}
}

func (db *DB) Events() *Events     { return &Events{db: db} }
func (db *DB) Bookings() *Bookings { return &Bookings{db: db} }
func (db *DB) Users() *Users       { return &Users{db: db} }
func (db *DB) Tokens() *Tokens     { return &Tokens{db: db} }

func (db *DB) eventLock(eventID uint64) *sync.Mutex {
	db.lockMu.Lock()
	defer db.lockMu.Unlock()
	m, ok := db.eventLocks[eventID]
	if !ok {
		m = &sync.Mutex{}
		db.eventLocks[eventID] = m
	}
	return m
}

// confirmedSeats sums confirmed seats of an event.  Caller holds db.mu.
func (db *DB) confirmedSeats(eventID uint64) int {
	n := 0
	for _, b := range db.bookings {
		if b.EventID == eventID && b.Status == model.BookingConfirmed {
			n += b.Seats
		}
	}
	return n
}

// eventCopy returns a copy of an event with BookedSeats filled.  Caller
// holds db.mu.
func (db *DB) eventCopy(eventID uint64) (*model.Event, bool) {
	e, ok := db.events[eventID]
	if !ok {
		return nil, false
	}
	cp := *e
	cp.BookedSeats = db.confirmedSeats(eventID)
	return &cp, true
}

// Events implements service.EventStore.
type Events struct{ db *DB }

func (s *Events) Create(_ context.Context, e *model.Event) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, other := range s.db.events {
		if other.Code == e.Code {
			return storage.ErrDuplicate
		}
	}
	s.db.seq.event++
	now := time.Now().UTC()
	e.ID = s.db.seq.event
	e.CreatedAt, e.UpdatedAt = now, now
	e.BookedSeats = 0

	cp := *e
	s.db.events[e.ID] = &cp
	return nil
}

func (s *Events) GetByID(_ context.Context, eventID uint64) (*model.Event, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	e, ok := s.db.eventCopy(eventID)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return e, nil
}

// List filters like the MySQL store: exact category, case-insensitive
// location substring, inclusive date bounds, ordered by date.
func (s *Events) List(_ context.Context, f model.EventFilter) ([]model.Event, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	category := strings.TrimSpace(f.Category)
	location := strings.ToLower(strings.TrimSpace(f.Location))

	out := make([]model.Event, 0, len(s.db.events))
	for id, e := range s.db.events {
		switch {
		case category != "" && e.Category != category:
			continue
		case location != "" && !strings.Contains(strings.ToLower(e.Location), location):
			continue
		case f.StartDate != nil && e.Date.Before(*f.StartDate):
			continue
		case f.EndDate != nil && e.Date.After(*f.EndDate):
			continue
		}
		cp, _ := s.db.eventCopy(id)
		out = append(out, *cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Delete removes an event once no decision for it is in flight.  Its
// bookings are kept.
func (s *Events) Delete(_ context.Context, eventID uint64) error {
	l := s.db.eventLock(eventID)
	l.Lock()
	defer l.Unlock()

	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.events[eventID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.db.events, eventID)
	return nil
}

// Bookings implements service.BookingStore.
type Bookings struct{ db *DB }

// WithinEventLock holds the event's mutex while fn runs.  Writes made
// through the Tx are staged and applied together only when fn succeeds.
func (s *Bookings) WithinEventLock(ctx context.Context, eventID uint64, fn func(tx service.Tx) error) error {
	l := s.db.eventLock(eventID)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.db.mu.RLock()
	_, ok := s.db.events[eventID]
	s.db.mu.RUnlock()
	if !ok {
		return storage.ErrNotFound
	}

	tx := &memTx{db: s.db, status: make(map[uint64]model.BookingStatus)}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *Bookings) GetByID(_ context.Context, bookingID uint64) (*model.Booking, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	b, ok := s.db.bookings[bookingID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *Bookings) ListByUser(_ context.Context, userID uint64) ([]model.UserBooking, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	out := make([]model.UserBooking, 0)
	for _, b := range s.db.bookings {
		if b.UserID != userID {
			continue
		}
		ub := model.UserBooking{ID: b.ID, Seats: b.Seats, Status: b.Status, BookedAt: b.BookedAt}
		if e, ok := s.db.events[b.EventID]; ok {
			ub.Event = &model.EventSummary{
				ID:       e.ID,
				Code:     e.Code,
				Title:    e.Title,
				Date:     e.Date,
				Location: e.Location,
			}
		}
		out = append(out, ub)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BookedAt.Equal(out[j].BookedAt) {
			return out[i].BookedAt.After(out[j].BookedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Bookings) ListAttendees(_ context.Context, eventID uint64) ([]model.Attendee, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	if _, ok := s.db.events[eventID]; !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]model.Attendee, 0)
	for _, b := range s.db.bookings {
		if b.EventID != eventID || b.Status != model.BookingConfirmed {
			continue
		}
		a := model.Attendee{BookingID: b.ID, Seats: b.Seats, BookedAt: b.BookedAt}
		if u, ok := s.db.users[b.UserID]; ok {
			a.User = u.Info()
		} else {
			a.User = model.UserInfo{ID: b.UserID}
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BookedAt.Equal(out[j].BookedAt) {
			return out[i].BookedAt.Before(out[j].BookedAt)
		}
		return out[i].BookingID < out[j].BookingID
	})
	return out, nil
}

// memTx stages writes made inside WithinEventLock.  Reads see committed
// state overlaid with the staged writes.
type memTx struct {
	db      *DB
	inserts []*model.Booking
	status  map[uint64]model.BookingStatus
	event   *model.Event
}

// view returns the effective state of a booking.
func (t *memTx) view(b *model.Booking) model.Booking {
	cp := *b
	if s, ok := t.status[b.ID]; ok {
		cp.Status = s
	}
	return cp
}

// each calls fn for every booking in the effective state until fn returns
// false.  Caller holds db.mu.
func (t *memTx) each(fn func(b model.Booking) bool) {
	for _, b := range t.db.bookings {
		if !fn(t.view(b)) {
			return
		}
	}
	for _, b := range t.inserts {
		if !fn(t.view(b)) {
			return
		}
	}
}

func (t *memTx) FindEvent(_ context.Context, eventID uint64) (*model.Event, error) {
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()

	if t.event != nil && t.event.ID == eventID {
		cp := *t.event
		return &cp, nil
	}
	e, ok := t.db.eventCopy(eventID)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return e, nil
}

func (t *memTx) CountConfirmedSeats(_ context.Context, eventID uint64) (int, error) {
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()

	n := 0
	t.each(func(b model.Booking) bool {
		if b.EventID == eventID && b.Status == model.BookingConfirmed {
			n += b.Seats
		}
		return true
	})
	return n, nil
}

func (t *memTx) FindConfirmedBooking(_ context.Context, userID, eventID uint64) (*model.Booking, error) {
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()

	var found *model.Booking
	t.each(func(b model.Booking) bool {
		if b.UserID == userID && b.EventID == eventID && b.Status == model.BookingConfirmed {
			found = &b
			return false
		}
		return true
	})
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return found, nil
}

func (t *memTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	if b.Status == model.BookingConfirmed {
		if _, err := t.FindConfirmedBooking(ctx, b.UserID, b.EventID); err == nil {
			return storage.ErrDuplicate
		}
	}

	t.db.mu.Lock()
	t.db.seq.booking++
	b.ID = t.db.seq.booking
	t.db.mu.Unlock()

	cp := *b
	t.inserts = append(t.inserts, &cp)
	return nil
}

func (t *memTx) SetBookingStatus(_ context.Context, bookingID uint64, status model.BookingStatus) error {
	t.status[bookingID] = status
	return nil
}

func (t *memTx) FindBooking(_ context.Context, bookingID uint64) (*model.Booking, error) {
	t.db.mu.RLock()
	defer t.db.mu.RUnlock()

	for _, b := range t.inserts {
		if b.ID == bookingID {
			v := t.view(b)
			return &v, nil
		}
	}
	b, ok := t.db.bookings[bookingID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	v := t.view(b)
	return &v, nil
}

func (t *memTx) UpdateEvent(_ context.Context, e *model.Event) error {
	cp := *e
	t.event = &cp
	return nil
}

func (t *memTx) commit() {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()

	for _, b := range t.inserts {
		t.db.bookings[b.ID] = b
	}
	for id, s := range t.status {
		if b, ok := t.db.bookings[id]; ok {
			b.Status = s
		}
	}
	if t.event != nil {
		if cur, ok := t.db.events[t.event.ID]; ok {
			e := *t.event
			e.Code, e.CreatedAt = cur.Code, cur.CreatedAt
			e.UpdatedAt = time.Now().UTC()
			t.db.events[e.ID] = &e
		}
	}
}

// Users stores accounts.  Emails are unique and compared lower-cased.
type Users struct{ db *DB }

func (s *Users) Create(_ context.Context, name, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	for _, u := range s.db.users {
		if u.Email == email {
			return 0, storage.ErrEmailExists
		}
	}
	s.db.seq.user++
	now := time.Now().UTC()
	s.db.users[s.db.seq.user] = &model.User{
		ID:           s.db.seq.user,
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return s.db.seq.user, nil
}

func (s *Users) GetByEmail(_ context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	for _, u := range s.db.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Users) GetByID(_ context.Context, id uint64) (*model.User, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	u, ok := s.db.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// Tokens stores refresh token hashes.
type Tokens struct{ db *DB }

func (s *Tokens) StoreRefresh(_ context.Context, userID uint64, tokenHash string, exp time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.tokens[tokenHash]; ok {
		return storage.ErrDuplicate
	}
	s.db.seq.token++
	s.db.tokens[tokenHash] = &model.RefreshToken{
		ID:        s.db.seq.token,
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: exp.UTC(),
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

func (s *Tokens) ValidateRefresh(_ context.Context, tokenHash string) (uint64, error) {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	t, ok := s.db.tokens[tokenHash]
	if !ok || t.RevokedAt != nil || time.Now().UTC().After(t.ExpiresAt) {
		return 0, storage.ErrNotFound
	}
	return t.UserID, nil
}

// RevokeByHash returns storage.ErrNotFound when no live token was revoked.
func (s *Tokens) RevokeByHash(_ context.Context, tokenHash string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	t, ok := s.db.tokens[tokenHash]
	if !ok || t.RevokedAt != nil {
		return storage.ErrNotFound
	}
	now := time.Now().UTC()
	t.RevokedAt = &now
	return nil
}

func (s *Tokens) RevokeAllForUser(_ context.Context, userID uint64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	now := time.Now().UTC()
	for _, t := range s.db.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
		}
	}
	return nil
}

var (
	_ service.EventStore   = (*Events)(nil)
	_ service.BookingStore = (*Bookings)(nil)
	_ service.UserFinder   = (*Users)(nil)
)
