package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/eventease/booking-service/internal/config"
	"github.com/eventease/booking-service/internal/handler"
	"github.com/eventease/booking-service/internal/lib/logger/handlers/slogdiscard"
	"github.com/eventease/booking-service/internal/model"
	"github.com/eventease/booking-service/internal/repository/memory"
	"github.com/eventease/booking-service/internal/router"
	"github.com/eventease/booking-service/internal/service"
	"github.com/eventease/booking-service/internal/utils"
)

const secret = "handler-test-secret"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type app struct {
	t     *testing.T
	e     *echo.Echo
	db    *memory.DB
	clock *clock
	alloc *service.Allocator
}

func newApp(t *testing.T) *app {
	t.Helper()
	log := slogdiscard.NewDiscardLogger()
	db := memory.New()
	clk := &clock{now: time.Date(2030, 6, 15, 12, 0, 0, 0, time.UTC)}

	alloc := service.NewAllocator(log, db.Bookings(), service.WithClock(clk.Now), service.WithUsers(db.Users()))
	catalog := service.NewCatalog(log, db.Events(), db.Bookings(), nil, time.UTC, clk.Now)
	authCfg := config.AuthConfig{JWTSecret: secret, AccessTTLMin: 15, RefreshTTLDays: 7, BcryptCost: bcrypt.MinCost}

	e := router.New(log, []string{"*"}, router.Deps{
		JWTSecret: secret,
		Health:    handler.Health(nil),
		Auth:      handler.NewAuthHandler(log, authCfg, db.Users(), db.Tokens()),
		Bookings:  handler.NewBookingHandler(log, alloc),
		Events:    handler.NewEventHandler(log, catalog, alloc),
	})
	return &app{t: t, e: e, db: db, clock: clk, alloc: alloc}
}

func (a *app) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var payload string
	if body != nil {
		bs, err := json.Marshal(body)
		require.NoError(a.t, err)
		payload = string(bs)
	}
	req := httptest.NewRequest(method, path, strings.NewReader(payload))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *app) user(name string) (uint64, string) {
	a.t.Helper()
	id, err := a.db.Users().Create(context.Background(), name, name+"@example.com", "secret123", model.RoleUser, bcrypt.MinCost)
	require.NoError(a.t, err)
	tok, err := utils.NewAccessToken(secret, id, model.RoleUser, 15)
	require.NoError(a.t, err)
	return id, tok.Token
}

func (a *app) admin() string {
	a.t.Helper()
	id, err := a.db.Users().Create(context.Background(), "Root", "root@example.com", "secret123", model.RoleAdmin, bcrypt.MinCost)
	require.NoError(a.t, err)
	tok, err := utils.NewAccessToken(secret, id, model.RoleAdmin, 15)
	require.NoError(a.t, err)
	return tok.Token
}

func (a *app) createEvent(adminToken string, capacity int, date string) model.Event {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/admin/events", adminToken, map[string]any{
		"title":        "Jazz Night",
		"description":  "Quartet",
		"date":         date,
		"location":     "Berlin Arena",
		"locationType": "In-Person",
		"category":     "music",
		"capacity":     capacity,
	})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	var e model.Event
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func messageOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]any](t, rec)["message"].(string)
}

func TestHealth(t *testing.T) {
	a := newApp(t)
	rec := a.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestAuthFlow(t *testing.T) {
	a := newApp(t)

	rec := a.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Ada", "email": "Ada@Example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reg := decode[map[string]any](t, rec)
	assert.Equal(t, "ada@example.com", reg["user"].(map[string]any)["email"])
	assert.Equal(t, model.RoleUser, reg["user"].(map[string]any)["role"])

	rec = a.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Ada", "email": "ada@example.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(http.MethodPost, "/api/auth/register", "", map[string]string{"email": "bad", "password": "1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[map[string]any](t, rec)
	access := login["access"].(map[string]any)["token"].(string)
	refresh := login["refresh"].(map[string]any)["token"].(string)

	rec = a.do(http.MethodGet, "/api/auth/me", access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ada", decode[model.UserInfo](t, rec).Name)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = a.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, rec.Code)
	rotated := decode[map[string]any](t, rec)["refresh"].(map[string]any)["token"].(string)

	// The old refresh token was rotated out.
	rec = a.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": refresh})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodPost, "/api/auth/logout", access, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = a.do(http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": rotated})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodPost, "/api/auth/logout", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	a := newApp(t)
	_, userToken := a.user("bob")

	rec := a.do(http.MethodPost, "/api/admin/events", "", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodPost, "/api/admin/events", userToken, map[string]any{})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestEventCRUD(t *testing.T) {
	a := newApp(t)
	admin := a.admin()

	rec := a.do(http.MethodPost, "/api/admin/events", admin, map[string]any{"description": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, messageOf(t, rec), "title is required")

	e := a.createEvent(admin, 10, "2030-07-01")
	assert.Regexp(t, `^EVT-JUN2030-[0-9A-F]{3}$`, e.Code)
	assert.Equal(t, "Upcoming", string(e.Status))

	rec = a.do(http.MethodGet, "/api/events/"+itoa(e.ID), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[map[string]any](t, rec)
	assert.EqualValues(t, 0, got["bookedSeats"])
	assert.Equal(t, "Upcoming", got["status"])

	rec = a.do(http.MethodPut, "/api/admin/events/"+itoa(e.ID), admin, map[string]any{"title": "Late Jazz", "date": "2030-06-15"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[model.Event](t, rec)
	assert.Equal(t, "Late Jazz", updated.Title)
	assert.Equal(t, e.Code, updated.Code)
	assert.Equal(t, "Ongoing", string(updated.Status))

	rec = a.do(http.MethodPut, "/api/admin/events/9999", admin, map[string]any{"title": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Event not found", messageOf(t, rec))

	rec = a.do(http.MethodDelete, "/api/admin/events/"+itoa(e.ID), admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(http.MethodGet, "/api/events/"+itoa(e.ID), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventListFilters(t *testing.T) {
	a := newApp(t)
	admin := a.admin()
	a.createEvent(admin, 10, "2030-07-01")
	a.createEvent(admin, 10, "2030-08-01")

	rec := a.do(http.MethodGet, "/api/events?location=berlin&startDate=2030-07-15", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Event](t, rec), 1)

	rec = a.do(http.MethodGet, "/api/events?category=tech", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Event](t, rec), 0)

	rec = a.do(http.MethodGet, "/api/events?endDate=yesterday", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBookingLifecycle(t *testing.T) {
	a := newApp(t)
	admin := a.admin()
	e := a.createEvent(admin, 3, "2030-06-20")
	_, ada := a.user("ada")
	_, bob := a.user("bob")

	tests := []struct {
		name   string
		token  string
		body   map[string]any
		status int
		msg    string
	}{
		{"no token", "", map[string]any{"event": e.ID, "seats": 1}, http.StatusUnauthorized, ""},
		{"too many seats", ada, map[string]any{"event": e.ID, "seats": 3}, http.StatusBadRequest, "Seats must be 1 or 2"},
		{"zero seats unknown event", ada, map[string]any{"event": 999, "seats": 0}, http.StatusBadRequest, "Seats must be 1 or 2"},
		{"unknown event", ada, map[string]any{"event": 999, "seats": 1}, http.StatusNotFound, "Event not found"},
		{"ok", ada, map[string]any{"event": e.ID, "seats": 2}, http.StatusCreated, ""},
		{"duplicate", ada, map[string]any{"event": e.ID, "seats": 1}, http.StatusBadRequest, "You already booked this event"},
		{"capacity", bob, map[string]any{"event": e.ID, "seats": 2}, http.StatusBadRequest, "Not enough seats available"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(http.MethodPost, "/api/bookings", tt.token, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.msg != "" {
				assert.Equal(t, tt.msg, messageOf(t, rec))
			}
		})
	}

	rec := a.do(http.MethodGet, "/api/bookings/my", ada, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decode[[]model.UserBooking](t, rec)
	require.Len(t, mine, 1)
	require.NotNil(t, mine[0].Event)
	assert.Equal(t, e.Code, mine[0].Event.Code)
	assert.Equal(t, "Upcoming", mine[0].Event.Status)
	bookingID := itoa(mine[0].ID)

	rec = a.do(http.MethodGet, "/api/admin/events/"+itoa(e.ID)+"/attendees", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	attendees := decode[[]model.Attendee](t, rec)
	require.Len(t, attendees, 1)
	assert.Equal(t, "ada@example.com", attendees[0].User.Email)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = a.do(http.MethodPut, "/api/admin/events/"+itoa(e.ID), admin, map[string]any{"capacity": 1})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(http.MethodDelete, "/api/bookings/"+bookingID, bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Booking not found", messageOf(t, rec))

	rec = a.do(http.MethodDelete, "/api/bookings/"+bookingID, ada, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Booking cancelled successfully", messageOf(t, rec))

	rec = a.do(http.MethodDelete, "/api/bookings/"+bookingID, ada, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Already cancelled", messageOf(t, rec))

	rec = a.do(http.MethodPost, "/api/bookings", bob, map[string]any{"event": e.ID, "seats": 2})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[map[string]any](t, rec)
	assert.Equal(t, true, created["success"])
	booking := created["booking"].(map[string]any)
	assert.Equal(t, "Confirmed", booking["status"])
	assert.EqualValues(t, e.ID, booking["event"])
}

func TestCancelPastEvent(t *testing.T) {
	a := newApp(t)
	admin := a.admin()
	e := a.createEvent(admin, 5, "2030-06-16")
	_, ada := a.user("ada")

	rec := a.do(http.MethodPost, "/api/bookings", ada, map[string]any{"event": e.ID, "seats": 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	b := decode[map[string]any](t, rec)["booking"].(map[string]any)

	a.clock.Set(time.Date(2030, 6, 17, 9, 0, 0, 0, time.UTC))
	rec = a.do(http.MethodDelete, "/api/bookings/"+itoa(uint64(b["id"].(float64))), ada, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Cannot cancel past event", messageOf(t, rec))

	rec = a.do(http.MethodPost, "/api/bookings", admin, map[string]any{"event": e.ID, "seats": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Cannot book past event", messageOf(t, rec))
}

func itoa(v uint64) string { return strconv.FormatUint(v, 10) }
