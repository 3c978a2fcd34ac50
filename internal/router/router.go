// Package router wires handlers and middleware onto an echo instance.
package router

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/eventease/booking-service/internal/handler"
	"github.com/eventease/booking-service/internal/middleware"
	"github.com/eventease/booking-service/internal/model"
)

// Deps carries everything the routes need.  Cache and RateLimit may be
// pass-through middleware when Redis is unavailable.
type Deps struct {
	JWTSecret string
	Health    echo.HandlerFunc
	Auth      *handler.AuthHandler
	Bookings  *handler.BookingHandler
	Events    *handler.EventHandler
	Cache     echo.MiddlewareFunc
	RateLimit echo.MiddlewareFunc
}

// New builds the echo instance with the global middleware stack and all
// routes.  allowOrigins configures CORS; "*" allows any origin.
func New(log *slog.Logger, allowOrigins []string, d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     allowOrigins,
		AllowCredentials: true,
	}))

	Register(e, d)
	return e
}

// Register mounts every route of the API on e.
func Register(e *echo.Echo, d Deps) {
	if d.Cache == nil {
		d.Cache = skip
	}
	if d.RateLimit == nil {
		d.RateLimit = skip
	}
	e.GET("/healthz", d.Health)

	api := e.Group("/api", d.RateLimit)
	RegisterAuth(api, d.Auth, d.JWTSecret)
	RegisterEvents(api, d.Events, d.Cache)
	RegisterBookings(api, d.Bookings, d.JWTSecret)
	RegisterAdmin(api, d.Events, d.JWTSecret)
}

// RegisterAuth registers authentication routes.  Register, login and
// refresh need no session; logout accepts either a session or a refresh
// token; me requires a session.
func RegisterAuth(g *echo.Group, a *handler.AuthHandler, jwtSecret string) {
	auth := g.Group("/auth")
	auth.POST("/register", a.Register)
	auth.POST("/login", a.Login)
	auth.POST("/refresh", a.Refresh)
	auth.POST("/logout", a.Logout, middleware.OptionalJWT(jwtSecret))
	auth.GET("/me", a.Me, middleware.JWTAuth(jwtSecret))
}

// RegisterEvents registers the public, cached event listing.
func RegisterEvents(g *echo.Group, h *handler.EventHandler, cache echo.MiddlewareFunc) {
	ev := g.Group("/events", cache)
	ev.GET("", h.List)
	ev.GET("/:id", h.Get)
}

// RegisterBookings registers booking routes for any authenticated user.
func RegisterBookings(g *echo.Group, h *handler.BookingHandler, jwtSecret string) {
	b := g.Group("/bookings", middleware.JWTAuth(jwtSecret))
	b.POST("", h.Create)
	b.GET("/my", h.Mine)
	b.DELETE("/:id", h.Cancel)
}

// RegisterAdmin registers event management routes for administrators.
func RegisterAdmin(g *echo.Group, h *handler.EventHandler, jwtSecret string) {
	a := g.Group("/admin", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleAdmin))
	a.POST("/events", h.Create)
	a.PUT("/events/:id", h.Update)
	a.DELETE("/events/:id", h.Delete)
	a.GET("/events/:eventId/attendees", h.Attendees)
}

func skip(next echo.HandlerFunc) echo.HandlerFunc { return next }
