// Package middleware holds the echo middleware shared by all routes:
// authentication, role checks, rate limiting, response caching and request
// logging.
package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/eventease/booking-service/internal/utils"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and stores the token's user ID and role in the context under CtxUserID
// and CtxRole.  The secret must match the one used when issuing tokens.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"message": "Not authorized, no token"})
			}
			raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

			userID, role, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"message": "Not authorized, token failed"})
			}

			c.Set(CtxUserID, userID)
			c.Set(CtxRole, role)
			return next(c)
		}
	}
}

// OptionalJWT stores the caller's identity when a valid Bearer token is
// present and otherwise lets the request through anonymously.
func OptionalJWT(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if raw, ok := strings.CutPrefix(auth, "Bearer "); ok {
				if userID, role, err := utils.ParseAccessToken(secret, strings.TrimSpace(raw)); err == nil {
					c.Set(CtxUserID, userID)
					c.Set(CtxRole, role)
				}
			}
			return next(c)
		}
	}
}
