package middleware

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Identity headers set by the upstream auth proxy. Real authentication is an
// external collaborator; the backend only consumes the resolved identity.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

const (
	ContextUserID  = "userID"
	ContextAdminID = "adminID"
)

// RequireUser extracts the authenticated user id from the identity headers
// and stores it in the request context.
func RequireUser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, err := parseIDHeader(c)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			c.Set(ContextUserID, userID)
			return next(c)
		}
	}
}

// RequireAdmin additionally requires the admin role
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, err := parseIDHeader(c)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if c.Request().Header.Get(HeaderUserRole) != "admin" {
				return echo.NewHTTPError(http.StatusForbidden, "admin role required")
			}
			c.Set(ContextAdminID, userID)
			return next(c)
		}
	}
}

// UserID returns the authenticated user id set by RequireUser
func UserID(c echo.Context) uint {
	id, _ := c.Get(ContextUserID).(uint)
	return id
}

// AdminID returns the authenticated admin id set by RequireAdmin
func AdminID(c echo.Context) uint {
	id, _ := c.Get(ContextAdminID).(uint)
	return id
}

func parseIDHeader(c echo.Context) (uint, error) {
	raw := c.Request().Header.Get(HeaderUserID)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, echo.ErrUnauthorized
	}
	return uint(id), nil
}
