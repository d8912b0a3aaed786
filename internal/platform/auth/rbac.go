package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	RolePatient     = "PATIENT"
	RoleDoctor      = "DOCTOR"
	RoleAdmin       = "ADMIN"
	RoleDriver      = "DRIVER"
	RoleDeliveryMan = "DELIVERY_MAN"
)

// RequireRole returns middleware that checks if the user has one of the
// specified roles. Admins pass every check.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return requireRole(true, roles)
}

// RequireExactRole is RequireRole without the admin bypass. Routes that
// create records owned by the caller use it.
func RequireExactRole(roles ...string) echo.MiddlewareFunc {
	return requireRole(false, roles)
}

func requireRole(adminBypass bool, roles []string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role := RoleFromContext(c.Request().Context())
			if role == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if adminBypass && role == RoleAdmin {
				return next(c)
			}
			for _, required := range roles {
				if role == required {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
