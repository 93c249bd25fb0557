package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/sanitas/hce/internal/platform/apperr"
)

// Decision is the outcome of an access check.
type Decision int

const (
	Allow Decision = iota
	Unauthenticated
	Forbidden
)

// Check decides whether id may proceed given the required roles. An empty
// role set admits any authenticated caller. Check has no side effects.
func Check(id *Identity, roles ...Role) Decision {
	if id == nil || id.UserID == 0 {
		return Unauthenticated
	}
	if len(roles) == 0 {
		return Allow
	}
	for _, r := range roles {
		if id.Role == r {
			return Allow
		}
	}
	return Forbidden
}

// RequireAuth admits any authenticated caller.
func RequireAuth() echo.MiddlewareFunc {
	return RequireRole()
}

// RequireRole admits callers whose role is one of roles.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			switch Check(CurrentIdentity(c), roles...) {
			case Unauthenticated:
				return apperr.Unauthenticated("authentication required")
			case Forbidden:
				return apperr.Forbidden("access denied for this role")
			}
			return next(c)
		}
	}
}
