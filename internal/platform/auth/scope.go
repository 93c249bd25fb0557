package auth

import (
	"context"
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sanitas/hce/internal/platform/apperr"
)

// ErrNoPatient is returned by a PatientOwnerLookup when the user owns no
// patient profile.
var ErrNoPatient = errors.New("no patient profile for user")

// PatientOwnerLookup finds the patient profile owned by a user account.
type PatientOwnerLookup interface {
	PatientIDForUser(ctx context.Context, userID int64) (int64, error)
}

// ScopeResolver maps an identity to the patient it may act on.
type ScopeResolver struct {
	owners PatientOwnerLookup
}

func NewScopeResolver(owners PatientOwnerLookup) *ScopeResolver {
	return &ScopeResolver{owners: owners}
}

// Resolve returns the effective patient id for id. requested is nil when the
// route names no patient.
//
// Patients resolve to their own profile and are denied any other id. Staff
// get requested back unchanged.
func (r *ScopeResolver) Resolve(ctx context.Context, id *Identity, requested *int64) (int64, error) {
	if id == nil {
		return 0, apperr.Unauthenticated("authentication required")
	}

	switch {
	case id.Role == RolePatient:
		owned, err := r.owners.PatientIDForUser(ctx, id.UserID)
		if errors.Is(err, ErrNoPatient) {
			return 0, apperr.NotFound("patient profile not found")
		}
		if err != nil {
			return 0, apperr.Internal("resolve patient scope", err)
		}
		if requested != nil && *requested != owned {
			return 0, apperr.Forbidden("access to another patient's records is not allowed")
		}
		return owned, nil

	case id.Role.IsStaff():
		if requested == nil {
			return 0, apperr.Validation("patient id is required")
		}
		return *requested, nil
	}

	return 0, apperr.Forbidden("access denied for this role")
}

// PatientScope resolves the patient named by the param path parameter (or
// the caller's own profile when param is empty) and stores it on the
// request. It must run after RequireAuth or RequireRole.
func PatientScope(r *ScopeResolver, param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var requested *int64
			if param != "" {
				pid, err := ParseID(c.Param(param))
				if err != nil {
					return err
				}
				requested = &pid
			}

			pid, err := r.Resolve(c.Request().Context(), CurrentIdentity(c), requested)
			if err != nil {
				return err
			}
			SetPatientID(c, pid)
			return next(c)
		}
	}
}

// SetPatientID stores the effective patient id on c.
func SetPatientID(c echo.Context, pid int64) {
	c.Set(string(PatientIDKey), pid)
	c.SetRequest(c.Request().WithContext(context.WithValue(c.Request().Context(), PatientIDKey, pid)))
}

// PatientIDFromContext returns the patient id resolved by PatientScope.
func PatientIDFromContext(ctx context.Context) (int64, bool) {
	pid, ok := ctx.Value(PatientIDKey).(int64)
	return pid, ok
}

// ScopedPatientID returns the patient id resolved for c.
func ScopedPatientID(c echo.Context) (int64, error) {
	if pid, ok := c.Get(string(PatientIDKey)).(int64); ok {
		return pid, nil
	}
	if pid, ok := PatientIDFromContext(c.Request().Context()); ok {
		return pid, nil
	}
	return 0, apperr.Internal("patient scope", errors.New("patient scope not resolved"))
}

// ParseID parses a positive numeric path identifier.
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid id: %q", s)
	}
	return id, nil
}
