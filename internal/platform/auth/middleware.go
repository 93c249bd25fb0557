package auth

import (
	"context"

	"github.com/labstack/echo/v4"
)

// Role is one of the three account roles.
type Role string

const (
	RoleAdmin   Role = "administrador"
	RoleDoctor  Role = "medico"
	RolePatient Role = "paciente"
)

// ParseRole returns the role named s, or false if s is not a known role.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin, RoleDoctor, RolePatient:
		return Role(s), true
	}
	return "", false
}

// IsStaff reports whether the role may act on any patient.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleDoctor
}

// DashboardPath is the UI landing page for the role.
func (r Role) DashboardPath() string {
	switch r {
	case RoleAdmin:
		return "/dashboard-admin"
	case RoleDoctor:
		return "/dashboard-medico"
	case RolePatient:
		return "/dashboard-paciente"
	}
	return "/"
}

// Identity is the authenticated caller of a request.
type Identity struct {
	SessionID string
	UserID    int64
	Email     string
	Role      Role
}

type contextKey string

const (
	IdentityKey  contextKey = "identity"
	PatientIDKey contextKey = "patient_id"
)

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}

// IdentityFromContext returns the authenticated identity, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(IdentityKey).(*Identity)
	return id
}

// SetIdentity stores id on both the echo context and the request context.
func SetIdentity(c echo.Context, id *Identity) {
	c.Set(string(IdentityKey), id)
	c.SetRequest(c.Request().WithContext(WithIdentity(c.Request().Context(), id)))
}

// CurrentIdentity returns the identity attached to c, or nil.
func CurrentIdentity(c echo.Context) *Identity {
	if id, ok := c.Get(string(IdentityKey)).(*Identity); ok {
		return id
	}
	return IdentityFromContext(c.Request().Context())
}
