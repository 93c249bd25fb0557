// Package session keeps server-side login sessions. The browser only holds
// a signed cookie naming the session; user id, email and role live in the
// store.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/sanitas/hce/internal/platform/auth"
)

var ErrNotFound = errors.New("session not found")

type Session struct {
	ID        string
	UserID    int64
	Email     string
	Role      auth.Role
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether s is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Identity returns the request identity carried by s.
func (s *Session) Identity() *auth.Identity {
	return &auth.Identity{
		SessionID: s.ID,
		UserID:    s.UserID,
		Email:     s.Email,
		Role:      s.Role,
	}
}

type Store interface {
	Create(ctx context.Context, s *Session) error
	// Get returns ErrNotFound for unknown and expired sessions.
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	DeleteForUser(ctx context.Context, userID int64) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

func authRole(s string) auth.Role {
	r, _ := auth.ParseRole(s)
	return r
}
