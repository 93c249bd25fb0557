package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/sanitas/hce/internal/platform/auth"
)

type Config struct {
	Secret     []byte
	TTL        time.Duration
	CookieName string
	Secure     bool
}

type Manager struct {
	store  Store
	codec  codec
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
}

func NewManager(store Store, cfg Config, logger zerolog.Logger) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = "hce_session"
	}
	return &Manager{
		store:  store,
		codec:  codec{secret: cfg.Secret},
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Start creates a session for the user and sets the cookie on the response.
func (m *Manager) Start(c echo.Context, userID int64, email string, role auth.Role) (*Session, error) {
	now := m.now()
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Email:     email,
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.TTL),
	}
	if err := m.store.Create(c.Request().Context(), s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	value, err := m.codec.encode(s)
	if err != nil {
		return nil, err
	}
	c.SetCookie(m.cookie(value, s.ExpiresAt))
	auth.SetIdentity(c, s.Identity())
	return s, nil
}

// End deletes the caller's session and clears the cookie.
func (m *Manager) End(c echo.Context) error {
	if id := auth.CurrentIdentity(c); id != nil && id.SessionID != "" {
		if err := m.store.Delete(c.Request().Context(), id.SessionID); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
	}
	m.clear(c)
	return nil
}

// Revoke ends every session of a user.
func (m *Manager) Revoke(ctx context.Context, userID int64) error {
	return m.store.DeleteForUser(ctx, userID)
}

// Prune deletes expired sessions.
func (m *Manager) Prune(ctx context.Context) (int64, error) {
	return m.store.DeleteExpired(ctx, m.now())
}

// Load attaches the identity of a valid session cookie to the request. A
// missing, forged or expired cookie leaves the request anonymous; the guard
// decides what anonymous callers may do.
func (m *Manager) Load() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ck, err := c.Cookie(m.cfg.CookieName)
			if err != nil || ck.Value == "" {
				return next(c)
			}

			sid, uid, err := m.codec.decode(ck.Value, m.now())
			if err != nil {
				m.logger.Debug().Str("remote_ip", c.RealIP()).Msg("discarding invalid session cookie")
				m.clear(c)
				return next(c)
			}

			s, err := m.store.Get(c.Request().Context(), sid)
			switch {
			case errors.Is(err, ErrNotFound):
				m.clear(c)
				return next(c)
			case err != nil:
				return fmt.Errorf("load session: %w", err)
			}
			if s.UserID != uid || s.Expired(m.now()) {
				m.clear(c)
				return next(c)
			}

			auth.SetIdentity(c, s.Identity())
			return next(c)
		}
	}
}

func (m *Manager) cookie(value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (m *Manager) clear(c echo.Context) {
	ck := m.cookie("", time.Unix(0, 0))
	ck.MaxAge = -1
	c.SetCookie(ck)
}
