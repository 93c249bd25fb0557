package session

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sanitas/hce/internal/platform/db"
)

type queryable interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type pgStore struct{ pool *pgxpool.Pool }

func NewPGStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

func (s *pgStore) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return s.pool
}

func (s *pgStore) Create(ctx context.Context, sess *Session) error {
	return s.conn(ctx).QueryRow(ctx, `
		INSERT INTO sesiones (id, usuario_id, email, rol, expira_en)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING creada_en`,
		sess.ID, sess.UserID, sess.Email, string(sess.Role), sess.ExpiresAt,
	).Scan(&sess.CreatedAt)
}

func (s *pgStore) Get(ctx context.Context, id string) (*Session, error) {
	var sess Session
	var role string
	err := s.conn(ctx).QueryRow(ctx, `
		SELECT id::text, usuario_id, email, rol, creada_en, expira_en
		FROM sesiones WHERE id = $1 AND expira_en > NOW()`, id,
	).Scan(&sess.ID, &sess.UserID, &sess.Email, &role, &sess.CreatedAt, &sess.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sess.Role = authRole(role)
	return &sess, nil
}

func (s *pgStore) Delete(ctx context.Context, id string) error {
	_, err := s.conn(ctx).Exec(ctx, `DELETE FROM sesiones WHERE id = $1`, id)
	return err
}

func (s *pgStore) DeleteForUser(ctx context.Context, userID int64) error {
	_, err := s.conn(ctx).Exec(ctx, `DELETE FROM sesiones WHERE usuario_id = $1`, userID)
	return err
}

func (s *pgStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM sesiones WHERE expira_en <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
