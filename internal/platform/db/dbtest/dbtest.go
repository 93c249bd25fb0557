// Package dbtest opens a migrated PostgreSQL schema for repository tests.
// Tests are skipped unless HCE_TEST_DATABASE_URL names a reachable server.
package dbtest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sanitas/hce/internal/platform/db"
)

// EnvURL is the variable holding the test server's connection string.
const EnvURL = "HCE_TEST_DATABASE_URL"

// MigrationsDir returns the repository's migrations directory.
func MigrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	// internal/platform/db/dbtest -> module root
	return filepath.Join(filepath.Dir(filename), "..", "..", "..", "..", "migrations")
}

// Open creates a throwaway schema, applies every migration to it and
// returns a pool whose connections resolve tables in that schema. The
// schema is dropped when the test ends.
func Open(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv(EnvURL)
	if url == "" {
		t.Skipf("%s not set; skipping database test", EnvURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	admin, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	schema := "hce_test_" + strings.ReplaceAll(uuid.NewString()[:8], "-", "")
	if _, err := admin.Exec(ctx, "CREATE SCHEMA "+schema); err != nil {
		admin.Close()
		t.Fatalf("create schema %s: %v", schema, err)
	}

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		admin.Close()
		t.Fatalf("parse url: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	cfg.MaxConns = 4
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		admin.Close()
		t.Fatalf("connect to %s: %v", schema, err)
	}

	t.Cleanup(func() {
		pool.Close()
		if _, err := admin.Exec(context.Background(), fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema)); err != nil {
			t.Logf("warning: drop schema %s: %v", schema, err)
		}
		admin.Close()
	})

	if _, err := db.NewMigrator(pool, MigrationsDir()).Up(ctx); err != nil {
		t.Fatalf("migrate %s: %v", schema, err)
	}
	return pool
}

// CreatePatient inserts a paciente user with its profile and returns the
// patient id.
func CreatePatient(t *testing.T, pool *pgxpool.Pool, email, nationalID string) int64 {
	t.Helper()
	ctx := context.Background()
	var userID, patientID int64
	if err := pool.QueryRow(ctx,
		`INSERT INTO usuarios (email, contrasena, rol) VALUES ($1, 'x', 'paciente') RETURNING id`,
		email).Scan(&userID); err != nil {
		t.Fatalf("insert user %s: %v", email, err)
	}
	if err := pool.QueryRow(ctx, `
		INSERT INTO pacientes (usuario_id, nombres, apellidos, identificacion, fecha_nacimiento)
		VALUES ($1, 'Test', 'Paciente', $2, '1990-01-01') RETURNING id`,
		userID, nationalID).Scan(&patientID); err != nil {
		t.Fatalf("insert patient %s: %v", nationalID, err)
	}
	return patientID
}
