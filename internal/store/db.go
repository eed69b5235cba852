package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &DB{Client: db}, db.PingContext(context.Background())
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

// Migrate creates the session and attendance tables. The partial unique index
// on sessions enforces at most one active session per class; the unique pair
// on attendance_records enforces one record per (session, student).
func (d *DB) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id          UUID PRIMARY KEY,
		class_id    TEXT NOT NULL,
		token       TEXT NOT NULL UNIQUE,
		anchor_lat  DOUBLE PRECISION NOT NULL,
		anchor_lng  DOUBLE PRECISION NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL,
		expires_at  TIMESTAMPTZ NOT NULL,
		active      BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE UNIQUE INDEX IF NOT EXISTS sessions_one_active_per_class
		ON sessions (class_id) WHERE active;

	CREATE TABLE IF NOT EXISTS attendance_records (
		id          UUID PRIMARY KEY,
		session_id  UUID NOT NULL REFERENCES sessions(id),
		student_id  TEXT NOT NULL,
		lat         DOUBLE PRECISION NOT NULL,
		lng         DOUBLE PRECISION NOT NULL,
		marked_at   TIMESTAMPTZ NOT NULL,
		CONSTRAINT attendance_once_per_student UNIQUE (session_id, student_id)
	);

	CREATE INDEX IF NOT EXISTS attendance_records_session
		ON attendance_records (session_id);
	`
	_, err := d.Client.ExecContext(ctx, schema)
	return err
}

// IsUniqueViolation reports whether err is a Postgres unique violation on the
// named constraint or index; an empty name matches any unique violation.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && (constraint == "" || pgErr.ConstraintName == constraint)
}
