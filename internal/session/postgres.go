package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"presence/internal/store"
)

// PostgresRepository persists sessions in Postgres. The one-active-session
// invariant is carried by the sessions_one_active_per_class partial index, so
// concurrent Start calls for the same class cannot both win.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, class_id, token, anchor_lat, anchor_lng, created_at, expires_at, active`

func (r *PostgresRepository) Insert(ctx context.Context, s Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.ID, s.ClassID, s.Token, s.Anchor.Lat, s.Anchor.Lng, s.CreatedAt, s.ExpiresAt, s.Active)
	if store.IsUniqueViolation(err, "sessions_one_active_per_class") {
		return ErrAlreadyActive
	}
	if err != nil {
		return fmt.Errorf("session: insert: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE id = $1
	`, id)
	return scanSession(row)
}

func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE token = $1
	`, token)
	return scanSession(row)
}

func (r *PostgresRepository) ActiveForClass(ctx context.Context, classID string) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE class_id = $1 AND active
	`, classID)
	return scanSession(row)
}

func (r *PostgresRepository) UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET expires_at = $2 WHERE id = $1 AND active
	`, id, expiresAt)
	if err != nil {
		return fmt.Errorf("session: update expiry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotActive
	}
	return nil
}

func (r *PostgresRepository) Deactivate(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET active = FALSE WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("session: deactivate: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) ReleaseExpired(ctx context.Context, classID string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET active = FALSE
		WHERE class_id = $1 AND active AND expires_at < $2
	`, classID, now)
	return err
}

func scanSession(row *sql.Row) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.ClassID, &s.Token, &s.Anchor.Lat, &s.Anchor.Lng,
		&s.CreatedAt, &s.ExpiresAt, &s.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("session: scan: %w", err)
	}
	return s, nil
}
