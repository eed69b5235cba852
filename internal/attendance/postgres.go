package attendance

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepository persists attendance records in Postgres. Exactly-once
// insertion rides on the attendance_once_per_student unique constraint, so a
// concurrent duplicate scan cannot win a read-then-write race.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, rec Record) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, session_id, student_id, lat, lng, marked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, student_id) DO NOTHING
	`, rec.ID, rec.SessionID, rec.StudentID, rec.Location.Lat, rec.Location.Lng, rec.MarkedAt)
	if err != nil {
		return fmt.Errorf("attendance: insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDuplicate
	}
	return nil
}

func (r *PostgresRepository) ListBySession(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, student_id, lat, lng, marked_at
		FROM attendance_records
		WHERE session_id = $1
		ORDER BY marked_at, student_id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("attendance: list: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.StudentID,
			&rec.Location.Lat, &rec.Location.Lng, &rec.MarkedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
