package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kdimtricp/laptimer/internal/models"
)

type SessionRepository struct {
	db *DB
}

func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Insert(ctx context.Context, session *models.Session) error {
	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO sessions (id, model, created_at, closed_at) VALUES (?, ?, ?, ?)`,
		session.ID, session.Model, session.CreatedAt.UTC(), nullTime(session.ClosedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	row := r.db.conn.QueryRowContext(ctx,
		`SELECT id, model, created_at, closed_at FROM sessions WHERE id = ?`, id)

	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// List returns sessions newest first.
func (r *SessionRepository) List(ctx context.Context) ([]models.Session, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT id, model, created_at, closed_at FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

func (r *SessionRepository) MarkClosed(ctx context.Context, id string, closedAt time.Time) error {
	res, err := r.db.conn.ExecContext(ctx,
		`UPDATE sessions SET closed_at = ? WHERE id = ?`, closedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var s models.Session
	var closedAt sql.NullTime
	if err := row.Scan(&s.ID, &s.Model, &s.CreatedAt, &closedAt); err != nil {
		return nil, err
	}
	if closedAt.Valid {
		t := closedAt.Time
		s.ClosedAt = &t
	}
	return &s, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
