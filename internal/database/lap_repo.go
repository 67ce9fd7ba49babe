package database

import (
	"context"
	"fmt"
	"time"

	"github.com/kdimtricp/laptimer/internal/models"
)

type LapRepository struct {
	db *DB
}

func NewLapRepository(db *DB) *LapRepository {
	return &LapRepository{db: db}
}

func (r *LapRepository) Insert(ctx context.Context, lap *models.Lap) error {
	if lap.Duration < 0 {
		return fmt.Errorf("lap duration must not be negative, got %v", lap.Duration)
	}

	_, err := r.db.conn.ExecContext(ctx, `
		INSERT INTO laps (id, session_id, subject, duration_ns, started_at, ended_at, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		lap.ID,
		lap.SessionID,
		lap.Subject,
		int64(lap.Duration),
		lap.StartedAt.UTC(),
		lap.EndedAt.UTC(),
		lap.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to insert lap: %w", err)
	}
	return nil
}

// ListBySession returns the laps of one session in the order they ended.
func (r *LapRepository) ListBySession(ctx context.Context, sessionID string) ([]models.Lap, error) {
	return r.query(ctx, `
		SELECT id, session_id, subject, duration_ns, started_at, ended_at, reason
		FROM laps
		WHERE session_id = ?
		ORDER BY ended_at, rowid`, sessionID)
}

// ListAll returns every stored lap in the order they ended.
func (r *LapRepository) ListAll(ctx context.Context) ([]models.Lap, error) {
	return r.query(ctx, `
		SELECT id, session_id, subject, duration_ns, started_at, ended_at, reason
		FROM laps
		ORDER BY ended_at, rowid`)
}

func (r *LapRepository) query(ctx context.Context, query string, args ...any) ([]models.Lap, error) {
	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query laps: %w", err)
	}
	defer rows.Close()

	laps := []models.Lap{}
	for rows.Next() {
		var lap models.Lap
		var durationNS int64
		if err := rows.Scan(
			&lap.ID,
			&lap.SessionID,
			&lap.Subject,
			&durationNS,
			&lap.StartedAt,
			&lap.EndedAt,
			&lap.Reason,
		); err != nil {
			return nil, fmt.Errorf("failed to scan lap: %w", err)
		}
		lap.Duration = time.Duration(durationNS)
		laps = append(laps, lap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating laps: %w", err)
	}
	return laps, nil
}
