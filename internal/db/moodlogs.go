package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MoodLogRepository stores classification history for signed-in users.
type MoodLogRepository struct {
	pool *pgxpool.Pool
}

// Create inserts a mood log, assigning an ID if it has none.
func (r *MoodLogRepository) Create(ctx context.Context, log *MoodLog) error {
	query := `
		INSERT INTO mood_logs (id, user_id, heart_rate, time_of_day, activity, mood, category, memberships, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING created_at
	`
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	err := r.pool.QueryRow(ctx, query,
		log.ID,
		log.UserID,
		log.HeartRate,
		log.TimeOfDay,
		log.Activity,
		log.Mood,
		log.Category,
		log.Memberships,
	).Scan(&log.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting mood log: %w", err)
	}
	return nil
}

// ListForUser returns the most recent logs for a user, newest first.
func (r *MoodLogRepository) ListForUser(ctx context.Context, userID string, limit int) ([]MoodLog, error) {
	query := `
		SELECT id, user_id, heart_rate, time_of_day, activity, mood, category, memberships, created_at
		FROM mood_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying mood logs: %w", err)
	}
	defer rows.Close()

	var logs []MoodLog
	for rows.Next() {
		var l MoodLog
		if err := rows.Scan(
			&l.ID,
			&l.UserID,
			&l.HeartRate,
			&l.TimeOfDay,
			&l.Activity,
			&l.Mood,
			&l.Category,
			&l.Memberships,
			&l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning mood log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
