package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Veraticus/rollcall/internal/model"
)

// SaveAttempt records or updates a recognition attempt.
func (s *SQLiteStorage) SaveAttempt(ctx context.Context, attempt model.RecognitionAttempt) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateAttempt(attempt); err != nil {
		return err
	}

	var finishedAt sql.NullTime
	if !attempt.FinishedAt.IsZero() {
		finishedAt = sql.NullTime{Time: attempt.FinishedAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recognition_attempts
			(id, session_id, stage, message, detail, outcome, candidate_count, low_confidence_count, dropped_count, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			stage = excluded.stage,
			message = excluded.message,
			detail = excluded.detail,
			outcome = excluded.outcome,
			candidate_count = excluded.candidate_count,
			low_confidence_count = excluded.low_confidence_count,
			dropped_count = excluded.dropped_count,
			finished_at = excluded.finished_at`,
		attempt.ID, attempt.SessionID, attempt.Stage, attempt.Message, attempt.Detail, attempt.Outcome,
		attempt.CandidateCount, attempt.LowConfidenceCount, attempt.DroppedCount, attempt.StartedAt, finishedAt)
	if err != nil {
		return fmt.Errorf("failed to save recognition attempt: %w", err)
	}
	return nil
}

// Attempts returns recognition attempts newest first. An empty sessionID
// lists every session; limit <= 0 means no limit.
func (s *SQLiteStorage) Attempts(ctx context.Context, sessionID string, limit int) ([]model.RecognitionAttempt, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT id, session_id, stage, message, detail, outcome, candidate_count, low_confidence_count,
			dropped_count, started_at, finished_at
		FROM recognition_attempts`
	var args []any
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY started_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recognition attempts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var attempts []model.RecognitionAttempt
	for rows.Next() {
		var (
			a          model.RecognitionAttempt
			finishedAt sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.SessionID, &a.Stage, &a.Message, &a.Detail, &a.Outcome,
			&a.CandidateCount, &a.LowConfidenceCount, &a.DroppedCount, &a.StartedAt, &finishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recognition attempt: %w", err)
		}
		if finishedAt.Valid {
			a.FinishedAt = finishedAt.Time
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
