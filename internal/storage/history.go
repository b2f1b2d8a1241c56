package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Veraticus/rollcall/internal/model"
)

// RecordLedgerWrites appends ledger writes to the session history in one transaction.
func (s *SQLiteStorage) RecordLedgerWrites(ctx context.Context, writes []model.LedgerWrite) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}
	for _, w := range writes {
		if err := validateString(w.SessionID, "sessionID"); err != nil {
			return err
		}
		if err := validateEntry(w.Entry); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ledger_history (session_id, student_id, status, origin, confidence, updated_at, revision, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, w := range writes {
		var confidence sql.NullFloat64
		if w.Entry.Confidence != nil {
			confidence = sql.NullFloat64{Float64: *w.Entry.Confidence, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			w.SessionID, w.Entry.StudentID, string(w.Entry.Status), string(w.Entry.Origin),
			confidence, w.Entry.UpdatedAt, int64(w.Revision), w.RecordedAt); err != nil { //nolint:gosec // revisions stay far below MaxInt64
			return fmt.Errorf("failed to record ledger write: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ledger writes: %w", err)
	}
	return nil
}

// LedgerHistory returns the recorded writes of a session in the order they were made.
func (s *SQLiteStorage) LedgerHistory(ctx context.Context, sessionID string) ([]model.LedgerWrite, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(sessionID, "sessionID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, student_id, status, origin, confidence, updated_at, revision, recorded_at
		FROM ledger_history WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var writes []model.LedgerWrite
	for rows.Next() {
		var (
			w          model.LedgerWrite
			status     string
			origin     string
			confidence sql.NullFloat64
			revision   int64
		)
		if err := rows.Scan(&w.SessionID, &w.Entry.StudentID, &status, &origin, &confidence,
			&w.Entry.UpdatedAt, &revision, &w.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger write: %w", err)
		}
		w.Entry.Status = model.AttendanceStatus(status)
		w.Entry.Origin = model.Origin(origin)
		if confidence.Valid {
			c := confidence.Float64
			w.Entry.Confidence = &c
		}
		w.Revision = uint64(revision) //nolint:gosec // stored from a uint64
		writes = append(writes, w)
	}
	return writes, rows.Err()
}
