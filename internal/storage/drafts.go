package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/rollcall/internal/common"
	"github.com/Veraticus/rollcall/internal/model"
)

// SaveDraft stores an unsent ledger snapshot and returns its id.
func (s *SQLiteStorage) SaveDraft(ctx context.Context, draft model.Draft) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateDraft(draft); err != nil {
		return 0, err
	}

	entries, err := json.Marshal(draft.Entries)
	if err != nil {
		return 0, fmt.Errorf("failed to encode draft entries: %w", err)
	}
	createdAt := draft.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO drafts (session_id, title, reason, entries, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		draft.SessionID, draft.Title, draft.Reason, string(entries), createdAt)
	if err != nil {
		return 0, fmt.Errorf("failed to save draft: %w", err)
	}
	return result.LastInsertId()
}

// ListDrafts returns drafts newest first. With pendingOnly, sent drafts are skipped.
func (s *SQLiteStorage) ListDrafts(ctx context.Context, pendingOnly bool) ([]model.Draft, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT id, session_id, title, reason, entries, created_at, sent_at FROM drafts`
	if pendingOnly {
		query += ` WHERE sent_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query drafts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var drafts []model.Draft
	for rows.Next() {
		draft, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		drafts = append(drafts, draft)
	}
	return drafts, rows.Err()
}

// GetDraft returns one draft by id.
func (s *SQLiteStorage) GetDraft(ctx context.Context, id int64) (*model.Draft, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, title, reason, entries, created_at, sent_at
		FROM drafts WHERE id = ?`, id)
	draft, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: draft %d", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &draft, nil
}

// MarkDraftSent records that a draft was accepted by the attendance API.
func (s *SQLiteStorage) MarkDraftSent(ctx context.Context, id int64, sentAt time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `UPDATE drafts SET sent_at = ? WHERE id = ?`, sentAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark draft sent: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check draft update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: draft %d", common.ErrNotFound, id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDraft(row rowScanner) (model.Draft, error) {
	var (
		draft   model.Draft
		entries string
		sentAt  sql.NullTime
	)
	if err := row.Scan(&draft.ID, &draft.SessionID, &draft.Title, &draft.Reason, &entries, &draft.CreatedAt, &sentAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Draft{}, err
		}
		return model.Draft{}, fmt.Errorf("failed to scan draft: %w", err)
	}
	if err := json.Unmarshal([]byte(entries), &draft.Entries); err != nil {
		return model.Draft{}, fmt.Errorf("failed to decode draft %d: %w", draft.ID, err)
	}
	if sentAt.Valid {
		t := sentAt.Time
		draft.SentAt = &t
	}
	return draft, nil
}
