package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Drafts and ledger history",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS drafts (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					session_id TEXT NOT NULL,
					title TEXT NOT NULL DEFAULT '',
					reason TEXT NOT NULL DEFAULT '',
					entries TEXT NOT NULL,
					created_at DATETIME NOT NULL,
					sent_at DATETIME
				)`,
				`CREATE INDEX idx_drafts_session ON drafts(session_id)`,

				`CREATE TABLE IF NOT EXISTS ledger_history (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					session_id TEXT NOT NULL,
					student_id TEXT NOT NULL,
					status TEXT NOT NULL,
					origin TEXT NOT NULL,
					confidence REAL,
					updated_at DATETIME NOT NULL,
					revision INTEGER NOT NULL DEFAULT 0,
					recorded_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_ledger_history_session ON ledger_history(session_id, id)`,
			)
		},
	},
	{
		Version:     2,
		Description: "Recognition attempts",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS recognition_attempts (
					id TEXT PRIMARY KEY,
					session_id TEXT NOT NULL,
					stage TEXT NOT NULL DEFAULT '',
					message TEXT NOT NULL DEFAULT '',
					detail TEXT NOT NULL DEFAULT '',
					outcome TEXT NOT NULL DEFAULT '',
					candidate_count INTEGER NOT NULL DEFAULT 0,
					low_confidence_count INTEGER NOT NULL DEFAULT 0,
					started_at DATETIME NOT NULL,
					finished_at DATETIME
				)`,
				`CREATE INDEX idx_attempts_session ON recognition_attempts(session_id, started_at)`,
			)
		},
	},
	{
		Version:     3,
		Description: "Track dropped recognition candidates",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`ALTER TABLE recognition_attempts ADD COLUMN dropped_count INTEGER NOT NULL DEFAULT 0`,
				`CREATE INDEX idx_drafts_pending ON drafts(sent_at) WHERE sent_at IS NULL`,
			)
		},
	},
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	// Get current version
	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	// Apply migrations
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		// Update version
		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	// Verify we're at the expected schema version
	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
