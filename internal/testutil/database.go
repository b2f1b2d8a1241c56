// Package testutil provides shared test helpers for the local journal.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/Veraticus/rollcall/internal/model"
	"github.com/Veraticus/rollcall/internal/storage"
)

// TestDB is a migrated in-memory journal bound to one session.
type TestDB struct {
	Store   *storage.SQLiteStorage
	t       *testing.T
	Session model.Session
}

// TestDBOptions configures SetupTestDBWithOptions.
type TestDBOptions struct {
	CustomSetup    func(context.Context, *storage.SQLiteStorage) error
	Drafts         []model.Draft
	SkipMigrations bool
}

// SetupTestDB creates a migrated in-memory journal for s.
//
// Example:
//
//	db := testutil.SetupTestDB(t, roster.NewBuilder(t).WithFixture(roster.FixtureClassroom).Build())
//	id := db.MustSaveDraft(entries, "server down")
func SetupTestDB(t *testing.T, s model.Session) *TestDB {
	t.Helper()
	db := SetupTestDBWithOptions(t, TestDBOptions{})
	db.Session = s
	return db
}

// SetupTestDBWithOptions creates an in-memory journal with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	for _, draft := range opts.Drafts {
		if _, err := store.SaveDraft(ctx, draft); err != nil {
			t.Fatalf("failed to seed draft for %s: %v", draft.SessionID, err)
		}
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return &TestDB{Store: store, t: t}
}

// MustSaveDraft journals entries for the bound session and returns the draft id.
func (db *TestDB) MustSaveDraft(entries []model.AttendanceEntry, reason string) int64 {
	db.t.Helper()
	id, err := db.Store.SaveDraft(context.Background(), model.Draft{
		SessionID: db.Session.ID,
		Title:     db.Session.Title(),
		Reason:    reason,
		Entries:   entries,
		CreatedAt: time.Now(),
	})
	if err != nil {
		db.t.Fatalf("failed to save draft: %v", err)
	}
	return id
}

// MustDraft loads a draft or fails the test.
func (db *TestDB) MustDraft(id int64) model.Draft {
	db.t.Helper()
	draft, err := db.Store.GetDraft(context.Background(), id)
	if err != nil {
		db.t.Fatalf("failed to load draft %d: %v", id, err)
	}
	return *draft
}
