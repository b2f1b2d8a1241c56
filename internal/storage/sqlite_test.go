package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/rollcall/internal/common"
	"github.com/Veraticus/rollcall/internal/model"
)

// Helper function to create test storage.
func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()

	store, err := NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	return store, func() { _ = store.Close() }
}

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func testEntries() []model.AttendanceEntry {
	conf := 0.92
	return []model.AttendanceEntry{
		{StudentID: "A", Status: model.StatusPresent, Origin: model.OriginAI, Confidence: &conf, UpdatedAt: baseTime},
		{StudentID: "B", Status: model.StatusAbsent, Origin: model.OriginSystem, UpdatedAt: baseTime},
	}
}

func TestSQLiteStorage_Migrations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	store1, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	if err2 := store1.Migrate(ctx); err2 != nil {
		t.Fatalf("Initial migration failed: %v", err2)
	}
	_ = store1.Close()

	// Running migrations again should not error
	store2, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer func() { _ = store2.Close() }()

	if err := store2.Migrate(ctx); err != nil {
		t.Fatalf("Repeated migration failed: %v", err)
	}

	version, err := store2.SchemaVersion(ctx)
	if err != nil {
		t.Fatalf("Failed to read schema version: %v", err)
	}
	if version != ExpectedSchemaVersion {
		t.Errorf("Schema version = %d, want %d", version, ExpectedSchemaVersion)
	}
}

func TestNewSQLiteStorage_EmptyPath(t *testing.T) {
	if _, err := NewSQLiteStorage("  "); !errors.Is(err, ErrEmptyString) {
		t.Errorf("Expected ErrEmptyString, got %v", err)
	}
}

func TestSQLiteStorage_Drafts(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	first, err := store.SaveDraft(ctx, model.Draft{
		SessionID: "S-1",
		Title:     "Physics · 10-B",
		Reason:    "saving attendance failed: status 502",
		Entries:   testEntries(),
		CreatedAt: baseTime,
	})
	if err != nil {
		t.Fatalf("Failed to save draft: %v", err)
	}
	second, err := store.SaveDraft(ctx, model.Draft{SessionID: "S-2", Entries: testEntries(), CreatedAt: baseTime.Add(time.Hour)})
	if err != nil {
		t.Fatalf("Failed to save draft: %v", err)
	}

	draft, err := store.GetDraft(ctx, first)
	if err != nil {
		t.Fatalf("Failed to get draft: %v", err)
	}
	if draft.SessionID != "S-1" || draft.Title != "Physics · 10-B" {
		t.Errorf("Unexpected draft: %+v", draft)
	}
	if !draft.Pending() {
		t.Error("New draft should be pending")
	}
	if len(draft.Entries) != 2 || draft.Entries[0].Confidence == nil || *draft.Entries[0].Confidence != 0.92 {
		t.Errorf("Draft entries not preserved: %+v", draft.Entries)
	}
	if draft.Entries[1].Confidence != nil {
		t.Error("Teacher entry gained a confidence")
	}
	if !draft.CreatedAt.Equal(baseTime) {
		t.Errorf("CreatedAt = %v, want %v", draft.CreatedAt, baseTime)
	}

	drafts, err := store.ListDrafts(ctx, true)
	if err != nil {
		t.Fatalf("Failed to list drafts: %v", err)
	}
	if len(drafts) != 2 || drafts[0].ID != second {
		t.Fatalf("Expected newest draft first, got %+v", drafts)
	}

	if err := store.MarkDraftSent(ctx, first, baseTime.Add(2*time.Hour)); err != nil {
		t.Fatalf("Failed to mark draft sent: %v", err)
	}
	pending, err := store.ListDrafts(ctx, true)
	if err != nil {
		t.Fatalf("Failed to list drafts: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != second {
		t.Errorf("Expected only draft %d pending, got %+v", second, pending)
	}

	all, err := store.ListDrafts(ctx, false)
	if err != nil {
		t.Fatalf("Failed to list drafts: %v", err)
	}
	if len(all) != 2 || all[1].SentAt == nil {
		t.Errorf("Sent draft missing sent_at: %+v", all)
	}
}

func TestSQLiteStorage_DraftErrors(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := store.GetDraft(ctx, 42); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := store.MarkDraftSent(ctx, 42, baseTime); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	tests := []struct {
		name  string
		draft model.Draft
	}{
		{name: "missing session", draft: model.Draft{Entries: testEntries()}},
		{name: "no entries", draft: model.Draft{SessionID: "S-1"}},
		{name: "bad status", draft: model.Draft{SessionID: "S-1", Entries: []model.AttendanceEntry{{StudentID: "A", Status: "gone", Origin: model.OriginTeacher}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := store.SaveDraft(ctx, tt.draft); !errors.Is(err, ErrInvalidDraft) {
				t.Errorf("Expected ErrInvalidDraft, got %v", err)
			}
		})
	}
}

func TestSQLiteStorage_LedgerHistory(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	entries := testEntries()
	writes := []model.LedgerWrite{
		{SessionID: "S-1", Entry: entries[0], Revision: 1, RecordedAt: baseTime},
		{SessionID: "S-1", Entry: entries[1], Revision: 2, RecordedAt: baseTime.Add(time.Second)},
		{SessionID: "S-2", Entry: entries[1], Revision: 1, RecordedAt: baseTime},
	}
	if err := store.RecordLedgerWrites(ctx, writes); err != nil {
		t.Fatalf("Failed to record writes: %v", err)
	}

	history, err := store.LedgerHistory(ctx, "S-1")
	if err != nil {
		t.Fatalf("Failed to read history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Expected 2 writes, got %d", len(history))
	}
	if history[0].Entry.StudentID != "A" || history[0].Entry.Origin != model.OriginAI || history[0].Entry.Confidence == nil {
		t.Errorf("Unexpected first write: %+v", history[0])
	}
	if history[1].Revision != 2 || history[1].Entry.Confidence != nil {
		t.Errorf("Unexpected second write: %+v", history[1])
	}

	bad := []model.LedgerWrite{{SessionID: "S-1", Entry: model.AttendanceEntry{StudentID: "A", Status: "gone", Origin: model.OriginTeacher}}}
	if err := store.RecordLedgerWrites(ctx, bad); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Expected ErrInvalidEntry, got %v", err)
	}
	if err := store.RecordLedgerWrites(ctx, nil); err != nil {
		t.Errorf("Empty batch should be a no-op, got %v", err)
	}
}

func TestSQLiteStorage_Attempts(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	attempt := model.RecognitionAttempt{
		ID:        "att-1",
		SessionID: "S-1",
		Stage:     "uploading",
		StartedAt: baseTime,
	}
	if err := store.SaveAttempt(ctx, attempt); err != nil {
		t.Fatalf("Failed to save attempt: %v", err)
	}

	attempt.Stage = "complete"
	attempt.Outcome = "recognized"
	attempt.Detail = "Recognized 3 students"
	attempt.CandidateCount = 3
	attempt.LowConfidenceCount = 1
	attempt.DroppedCount = 1
	attempt.FinishedAt = baseTime.Add(4 * time.Second)
	if err := store.SaveAttempt(ctx, attempt); err != nil {
		t.Fatalf("Failed to update attempt: %v", err)
	}
	if err := store.SaveAttempt(ctx, model.RecognitionAttempt{ID: "att-2", SessionID: "S-2", StartedAt: baseTime.Add(time.Hour)}); err != nil {
		t.Fatalf("Failed to save attempt: %v", err)
	}

	attempts, err := store.Attempts(ctx, "S-1", 0)
	if err != nil {
		t.Fatalf("Failed to list attempts: %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("Expected 1 attempt, got %d", len(attempts))
	}
	got := attempts[0]
	if got.Stage != "complete" || got.CandidateCount != 3 || got.LowConfidenceCount != 1 || got.DroppedCount != 1 {
		t.Errorf("Attempt not updated: %+v", got)
	}
	if !got.FinishedAt.Equal(attempt.FinishedAt) {
		t.Errorf("FinishedAt = %v, want %v", got.FinishedAt, attempt.FinishedAt)
	}

	all, err := store.Attempts(ctx, "", 1)
	if err != nil {
		t.Fatalf("Failed to list attempts: %v", err)
	}
	if len(all) != 1 || all[0].ID != "att-2" {
		t.Errorf("Expected newest attempt only, got %+v", all)
	}

	if err := store.SaveAttempt(ctx, model.RecognitionAttempt{SessionID: "S-1"}); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("Expected ErrInvalidRecord, got %v", err)
	}
}
