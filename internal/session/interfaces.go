package session

import (
	"context"

	"github.com/Veraticus/rollcall/internal/capture"
	"github.com/Veraticus/rollcall/internal/model"
)

// Recognizer uploads a photo and returns the raw recognition candidates.
// progress receives upload percentages; reaching 100 means the photo is sent.
type Recognizer interface {
	Recognize(ctx context.Context, sessionID string, img capture.Image, progress func(percent int)) ([]model.RecognitionCandidate, error)
}

// Persister stores the attendance of a session remotely.
type Persister interface {
	MarkAttendance(ctx context.Context, sessionID string, entries []model.AttendanceEntry) error
}

// Journal keeps a local record of attempts, ledger writes and unsent drafts.
type Journal interface {
	SaveDraft(ctx context.Context, draft model.Draft) (int64, error)
	RecordLedgerWrites(ctx context.Context, writes []model.LedgerWrite) error
	SaveAttempt(ctx context.Context, attempt model.RecognitionAttempt) error
}
