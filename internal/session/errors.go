package session

import (
	"fmt"

	"github.com/Veraticus/rollcall/internal/common"
	"github.com/Veraticus/rollcall/internal/model"
)

// UnsentSnapshotError is returned when a save fails. It carries the snapshot
// that was attempted so the caller can keep or retry it.
type UnsentSnapshotError struct {
	Err     error
	Entries []model.AttendanceEntry
	DraftID int64
}

func (e *UnsentSnapshotError) Error() string {
	if e.DraftID > 0 {
		return fmt.Sprintf("attendance not saved (draft %d): %v", e.DraftID, e.Err)
	}
	return fmt.Sprintf("attendance not saved: %v", e.Err)
}

// Unwrap exposes both common.ErrPersistenceFailed and the underlying cause.
func (e *UnsentSnapshotError) Unwrap() []error {
	return []error{common.ErrPersistenceFailed, e.Err}
}
