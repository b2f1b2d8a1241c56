// Package ledger holds the per-session attendance entries.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/Veraticus/rollcall/internal/common"
	"github.com/Veraticus/rollcall/internal/model"
)

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides time.Now for manual writes.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// Ledger maps every roster student to exactly one attendance entry. Writes are
// applied in the order they acquire the lock, so the last applied write for a
// student is the one that stands.
type Ledger struct {
	now      func() time.Time
	index    map[string]int
	roster   []model.Student
	entries  []model.AttendanceEntry
	revision uint64
	mu       sync.RWMutex
}

// New seeds an absent entry for every roster student, attributed to the system
// and stamped with the session start.
func New(roster []model.Student, startedAt time.Time, opts ...Option) (*Ledger, error) {
	if err := model.ValidateRoster(roster); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrValidation, err)
	}

	l := &Ledger{
		now:     time.Now,
		roster:  append([]model.Student(nil), roster...),
		index:   make(map[string]int, len(roster)),
		entries: make([]model.AttendanceEntry, len(roster)),
	}
	for _, opt := range opts {
		opt(l)
	}

	for i, student := range roster {
		l.index[student.ID] = i
		l.entries[i] = model.AttendanceEntry{
			StudentID: student.ID,
			Status:    model.StatusAbsent,
			Origin:    model.OriginSystem,
			UpdatedAt: startedAt,
		}
	}
	return l, nil
}

// Roster returns the roster in session order.
func (l *Ledger) Roster() []model.Student {
	return append([]model.Student(nil), l.roster...)
}

// Len returns the number of entries, always the roster size.
func (l *Ledger) Len() int {
	return len(l.roster)
}

// SetStatus overwrites the entry of one student. Teacher and system writes
// carry no confidence.
func (l *Ledger) SetStatus(studentID string, status model.AttendanceStatus, origin model.Origin) (model.AttendanceEntry, error) {
	entry := model.AttendanceEntry{
		StudentID: studentID,
		Status:    status,
		Origin:    origin,
		UpdatedAt: l.now(),
	}
	if origin == model.OriginAI {
		return model.AttendanceEntry{}, fmt.Errorf("%w: ai entries are merged with their confidence", common.ErrValidation)
	}
	if err := l.check(entry); err != nil {
		return model.AttendanceEntry{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[l.index[studentID]] = entry
	l.revision++
	return entry, nil
}

// Merge applies a batch of complete entries atomically. The batch is validated
// as a whole first; nothing is written if any entry is rejected.
func (l *Ledger) Merge(entries []model.AttendanceEntry) (int, error) {
	for _, entry := range entries {
		if err := l.check(entry); err != nil {
			return 0, err
		}
	}
	if len(entries) == 0 {
		return 0, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, entry := range entries {
		l.entries[l.index[entry.StudentID]] = entry
	}
	l.revision++
	return len(entries), nil
}

// BulkSetStatus overwrites every entry with the same status. Any AI
// confidence is discarded.
func (l *Ledger) BulkSetStatus(status model.AttendanceStatus, origin model.Origin) ([]model.AttendanceEntry, error) {
	if origin == "" {
		origin = model.OriginTeacher
	}
	if origin == model.OriginAI {
		return nil, fmt.Errorf("%w: bulk changes cannot be attributed to ai", common.ErrValidation)
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidStatus, status)
	}
	if !origin.Valid() {
		return nil, fmt.Errorf("%w: unknown origin %q", common.ErrValidation, origin)
	}

	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		l.entries[i] = model.AttendanceEntry{
			StudentID: l.entries[i].StudentID,
			Status:    status,
			Origin:    origin,
			UpdatedAt: now,
		}
	}
	l.revision++
	return append([]model.AttendanceEntry(nil), l.entries...), nil
}

// Entry returns the current entry of one student.
func (l *Ledger) Entry(studentID string) (model.AttendanceEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.index[studentID]
	if !ok {
		return model.AttendanceEntry{}, false
	}
	return copyEntry(l.entries[i]), true
}

// Snapshot returns all entries in roster order.
func (l *Ledger) Snapshot() []model.AttendanceEntry {
	entries, _ := l.SnapshotWithRevision()
	return entries
}

// SnapshotWithRevision returns all entries and the revision they reflect.
func (l *Ledger) SnapshotWithRevision() ([]model.AttendanceEntry, uint64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.AttendanceEntry, len(l.entries))
	for i, e := range l.entries {
		out[i] = copyEntry(e)
	}
	return out, l.revision
}

// Revision increases by one for every applied write or batch.
func (l *Ledger) Revision() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.revision
}

// Stats computes statistics from a fresh snapshot.
func (l *Ledger) Stats() model.Stats {
	return model.ComputeStats(l.Snapshot())
}

func (l *Ledger) check(entry model.AttendanceEntry) error {
	if _, ok := l.index[entry.StudentID]; !ok {
		return fmt.Errorf("%w: %s", common.ErrUnknownStudent, entry.StudentID)
	}
	if !entry.Status.Valid() {
		return fmt.Errorf("%w: %q", common.ErrInvalidStatus, entry.Status)
	}
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrValidation, err)
	}
	return nil
}

func copyEntry(e model.AttendanceEntry) model.AttendanceEntry {
	if e.Confidence != nil {
		c := *e.Confidence
		e.Confidence = &c
	}
	return e
}
