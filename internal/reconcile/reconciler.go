package reconcile

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Veraticus/rollcall/internal/common"
	"github.com/Veraticus/rollcall/internal/model"
)

// NoteKind classifies a data-quality note.
type NoteKind string

// Data-quality notes raised while validating candidates.
const (
	NoteInvalid        NoteKind = "invalid"
	NoteUnknownStudent NoteKind = "unknown_student"
	NoteDuplicate      NoteKind = "duplicate"
)

// Note records a candidate that was dropped and why.
type Note struct {
	Kind       NoteKind
	StudentID  string
	Reason     string
	Confidence float64
}

// Candidate is a validated recognition candidate joined with its roster entry.
type Candidate struct {
	Student    model.Student
	Box        *model.BoundingBox
	Tier       Tier
	Confidence float64
}

// Summary counts candidates per tier and notes per kind.
type Summary struct {
	Selected   int
	Total      int
	High       int
	Medium     int
	Low        int
	Invalid    int
	Unknown    int
	Duplicates int
}

// Dropped is the number of candidates removed during validation.
func (s Summary) Dropped() int {
	return s.Invalid + s.Unknown + s.Duplicates
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithThreshold sets the medium tier lower bound. Values outside [0, HighConfidence]
// are ignored.
func WithThreshold(threshold float64) Option {
	return func(r *Reconciler) {
		if threshold >= 0 && threshold <= HighConfidence {
			r.threshold = threshold
		}
	}
}

// WithClock overrides time.Now for confirmed entries.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// Reconciler holds the candidates of one capture attempt and the teacher's
// pending selection. Nothing is written anywhere until Confirm.
type Reconciler struct {
	now        func() time.Time
	selected   map[string]bool
	index      map[string]int
	candidates []Candidate
	notes      []Note
	threshold  float64
	decided    bool
	mu         sync.Mutex
}

// New validates candidates against the roster, keeps the best candidate per
// student and pre-selects everything at or above the threshold.
func New(candidates []model.RecognitionCandidate, roster []model.Student, opts ...Option) *Reconciler {
	r := &Reconciler{
		threshold: DefaultThreshold,
		now:       time.Now,
		selected:  make(map[string]bool),
		index:     make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}

	students := make(map[string]model.Student, len(roster))
	for _, s := range roster {
		students[s.ID] = s
	}

	for _, c := range candidates {
		if err := model.Validate(c); err != nil {
			r.note(NoteInvalid, c, err.Error())
			continue
		}
		student, ok := students[c.StudentID]
		if !ok {
			r.note(NoteUnknownStudent, c, "student is not on the session roster")
			continue
		}

		if i, seen := r.index[c.StudentID]; seen {
			kept := r.candidates[i]
			if c.Confidence > kept.Confidence {
				r.notes = append(r.notes, Note{
					Kind:       NoteDuplicate,
					StudentID:  c.StudentID,
					Confidence: kept.Confidence,
					Reason:     fmt.Sprintf("superseded by a detection at %.2f", c.Confidence),
				})
				r.candidates[i].Confidence = c.Confidence
				r.candidates[i].Box = c.Box
			} else {
				r.note(NoteDuplicate, c, fmt.Sprintf("lower than a detection at %.2f", kept.Confidence))
			}
			continue
		}

		r.index[c.StudentID] = len(r.candidates)
		r.candidates = append(r.candidates, Candidate{
			Student:    student,
			Confidence: c.Confidence,
			Box:        c.Box,
		})
	}

	for i := range r.candidates {
		r.candidates[i].Tier = TierFor(r.candidates[i].Confidence, r.threshold)
		if r.candidates[i].Confidence >= r.threshold {
			r.selected[r.candidates[i].Student.ID] = true
		}
	}

	if len(r.notes) > 0 {
		slog.Debug("Dropped recognition candidates", "count", len(r.notes))
	}
	return r
}

func (r *Reconciler) note(kind NoteKind, c model.RecognitionCandidate, reason string) {
	r.notes = append(r.notes, Note{
		Kind:       kind,
		StudentID:  c.StudentID,
		Confidence: c.Confidence,
		Reason:     reason,
	})
}

// Threshold returns the medium tier lower bound in use.
func (r *Reconciler) Threshold() float64 {
	return r.threshold
}

// Candidates returns the retained candidates in recognition order.
func (r *Reconciler) Candidates() []Candidate {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Candidate, len(r.candidates))
	copy(out, r.candidates)
	return out
}

// Notes returns the data-quality notes for dropped candidates.
func (r *Reconciler) Notes() []Note {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Note, len(r.notes))
	copy(out, r.notes)
	return out
}

// LowConfidenceCount is the number of retained candidates below the threshold.
// A non-zero value is a warning the reviewer has to see.
func (r *Reconciler) LowConfidenceCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.candidates {
		if c.Tier == TierLow {
			n++
		}
	}
	return n
}

// HasWarnings reports whether low confidence candidates or dropped candidates exist.
func (r *Reconciler) HasWarnings() bool {
	return r.LowConfidenceCount() > 0 || len(r.Notes()) > 0
}

// Summary returns tier and note counts.
func (r *Reconciler) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Summary{Total: len(r.candidates), Selected: len(r.selected)}
	for _, c := range r.candidates {
		switch c.Tier {
		case TierHigh:
			s.High++
		case TierMedium:
			s.Medium++
		case TierLow:
			s.Low++
		}
	}
	for _, n := range r.notes {
		switch n.Kind {
		case NoteInvalid:
			s.Invalid++
		case NoteUnknownStudent:
			s.Unknown++
		case NoteDuplicate:
			s.Duplicates++
		}
	}
	return s
}

// Selected returns the pending selection in candidate order.
func (r *Reconciler) Selected() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selectedLocked()
}

func (r *Reconciler) selectedLocked() []string {
	ids := make([]string, 0, len(r.selected))
	for _, c := range r.candidates {
		if r.selected[c.Student.ID] {
			ids = append(ids, c.Student.ID)
		}
	}
	return ids
}

// IsSelected reports whether studentID is in the pending selection.
func (r *Reconciler) IsSelected(studentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected[studentID]
}

// Toggle flips the selection of one candidate.
func (r *Reconciler) Toggle(studentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.decided {
		return common.ErrAlreadyDecided
	}
	if _, ok := r.index[studentID]; !ok {
		return fmt.Errorf("%w: %s is not a candidate", common.ErrUnknownStudent, studentID)
	}
	if r.selected[studentID] {
		delete(r.selected, studentID)
	} else {
		r.selected[studentID] = true
	}
	return nil
}

// SelectAll selects every retained candidate, including low confidence ones.
func (r *Reconciler) SelectAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.decided {
		return
	}
	for _, c := range r.candidates {
		r.selected[c.Student.ID] = true
	}
}

// DeselectAll clears the pending selection.
func (r *Reconciler) DeselectAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.decided {
		return
	}
	r.selected = make(map[string]bool)
}

// Confirm produces a present/ai entry for each selected id that is a retained
// candidate. Unselected students are not touched. The caller merges the result.
func (r *Reconciler) Confirm(selectedIDs []string) ([]model.AttendanceEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.decided {
		return nil, common.ErrAlreadyDecided
	}
	r.decided = true

	wanted := make(map[string]bool, len(selectedIDs))
	for _, id := range selectedIDs {
		wanted[id] = true
	}

	now := r.now()
	entries := make([]model.AttendanceEntry, 0, len(wanted))
	for _, c := range r.candidates {
		if !wanted[c.Student.ID] {
			continue
		}
		delete(wanted, c.Student.ID)
		confidence := c.Confidence
		entries = append(entries, model.AttendanceEntry{
			StudentID:  c.Student.ID,
			Status:     model.StatusPresent,
			Origin:     model.OriginAI,
			Confidence: &confidence,
			UpdatedAt:  now,
		})
	}

	if len(wanted) > 0 {
		ignored := make([]string, 0, len(wanted))
		for id := range wanted {
			ignored = append(ignored, id)
		}
		sort.Strings(ignored)
		slog.Warn("Ignoring selected ids without a recognition candidate", "student_ids", ignored)
	}

	return entries, nil
}

// ConfirmSelection confirms the current pending selection.
func (r *Reconciler) ConfirmSelection() ([]model.AttendanceEntry, error) {
	return r.Confirm(r.Selected())
}

// Reject discards the candidates without producing entries.
func (r *Reconciler) Reject() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.decided {
		return common.ErrAlreadyDecided
	}
	r.decided = true
	r.selected = make(map[string]bool)
	return nil
}

// Decided reports whether Confirm or Reject has been called.
func (r *Reconciler) Decided() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.decided
}
