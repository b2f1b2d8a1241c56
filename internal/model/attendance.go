package model

import (
	"fmt"
	"time"
)

// AttendanceStatus is the closed set of attendance outcomes.
type AttendanceStatus string

// Attendance status constants.
const (
	StatusPresent AttendanceStatus = "present"
	StatusAbsent  AttendanceStatus = "absent"
	StatusLate    AttendanceStatus = "late"
	StatusExcused AttendanceStatus = "excused"
)

// Statuses lists every attendance status in display order.
var Statuses = []AttendanceStatus{StatusPresent, StatusAbsent, StatusLate, StatusExcused}

// ParseStatus converts user or wire input into an AttendanceStatus.
func ParseStatus(s string) (AttendanceStatus, error) {
	status := AttendanceStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("unknown attendance status %q", s)
	}
	return status, nil
}

// Valid reports whether s is one of the known statuses.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusExcused:
		return true
	default:
		return false
	}
}

// Origin records who produced an attendance entry.
type Origin string

// Origin constants.
const (
	// OriginTeacher marks a manual change made by the teacher.
	OriginTeacher Origin = "teacher"
	// OriginAI marks a change confirmed from recognition results.
	OriginAI Origin = "ai"
	// OriginSystem marks the default seeded when the session starts.
	OriginSystem Origin = "system"
)

// Valid reports whether o is one of the known origins.
func (o Origin) Valid() bool {
	switch o {
	case OriginTeacher, OriginAI, OriginSystem:
		return true
	default:
		return false
	}
}

// AttendanceEntry is the current attendance state of one student in a session.
// Confidence is only set when Origin is OriginAI.
type AttendanceEntry struct {
	UpdatedAt  time.Time        `json:"timestamp"`
	Confidence *float64         `json:"confidence,omitempty"`
	StudentID  string           `json:"student_id"`
	Status     AttendanceStatus `json:"status"`
	Origin     Origin           `json:"marked_by"`
}

// Validate checks the entry invariants.
func (e AttendanceEntry) Validate() error {
	if e.StudentID == "" {
		return fmt.Errorf("student id is required")
	}
	if !e.Status.Valid() {
		return fmt.Errorf("unknown attendance status %q", e.Status)
	}
	if !e.Origin.Valid() {
		return fmt.Errorf("unknown origin %q", e.Origin)
	}
	if e.Confidence != nil {
		if e.Origin != OriginAI {
			return fmt.Errorf("confidence is only allowed on ai entries")
		}
		if *e.Confidence < 0 || *e.Confidence > 1 {
			return fmt.Errorf("confidence must be between 0.0 and 1.0, got %.2f", *e.Confidence)
		}
	}
	return nil
}

// ConfidenceValue returns the confidence or zero when there is none.
func (e AttendanceEntry) ConfidenceValue() float64 {
	if e.Confidence == nil {
		return 0
	}
	return *e.Confidence
}

// Stats summarizes a ledger snapshot.
type Stats struct {
	Total      int
	Present    int
	Absent     int
	Late       int
	Excused    int
	MarkedByAI int
}

// Percentage is (present+late)/total as a percentage; zero for an empty roster.
func (s Stats) Percentage() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Present+s.Late) / float64(s.Total) * 100
}

// Count returns the number of entries with the given status.
func (s Stats) Count(status AttendanceStatus) int {
	switch status {
	case StatusPresent:
		return s.Present
	case StatusAbsent:
		return s.Absent
	case StatusLate:
		return s.Late
	case StatusExcused:
		return s.Excused
	default:
		return 0
	}
}

// ComputeStats derives statistics from entries.
func ComputeStats(entries []AttendanceEntry) Stats {
	stats := Stats{Total: len(entries)}
	for _, entry := range entries {
		switch entry.Status {
		case StatusPresent:
			stats.Present++
		case StatusAbsent:
			stats.Absent++
		case StatusLate:
			stats.Late++
		case StatusExcused:
			stats.Excused++
		}
		if entry.Origin == OriginAI {
			stats.MarkedByAI++
		}
	}
	return stats
}

// FilterByStatus returns the entries with the given status, preserving order.
func FilterByStatus(entries []AttendanceEntry, status AttendanceStatus) []AttendanceEntry {
	var result []AttendanceEntry
	for _, entry := range entries {
		if entry.Status == status {
			result = append(result, entry)
		}
	}
	return result
}
