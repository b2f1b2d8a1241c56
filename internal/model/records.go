package model

import "time"

// Draft is a ledger snapshot that has not been accepted by the attendance API.
type Draft struct {
	CreatedAt time.Time
	SentAt    *time.Time
	SessionID string
	Title     string
	Reason    string
	Entries   []AttendanceEntry
	ID        int64
}

// Pending reports whether the draft still needs to be sent.
func (d Draft) Pending() bool {
	return d.SentAt == nil
}

// RecognitionAttempt is the audit record of one capture and recognition attempt.
type RecognitionAttempt struct {
	StartedAt          time.Time
	FinishedAt         time.Time
	ID                 string
	SessionID          string
	Stage              string
	Message            string
	Detail             string
	Outcome            string
	CandidateCount     int
	LowConfidenceCount int
	DroppedCount       int
}

// LedgerWrite is one audited mutation of a ledger entry.
type LedgerWrite struct {
	RecordedAt time.Time
	SessionID  string
	Entry      AttendanceEntry
	Revision   uint64
}
