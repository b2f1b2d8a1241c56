// Package storage provides the local SQLite journal for attendance sessions.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/rollcall/internal/model"
)

// Validation errors.
var (
	ErrNilContext    = errors.New("context cannot be nil")
	ErrEmptyString   = errors.New("string parameter cannot be empty")
	ErrEmptySlice    = errors.New("slice cannot be empty")
	ErrInvalidEntry  = errors.New("invalid attendance entry")
	ErrInvalidDraft  = errors.New("invalid draft")
	ErrInvalidRecord = errors.New("invalid recognition attempt")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateEntry(entry model.AttendanceEntry) error {
	if entry.StudentID == "" {
		return fmt.Errorf("%w: student id is required", ErrInvalidEntry)
	}
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEntry, err)
	}
	return nil
}

func validateDraft(draft model.Draft) error {
	if err := validateString(draft.SessionID, "sessionID"); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDraft, err)
	}
	if len(draft.Entries) == 0 {
		return fmt.Errorf("%w: %w: entries", ErrInvalidDraft, ErrEmptySlice)
	}
	for _, entry := range draft.Entries {
		if err := validateEntry(entry); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidDraft, err)
		}
	}
	return nil
}

func validateAttempt(attempt model.RecognitionAttempt) error {
	if err := validateString(attempt.ID, "id"); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if err := validateString(attempt.SessionID, "sessionID"); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if attempt.CandidateCount < 0 || attempt.LowConfidenceCount < 0 || attempt.DroppedCount < 0 {
		return fmt.Errorf("%w: negative count", ErrInvalidRecord)
	}
	return nil
}
