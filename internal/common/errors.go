// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Capture errors.
	ErrDeviceUnavailable = errors.New("camera device unavailable")
	ErrNotReady          = errors.New("camera not ready")

	// Recognition pipeline errors.
	ErrUploadFailed      = errors.New("upload failed")
	ErrRecognitionFailed = errors.New("recognition failed")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrCaptureInFlight   = errors.New("a capture is already in progress")

	// Review and ledger errors.
	ErrValidation         = errors.New("validation failed")
	ErrUnknownStudent     = errors.New("student not on roster")
	ErrInvalidStatus      = errors.New("invalid attendance status")
	ErrAlreadyDecided     = errors.New("recognition results already confirmed or rejected")
	ErrEditWhileCapturing = errors.New("attendance cannot be edited while the camera is in use")

	// Persistence errors.
	ErrPersistenceFailed = errors.New("saving attendance failed")
	ErrSaveInFlight      = errors.New("a save is already in progress")
	ErrNotFound          = errors.New("not found")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// UserMessage returns the human message for err, falling back to a generic
// message per error class.
func UserMessage(err error) string {
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr.UserMessage
	}

	switch {
	case errors.Is(err, ErrDeviceUnavailable):
		return "Unable to access the camera. Check permissions and that no other session is using it."
	case errors.Is(err, ErrNotReady):
		return "The camera has not produced a frame yet."
	case errors.Is(err, ErrUploadFailed):
		return "Uploading the classroom photo failed."
	case errors.Is(err, ErrRecognitionFailed):
		return "Recognition failed."
	case errors.Is(err, ErrPersistenceFailed):
		return "Attendance could not be saved. Your changes are kept locally."
	case errors.Is(err, context.Canceled):
		return "Canceled."
	case err == nil:
		return ""
	default:
		return err.Error()
	}
}

// IsRetryable determines if an error should trigger a retry.
// Only the export path retries; the attendance workflow leaves retries to the user.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
