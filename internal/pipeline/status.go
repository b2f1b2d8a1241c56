// Package pipeline tracks the progress of one recognition attempt through its
// upload and analysis stages.
package pipeline

import "fmt"

// Stage is a step of the recognition pipeline.
type Stage string

// Pipeline stages in order. StageError is reachable from either active stage.
const (
	StageUploading Stage = "uploading"
	StageAnalyzing Stage = "analyzing"
	StageComplete  Stage = "complete"
	StageError     Stage = "error"
)

// Active reports whether the stage still has work in flight.
func (s Stage) Active() bool {
	return s == StageUploading || s == StageAnalyzing
}

// Terminal reports whether the tracker can no longer change.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageError
}

// Status is a point-in-time view of a tracker.
type Status struct {
	Stage    Stage
	Message  string
	Detail   string
	Progress int
}

// ShowProgress reports whether Progress is meaningful for rendering.
func (s Status) ShowProgress() bool {
	return s.Stage != StageError
}

func (s Status) String() string {
	if !s.ShowProgress() {
		if s.Detail != "" {
			return fmt.Sprintf("%s: %s (%s)", s.Stage, s.Message, s.Detail)
		}
		return fmt.Sprintf("%s: %s", s.Stage, s.Message)
	}
	return fmt.Sprintf("%s %d%%: %s", s.Stage, s.Progress, s.Message)
}
