package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func confidence(v float64) *float64 { return &v }

func TestParseStatus(t *testing.T) {
	for _, status := range Statuses {
		parsed, err := ParseStatus(string(status))
		require.NoError(t, err)
		assert.Equal(t, status, parsed)
	}

	_, err := ParseStatus("partial")
	assert.Error(t, err)
	_, err = ParseStatus("")
	assert.Error(t, err)
}

func TestAttendanceEntry_Validate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		entry   AttendanceEntry
		wantErr bool
	}{
		{
			name:  "teacher entry",
			entry: AttendanceEntry{StudentID: "s1", Status: StatusLate, Origin: OriginTeacher, UpdatedAt: now},
		},
		{
			name:  "ai entry with confidence",
			entry: AttendanceEntry{StudentID: "s1", Status: StatusPresent, Origin: OriginAI, Confidence: confidence(0.91), UpdatedAt: now},
		},
		{
			name:    "missing student",
			entry:   AttendanceEntry{Status: StatusPresent, Origin: OriginTeacher},
			wantErr: true,
		},
		{
			name:    "open status string",
			entry:   AttendanceEntry{StudentID: "s1", Status: "partial", Origin: OriginTeacher},
			wantErr: true,
		},
		{
			name:    "teacher entry carrying confidence",
			entry:   AttendanceEntry{StudentID: "s1", Status: StatusPresent, Origin: OriginTeacher, Confidence: confidence(0.5)},
			wantErr: true,
		},
		{
			name:    "confidence out of range",
			entry:   AttendanceEntry{StudentID: "s1", Status: StatusPresent, Origin: OriginAI, Confidence: confidence(1.2)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestComputeStats(t *testing.T) {
	entries := []AttendanceEntry{
		{StudentID: "a", Status: StatusPresent, Origin: OriginAI, Confidence: confidence(0.9)},
		{StudentID: "b", Status: StatusLate, Origin: OriginTeacher},
		{StudentID: "c", Status: StatusAbsent, Origin: OriginSystem},
		{StudentID: "d", Status: StatusExcused, Origin: OriginTeacher},
	}

	stats := ComputeStats(entries)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 1, stats.Present)
	assert.Equal(t, 1, stats.Late)
	assert.Equal(t, 1, stats.Absent)
	assert.Equal(t, 1, stats.Excused)
	assert.Equal(t, 1, stats.MarkedByAI)
	assert.InDelta(t, 50.0, stats.Percentage(), 1e-9)
	assert.Equal(t, 1, stats.Count(StatusLate))

	assert.Zero(t, ComputeStats(nil).Percentage())
}

func TestFilterByStatus(t *testing.T) {
	entries := []AttendanceEntry{
		{StudentID: "a", Status: StatusPresent},
		{StudentID: "b", Status: StatusAbsent},
		{StudentID: "c", Status: StatusPresent},
	}
	present := FilterByStatus(entries, StatusPresent)
	require.Len(t, present, 2)
	assert.Equal(t, "a", present[0].StudentID)
	assert.Equal(t, "c", present[1].StudentID)
}

func TestValidate_Candidate(t *testing.T) {
	assert.NoError(t, Validate(RecognitionCandidate{StudentID: "s1", Confidence: 0.6}))
	assert.NoError(t, Validate(RecognitionCandidate{StudentID: "s1", Confidence: 1, Box: &BoundingBox{Width: 10, Height: 12}}))
	assert.Error(t, Validate(RecognitionCandidate{Confidence: 0.6}))
	assert.Error(t, Validate(RecognitionCandidate{StudentID: "s1", Confidence: 1.01}))
	assert.Error(t, Validate(RecognitionCandidate{StudentID: "s1", Confidence: -0.1}))
	assert.Error(t, Validate(RecognitionCandidate{StudentID: "s1", Confidence: math.NaN()}))
	assert.Error(t, Validate(RecognitionCandidate{StudentID: "s1", Confidence: 0.7, Box: &BoundingBox{Width: -1}}))
}

func TestValidateRoster(t *testing.T) {
	assert.NoError(t, ValidateRoster([]Student{{ID: "a", Name: "Ada"}, {ID: "b", Name: "Bo"}}))

	err := ValidateRoster([]Student{{ID: "a", Name: "Ada"}, {ID: "a", Name: "Again"}})
	assert.ErrorContains(t, err, "duplicate student id")

	err = ValidateRoster([]Student{{ID: "a"}})
	assert.ErrorContains(t, err, "name")
}

func TestSession_Lookup(t *testing.T) {
	session := Session{
		ID:          "sess-1",
		SubjectName: "Physics",
		ClassName:   "10-B",
		Roster: []Student{
			{ID: "a", Name: "Ada", RollNumber: "01"},
			{ID: "b", Name: "Bo", RollNumber: "02"},
		},
	}

	assert.Equal(t, "Physics · 10-B", session.Title())
	assert.Equal(t, "sess-1", Session{ID: "sess-1"}.Title())

	student, ok := session.StudentByRoll("02")
	require.True(t, ok)
	assert.Equal(t, "b", student.ID)

	_, ok = session.StudentByID("zzz")
	assert.False(t, ok)
	_, ok = session.StudentByRoll("")
	assert.False(t, ok)
}
