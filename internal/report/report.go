// Package report turns a session ledger into tabular attendance reports.
package report

import (
	"context"
	"fmt"
	"time"

	"github.com/Veraticus/rollcall/internal/model"
)

// Writer publishes a report somewhere.
type Writer interface {
	Write(ctx context.Context, r Report) error
}

// Row is one student line of a report.
type Row struct {
	UpdatedAt  time.Time
	Confidence *float64
	StudentID  string
	RollNumber string
	Name       string
	Status     model.AttendanceStatus
	MarkedBy   model.Origin
}

// Report is an attendance report for one session.
type Report struct {
	GeneratedAt time.Time
	Session     model.Session
	Rows        []Row
	Stats       model.Stats
}

// Columns are the detail column headers, in Values order.
var Columns = []string{"Roll No", "Name", "Student ID", "Status", "Marked By", "Confidence", "Updated"}

// Build creates a report with one row per entry, in entry order. Entries for
// students missing from the roster keep their id and an empty name.
func Build(session model.Session, entries []model.AttendanceEntry, generatedAt time.Time) Report {
	rows := make([]Row, 0, len(entries))
	for _, entry := range entries {
		student, _ := session.StudentByID(entry.StudentID)
		rows = append(rows, Row{
			StudentID:  entry.StudentID,
			RollNumber: student.RollNumber,
			Name:       student.Name,
			Status:     entry.Status,
			MarkedBy:   entry.Origin,
			Confidence: entry.Confidence,
			UpdatedAt:  entry.UpdatedAt,
		})
	}
	return Report{
		Session:     session,
		Rows:        rows,
		Stats:       model.ComputeStats(entries),
		GeneratedAt: generatedAt,
	}
}

// Filter returns a copy holding only rows with status. Stats still cover the
// whole session.
func (r Report) Filter(status model.AttendanceStatus) Report {
	out := r
	out.Rows = nil
	for _, row := range r.Rows {
		if row.Status == status {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

// Values renders the row as strings matching Columns.
func (row Row) Values() []string {
	confidence := ""
	if row.Confidence != nil {
		confidence = fmt.Sprintf("%.0f%%", *row.Confidence*100)
	}
	updated := ""
	if !row.UpdatedAt.IsZero() {
		updated = row.UpdatedAt.Format(time.RFC3339)
	}
	return []string{
		row.RollNumber,
		row.Name,
		row.StudentID,
		string(row.Status),
		string(row.MarkedBy),
		confidence,
		updated,
	}
}

// SummaryLines returns label/value pairs describing the session statistics.
func (r Report) SummaryLines() [][2]string {
	s := r.Stats
	return [][2]string{
		{"Total Students", fmt.Sprint(s.Total)},
		{"Present", fmt.Sprint(s.Present)},
		{"Absent", fmt.Sprint(s.Absent)},
		{"Late", fmt.Sprint(s.Late)},
		{"Excused", fmt.Sprint(s.Excused)},
		{"Marked by AI", fmt.Sprint(s.MarkedByAI)},
		{"Attendance", fmt.Sprintf("%.1f%%", s.Percentage())},
	}
}
