package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Veraticus/rollcall/internal/backend"
	"github.com/Veraticus/rollcall/internal/model"
	"github.com/Veraticus/rollcall/internal/report"
)

const timeLayout = "2006-01-02 15:04:05"

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// RenderReport renders the rows of an attendance report.
func RenderReport(r report.Report) string {
	rows := make([][]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		values := row.Values()
		values[3] = StatusStyle(row.Status).Render(values[3])
		rows = append(rows, values)
	}
	aligns := make([]columnAlignment, len(report.Columns))
	aligns[5] = alignRight
	return renderTable(report.Columns, rows, aligns)
}

// RenderStats renders attendance statistics as a one-line summary.
func RenderStats(stats model.Stats) string {
	return fmt.Sprintf("%s %d students · %s %d · %s %d · %s %d · %s %d · %d by AI · %.1f%% attendance",
		ChartIcon,
		stats.Total,
		StatusStyle(model.StatusPresent).Render("present"), stats.Present,
		StatusStyle(model.StatusAbsent).Render("absent"), stats.Absent,
		StatusStyle(model.StatusLate).Render("late"), stats.Late,
		StatusStyle(model.StatusExcused).Render("excused"), stats.Excused,
		stats.MarkedByAI,
		stats.Percentage())
}

// RenderDrafts renders journaled drafts.
func RenderDrafts(drafts []model.Draft) string {
	headers := []string{"ID", "Session", "Title", "Entries", "Created", "Sent", "Reason"}
	rows := make([][]string, 0, len(drafts))
	for _, d := range drafts {
		sent := "pending"
		if d.SentAt != nil {
			sent = d.SentAt.Local().Format(timeLayout)
		}
		rows = append(rows, []string{
			strconv.FormatInt(d.ID, 10),
			d.SessionID,
			d.Title,
			strconv.Itoa(len(d.Entries)),
			d.CreatedAt.Local().Format(timeLayout),
			sent,
			d.Reason,
		})
	}
	return renderTable(headers, rows, []columnAlignment{alignRight, alignLeft, alignLeft, alignRight})
}

// RenderAttempts renders recognition attempt audit records.
func RenderAttempts(attempts []model.RecognitionAttempt) string {
	headers := []string{"Started", "Attempt", "Outcome", "Stage", "Candidates", "Low", "Dropped", "Duration", "Detail"}
	rows := make([][]string, 0, len(attempts))
	for _, a := range attempts {
		duration := ""
		if !a.FinishedAt.IsZero() {
			duration = a.FinishedAt.Sub(a.StartedAt).Round(time.Millisecond).String()
		}
		detail := a.Message
		if a.Detail != "" {
			detail += ": " + a.Detail
		}
		rows = append(rows, []string{
			a.StartedAt.Local().Format(timeLayout),
			shortID(a.ID),
			a.Outcome,
			a.Stage,
			strconv.Itoa(a.CandidateCount),
			strconv.Itoa(a.LowConfidenceCount),
			strconv.Itoa(a.DroppedCount),
			duration,
			detail,
		})
	}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight}
	return renderTable(headers, rows, aligns)
}

// RenderLedgerHistory renders audited ledger writes, resolving names from the roster.
func RenderLedgerHistory(session model.Session, writes []model.LedgerWrite) string {
	headers := []string{"Revision", "Recorded", "Student", "Status", "Marked By", "Confidence"}
	rows := make([][]string, 0, len(writes))
	for _, w := range writes {
		name := w.Entry.StudentID
		if student, ok := session.StudentByID(w.Entry.StudentID); ok {
			name = student.Name
		}
		rows = append(rows, []string{
			strconv.FormatUint(w.Revision, 10),
			w.RecordedAt.Local().Format(timeLayout),
			name,
			string(w.Entry.Status),
			string(w.Entry.Origin),
			formatConfidence(w.Entry.Confidence),
		})
	}
	return renderTable(headers, rows, []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight})
}

// RenderHistory renders attendance records stored by the server.
func RenderHistory(records []backend.HistoryRecord) string {
	headers := []string{"Roll No", "Name", "Status", "Marked By", "Confidence", "Timestamp"}
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.RollNumber,
			r.Name,
			r.Status,
			r.MarkedBy,
			formatConfidence(r.Confidence),
			r.Timestamp,
		})
	}
	return renderTable(headers, rows, []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight})
}

func formatConfidence(c *float64) string {
	if c == nil {
		return ""
	}
	return fmt.Sprintf("%.0f%%", *c*100)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
