package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Veraticus/rollcall/internal/model"
	"github.com/Veraticus/rollcall/internal/reconcile"
)

// Reviewer lets the teacher adjust the selection of a recognition proposal.
// Review returns true to confirm the reconciler's current selection and false
// to reject every candidate.
type Reviewer interface {
	Review(ctx context.Context, session model.Session, rec *reconcile.Reconciler) (bool, error)
}

// TextReviewer reviews recognition results with line prompts.
type TextReviewer struct {
	reader *NonBlockingReader
	writer io.Writer
}

// NewTextReviewer creates a reviewer sharing the console's input.
func NewTextReviewer(reader *NonBlockingReader, writer io.Writer) *TextReviewer {
	return &TextReviewer{reader: reader, writer: writer}
}

// Review prints the candidates and loops on choices until the teacher accepts or rejects.
func (r *TextReviewer) Review(ctx context.Context, session model.Session, rec *reconcile.Reconciler) (bool, error) {
	candidates := rec.Candidates()
	if len(candidates) == 0 {
		r.println(FormatWarning("No students were recognized in this photo."))
		r.printNotes(rec)
		return false, nil
	}

	for {
		r.println(RenderBox("Recognition Results · "+session.Title(), FormatCandidates(rec)))
		r.printNotes(rec)

		r.println(FormatPrompt("Options:"))
		r.println(fmt.Sprintf("  [A] Accept %d selected", len(rec.Selected())))
		r.println("  [T n] Toggle candidate n (or just n)")
		r.println("  [S] Select all   [N] Select none")
		r.println("  [R] Reject all results")

		if _, err := fmt.Fprint(r.writer, FormatPrompt("Choice")); err != nil {
			return false, fmt.Errorf("failed to write prompt: %w", err)
		}
		line, err := r.reader.ReadLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return false, fmt.Errorf("input terminated")
			}
			return false, err
		}

		choice, arg := parseChoice(line)
		switch choice {
		case "a":
			return true, nil
		case "r":
			return false, nil
		case "s":
			rec.SelectAll()
		case "n":
			rec.DeselectAll()
		case "t":
			n, err := strconv.Atoi(arg)
			if err != nil || n < 1 || n > len(candidates) {
				r.println(FormatError(fmt.Sprintf("Choose a candidate between 1 and %d.", len(candidates))))
				continue
			}
			if err := rec.Toggle(candidates[n-1].Student.ID); err != nil {
				return false, err
			}
		default:
			r.println(FormatError("Invalid choice. Please try again."))
		}
	}
}

func parseChoice(line string) (string, string) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return "", ""
	}
	if _, err := strconv.Atoi(fields[0]); err == nil {
		return "t", fields[0]
	}
	if len(fields) > 1 {
		return fields[0], fields[1]
	}
	return fields[0], ""
}

// FormatCandidates lists candidates with their selection mark, confidence and tier.
func FormatCandidates(rec *reconcile.Reconciler) string {
	var b strings.Builder
	s := rec.Summary()
	fmt.Fprintf(&b, "%s %d recognized · %s %d · %s %d · %s %d\n\n",
		RobotIcon, s.Total,
		TierStyle(reconcile.TierHigh).Render("high"), s.High,
		TierStyle(reconcile.TierMedium).Render("medium"), s.Medium,
		TierStyle(reconcile.TierLow).Render("low"), s.Low)

	for i, c := range rec.Candidates() {
		mark := "[ ]"
		if rec.IsSelected(c.Student.ID) {
			mark = "[x]"
		}
		roll := ""
		if c.Student.RollNumber != "" {
			roll = " (" + c.Student.RollNumber + ")"
		}
		fmt.Fprintf(&b, "%s %2d. %s%s  %s\n",
			mark, i+1, c.Student.Name, roll,
			TierStyle(c.Tier).Render(fmt.Sprintf("%.0f%% %s", c.Confidence*100, c.Tier.Label())))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *TextReviewer) printNotes(rec *reconcile.Reconciler) {
	if low := rec.LowConfidenceCount(); low > 0 {
		r.println(FormatWarning(fmt.Sprintf("%d low-confidence match(es) below %.0f%% are not selected. Check them before accepting.",
			low, rec.Threshold()*100)))
	}
	if dropped := rec.Summary().Dropped(); dropped > 0 {
		r.println(FormatInfo(fmt.Sprintf("%d detection(s) were ignored (duplicates, unknown or invalid).", dropped)))
	}
}

func (r *TextReviewer) println(s string) {
	if _, err := fmt.Fprintln(r.writer, s); err != nil {
		slog.Warn("Failed to write review output", "error", err)
	}
}
