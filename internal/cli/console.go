package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Veraticus/rollcall/internal/common"
	"github.com/Veraticus/rollcall/internal/model"
	"github.com/Veraticus/rollcall/internal/report"
	"github.com/Veraticus/rollcall/internal/session"
)

const consoleHelp = `Commands:
  capture                 take a classroom photo and review the recognized students
  set <id|roll> <status>  mark one student (present, absent, late, excused)
  all <status>            mark every student
  show                    list the attendance sheet
  filter <status>         list students with one status
  stats                   show attendance statistics
  save                    send the attendance to the server
  help                    show this help
  quit                    leave the session`

// Console is the line-oriented attendance session front end.
type Console struct {
	orch     *session.Orchestrator
	reader   *NonBlockingReader
	writer   io.Writer
	reviewer Reviewer
	now      func() time.Time
}

// ConsoleOption configures a Console.
type ConsoleOption func(*Console)

// WithReviewer replaces the line prompt reviewer, e.g. with the full screen one.
func WithReviewer(r Reviewer) ConsoleOption {
	return func(c *Console) {
		c.reviewer = r
	}
}

// WithConsoleClock sets the clock used for report timestamps.
func WithConsoleClock(now func() time.Time) ConsoleOption {
	return func(c *Console) {
		c.now = now
	}
}

// NewConsole creates a console driving orch.
func NewConsole(orch *session.Orchestrator, in io.Reader, out io.Writer, opts ...ConsoleOption) *Console {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	c := &Console{
		orch:   orch,
		reader: NewNonBlockingReader(in),
		writer: out,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.reviewer == nil {
		c.reviewer = NewTextReviewer(c.reader, out)
	}
	return c
}

// Run reads commands until quit, end of input or cancellation.
func (c *Console) Run(ctx context.Context) error {
	s := c.orch.Session()
	c.println(FormatTitle(s.Title()))
	if s.Date != "" || s.StartTime != "" {
		c.println(SubtleStyle.Render(strings.TrimSpace(fmt.Sprintf("%s %s-%s", s.Date, s.StartTime, s.EndTime))))
	}
	c.println(FormatInfo(fmt.Sprintf("%d students on the roster. Type 'help' for commands.", len(s.Roster))))

	for {
		if _, err := fmt.Fprint(c.writer, FormatPrompt("rollcall")); err != nil {
			return fmt.Errorf("failed to write prompt: %w", err)
		}
		line, err := c.reader.ReadLine(ctx)
		switch {
		case errors.Is(err, io.EOF):
			c.println("")
			return nil
		case errors.Is(err, ErrInputCancelled):
			return ctx.Err()
		case err != nil:
			return fmt.Errorf("failed to read command: %w", err)
		}

		quit, err := c.Execute(ctx, line)
		if err != nil {
			c.println(FormatError(common.UserMessage(err)))
			slog.Debug("Console command failed", "command", line, "error", err)
		}
		if quit {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Execute runs one command line. It reports whether the console should exit.
func (c *Console) Execute(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "help", "?":
		c.println(consoleHelp)
	case "capture", "c":
		return false, c.capture(ctx)
	case "set":
		if len(args) != 2 {
			return false, fmt.Errorf("usage: set <id|roll> <status>")
		}
		return false, c.set(args[0], args[1])
	case "all":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: all <status>")
		}
		status, err := parseStatus(args[0])
		if err != nil {
			return false, err
		}
		if err := c.orch.BulkSetStatus(status); err != nil {
			return false, err
		}
		c.println(FormatSuccess(fmt.Sprintf("Marked all %d students %s", len(c.orch.Session().Roster), status)))
	case "show", "list", "ls":
		c.println(RenderReport(c.report()))
		c.println(RenderStats(c.orch.Stats()))
	case "filter":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: filter <status>")
		}
		status, err := parseStatus(args[0])
		if err != nil {
			return false, err
		}
		filtered := c.report().Filter(status)
		if len(filtered.Rows) == 0 {
			c.println(FormatInfo(fmt.Sprintf("No students are %s.", status)))
			return false, nil
		}
		c.println(RenderReport(filtered))
	case "stats":
		c.println(RenderStats(c.orch.Stats()))
	case "save":
		return false, c.save(ctx)
	case "quit", "exit", "q":
		return c.confirmQuit(ctx), nil
	default:
		return false, fmt.Errorf("unknown command %q, type 'help' for commands", cmd)
	}
	return false, nil
}

func (c *Console) report() report.Report {
	return report.Build(c.orch.Session(), c.orch.Snapshot(), c.now())
}

func (c *Console) set(who, rawStatus string) error {
	status, err := parseStatus(rawStatus)
	if err != nil {
		return err
	}
	s := c.orch.Session()
	student, ok := s.StudentByID(who)
	if !ok {
		student, ok = s.StudentByRoll(who)
	}
	if !ok {
		return fmt.Errorf("%w: %s", common.ErrUnknownStudent, who)
	}
	if _, err := c.orch.SetStatus(student.ID, status); err != nil {
		return err
	}
	c.println(FormatSuccess(fmt.Sprintf("%s is %s", student.Name, StatusStyle(status).Render(string(status)))))
	return nil
}

func parseStatus(raw string) (model.AttendanceStatus, error) {
	status, err := model.ParseStatus(strings.ToLower(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrInvalidStatus, err)
	}
	return status, nil
}

func (c *Console) capture(ctx context.Context) error {
	if err := c.orch.OpenCamera(ctx); err != nil {
		return err
	}

	for captured := false; !captured; {
		c.println(FormatInfo("Camera is open. Press Enter to take the photo or type x to cancel."))
		line, err := c.reader.ReadLine(ctx)
		if err != nil {
			_ = c.orch.CancelCapture()
			return err
		}
		if strings.EqualFold(line, "x") {
			return c.orch.CancelCapture()
		}
		img, err := c.orch.Capture()
		if errors.Is(err, common.ErrNotReady) {
			c.println(FormatWarning(common.UserMessage(err)))
			continue
		}
		if err != nil {
			_ = c.orch.CancelCapture()
			return err
		}
		c.println(FormatSuccess(fmt.Sprintf("Captured a %dx%d photo.", img.Width, img.Height)))

		choice, err := c.promptChoice(ctx, "[C]onfirm, [R]etake or [X] cancel", []string{"c", "r", "x"})
		if err != nil {
			_ = c.orch.CancelCapture()
			return err
		}
		switch choice {
		case "c":
			captured = true
		case "r":
			if err := c.orch.Retake(ctx); err != nil {
				return err
			}
		case "x":
			return c.orch.CancelCapture()
		}
	}

	rec, err := c.orch.ConfirmPhoto(ctx)
	if err != nil {
		if c.orch.State() == session.StateError {
			_ = c.orch.Discard()
		}
		c.println(FormatInfo("Your attendance sheet is unchanged. Type 'capture' to try again."))
		return err
	}

	confirm, err := c.reviewer.Review(ctx, c.orch.Session(), rec)
	if err != nil {
		_ = c.orch.RejectReview()
		return err
	}
	if !confirm {
		if err := c.orch.RejectReview(); err != nil {
			return err
		}
		c.println(FormatInfo("Recognition results discarded."))
		return nil
	}

	n, err := c.orch.ConfirmReview(rec.Selected())
	if err != nil {
		return err
	}
	c.println(FormatSuccess(fmt.Sprintf("Marked %d student(s) present", n)))
	if low := rec.LowConfidenceCount(); low > 0 {
		c.println(FormatWarning(fmt.Sprintf("%d low-confidence match(es) were left for you to check.", low)))
	}
	c.println(RenderStats(c.orch.Stats()))
	return nil
}

func (c *Console) save(ctx context.Context) error {
	result, err := c.orch.Save(ctx)
	if err != nil {
		var unsent *session.UnsentSnapshotError
		if errors.As(err, &unsent) && unsent.DraftID > 0 {
			c.println(FormatWarning(fmt.Sprintf(
				"Attendance kept as draft %d. Type 'save' to retry or run 'rollcall drafts resend %d' later.",
				unsent.DraftID, unsent.DraftID)))
		}
		return err
	}
	c.println(FormatSuccess(fmt.Sprintf("Saved attendance for %d students at %s",
		result.Saved, result.SavedAt.Local().Format("15:04:05"))))
	if result.PendingEdits {
		c.println(FormatWarning("Changes made during the save were not included. Type 'save' again to send them."))
	}
	return nil
}

// confirmQuit asks before leaving with edits the server has not received.
// Losing the input counts as leaving.
func (c *Console) confirmQuit(ctx context.Context) bool {
	if !c.orch.HasUnsavedChanges() {
		return true
	}
	c.println(FormatWarning("The attendance sheet has changes that were not saved."))
	choice, err := c.promptChoice(ctx, "Leave without saving? [y/N]", []string{"y", "n", ""})
	if err != nil {
		return true
	}
	if choice != "y" {
		c.println(FormatInfo("Type 'save' to send the attendance."))
		return false
	}
	return true
}

func (c *Console) promptChoice(ctx context.Context, prompt string, validChoices []string) (string, error) {
	for {
		if _, err := fmt.Fprint(c.writer, FormatPrompt(prompt)); err != nil {
			return "", fmt.Errorf("failed to write prompt: %w", err)
		}

		input, err := c.reader.ReadLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", fmt.Errorf("input terminated")
			}
			return "", err
		}

		choice := strings.ToLower(input)
		for _, valid := range validChoices {
			if choice == valid {
				return choice, nil
			}
		}

		c.println(FormatError("Invalid choice. Please try again."))
	}
}

func (c *Console) println(s string) {
	if _, err := fmt.Fprintln(c.writer, s); err != nil {
		slog.Warn("Failed to write console output", "error", err)
	}
}
