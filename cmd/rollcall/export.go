package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/rollcall/internal/cli"
	"github.com/Veraticus/rollcall/internal/config"
	"github.com/Veraticus/rollcall/internal/model"
	"github.com/Veraticus/rollcall/internal/report"
	"github.com/Veraticus/rollcall/internal/sheets"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Export a session's attendance report",
		Long: `Export the attendance of a session as CSV or to Google Sheets.

By default the report is built from the attendance stored on the server.
Use --draft to export a locally journaled draft instead.`,
		Args: cobra.ExactArgs(1),
		RunE: runExport,
	}

	cmd.Flags().String("format", "csv", "export format (csv, sheets)")
	cmd.Flags().StringP("output", "o", "", "CSV output file (default stdout)")
	cmd.Flags().String("status", "", "only include students with this status")
	cmd.Flags().Int64("draft", 0, "export a journaled draft instead of server attendance")

	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sessionID := args[0]

	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")
	statusFilter, _ := cmd.Flags().GetString("status")
	draftID, _ := cmd.Flags().GetInt64("draft")

	if format != "csv" && format != "sheets" {
		return fmt.Errorf("unsupported format %q (use csv or sheets)", format)
	}
	var status model.AttendanceStatus
	if statusFilter != "" {
		parsed, err := model.ParseStatus(statusFilter)
		if err != nil {
			return err
		}
		status = parsed
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	api, err := newBackend(ctx, cfg)
	if err != nil {
		return err
	}

	s, err := api.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	var entries []model.AttendanceEntry
	if draftID > 0 {
		store, err := initStorage(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		draft, err := store.GetDraft(ctx, draftID)
		if err != nil {
			return err
		}
		if draft.SessionID != sessionID {
			return fmt.Errorf("draft %d belongs to session %s, not %s", draft.ID, draft.SessionID, sessionID)
		}
		entries = draft.Entries
	} else {
		records, err := api.AttendanceHistory(ctx, sessionID)
		if err != nil {
			return err
		}
		for _, record := range records {
			entry, err := record.Entry()
			if err != nil {
				slog.Warn("Skipping unreadable attendance record", "student_id", record.StudentID, "error", err)
				continue
			}
			entries = append(entries, entry)
		}
	}

	r := report.Build(s, entries, time.Now())
	if status != "" {
		r = r.Filter(status)
	}

	switch format {
	case "sheets":
		sheetsCfg, err := config.LoadSheetsConfig(viper.GetViper())
		if err != nil {
			return fmt.Errorf("google sheets is not configured (run 'rollcall auth sheets'): %w", err)
		}
		writer, err := sheets.NewWriter(ctx, *sheetsCfg, slog.Default())
		if err != nil {
			return err
		}
		if err := writer.Write(ctx, r); err != nil {
			return err
		}
		fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatSuccess(fmt.Sprintf("Exported %d rows to Google Sheets.", len(r.Rows))))
		return nil
	default:
		var w io.Writer = cmd.OutOrStdout()
		if output != "" {
			f, err := os.Create(output) // #nosec G304
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", output, err)
			}
			defer func() { _ = f.Close() }()
			w = f
		}
		if err := report.NewCSVWriter(w).Write(ctx, r); err != nil {
			return err
		}
		if output != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatSuccess(fmt.Sprintf("Wrote %d rows to %s.", len(r.Rows), output)))
		}
		return nil
	}
}
