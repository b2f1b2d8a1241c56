package main

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/rollcall/internal/cli"
	"github.com/Veraticus/rollcall/internal/model"
	"github.com/Veraticus/rollcall/internal/report"
)

func draftsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "Inspect and resend attendance that could not be saved",
	}

	cmd.AddCommand(draftsListCmd())
	cmd.AddCommand(draftsShowCmd())
	cmd.AddCommand(draftsResendCmd())

	return cmd
}

func draftsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journaled drafts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			all, _ := cmd.Flags().GetBool("all")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := initStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			drafts, err := store.ListDrafts(ctx, !all)
			if err != nil {
				return err
			}
			if len(drafts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("No unsent attendance."))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderDrafts(drafts))
			return nil
		},
	}
	cmd.Flags().Bool("all", false, "include drafts that were sent later")
	return cmd
}

func draftsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <draft-id>",
		Short: "Show the attendance held by a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseDraftID(args[0])
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := initStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			draft, err := store.GetDraft(ctx, id)
			if err != nil {
				return err
			}

			// Names come from the live roster when the server is reachable.
			s := model.Session{ID: draft.SessionID, SubjectName: draft.Title}
			if api, apiErr := newBackend(ctx, cfg); apiErr == nil {
				if live, err := api.GetSession(ctx, draft.SessionID); err == nil {
					s = live
				} else {
					slog.Debug("Showing draft without roster names", "error", err)
				}
			}

			r := report.Build(s, draft.Entries, draft.CreatedAt)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("Draft %d · %s", draft.ID, s.Title())))
			if draft.Reason != "" {
				fmt.Fprintln(out, cli.FormatWarning("Not sent: "+draft.Reason))
			}
			fmt.Fprintln(out, cli.RenderReport(r))
			fmt.Fprintln(out, cli.RenderStats(r.Stats))
			return nil
		},
	}
}

func draftsResendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resend <draft-id>",
		Short: "Send a draft to the attendance server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := parseDraftID(args[0])
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := initStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			draft, err := store.GetDraft(ctx, id)
			if err != nil {
				return err
			}
			if !draft.Pending() {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo(fmt.Sprintf("Draft %d was already sent at %s.",
					draft.ID, draft.SentAt.Local().Format(time.DateTime))))
				return nil
			}

			api, err := newBackend(ctx, cfg)
			if err != nil {
				return err
			}
			if err := api.MarkAttendance(ctx, draft.SessionID, draft.Entries); err != nil {
				return err
			}
			if err := store.MarkDraftSent(ctx, draft.ID, time.Now()); err != nil {
				return fmt.Errorf("draft %d was sent but could not be marked: %w", draft.ID, err)
			}

			slog.Info("Draft resent", "draft_id", draft.ID, "session_id", draft.SessionID, "entries", len(draft.Entries))
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Sent draft %d for session %s (%d students).",
				draft.ID, draft.SessionID, len(draft.Entries))))
			return nil
		},
	}
}

func parseDraftID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid draft id %q", raw)
	}
	return id, nil
}
