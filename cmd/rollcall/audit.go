package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/rollcall/internal/cli"
	"github.com/Veraticus/rollcall/internal/model"
)

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit <session-id>",
		Short: "Show recognition attempts and attendance changes recorded locally",
		Long: `Show the local audit trail of a session: every capture and recognition
attempt with its outcome, followed by every change made to the attendance sheet.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sessionID := args[0]
			limit, _ := cmd.Flags().GetInt("limit")

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := initStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			attempts, err := store.Attempts(ctx, sessionID, limit)
			if err != nil {
				return err
			}
			writes, err := store.LedgerHistory(ctx, sessionID)
			if err != nil {
				return err
			}

			s := model.Session{ID: sessionID}
			if api, apiErr := newBackend(ctx, cfg); apiErr == nil {
				if live, err := api.GetSession(ctx, sessionID); err == nil {
					s = live
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatTitle("Recognition attempts · "+s.Title()))
			if len(attempts) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No recognition attempts recorded."))
			} else {
				fmt.Fprintln(out, cli.RenderAttempts(attempts))
			}

			fmt.Fprintln(out, cli.FormatTitle("Attendance changes"))
			if len(writes) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No attendance changes recorded."))
				return nil
			}
			fmt.Fprintln(out, cli.RenderLedgerHistory(s, writes))
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "maximum number of recognition attempts to show")
	return cmd
}
