package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/rollcall/internal/cli"
)

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <session-id>",
		Short: "Show the attendance stored on the server for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			api, err := newBackend(ctx, cfg)
			if err != nil {
				return err
			}

			records, err := api.AttendanceHistory(ctx, args[0])
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No attendance stored for this session yet."))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderHistory(records))
			return nil
		},
	}
}
