package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/rollcall/internal/backend"
	"github.com/Veraticus/rollcall/internal/capture"
	"github.com/Veraticus/rollcall/internal/cli"
	"github.com/Veraticus/rollcall/internal/common"
	"github.com/Veraticus/rollcall/internal/config"
	"github.com/Veraticus/rollcall/internal/recognition"
	"github.com/Veraticus/rollcall/internal/reconcile"
	"github.com/Veraticus/rollcall/internal/session"
	"github.com/Veraticus/rollcall/internal/tui"
	"github.com/Veraticus/rollcall/internal/tui/themes"
)

func markCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mark <session-id>",
		Short: "Take attendance for a class session",
		Long: `Open an interactive attendance session.

The roster is fetched from the school server and every student starts absent.
Use 'capture' to take a classroom photo: it is uploaded for face recognition
and the recognized students are shown for review before they are marked
present. Students can also be marked by hand, and 'save' sends the sheet.`,
		Args: cobra.ExactArgs(1),
		RunE: runMark,
	}

	cmd.Flags().String("camera", "", "snapshot file or directory used as the camera (overrides config)")
	cmd.Flags().Float64("threshold", 0, "confidence threshold for pre-selecting students (overrides config)")
	cmd.Flags().Duration("timeout", 0, "recognition timeout (overrides config)")
	cmd.Flags().Bool("plain", false, "review results with line prompts instead of the full screen view")
	cmd.Flags().String("theme", "", "review screen theme (default, catppuccin-mocha)")

	_ = viper.BindPFlag("camera.source", cmd.Flags().Lookup("camera"))
	_ = viper.BindPFlag("ui.theme", cmd.Flags().Lookup("theme"))

	return cmd
}

func runMark(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	sessionID := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyMarkFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.RequireMarking(); err != nil {
		return err
	}

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	api, err := newBackend(ctx, cfg)
	if err != nil {
		return err
	}
	recognizer, err := recognition.NewClient(ctx, backend.Credentials{
		BaseURL: cfg.Recognition.URL,
		Token:   cfg.Recognition.Token,
	})
	if err != nil {
		return err
	}

	classSession, err := api.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	device := capture.NewLockedDevice(capture.NewFileDevice(cfg.Camera.Source), cfg.Camera.LockDir)
	slog.Debug("Using camera", "device", device.Name(), "lock", device.LockPath())

	out := cmd.OutOrStdout()
	progress := cli.NewProgressReporter(out)

	orch, err := session.New(session.Config{
		Session:            classSession,
		Device:             device,
		Recognizer:         recognizer,
		Persister:          api,
		Journal:            store,
		OnStatus:           progress.Update,
		OnState:            func(s session.State) { slog.Debug("Session state changed", "session_id", sessionID, "state", s) },
		Threshold:          &cfg.Recognition.Threshold,
		RecognitionTimeout: cfg.Recognition.Timeout,
		JPEGQuality:        cfg.Camera.JPEGQuality,
	})
	if err != nil {
		return err
	}
	defer func() { _ = orch.Close() }()

	interrupts := cli.NewInterruptHandler(out)
	ctx = interrupts.HandleInterrupts(ctx, "Unsaved attendance was not sent. Drafts from failed saves: rollcall drafts list")

	var opts []cli.ConsoleOption
	if plain, _ := cmd.Flags().GetBool("plain"); !plain {
		opts = append(opts, cli.WithReviewer(tui.NewReviewer(tui.WithTheme(themes.GetTheme(viper.GetString("ui.theme"))))))
	}

	console := cli.NewConsole(orch, os.Stdin, out, opts...)
	if err := console.Run(ctx); err != nil && !interrupts.WasInterrupted() {
		return err
	}
	return nil
}

// applyMarkFlags copies explicitly set flags over the loaded config.
func applyMarkFlags(cmd *cobra.Command, cfg *config.Config) error {
	if cmd.Flags().Changed("threshold") {
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		if threshold < 0 || threshold > reconcile.HighConfidence {
			return fmt.Errorf("%w: --threshold must be between 0 and %.1f", common.ErrInvalidConfig, reconcile.HighConfidence)
		}
		cfg.Recognition.Threshold = threshold
	}
	if cmd.Flags().Changed("timeout") {
		timeout, _ := cmd.Flags().GetDuration("timeout")
		if timeout <= 0 {
			return fmt.Errorf("%w: --timeout must be positive", common.ErrInvalidConfig)
		}
		cfg.Recognition.Timeout = timeout
	}
	return nil
}
