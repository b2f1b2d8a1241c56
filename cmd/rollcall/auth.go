package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/rollcall/internal/cli"
	"github.com/Veraticus/rollcall/internal/sheets"
)

func authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with external services",
	}

	cmd.AddCommand(authSheetsCmd())

	return cmd
}

func authSheetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sheets",
		Short: "Authenticate with Google Sheets",
		Long: `Authenticate with Google Sheets using OAuth2.

This opens a browser for Google sign-in, saves the refresh token and
records it in your config file. Run it once before 'rollcall export --format sheets'.`,
		Args: cobra.NoArgs,
		RunE: runAuthSheets,
	}

	cmd.Flags().String("client-id", "", "OAuth2 Client ID (overrides config)")
	cmd.Flags().String("client-secret", "", "OAuth2 Client Secret (overrides config)")
	cmd.Flags().Bool("force", false, "sign in again even if a saved token exists")

	return cmd
}

func runAuthSheets(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	clientID := viper.GetString("sheets.client_id")
	clientSecret := viper.GetString("sheets.client_secret")
	if flagID, _ := cmd.Flags().GetString("client-id"); flagID != "" {
		clientID = flagID
	}
	if flagSecret, _ := cmd.Flags().GetString("client-secret"); flagSecret != "" {
		clientSecret = flagSecret
	}
	if clientID == "" {
		clientID = os.Getenv("GOOGLE_SHEETS_CLIENT_ID")
	}
	if clientSecret == "" {
		clientSecret = os.Getenv("GOOGLE_SHEETS_CLIENT_SECRET")
	}
	if clientID == "" || clientSecret == "" {
		return fmt.Errorf("OAuth2 credentials not found: set sheets.client_id and sheets.client_secret or use --client-id and --client-secret")
	}

	dir, err := configDir()
	if err != nil {
		return err
	}
	tokenFile := filepath.Join(dir, "sheets-token.json")
	slog.Info("Starting Google Sheets authentication", "token_file", tokenFile)

	oauthCfg := sheets.OAuth2Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenFile:    tokenFile,
	}
	authenticate := sheets.GetOrCreateToken
	if force, _ := cmd.Flags().GetBool("force"); force {
		authenticate = sheets.AuthenticateOAuth2Interactive
	}
	token, err := authenticate(ctx, oauthCfg)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	viper.Set("sheets.client_id", clientID)
	viper.Set("sheets.client_secret", clientSecret)
	viper.Set("sheets.refresh_token", token.RefreshToken)

	out := cmd.OutOrStdout()
	if err := saveConfig(); err != nil {
		slog.Warn("Failed to update config file with refresh token", "error", err)
		fmt.Fprintln(out, cli.FormatWarning("Could not save the refresh token. Add this to your config.yaml:"))
		fmt.Fprintf(out, "sheets:\n  refresh_token: %q\n", token.RefreshToken)
		return nil
	}

	fmt.Fprintln(out, cli.FormatSuccess("Google Sheets is now configured. Run 'rollcall export <session-id> --format sheets'."))
	return nil
}

// configDir is where rollcall keeps its config file and tokens.
func configDir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "rollcall"), nil
}

func saveConfig() error {
	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		dir, err := configDir()
		if err != nil {
			return err
		}
		configFile = filepath.Join(dir, "config.yaml")
	}

	if err := os.MkdirAll(filepath.Dir(configFile), 0o750); err != nil {
		return err
	}

	return viper.WriteConfigAs(configFile)
}
