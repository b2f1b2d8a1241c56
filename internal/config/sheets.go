package config

import (
	"os"

	"github.com/spf13/viper"

	"github.com/Veraticus/rollcall/internal/sheets"
)

// LoadSheetsConfig loads Google Sheets configuration.
// It follows this precedence:
// 1. Viper configuration (from config file or ROLLCALL_SHEETS_* env vars)
// 2. Direct environment variables (GOOGLE_SHEETS_*)
// 3. Default values
func LoadSheetsConfig(v *viper.Viper) (*sheets.Config, error) {
	config := sheets.DefaultConfig()

	if s := v.GetString("sheets.service_account_path"); s != "" {
		config.ServiceAccountPath = ExpandPath(s)
	}
	config.ClientID = v.GetString("sheets.client_id")
	config.ClientSecret = v.GetString("sheets.client_secret")
	config.RefreshToken = v.GetString("sheets.refresh_token")
	config.SpreadsheetID = v.GetString("sheets.spreadsheet_id")
	config.SpreadsheetName = v.GetString("sheets.spreadsheet_name")
	if tz := v.GetString("sheets.timezone"); tz != "" {
		config.TimeZone = tz
	}
	if v.IsSet("sheets.one_tab_per_session") {
		config.OneTabPerSession = v.GetBool("sheets.one_tab_per_session")
	}

	fallback := func(dst *string, env string) {
		if *dst == "" {
			*dst = os.Getenv(env)
		}
	}
	if config.ServiceAccountPath == "" {
		config.ServiceAccountPath = ExpandPath(os.Getenv("GOOGLE_SHEETS_SERVICE_ACCOUNT_PATH"))
	}
	fallback(&config.ClientID, "GOOGLE_SHEETS_CLIENT_ID")
	fallback(&config.ClientSecret, "GOOGLE_SHEETS_CLIENT_SECRET")
	fallback(&config.RefreshToken, "GOOGLE_SHEETS_REFRESH_TOKEN")
	fallback(&config.SpreadsheetID, "GOOGLE_SHEETS_SPREADSHEET_ID")
	fallback(&config.SpreadsheetName, "GOOGLE_SHEETS_SPREADSHEET_NAME")
	if config.SpreadsheetName == "" {
		config.SpreadsheetName = sheets.DefaultSpreadsheetName
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}
