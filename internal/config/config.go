// Package config loads rollcall's settings from rollcall.yaml, .env files and
// ROLLCALL_* variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Veraticus/rollcall/internal/common"
)

// EnvPrefix prefixes every environment override, e.g. ROLLCALL_API_URL.
const EnvPrefix = "ROLLCALL"

// Config is the typed application configuration.
type Config struct {
	API         APIConfig         `mapstructure:"api"`
	Recognition RecognitionConfig `mapstructure:"recognition"`
	Camera      CameraConfig      `mapstructure:"camera"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// APIConfig locates the attendance and roster API.
type APIConfig struct {
	URL   string `mapstructure:"url" validate:"omitempty,url"`
	Token string `mapstructure:"token"`
}

// RecognitionConfig locates the face recognition API.
type RecognitionConfig struct {
	URL       string        `mapstructure:"url" validate:"omitempty,url"`
	Token     string        `mapstructure:"token"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Threshold float64       `mapstructure:"threshold" validate:"gte=0,lte=0.8"`
}

// CameraConfig selects the capture device.
type CameraConfig struct {
	Source      string `mapstructure:"source"`
	LockDir     string `mapstructure:"lock_dir"`
	JPEGQuality int    `mapstructure:"jpeg_quality" validate:"gte=1,lte=100"`
}

// DatabaseConfig locates the local journal.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// LoggingConfig configures slog.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("recognition.timeout", 60*time.Second)
	v.SetDefault("recognition.threshold", 0.6)
	v.SetDefault("camera.lock_dir", "~/.cache/rollcall/locks")
	v.SetDefault("camera.jpeg_quality", 90)
	v.SetDefault("database.path", "~/.local/share/rollcall/rollcall.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// BindEnv makes ROLLCALL_SECTION_KEY variables override section.key.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees keys viper already knows about.
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}
}

var envKeys = []string{
	"api.url", "api.token",
	"recognition.url", "recognition.token", "recognition.timeout", "recognition.threshold",
	"camera.source", "camera.lock_dir", "camera.jpeg_quality",
	"database.path",
	"logging.level", "logging.format",
	"sheets.service_account_path", "sheets.client_id", "sheets.client_secret",
	"sheets.refresh_token", "sheets.spreadsheet_id", "sheets.spreadsheet_name",
	"sheets.timezone", "sheets.one_tab_per_session",
}

// LoadDotEnv loads the given .env files into the process environment. Missing
// files are skipped and variables already set are not overridden.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		path = ExpandPath(path)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}

	cfg.API.URL = strings.TrimRight(cfg.API.URL, "/")
	cfg.Recognition.URL = strings.TrimRight(cfg.Recognition.URL, "/")
	if cfg.Recognition.URL == "" {
		cfg.Recognition.URL = cfg.API.URL
	}
	if cfg.Recognition.Token == "" {
		cfg.Recognition.Token = cfg.API.Token
	}
	cfg.Camera.Source = ExpandPath(cfg.Camera.Source)
	cfg.Camera.LockDir = ExpandPath(cfg.Camera.LockDir)
	cfg.Database.Path = ExpandPath(cfg.Database.Path)

	if err := validatorInstance().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %s", common.ErrInvalidConfig, describe(err))
	}
	return &cfg, nil
}

// RequireMarking checks the settings needed to mark attendance.
func (c *Config) RequireMarking() error {
	var missing []string
	if c.API.URL == "" {
		missing = append(missing, "api.url")
	}
	if c.Recognition.URL == "" {
		missing = append(missing, "recognition.url")
	}
	if c.Camera.Source == "" {
		missing = append(missing, "camera.source")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", common.ErrMissingConfig, strings.Join(missing, ", "))
	}
	return nil
}

// RequireAPI checks the settings needed to talk to the attendance API.
func (c *Config) RequireAPI() error {
	if c.API.URL == "" {
		return fmt.Errorf("%w: api.url", common.ErrMissingConfig)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func validatorInstance() *validator.Validate {
	return validate
}

func describe(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
