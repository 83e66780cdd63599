// Package config loads server settings from defaults, an optional YAML file
// and the environment, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// FileEnv names the environment variable that points at a YAML config file.
const FileEnv = "PIXEL_CONFIG"

type Config struct {
	Addr            string        `yaml:"addr" validate:"required"`
	SessionCode     string        `yaml:"session_code" validate:"required,alphanum,max=32"`
	SessionDuration time.Duration `yaml:"session_duration" validate:"gt=0"`
	TickInterval    time.Duration `yaml:"tick_interval" validate:"gt=0"`
	AutoStart       bool          `yaml:"auto_start"`
	ExportDir       string        `yaml:"export_dir" validate:"required"`

	OutboxSize      int           `yaml:"outbox_size" validate:"gte=1"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gt=0"`
	ReadIdleTimeout time.Duration `yaml:"read_idle_timeout" validate:"gte=0"`
	MaxBadMessages  int           `yaml:"max_bad_messages" validate:"gte=0"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`

	DatabaseURL string `yaml:"database_url"`
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject" validate:"required_with=NATSURL"`

	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogDev   bool   `yaml:"log_dev"`
}

func Default() Config {
	return Config{
		Addr:            ":5000",
		SessionCode:     "main",
		SessionDuration: 5 * time.Minute,
		TickInterval:    time.Second,
		AutoStart:       true,
		ExportDir:       "exports",
		OutboxSize:      64,
		WriteTimeout:    5 * time.Second,
		MaxBadMessages:  10,
		AllowedOrigins:  []string{"*"},
		NATSSubject:     "pixelbattle",
		LogLevel:        "info",
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load builds the configuration. path may be empty, in which case
// PIXEL_CONFIG is consulted; with neither set only defaults and the
// environment apply. A missing .env file is not an error.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = os.Getenv(FileEnv)
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Addr, "ADDR")
	setString(&cfg.SessionCode, "SESSION_CODE")
	setString(&cfg.ExportDir, "EXPORT_DIR")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.NATSURL, "NATS_URL")
	setString(&cfg.NATSSubject, "NATS_SUBJECT")
	setString(&cfg.LogLevel, "LOG_LEVEL")

	err := multierr.Combine(
		setDuration(&cfg.SessionDuration, "SESSION_DURATION"),
		setDuration(&cfg.TickInterval, "TICK_INTERVAL"),
		setDuration(&cfg.WriteTimeout, "WRITE_TIMEOUT"),
		setDuration(&cfg.ReadIdleTimeout, "READ_IDLE_TIMEOUT"),
		setInt(&cfg.OutboxSize, "OUTBOX_SIZE"),
		setInt(&cfg.MaxBadMessages, "MAX_BAD_MESSAGES"),
		setBool(&cfg.AutoStart, "AUTO_START"),
		setBool(&cfg.LogDev, "LOG_DEV"),
	)

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = splitList(v)
	}
	return err
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s must be a duration: %w", key, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s must be an integer: %w", key, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	*dst = b
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
