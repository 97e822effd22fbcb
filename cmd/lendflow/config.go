package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/rendis/lendflow/internal/actions"
	"github.com/rendis/lendflow/internal/app"
	"github.com/rendis/lendflow/internal/secrets"
)

// Config holds all lendflow server configuration.
// Priority: flags > LENDFLOW_* env vars > settings.json > defaults.
type Config struct {
	ListenAddr    string   `json:"listen_addr"`
	DBPath        string   `json:"db_path"`
	LogLevel      string   `json:"log_level"`
	LogFormat     string   `json:"log_format"`
	SweepInterval Duration `json:"sweep_interval"`
	BatchSize     int      `json:"batch_size"`
	LeaseTimeout  Duration `json:"lease_timeout"`
	ActionTimeout Duration `json:"action_timeout"`
	MailAPIURL    string   `json:"mail_api_url"`
	MailAPIKey    string   `json:"mail_api_key"`
	MailFrom      string   `json:"mail_from"`

	VaultPassphrase string `json:"vault_passphrase"`
	VaultSalt       string `json:"vault_salt"`
}

// Duration reads "90s"-style strings or plain seconds from settings.json.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(val * float64(time.Second)))
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func defaultConfig() Config {
	return Config{
		ListenAddr:    ":4200",
		DBPath:        filepath.Join(lendflowDir(), "lendflow.db"),
		LogLevel:      "info",
		LogFormat:     "text",
		SweepInterval: Duration(time.Minute),
		BatchSize:     50,
		LeaseTimeout:  Duration(10 * time.Minute),
		ActionTimeout: Duration(30 * time.Second),
		MailFrom:      "Lendflow <notifications@lendflow.local>",
		VaultSalt:     "lendflow-credentials",
	}
}

func lendflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lendflow"
	}
	return filepath.Join(home, ".lendflow")
}

func settingsPath() string {
	return filepath.Join(lendflowDir(), "settings.json")
}

// loadSettings layers settings.json over the defaults. A missing file is not
// an error; a malformed one is.
func loadSettings(path string) (Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read settings: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return cfg, nil
}

// configFlags are declared on the root command; each reads its LENDFLOW_* env var.
func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "path to settings.json", Value: settingsPath(), Sources: cli.EnvVars("LENDFLOW_CONFIG")},
		&cli.StringFlag{Name: "listen", Usage: "HTTP listen address", Sources: cli.EnvVars("LENDFLOW_LISTEN_ADDR")},
		&cli.StringFlag{Name: "db", Usage: "libSQL database file URI", Sources: cli.EnvVars("LENDFLOW_DB_PATH")},
		&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error", Sources: cli.EnvVars("LENDFLOW_LOG_LEVEL")},
		&cli.StringFlag{Name: "log-format", Usage: "text or json", Sources: cli.EnvVars("LENDFLOW_LOG_FORMAT")},
		&cli.DurationFlag{Name: "sweep-interval", Usage: "time between sweeps and schedule checks", Sources: cli.EnvVars("LENDFLOW_SWEEP_INTERVAL")},
		&cli.IntFlag{Name: "batch-size", Usage: "scheduled actions claimed per sweep", Sources: cli.EnvVars("LENDFLOW_BATCH_SIZE")},
		&cli.DurationFlag{Name: "lease-timeout", Usage: "age after which a running scheduled action is reclaimed", Sources: cli.EnvVars("LENDFLOW_LEASE_TIMEOUT")},
		&cli.DurationFlag{Name: "action-timeout", Usage: "per-action execution timeout", Sources: cli.EnvVars("LENDFLOW_ACTION_TIMEOUT")},
		&cli.StringFlag{Name: "mail-url", Usage: "mail dispatch API URL", Sources: cli.EnvVars("LENDFLOW_MAIL_API_URL")},
		&cli.StringFlag{Name: "mail-key", Usage: "mail dispatch API key", Sources: cli.EnvVars("LENDFLOW_MAIL_API_KEY")},
		&cli.StringFlag{Name: "mail-from", Usage: "sender address for send_email", Sources: cli.EnvVars("LENDFLOW_MAIL_FROM")},
		&cli.StringFlag{Name: "vault-passphrase", Usage: "passphrase for the credential vault", Sources: cli.EnvVars("LENDFLOW_VAULT_PASSPHRASE")},
		&cli.StringFlag{Name: "vault-salt", Usage: "salt for the credential vault key", Sources: cli.EnvVars("LENDFLOW_VAULT_SALT")},
	}
}

// loadConfig resolves the effective configuration for cmd.
func loadConfig(cmd *cli.Command) (Config, error) {
	cfg, err := loadSettings(cmd.String("config"))
	if err != nil {
		return cfg, err
	}
	applyFlags(cmd, &cfg)
	if cfg.BatchSize <= 0 {
		return cfg, fmt.Errorf("batch size must be positive, got %d", cfg.BatchSize)
	}
	return cfg, nil
}

// applyFlags overrides cfg with every flag set on the command line or through
// its env var.
func applyFlags(cmd *cli.Command, cfg *Config) {
	setString := func(name string, dst *string) {
		if cmd.IsSet(name) {
			*dst = cmd.String(name)
		}
	}
	setDuration := func(name string, dst *Duration) {
		if cmd.IsSet(name) {
			*dst = Duration(cmd.Duration(name))
		}
	}

	setString("listen", &cfg.ListenAddr)
	setString("db", &cfg.DBPath)
	setString("log-level", &cfg.LogLevel)
	setString("log-format", &cfg.LogFormat)
	setDuration("sweep-interval", &cfg.SweepInterval)
	if cmd.IsSet("batch-size") {
		cfg.BatchSize = cmd.Int("batch-size")
	}
	setDuration("lease-timeout", &cfg.LeaseTimeout)
	setDuration("action-timeout", &cfg.ActionTimeout)
	setString("mail-url", &cfg.MailAPIURL)
	setString("mail-key", &cfg.MailAPIKey)
	setString("mail-from", &cfg.MailFrom)
	setString("vault-passphrase", &cfg.VaultPassphrase)
	setString("vault-salt", &cfg.VaultSalt)
}

// dbURI turns a bare path into the file URI libSQL expects.
func (c Config) dbURI() string {
	if strings.HasPrefix(c.DBPath, "file:") {
		return c.DBPath
	}
	return "file:" + c.DBPath
}

func (c Config) appConfig() app.Config {
	return app.Config{
		DBPath: c.dbURI(),
		Mail: actions.MailerConfig{
			APIURL: c.MailAPIURL,
			APIKey: c.MailAPIKey,
			From:   c.MailFrom,
		},
		ActionTimeout: time.Duration(c.ActionTimeout),
		BatchSize:     c.BatchSize,
		LeaseTimeout:  time.Duration(c.LeaseTimeout),
		SweepInterval: time.Duration(c.SweepInterval),
		Vault: secrets.VaultConfig{
			Passphrase: c.VaultPassphrase,
			Salt:       []byte(c.VaultSalt),
		},
	}
}
