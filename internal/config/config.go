// Package config loads mailwatch settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/daviddao/mailwatch/internal/graph"
	"github.com/daviddao/mailwatch/internal/sync"
)

// EnvPrefix prefixes every environment override, e.g. MAILWATCH_MAILBOX or
// MAILWATCH_BROKER_ENC_KEY.
const EnvPrefix = "MAILWATCH"

// Credential store backends.
const (
	StoreDB      = "db"
	StoreKeyring = "keyring"
	StoreFile    = "file"
)

// BrokerConfig holds the token broker settings.
type BrokerConfig struct {
	URL            string `mapstructure:"url" yaml:"url"`
	AppName        string `mapstructure:"app_name" yaml:"app_name"`
	RegistrationID string `mapstructure:"registration_id" yaml:"registration_id"`
	EncKey         string `mapstructure:"enc_key" yaml:"enc_key"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Config is the full mailwatch configuration.
type Config struct {
	Mailbox    string `mapstructure:"mailbox" yaml:"mailbox"`
	Folder     string `mapstructure:"folder" yaml:"folder"`
	FirstFetch string `mapstructure:"first_fetch" yaml:"first_fetch"`
	FetchLimit int    `mapstructure:"fetch_limit" yaml:"fetch_limit"`
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`

	Broker       BrokerConfig `mapstructure:"broker" yaml:"broker"`
	RefreshToken string       `mapstructure:"refresh_token" yaml:"refresh_token"`

	Insecure bool          `mapstructure:"insecure" yaml:"insecure"`
	Proxy    string        `mapstructure:"proxy" yaml:"proxy"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`

	CredentialStore string `mapstructure:"credential_store" yaml:"credential_store"`
	CredentialFile  string `mapstructure:"credential_file" yaml:"credential_file"`
	DBPath          string `mapstructure:"db_path" yaml:"db_path"`

	Log LogConfig `mapstructure:"log" yaml:"log"`
}

var defaults = map[string]any{
	"mailbox":                "",
	"folder":                 "Inbox",
	"first_fetch":            "15 minutes",
	"fetch_limit":            50,
	"base_url":               graph.DefaultBaseURL,
	"broker.url":             "https://oproxy.demisto.ninja/obtain-token",
	"broker.app_name":        "ms-graph-mail-listener",
	"broker.registration_id": "",
	"broker.enc_key":         "",
	"refresh_token":          "",
	"insecure":               false,
	"proxy":                  "",
	"timeout":                "30s",
	"credential_store":       StoreDB,
	"credential_file":        "",
	"db_path":                "",
	"log.level":              "info",
	"log.format":             "text",
}

// DefaultPath returns ~/.config/mailwatch/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mailwatch", "config.yaml")
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	return v
}

// Load reads the config file at path, applying defaults and environment
// overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	v := newViper(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Lookback parses FirstFetch.
func (c *Config) Lookback() (time.Duration, error) {
	return sync.ParseLookback(c.FirstFetch)
}

// Validate reports every missing or malformed setting needed to talk to
// the mail API.
func (c *Config) Validate() error {
	var problems []string
	if c.Mailbox == "" {
		problems = append(problems, "mailbox is required")
	}
	if c.Broker.URL == "" {
		problems = append(problems, "broker.url is required")
	}
	if c.Broker.RegistrationID == "" {
		problems = append(problems, "broker.registration_id is required")
	}
	if c.Broker.EncKey == "" {
		problems = append(problems, "broker.enc_key is required")
	}
	if c.FetchLimit <= 0 {
		problems = append(problems, fmt.Sprintf("fetch_limit must be positive, got %d", c.FetchLimit))
	}
	if _, err := c.Lookback(); err != nil {
		problems = append(problems, fmt.Sprintf("first_fetch: %v", err))
	}
	switch c.CredentialStore {
	case StoreDB, StoreKeyring:
	case StoreFile:
		if c.CredentialFile == "" {
			problems = append(problems, "credential_file is required when credential_store is file")
		}
	default:
		problems = append(problems, fmt.Sprintf("credential_store must be %q, %q or %q, got %q", StoreDB, StoreKeyring, StoreFile, c.CredentialStore))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Save writes cfg to path as YAML, creating parent directories.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("mailbox", cfg.Mailbox)
	v.Set("folder", cfg.Folder)
	v.Set("first_fetch", cfg.FirstFetch)
	v.Set("fetch_limit", cfg.FetchLimit)
	v.Set("base_url", cfg.BaseURL)
	v.Set("broker.url", cfg.Broker.URL)
	v.Set("broker.app_name", cfg.Broker.AppName)
	v.Set("broker.registration_id", cfg.Broker.RegistrationID)
	v.Set("broker.enc_key", cfg.Broker.EncKey)
	v.Set("refresh_token", cfg.RefreshToken)
	v.Set("insecure", cfg.Insecure)
	v.Set("proxy", cfg.Proxy)
	v.Set("timeout", cfg.Timeout.String())
	v.Set("credential_store", cfg.CredentialStore)
	v.Set("credential_file", cfg.CredentialFile)
	v.Set("db_path", cfg.DBPath)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.format", cfg.Log.Format)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config to %s: %w", path, err)
	}
	return os.Chmod(path, 0o600)
}
