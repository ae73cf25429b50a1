package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/bearlinks/internal/backlinks"
	"github.com/starford/bearlinks/internal/backup"
	"github.com/starford/bearlinks/internal/models"
	"github.com/starford/bearlinks/internal/store"
	"github.com/starford/bearlinks/internal/watch"
	"github.com/starford/bearlinks/internal/writer"
)

// Log formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// bearStore is the store location relative to the user's home directory.
const bearStore = "Library/Group Containers/9K33E3U3T4.net.shinyfrog.bear/Application Data/database.sqlite"

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Store     StoreConfig       `yaml:"store"`
	Backup    BackupConfig      `yaml:"backup"`
	Backlinks BacklinksConfig   `yaml:"backlinks"`
	Writer    WriterConfig      `yaml:"writer"`
	Cache     CacheConfig       `yaml:"cache"`
	Watch     WatchConfig       `yaml:"watch"`
	Status    StatusConfig      `yaml:"status"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    validation.Validatable
	}{
		{"app", &c.App},
		{"store", &c.Store},
		{"backup", &c.Backup},
		{"backlinks", &c.Backlinks},
		{"writer", &c.Writer},
		{"cache", &c.Cache},
		{"watch", &c.Watch},
		{"status", &c.Status},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel  slog.Level `yaml:"log_level"`
	LogFormat string     `yaml:"log_format"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.LogFormat, validation.Required, validation.In(LogFormatJSON, LogFormatText)),
	)
}

// StoreConfig locates the note store.
type StoreConfig struct {
	Path        string        `yaml:"path"`
	LinksTable  string        `yaml:"links_table"`
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.LinksTable, validation.Required, validation.Match(store.LinksTablePattern)),
		validation.Field(&c.BusyTimeout, validation.Min(time.Duration(0))),
	)
}

// BackupConfig controls the copy taken before every writing run.
type BackupConfig struct {
	Enabled bool `yaml:"enabled"`
	// Keep is the number of backups retained; 0 keeps all.
	Keep int `yaml:"keep"`
}

// Validate validates the backup configuration.
func (c *BackupConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Keep, validation.Min(0)),
	)
}

// BacklinksConfig describes the generated block.
type BacklinksConfig struct {
	Strategy          string   `yaml:"strategy"`
	Header            string   `yaml:"header"`
	RecognizedHeaders []string `yaml:"recognized_headers"`
	Order             string   `yaml:"order"`
}

// Validate validates the backlinks configuration.
func (c *BacklinksConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Strategy, validation.Required,
			validation.In(string(backlinks.StrategyHeading), string(backlinks.StrategyLiteral))),
		validation.Field(&c.Header, validation.Required),
		validation.Field(&c.RecognizedHeaders, validation.Each(validation.Required)),
		validation.Field(&c.Order, validation.Required,
			validation.In(string(models.OrderModified), string(models.OrderCreated))),
	)
}

// Format returns the block format described by the configuration.
func (c *BacklinksConfig) Format() backlinks.Format {
	return backlinks.Format{
		Strategy:   backlinks.Strategy(c.Strategy),
		Header:     c.Header,
		Recognized: c.RecognizedHeaders,
	}
}

// WriterConfig holds the external update command.
type WriterConfig struct {
	Command     string        `yaml:"command"`
	Args        []string      `yaml:"args"`
	BaseURL     string        `yaml:"base_url"`
	SettleDelay time.Duration `yaml:"settle_delay"`
}

// Validate validates the writer configuration.
func (c *WriterConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Command, validation.Required),
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.SettleDelay, validation.Min(time.Duration(0))),
	)
}

// CacheConfig controls the modification cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
	)
}

// WatchConfig holds watch mode configuration.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// StatusConfig holds the status server configuration used in watch mode.
type StatusConfig struct {
	// Port 0 disables the server.
	Port  int    `yaml:"port"`
	Token string `yaml:"token"`
}

// Address returns the status server address.
func (c *StatusConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the status configuration.
func (c *StatusConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Min(0), validation.Max(65535)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		cacheDir = home
	}

	return &Config{
		App: ApplicationConfig{
			LogLevel:  slog.LevelInfo,
			LogFormat: LogFormatJSON,
		},
		Store: StoreConfig{
			Path:        filepath.Join(home, bearStore),
			LinksTable:  store.DefaultLinksTable,
			BusyTimeout: 5 * time.Second,
		},
		Backup: BackupConfig{
			Enabled: true,
			Keep:    backup.DefaultKeep,
		},
		Backlinks: BacklinksConfig{
			Strategy:          string(backlinks.StrategyHeading),
			Header:            backlinks.DefaultHeader,
			RecognizedHeaders: backlinks.DefaultRecognizedHeaders,
			Order:             string(models.OrderModified),
		},
		Writer: WriterConfig{
			Command:     writer.DefaultCommand,
			Args:        writer.DefaultArgs,
			BaseURL:     writer.DefaultBaseURL,
			SettleDelay: writer.DefaultSettleDelay,
		},
		Cache: CacheConfig{
			Path: filepath.Join(cacheDir, "bearlinks", "mod_dates.sqlite"),
		},
		Watch: WatchConfig{
			Debounce: watch.DefaultDebounce,
		},
	}
}
