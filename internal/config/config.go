// Package config loads pulsereport settings from a YAML file with
// environment overrides (PULSE_ prefix, "." replaced by "_").
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rewired-gh/pulsereport/internal/models"
)

// Config represents the complete application configuration
type Config struct {
	Run          RunConfig          `mapstructure:"run"`
	Chats        ChatsConfig        `mapstructure:"chats"`
	Repositories RepositoriesConfig `mapstructure:"repositories"`
	Database     DatabaseConfig     `mapstructure:"database"`
	GitHub       GitHubConfig       `mapstructure:"github"`
	Telegram     TelegramConfig     `mapstructure:"telegram"`
	Storage      StorageConfig      `mapstructure:"storage"`
	NATS         NATSConfig         `mapstructure:"nats"`
	S3           S3Config           `mapstructure:"s3"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// RunConfig holds batch run behavior
type RunConfig struct {
	DaysBack     int           `mapstructure:"days_back"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	Workers      int           `mapstructure:"workers"`
	SampleEvents int           `mapstructure:"sample_events"`
	LeaseTTL     time.Duration `mapstructure:"lease_ttl"`
	ReportExt    string        `mapstructure:"report_ext"`
}

// ChatsConfig holds the chat report target
type ChatsConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	DirectoryFile string        `mapstructure:"directory_file"`
	OutputDir     string        `mapstructure:"output_dir"`
	IndexFile     string        `mapstructure:"index_file"`
	ActiveWindow  time.Duration `mapstructure:"active_window"`
	TopN          int           `mapstructure:"top_n"`
}

// RepositoriesConfig holds the repository report target
type RepositoriesConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	List          []string `mapstructure:"list"`
	DirectoryFile string   `mapstructure:"directory_file"`
	OutputDir     string   `mapstructure:"output_dir"`
	IndexFile     string   `mapstructure:"index_file"`
}

// DatabaseConfig holds the chat store connection
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// GitHubConfig holds GitHub API configuration
type GitHubConfig struct {
	APIBaseURL     string        `mapstructure:"api_base_url"`
	Token          string        `mapstructure:"token"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
	MaxPages       int           `mapstructure:"max_pages"`
}

// TelegramConfig holds Telegram lookup and notification configuration
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	LookupTitles   bool          `mapstructure:"lookup_titles"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// StorageConfig holds the SQLite ledger location
type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// NATSConfig holds event publishing configuration
type NATSConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// S3Config holds artifact upload configuration
type S3Config struct {
	Enabled  bool   `mapstructure:"enabled"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Target is the per-kind view of the output settings.
type Target struct {
	Kind          models.Kind
	Enabled       bool
	DirectoryFile string
	OutputDir     string
	IndexPath     string
}

// Load reads configuration from file and environment variables.
// An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("PULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options.
// Every key has a default so that environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper) {
	// Run defaults
	v.SetDefault("run.days_back", 7)
	v.SetDefault("run.fetch_timeout", "30s")
	v.SetDefault("run.workers", 1)
	v.SetDefault("run.sample_events", 50)
	v.SetDefault("run.lease_ttl", "2h")
	v.SetDefault("run.report_ext", "html")

	// Target defaults
	v.SetDefault("chats.enabled", true)
	v.SetDefault("chats.directory_file", "./data/channels.json")
	v.SetDefault("chats.output_dir", "./website/reports")
	v.SetDefault("chats.index_file", "metadata.json")
	v.SetDefault("chats.active_window", "168h")
	v.SetDefault("chats.top_n", 12)

	v.SetDefault("repositories.enabled", true)
	v.SetDefault("repositories.list", []string{})
	v.SetDefault("repositories.directory_file", "./data/github_repositories.json")
	v.SetDefault("repositories.output_dir", "./website/github_reports")
	v.SetDefault("repositories.index_file", "metadata.json")

	// Upstream defaults
	v.SetDefault("database.url", "")

	v.SetDefault("github.api_base_url", "https://api.github.com")
	v.SetDefault("github.token", "")
	v.SetDefault("github.timeout", "30s")
	v.SetDefault("github.max_retries", 3)
	v.SetDefault("github.retry_delay_base", "1s")
	v.SetDefault("github.max_pages", 10)

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.lookup_titles", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/pulsereport.db")

	// Delivery defaults
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.subject_prefix", "pulsereport")

	v.SetDefault("s3.enabled", false)
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.prefix", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Run config
	if c.Run.DaysBack < 1 {
		return fmt.Errorf("run.days_back must be at least 1")
	}
	if c.Run.FetchTimeout <= 0 {
		return fmt.Errorf("run.fetch_timeout must be positive")
	}
	if c.Run.Workers < 1 {
		return fmt.Errorf("run.workers must be at least 1")
	}
	if c.Run.SampleEvents < 0 {
		return fmt.Errorf("run.sample_events must not be negative")
	}
	if c.Run.LeaseTTL < time.Minute {
		return fmt.Errorf("run.lease_ttl must be at least 1 minute")
	}
	if c.Run.ReportExt == "" || strings.ContainsAny(c.Run.ReportExt, "./\\") {
		return fmt.Errorf("run.report_ext must be a bare extension such as html")
	}

	// Validate targets
	if c.Chats.OutputDir == "" || c.Chats.IndexFile == "" || c.Chats.DirectoryFile == "" {
		return fmt.Errorf("chats.directory_file, chats.output_dir and chats.index_file are required")
	}
	if c.Chats.TopN < 0 {
		return fmt.Errorf("chats.top_n must not be negative")
	}
	if c.Repositories.OutputDir == "" || c.Repositories.IndexFile == "" || c.Repositories.DirectoryFile == "" {
		return fmt.Errorf("repositories.directory_file, repositories.output_dir and repositories.index_file are required")
	}
	for _, id := range c.Repositories.List {
		e := models.Entity{ID: id, Kind: models.KindRepository}
		if err := e.Validate(); err != nil {
			return fmt.Errorf("repositories.list: %w", err)
		}
	}

	// Validate GitHub config
	if c.GitHub.APIBaseURL == "" {
		return fmt.Errorf("github.api_base_url is required")
	}
	if c.GitHub.MaxRetries < 1 {
		return fmt.Errorf("github.max_retries must be at least 1")
	}
	if c.GitHub.MaxPages < 0 {
		return fmt.Errorf("github.max_pages must not be negative")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.Telegram.LookupTitles && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required when telegram.lookup_titles is set")
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}

	// Validate delivery config
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats is enabled")
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when s3 is enabled")
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// RequireChatSource checks that chat runs have a message store to read from.
func (c *Config) RequireChatSource() error {
	if !c.Chats.Enabled {
		return errors.New("chat reports are disabled (chats.enabled)")
	}
	if c.Database.URL == "" {
		return errors.New("database.url is required for chat reports")
	}
	return nil
}

// RequireRepositorySource checks that repository runs have entities to
// report on. The token is optional; anonymous access is heavily rate limited.
func (c *Config) RequireRepositorySource() error {
	if !c.Repositories.Enabled {
		return errors.New("repository reports are disabled (repositories.enabled)")
	}
	if len(c.Repositories.List) == 0 {
		return errors.New("repositories.list must contain at least one owner/name")
	}
	return nil
}

// RequireSource dispatches to the per-kind source check.
func (c *Config) RequireSource(kind models.Kind) error {
	switch kind {
	case models.KindChat:
		return c.RequireChatSource()
	case models.KindRepository:
		return c.RequireRepositorySource()
	}
	return fmt.Errorf("entity kind %q is not supported", kind)
}

// TargetFor returns the output settings of kind.
func (c *Config) TargetFor(kind models.Kind) (Target, error) {
	switch kind {
	case models.KindChat:
		return Target{
			Kind:          kind,
			Enabled:       c.Chats.Enabled,
			DirectoryFile: c.Chats.DirectoryFile,
			OutputDir:     c.Chats.OutputDir,
			IndexPath:     indexPath(c.Chats.OutputDir, c.Chats.IndexFile),
		}, nil
	case models.KindRepository:
		return Target{
			Kind:          kind,
			Enabled:       c.Repositories.Enabled,
			DirectoryFile: c.Repositories.DirectoryFile,
			OutputDir:     c.Repositories.OutputDir,
			IndexPath:     indexPath(c.Repositories.OutputDir, c.Repositories.IndexFile),
		}, nil
	}
	return Target{}, fmt.Errorf("entity kind %q is not supported", kind)
}

// indexPath resolves a relative index file against the output directory.
func indexPath(outputDir, file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(outputDir, file)
}
