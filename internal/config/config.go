// Package config provides configuration management for the zoom-recording-downloader application
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// DateLayout is the format of recordings.start_date and recordings.end_date
const DateLayout = "2006-01-02"

// Behaviour modes
const (
	ModeDownload = "download"
	ModeSize     = "size"
)

// ZoomConfig holds Zoom API authentication and connection settings
type ZoomConfig struct {
	AccountID    string `yaml:"account_id" json:"account_id"`
	ClientID     string `yaml:"client_id" json:"client_id"`
	ClientSecret string `yaml:"client_secret" json:"client_secret"`
	BaseURL      string `yaml:"base_url" json:"base_url"`
	TokenURL     string `yaml:"token_url" json:"token_url"`
}

// RecordingsConfig bounds the recordings that are listed
type RecordingsConfig struct {
	StartDate  string `yaml:"start_date" json:"start_date"`
	EndDate    string `yaml:"end_date" json:"end_date"`
	WindowDays int    `yaml:"window_days" json:"window_days"`
}

// Range resolves the configured dates. The start defaults to January 1st of
// the current year and the end to today.
func (r RecordingsConfig) Range(now time.Time) (time.Time, time.Time, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	end := today

	var err error
	if r.StartDate != "" {
		if start, err = time.Parse(DateLayout, r.StartDate); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("recordings.start_date: %w", err)
		}
	}
	if r.EndDate != "" {
		if end, err = time.Parse(DateLayout, r.EndDate); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("recordings.end_date: %w", err)
		}
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("recordings.end_date %s is before start_date %s",
			end.Format(DateLayout), start.Format(DateLayout))
	}
	return start, end, nil
}

// FilterConfig holds shell-style include and exclude patterns
type FilterConfig struct {
	EmailsToInclude []string `yaml:"emails_to_include" json:"emails_to_include"`
	EmailsToExclude []string `yaml:"emails_to_exclude" json:"emails_to_exclude"`
	TopicsToInclude []string `yaml:"topics_to_include" json:"topics_to_include"`
	TopicsToExclude []string `yaml:"topics_to_exclude" json:"topics_to_exclude"`
}

// NamingConfig selects the meeting strategy and the destination name templates
type NamingConfig struct {
	Strategy   string `yaml:"strategy" json:"strategy"`
	Timezone   string `yaml:"timezone" json:"timezone"`
	Strftime   string `yaml:"strftime" json:"strftime"`
	Filename   string `yaml:"filename" json:"filename"`
	Folder     string `yaml:"folder" json:"folder"`
	ReplaceOld string `yaml:"replace_old" json:"replace_old"`
	ReplaceNew string `yaml:"replace_new" json:"replace_new"`
}

// LedgerConfig locates the metadata ledger used by the ledger strategy
type LedgerConfig struct {
	Path     string `yaml:"path" json:"path"`
	Timezone string `yaml:"timezone" json:"timezone"`
	Watch    bool   `yaml:"watch" json:"watch"`
}

// DownloadConfig holds download-related settings
type DownloadConfig struct {
	OutputDir      string `yaml:"output_dir" json:"output_dir"`
	Mode           string `yaml:"mode" json:"mode"`
	ChunkSize      int    `yaml:"chunk_size" json:"chunk_size"`
	RetryAttempts  int    `yaml:"retry_attempts" json:"retry_attempts"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// TimeoutDuration returns the timeout as a time.Duration
func (d DownloadConfig) TimeoutDuration() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	Console    bool   `yaml:"console" json:"console"`
	JSONFormat bool   `yaml:"json_format" json:"json_format"`
}

// MetricsConfig holds run metrics settings
type MetricsConfig struct {
	// Textfile is where run metrics are written in Prometheus text format. Empty disables.
	Textfile string `yaml:"textfile" json:"textfile"`
}

// Config represents the complete application configuration
type Config struct {
	Zoom       ZoomConfig       `yaml:"zoom" json:"zoom"`
	Recordings RecordingsConfig `yaml:"recordings" json:"recordings"`
	Filter     FilterConfig     `yaml:"filter" json:"filter"`
	Naming     NamingConfig     `yaml:"naming" json:"naming"`
	Ledger     LedgerConfig     `yaml:"ledger" json:"ledger"`
	Download   DownloadConfig   `yaml:"download" json:"download"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics" json:"metrics"`
}

// LoadConfig loads configuration from a YAML file with defaults and environment variable overrides
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	if err := config.loadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config from file: %w", err)
	}

	config.setDefaults()
	config.loadFromEnvironment()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file
func (c *Config) loadFromFile(configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return nil
}

// setDefaults applies default values for missing configuration
func (c *Config) setDefaults() {
	if c.Zoom.BaseURL == "" {
		c.Zoom.BaseURL = "https://api.zoom.us/v2"
	}
	if c.Zoom.TokenURL == "" {
		c.Zoom.TokenURL = "https://zoom.us/oauth/token"
	}

	if c.Recordings.WindowDays == 0 {
		c.Recordings.WindowDays = 30
	}

	if c.Naming.Strategy == "" {
		c.Naming.Strategy = "default"
	}
	if c.Naming.Timezone == "" {
		c.Naming.Timezone = "UTC"
	}
	if c.Ledger.Timezone == "" {
		c.Ledger.Timezone = c.Naming.Timezone
	}

	if c.Download.OutputDir == "" {
		c.Download.OutputDir = "./downloads"
	}
	if c.Download.Mode == "" {
		c.Download.Mode = ModeDownload
	}
	if c.Download.ChunkSize == 0 {
		c.Download.ChunkSize = 32 * 1024
	}
	if c.Download.RetryAttempts == 0 {
		c.Download.RetryAttempts = 3
	}
	if c.Download.TimeoutSeconds == 0 {
		c.Download.TimeoutSeconds = 60
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	// Without a log file the console is the only place output can go
	if c.Logging.File == "" {
		c.Logging.Console = true
	}
}

// loadFromEnvironment overrides configuration with environment variables
func (c *Config) loadFromEnvironment() {
	if val := os.Getenv("ZOOM_ACCOUNT_ID"); val != "" {
		c.Zoom.AccountID = val
	}
	if val := os.Getenv("ZOOM_CLIENT_ID"); val != "" {
		c.Zoom.ClientID = val
	}
	if val := os.Getenv("ZOOM_CLIENT_SECRET"); val != "" {
		c.Zoom.ClientSecret = val
	}
	if val := os.Getenv("ZOOM_BASE_URL"); val != "" {
		c.Zoom.BaseURL = val
	}

	if val := os.Getenv("DOWNLOAD_OUTPUT_DIR"); val != "" {
		c.Download.OutputDir = val
	}
	if val := os.Getenv("LEDGER_PATH"); val != "" {
		c.Ledger.Path = val
	}
}

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	if c.Zoom.AccountID == "" {
		return fmt.Errorf("zoom.account_id is required")
	}
	if c.Zoom.ClientID == "" {
		return fmt.Errorf("zoom.client_id is required")
	}
	if c.Zoom.ClientSecret == "" {
		return fmt.Errorf("zoom.client_secret is required")
	}

	if _, _, err := c.Recordings.Range(time.Now()); err != nil {
		return err
	}
	if c.Recordings.WindowDays < 1 {
		return fmt.Errorf("recordings.window_days must be at least 1")
	}

	switch c.Naming.Strategy {
	case "default":
	case "ledger":
		if c.Ledger.Path == "" {
			return fmt.Errorf("ledger.path is required when naming.strategy is ledger")
		}
	default:
		return fmt.Errorf("naming.strategy must be one of: default, ledger")
	}
	if _, err := time.LoadLocation(c.Naming.Timezone); err != nil {
		return fmt.Errorf("naming.timezone: %w", err)
	}
	if _, err := time.LoadLocation(c.Ledger.Timezone); err != nil {
		return fmt.Errorf("ledger.timezone: %w", err)
	}

	if c.Download.Mode != ModeDownload && c.Download.Mode != ModeSize {
		return fmt.Errorf("download.mode must be one of: download, size")
	}
	if c.Download.ChunkSize < 0 {
		return fmt.Errorf("download.chunk_size must be >= 0")
	}
	if c.Download.RetryAttempts < 0 {
		return fmt.Errorf("download.retry_attempts must be >= 0")
	}
	if c.Download.TimeoutSeconds <= 0 {
		return fmt.Errorf("download.timeout_seconds must be greater than 0")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	return nil
}
