package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vertextoedge/modfetch/internal/domain"
)

// DefaultConfigName is the file looked up when no path is given
const DefaultConfigName = "modfetch.yaml"

// Config represents the entire application configuration
type Config struct {
	Download    DownloadConfig    `mapstructure:"download"`
	Paths       PathsConfig       `mapstructure:"paths"`
	Nexus       NexusConfig       `mapstructure:"nexus"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
}

// DownloadConfig contains the download pipeline tunables
type DownloadConfig struct {
	MaxRetries         int      `mapstructure:"max_retries"`
	BaseBackoff        string   `mapstructure:"base_backoff"`
	BackoffMultiplier  float64  `mapstructure:"backoff_multiplier"`
	MaxBackoff         string   `mapstructure:"max_backoff"`
	Jitter             float64  `mapstructure:"jitter"`
	ConcurrencyLimit   int      `mapstructure:"concurrency_limit"`
	ValidationWorkers  int      `mapstructure:"validation_workers"`
	ChunkConcurrency   int      `mapstructure:"chunk_concurrency"`
	ChunkSizeMB        int      `mapstructure:"chunk_size_mb"`
	Timeout            string   `mapstructure:"timeout"`
	ResumeEnabled      bool     `mapstructure:"resume_enabled"`
	RequiredAlgorithms []string `mapstructure:"required_algorithms"`
	UserAgent          string   `mapstructure:"user_agent"`
	MinFreeSpaceMB     int64    `mapstructure:"min_free_space_mb"`
}

// PathsConfig contains filesystem locations
type PathsConfig struct {
	DownloadsDir string            `mapstructure:"downloads_dir"`
	ArchivesDir  string            `mapstructure:"archives_dir"`
	GameDirs     map[string]string `mapstructure:"game_dirs"`
}

// NexusConfig contains Nexus Mods API settings
type NexusConfig struct {
	APIKey            string  `mapstructure:"api_key"`
	BaseURL           string  `mapstructure:"base_url"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// MaintenanceConfig contains cleanup settings
type MaintenanceConfig struct {
	TempFileMaxAge string `mapstructure:"temp_file_max_age"`
	HistoryMaxAge  string `mapstructure:"history_max_age"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// Load loads configuration from the specified file path. An empty path
// looks for modfetch.yaml in the working directory and falls back to
// defaults when there is none. Every key can be overridden with a
// MODFETCH_ environment variable, e.g. MODFETCH_NEXUS_API_KEY.
func Load(configPath, version string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MODFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, version)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultConfigName, filepath.Ext(DefaultConfigName)))
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper, version string) {
	if version == "" {
		version = "dev"
	}
	v.SetDefault("download.max_retries", 3)
	v.SetDefault("download.base_backoff", "1s")
	v.SetDefault("download.backoff_multiplier", 2.0)
	v.SetDefault("download.max_backoff", "60s")
	v.SetDefault("download.jitter", 0.1)
	v.SetDefault("download.concurrency_limit", 4)
	v.SetDefault("download.validation_workers", 4)
	v.SetDefault("download.chunk_concurrency", 4)
	v.SetDefault("download.chunk_size_mb", 16)
	v.SetDefault("download.timeout", "30s")
	v.SetDefault("download.resume_enabled", true)
	v.SetDefault("download.required_algorithms", []string{"size", "xxhash64"})
	v.SetDefault("download.user_agent", "modfetch/"+version)
	v.SetDefault("download.min_free_space_mb", 512)
	v.SetDefault("paths.downloads_dir", "downloads")
	v.SetDefault("paths.archives_dir", "")
	v.SetDefault("paths.game_dirs", map[string]string{})
	v.SetDefault("nexus.api_key", "")
	v.SetDefault("nexus.base_url", "https://api.nexusmods.com")
	v.SetDefault("nexus.requests_per_second", 1.0)
	v.SetDefault("maintenance.temp_file_max_age", "24h")
	v.SetDefault("maintenance.history_max_age", "720h")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("database.path", "")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Paths.DownloadsDir == "" {
		return fmt.Errorf("paths.downloads_dir is required")
	}

	// Validate durations
	durations := map[string]string{
		"download.base_backoff":         c.Download.BaseBackoff,
		"download.max_backoff":          c.Download.MaxBackoff,
		"download.timeout":              c.Download.Timeout,
		"maintenance.temp_file_max_age": c.Maintenance.TempFileMaxAge,
		"maintenance.history_max_age":   c.Maintenance.HistoryMaxAge,
	}
	for key, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
	}

	if c.Nexus.RequestsPerSecond < 0 {
		return fmt.Errorf("nexus.requests_per_second must not be negative")
	}

	// Validate logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
		// Valid formats
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	if _, err := c.ToDownloadConfig(); err != nil {
		return err
	}
	return nil
}

// ToDownloadConfig builds the validated pipeline tunables
func (c *Config) ToDownloadConfig() (domain.DownloadConfig, error) {
	algorithms := make([]domain.Algorithm, 0, len(c.Download.RequiredAlgorithms))
	for _, name := range c.Download.RequiredAlgorithms {
		alg, err := domain.ParseAlgorithm(name)
		if err != nil {
			return domain.DownloadConfig{}, fmt.Errorf("invalid download.required_algorithms: %w", err)
		}
		algorithms = append(algorithms, alg)
	}

	return domain.NewDownloadConfig(domain.DownloadConfig{
		MaxRetries:         c.Download.MaxRetries,
		BaseBackoff:        parseDuration(c.Download.BaseBackoff),
		BackoffMultiplier:  c.Download.BackoffMultiplier,
		MaxBackoff:         parseDuration(c.Download.MaxBackoff),
		Jitter:             c.Download.Jitter,
		ConcurrencyLimit:   c.Download.ConcurrencyLimit,
		ValidationWorkers:  c.Download.ValidationWorkers,
		ChunkConcurrency:   c.Download.ChunkConcurrency,
		ChunkSize:          int64(c.Download.ChunkSizeMB) * 1024 * 1024,
		Timeout:            parseDuration(c.Download.Timeout),
		ResumeEnabled:      c.Download.ResumeEnabled,
		RequiredAlgorithms: algorithms,
		UserAgent:          c.Download.UserAgent,
		MinFreeSpace:       c.Download.MinFreeSpaceMB * 1024 * 1024,
	})
}

// GetDatabasePath returns the history database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Paths.DownloadsDir, "modfetch.db")
}

// GetTempFileMaxAge returns the partial file age limit as time.Duration
func (c *MaintenanceConfig) GetTempFileMaxAge() time.Duration {
	d := parseDuration(c.TempFileMaxAge)
	if d == 0 {
		return 24 * time.Hour
	}
	return d
}

// GetHistoryMaxAge returns the run history retention as time.Duration
func (c *MaintenanceConfig) GetHistoryMaxAge() time.Duration {
	d := parseDuration(c.HistoryMaxAge)
	if d == 0 {
		return 30 * 24 * time.Hour
	}
	return d
}

func parseDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
