// Package conf loads dogs-go settings from a YAML file, environment variables and
// command-line flags through viper.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/dogs-go/internal/errors"
	"github.com/tphakala/dogs-go/internal/logger"
)

// Settings contains all configuration options for the application.
type Settings struct {
	Debug   bool   `yaml:"debug" mapstructure:"debug"`
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"` // base for database and images when not set explicitly

	API       APISettings          `yaml:"api" mapstructure:"api"`
	Cache     CacheSettings        `yaml:"cache" mapstructure:"cache"`
	Database  DatabaseSettings     `yaml:"database" mapstructure:"database"`
	Images    ImageSettings        `yaml:"images" mapstructure:"images"`
	Server    ServerSettings       `yaml:"server" mapstructure:"server"`
	Logging   logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Telemetry TelemetrySettings    `yaml:"telemetry" mapstructure:"telemetry"`
}

// APISettings configures the Dog CEO remote client.
type APISettings struct {
	BaseURL   string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent string        `yaml:"user_agent" mapstructure:"user_agent"`
}

// CacheSettings holds the freshness windows of the local cache.
type CacheSettings struct {
	BreedsTTL time.Duration `yaml:"breeds_ttl" mapstructure:"breeds_ttl"`
	ImagesTTL time.Duration `yaml:"images_ttl" mapstructure:"images_ttl"`
}

// DatabaseSettings selects and configures the store backend.
type DatabaseSettings struct {
	Type   string         `yaml:"type" mapstructure:"type"` // sqlite or mysql
	SQLite SQLiteSettings `yaml:"sqlite" mapstructure:"sqlite"`
	MySQL  MySQLSettings  `yaml:"mysql" mapstructure:"mysql"`
}

// SQLiteSettings contains settings for the SQLite store.
type SQLiteSettings struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// MySQLSettings contains settings for the MySQL store.
type MySQLSettings struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
}

// ImageSettings configures background image materialization.
type ImageSettings struct {
	Dir          string        `yaml:"dir" mapstructure:"dir"`
	Workers      int           `yaml:"workers" mapstructure:"workers"`
	QueueSize    int           `yaml:"queue_size" mapstructure:"queue_size"`
	RateLimit    float64       `yaml:"rate_limit" mapstructure:"rate_limit"` // downloads per second
	JPEGQuality  int           `yaml:"jpeg_quality" mapstructure:"jpeg_quality"`
	MaxDimension int           `yaml:"max_dimension" mapstructure:"max_dimension"` // 0 keeps original size
	FailureTTL   time.Duration `yaml:"failure_ttl" mapstructure:"failure_ttl"`
}

// ServerSettings configures the JSON HTTP surface.
type ServerSettings struct {
	Listen string `yaml:"listen" mapstructure:"listen"`
}

// TelemetrySettings configures optional Sentry error reporting.
type TelemetrySettings struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	DSN     string `yaml:"dsn" mapstructure:"dsn"`
}

// SQLitePath returns the configured database file, defaulting into DataDir.
func (s *Settings) SQLitePath() string {
	if s.Database.SQLite.Path != "" {
		return s.Database.SQLite.Path
	}
	return filepath.Join(s.DataDir, "dogs.db")
}

// ImagesDir returns the materialized image directory, defaulting into DataDir.
func (s *Settings) ImagesDir() string {
	if s.Images.Dir != "" {
		return s.Images.Dir
	}
	return filepath.Join(s.DataDir, "images")
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads defaults, the config file and environment variables into Settings.
// Flags bound with viper.BindPFlag before Load take precedence over the file.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_settings").
			Build()
	}

	if settings.DataDir == "" {
		settings.DataDir = defaultDataDir()
	}
	settings.DataDir = os.ExpandEnv(settings.DataDir)

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settings, nil
}

// GetSettings returns the settings produced by the last successful Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// initViper registers defaults, env bindings and reads the config file if one exists.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		for _, path := range GetDefaultConfigPaths() {
			viper.AddConfigPath(path)
		}
	}

	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		return err
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// defaults and env are enough; "dogs config init" writes a file
			return nil
		}
		return errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "read_config").
			Build()
	}

	return nil
}

// SaveYAMLConfig writes settings to configPath atomically. Comments are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "create_config_dir").
			Build()
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer func() { _ = os.Remove(tempFileName) }()

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}
