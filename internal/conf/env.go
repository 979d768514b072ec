package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding maps a viper key to an environment variable with optional validation
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "DOGS_DEBUG", validateEnvBool},
		{"data_dir", "DOGS_DATA_DIR", nil},

		{"api.base_url", "DOGS_API_BASE_URL", validateEnvURL},
		{"api.timeout", "DOGS_API_TIMEOUT", validateEnvDuration},

		{"cache.breeds_ttl", "DOGS_CACHE_BREEDS_TTL", validateEnvDuration},
		{"cache.images_ttl", "DOGS_CACHE_IMAGES_TTL", validateEnvDuration},

		{"database.type", "DOGS_DATABASE_TYPE", nil},
		{"database.sqlite.path", "DOGS_DATABASE_SQLITE_PATH", nil},
		{"database.mysql.host", "DOGS_DATABASE_MYSQL_HOST", nil},
		{"database.mysql.port", "DOGS_DATABASE_MYSQL_PORT", validateEnvPort},
		{"database.mysql.username", "DOGS_DATABASE_MYSQL_USERNAME", nil},
		{"database.mysql.password", "DOGS_DATABASE_MYSQL_PASSWORD", nil},
		{"database.mysql.database", "DOGS_DATABASE_MYSQL_DATABASE", nil},

		{"images.dir", "DOGS_IMAGES_DIR", nil},
		{"images.workers", "DOGS_IMAGES_WORKERS", validateEnvPositiveInt},

		{"server.listen", "DOGS_SERVER_LISTEN", nil},
		{"telemetry.enabled", "DOGS_TELEMETRY_ENABLED", validateEnvBool},
		{"telemetry.dsn", "DOGS_TELEMETRY_DSN", nil},
	}
}

// bindEnvVars binds every known variable and reports all invalid values at once
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value %q: %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	_, err := strconv.ParseBool(value)
	return err
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	if d < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port out of range")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return err
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1")
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables() error {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return bindEnvVars()
}
