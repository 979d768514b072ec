package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)
	viper.SetDefault("data_dir", "")

	viper.SetDefault("api.base_url", "https://dog.ceo/api")
	viper.SetDefault("api.timeout", 15*time.Second)
	viper.SetDefault("api.user_agent", "") // dogs-go/<version>

	viper.SetDefault("cache.breeds_ttl", 24*time.Hour)
	viper.SetDefault("cache.images_ttl", 7*24*time.Hour)

	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.sqlite.path", "")
	viper.SetDefault("database.mysql.host", "localhost")
	viper.SetDefault("database.mysql.port", 3306)
	viper.SetDefault("database.mysql.username", "dogs")
	viper.SetDefault("database.mysql.password", "")
	viper.SetDefault("database.mysql.database", "dogs")

	viper.SetDefault("images.dir", "")
	viper.SetDefault("images.workers", 4)
	viper.SetDefault("images.queue_size", 256)
	viper.SetDefault("images.rate_limit", 5.0)
	viper.SetDefault("images.jpeg_quality", 80)
	viper.SetDefault("images.max_dimension", 1024)
	viper.SetDefault("images.failure_ttl", 10*time.Minute)

	viper.SetDefault("server.listen", ":8080")

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/dogs.log")
	viper.SetDefault("logging.file_output.level", "info")

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.dsn", "")
}
