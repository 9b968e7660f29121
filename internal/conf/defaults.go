package conf

import (
	"github.com/spf13/viper"
)

// setDefaultConfig registers the default value for every setting with viper.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	// Main settings
	viper.SetDefault("main.name", "radreview")
	viper.SetDefault("main.log.path", "logs")

	// Inference settings
	viper.SetDefault("inference.provider", "mock")
	viper.SetDefault("inference.endpoint", "")
	viper.SetDefault("inference.timeoutsec", 30)
	viper.SetDefault("inference.threshold", 0.5)
	viper.SetDefault("inference.modelversion", "densenet121_v1")

	// Review settings
	viper.SetDefault("review.defaultrevieweremail", "doctor@example.com")
	viper.SetDefault("review.defaultreviewername", "Dr. Demo")

	// Database settings
	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "radreview.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "radreview")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.database", "radreview")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	// Web server settings
	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.debug", false)

	// Telemetry settings
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.dsn", "")
	viper.SetDefault("telemetry.debug", false)
}
