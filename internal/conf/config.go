// Package conf defines the application settings and loads them from the
// configuration file, environment and command line flags via viper.
package conf

import (
	"embed"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

//go:embed config.yaml
var configFiles embed.FS

// MainSettings contains application-wide settings.
type MainSettings struct {
	Name string // node name reported in logs and API responses
	Log  struct {
		Path string // directory for per-service log files
	}
}

// InferenceSettings configures the inference gateway.
type InferenceSettings struct {
	Provider     string  // "mock" or "remote"
	Endpoint     string  // model server URL for the remote provider
	TimeoutSec   int     `mapstructure:"timeoutsec"` // per-call timeout in seconds
	Threshold    float64 // default probability threshold for positive decisions
	ModelVersion string  // name of the model version predictions are stored under
}

// ReviewSettings configures reviewer identity handling.
type ReviewSettings struct {
	DefaultReviewerEmail string `mapstructure:"defaultrevieweremail"` // used when a review request carries no reviewer
	DefaultReviewerName  string `mapstructure:"defaultreviewername"`
}

// SQLiteSettings contains settings for the SQLite database.
type SQLiteSettings struct {
	Enabled bool
	Path    string // path to the database file
}

// MySQLSettings contains settings for the MySQL database.
type MySQLSettings struct {
	Enabled  bool
	Username string
	Password string
	Database string
	Host     string
	Port     string
}

// OutputSettings selects and configures the backing store.
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// WebServerSettings contains settings for the HTTP API.
type WebServerSettings struct {
	Enabled bool
	Port    string
	Debug   bool
}

// TelemetrySettings configures optional Sentry error reporting.
type TelemetrySettings struct {
	Enabled bool
	DSN     string
	Debug   bool
}

// Settings is the root configuration structure.
type Settings struct {
	Debug     bool
	Main      MainSettings
	Inference InferenceSettings
	Review    ReviewSettings
	Output    OutputSettings
	WebServer WebServerSettings
	Telemetry TelemetrySettings
	Version   string `yaml:"-"` // build version, set at startup
}

// Load reads the configuration from disk (creating a default config file on
// first run) and unmarshals it into a Settings struct.
func Load() (*Settings, error) {
	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return err
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("radreview")
	viper.AutomaticEnv()

	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if stderrors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// createDefaultConfig writes the embedded default config file and re-reads it.
func createDefaultConfig(configPath string) error {
	defaultConfig, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded default config: %w", err)
	}

	if err := os.MkdirAll(configPath, 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	target := filepath.Join(configPath, "config.yaml")
	if err := os.WriteFile(target, defaultConfig, 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	return viper.ReadInConfig()
}

// GetDefaultConfigPaths returns the list of directories searched for the
// config file, in priority order.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error resolving user home directory: %w", err)
	}
	return []string{
		filepath.Join(homeDir, ".config", "radreview"),
		".",
	}, nil
}

// ValidateSettings checks settings combinations that cannot be expressed as
// simple defaults.
func ValidateSettings(settings *Settings) error {
	if !settings.Output.SQLite.Enabled && !settings.Output.MySQL.Enabled {
		return fmt.Errorf("no database output enabled, enable either sqlite or mysql")
	}
	if settings.Output.SQLite.Enabled && settings.Output.MySQL.Enabled {
		return fmt.Errorf("both sqlite and mysql outputs enabled, pick one")
	}
	if settings.Inference.Threshold < 0 || settings.Inference.Threshold > 1 {
		return fmt.Errorf("inference threshold %f out of range [0,1]", settings.Inference.Threshold)
	}
	switch settings.Inference.Provider {
	case "mock":
	case "remote":
		if settings.Inference.Endpoint == "" {
			return fmt.Errorf("inference provider 'remote' requires an endpoint")
		}
	default:
		return fmt.Errorf("unknown inference provider %q", settings.Inference.Provider)
	}
	return nil
}
