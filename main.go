package main

import (
	"fmt"
	"os"
	"time"

	"github.com/radgrid/radreview-go/cmd"
	"github.com/radgrid/radreview-go/internal/conf"
	"github.com/radgrid/radreview-go/internal/logging"
	"github.com/radgrid/radreview-go/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	settings.Version = version

	if settings.Telemetry.Enabled {
		telemetrySettings := &telemetry.Settings{
			Enabled: settings.Telemetry.Enabled,
			DSN:     settings.Telemetry.DSN,
			Debug:   settings.Telemetry.Debug,
		}
		if err := telemetry.Init(telemetrySettings, version); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: telemetry initialization failed: %v\n", err)
		}
		defer telemetry.Flush(2 * time.Second)
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
