// Package telemetry wires optional Sentry error reporting into the errors
// package. Reporting is opt-in and disabled by default; when disabled the
// errors package skips all reporting work.
package telemetry

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/radgrid/radreview-go/internal/errors"
)

// Settings controls telemetry behaviour. Kept separate from conf to avoid
// an import cycle with the errors package consumers.
type Settings struct {
	Enabled bool
	DSN     string
	Debug   bool
}

var enabled bool

// Init configures Sentry and registers the error reporter. A missing DSN
// with telemetry enabled is a configuration error.
func Init(settings *Settings, version string) error {
	if settings == nil || !settings.Enabled {
		errors.SetTelemetryReporter(nil)
		return nil
	}
	if settings.DSN == "" {
		return errors.Newf("telemetry enabled but no DSN configured").
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.DSN,
		Debug:            settings.Debug,
		Release:          version,
		AttachStacktrace: true,
	})
	if err != nil {
		return fmt.Errorf("initializing sentry: %w", err)
	}

	enabled = true
	errors.SetTelemetryReporter(report)
	slog.Info("telemetry enabled")
	return nil
}

// report forwards an enhanced error to Sentry. Only the component, category
// and non-identifying context keys are attached; payload data never leaves
// the process.
func report(ee *errors.EnhancedError) {
	if !enabled {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.GetComponent())
		scope.SetTag("category", ee.GetCategory())
		if ee.Priority != "" {
			scope.SetTag("priority", ee.Priority)
		}
		for k, v := range ee.GetContext() {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(ee.Err)
	})
}

// Flush drains pending events before shutdown.
func Flush(timeout time.Duration) {
	if enabled {
		sentry.Flush(timeout)
	}
}
