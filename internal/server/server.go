// Package server assembles the datastore, inference gateway, pipeline and
// HTTP API into a running service.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/radgrid/radreview-go/internal/conf"
	"github.com/radgrid/radreview-go/internal/datastore"
	"github.com/radgrid/radreview-go/internal/inference"
	"github.com/radgrid/radreview-go/internal/ingest"
	"github.com/radgrid/radreview-go/internal/observability"
	"github.com/radgrid/radreview-go/internal/review"

	api "github.com/radgrid/radreview-go/internal/api/v2"
)

// shutdownTimeout bounds how long in-flight requests may run after SIGTERM.
const shutdownTimeout = 10 * time.Second

// Run opens the store, wires the pipeline and serves the API until the
// process receives an interrupt.
func Run(settings *conf.Settings) error {
	ds := datastore.New(settings)
	if ds == nil {
		return fmt.Errorf("no database output enabled in configuration")
	}
	if err := ds.Open(); err != nil {
		return fmt.Errorf("opening datastore: %w", err)
	}
	defer func() {
		if err := ds.Close(); err != nil {
			log.Printf("Error closing datastore: %v", err)
		}
	}()

	gateway, err := inference.NewGateway(settings)
	if err != nil {
		return fmt.Errorf("initializing inference gateway: %w", err)
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}

	pipeline := ingest.New(ds, gateway, settings, metrics)
	reconciler := review.NewReconciler(ds)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	controller, err := api.New(e, ds, settings, pipeline, reconciler, log.Default(), metrics)
	if err != nil {
		return fmt.Errorf("initializing API controller: %w", err)
	}
	defer controller.Shutdown()

	errChan := make(chan error, 1)
	go func() {
		addr := ":" + settings.WebServer.Port
		log.Printf("%s listening on %s", settings.Main.Name, addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("http server: %w", err)
	case sig := <-quit:
		log.Printf("Received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
