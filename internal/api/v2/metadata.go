// internal/api/v2/metadata.go
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// initMetadataRoutes registers the reference vocabulary endpoints.
func (c *Controller) initMetadataRoutes() {
	c.Group.GET("/pathologies", c.GetPathologies)
	c.Group.GET("/modelversions", c.GetModelVersions)
}

// initMetricsRoutes exposes the Prometheus registry.
func (c *Controller) initMetricsRoutes() {
	if c.metrics == nil {
		return
	}
	handler := promhttp.HandlerFor(c.metrics.Registry(), promhttp.HandlerOpts{})
	c.Group.GET("/metrics", echo.WrapHandler(handler))
}

// GetPathologies returns the finding class vocabulary.
func (c *Controller) GetPathologies(ctx echo.Context) error {
	rows, err := c.DS.GetPathologies()
	if err != nil {
		return c.mapError(ctx, err, "Failed to get pathologies")
	}
	return ctx.JSON(http.StatusOK, rows)
}

// GetModelVersions returns the known model versions, oldest first.
func (c *Controller) GetModelVersions(ctx echo.Context) error {
	rows, err := c.DS.GetModelVersions()
	if err != nil {
		return c.mapError(ctx, err, "Failed to get model versions")
	}
	return ctx.JSON(http.StatusOK, rows)
}
