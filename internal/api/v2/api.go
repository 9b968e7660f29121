// internal/api/v2/api.go
package api

import (
	"crypto/rand"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"

	"github.com/radgrid/radreview-go/internal/conf"
	"github.com/radgrid/radreview-go/internal/datastore"
	"github.com/radgrid/radreview-go/internal/errors"
	"github.com/radgrid/radreview-go/internal/ingest"
	"github.com/radgrid/radreview-go/internal/logging"
	"github.com/radgrid/radreview-go/internal/observability"
	"github.com/radgrid/radreview-go/internal/review"
)

// worklistCacheKey caches the patient worklist aggregation between requests.
const worklistCacheKey = "worklist"

// Controller manages the API routes and handlers
type Controller struct {
	Echo       *echo.Echo
	Group      *echo.Group
	DS         datastore.Interface
	Settings   *conf.Settings
	Pipeline   *ingest.Pipeline
	Reconciler *review.Reconciler

	logger         *log.Logger
	worklistCache  *cache.Cache // short-lived cache for the worklist aggregation
	startTime      *time.Time
	apiLogger      *slog.Logger   // structured logger for API operations
	apiLevelVar    *slog.LevelVar // dynamic level control
	apiLoggerClose func() error
	metrics        *observability.Metrics
}

// New creates a new API controller, returning an error if initialization fails.
func New(e *echo.Echo, ds datastore.Interface, settings *conf.Settings,
	pipeline *ingest.Pipeline, reconciler *review.Reconciler,
	logger *log.Logger, metrics *observability.Metrics) (*Controller, error) {
	return NewWithOptions(e, ds, settings, pipeline, reconciler, logger, metrics, true)
}

// NewWithOptions creates a new API controller with optional route initialization.
// Set initializeRoutes to false in tests that register routes selectively.
func NewWithOptions(e *echo.Echo, ds datastore.Interface, settings *conf.Settings,
	pipeline *ingest.Pipeline, reconciler *review.Reconciler,
	logger *log.Logger, metrics *observability.Metrics, initializeRoutes bool) (*Controller, error) {

	if logger == nil {
		logger = log.Default()
	}

	c := &Controller{
		Echo:          e,
		DS:            ds,
		Settings:      settings,
		Pipeline:      pipeline,
		Reconciler:    reconciler,
		logger:        logger,
		worklistCache: cache.New(10*time.Second, time.Minute),
		metrics:       metrics,
	}

	// Initialize structured logger for API requests
	apiLogPath := "logs/web.log"
	c.apiLevelVar = new(slog.LevelVar)
	c.apiLevelVar.Set(slog.LevelInfo)

	apiLogger, closeFunc, err := logging.NewFileLogger(apiLogPath, "api", c.apiLevelVar)
	if err != nil {
		logger.Printf("Warning: Failed to initialize API structured logger: %v", err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: c.apiLevelVar})
		c.apiLogger = slog.New(fbHandler).With("service", "api")
		c.apiLoggerClose = func() error { return nil }
	} else {
		c.apiLogger = apiLogger
		c.apiLoggerClose = closeFunc
		logger.Printf("API structured logging initialized to %s", apiLogPath)
	}

	// Create v2 API group
	c.Group = e.Group("/api/v2")

	c.Group.Use(middleware.Recover())
	c.Group.Use(middleware.CORS())
	c.Group.Use(middleware.BodyLimit("32M")) // uploads carry raw image bytes
	c.Group.Use(c.LoggingMiddleware())

	now := time.Now()
	c.startTime = &now

	if initializeRoutes {
		c.initRoutes()
	}

	return c, nil
}

// LoggingMiddleware creates a middleware function that logs API requests
func (c *Controller) LoggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()

			err := next(ctx)

			if c.apiLogger == nil {
				return err
			}

			req := ctx.Request()
			res := ctx.Response()

			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.String("query", req.URL.RawQuery),
				slog.Int("status", res.Status),
				slog.String("ip", ctx.RealIP()),
				slog.String("user_agent", req.UserAgent()),
				slog.Int64("latency_ms", time.Since(start).Milliseconds()),
			}
			if err != nil {
				attrs = append(attrs, slog.Any("error", err))
			}

			c.apiLogger.LogAttrs(ctx.Request().Context(), slog.LevelInfo, "API Request", attrs...)

			return err
		}
	}
}

// initRoutes registers all API endpoints
func (c *Controller) initRoutes() {
	// Health check endpoint - publicly accessible
	c.Group.GET("/health", c.HealthCheck)

	routeInitializers := []struct {
		name string
		fn   func()
	}{
		{"patient routes", c.initPatientRoutes},
		{"image routes", c.initImageRoutes},
		{"review routes", c.initReviewRoutes},
		{"metadata routes", c.initMetadataRoutes},
		{"metrics routes", c.initMetricsRoutes},
	}

	for _, initializer := range routeInitializers {
		c.Debug("Initializing %s...", initializer.name)
		initializer.fn()
	}
}

// HealthCheck handles the API health check endpoint
func (c *Controller) HealthCheck(ctx echo.Context) error {
	response := map[string]any{
		"status":    "healthy",
		"version":   c.Settings.Version,
		"timestamp": time.Now().Format(time.RFC3339),
	}

	if c.Settings.WebServer.Debug {
		response["environment"] = "development"
	} else {
		response["environment"] = "production"
	}

	dbStatus := "connected"
	var dbError string
	if err := c.DS.Ping(); err != nil {
		dbStatus = "disconnected"
		dbError = err.Error()
		response["status"] = "degraded"
	}
	response["database_status"] = dbStatus
	if dbError != "" {
		response["database_error"] = dbError
	}

	if c.startTime != nil {
		uptime := time.Since(*c.startTime)
		response["uptime"] = uptime.String()
		response["uptime_seconds"] = uptime.Seconds()
	}

	return ctx.JSON(http.StatusOK, response)
}

// Shutdown performs cleanup of all resources used by the API controller
func (c *Controller) Shutdown() {
	if c.apiLoggerClose != nil {
		if err := c.apiLoggerClose(); err != nil {
			c.logger.Printf("Error closing API log file: %v", err)
		}
	}

	if c.worklistCache != nil {
		c.worklistCache.Flush()
	}

	c.Debug("API Controller shutting down")
}

// ErrorResponse is the error body returned by all handlers.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"` // Unique identifier for tracking this error
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	correlationID := generateCorrelationID()

	var errorStr string
	if err != nil {
		errorStr = err.Error()
	} else {
		errorStr = message
	}

	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: correlationID,
	}
}

// generateCorrelationID creates a unique identifier for error tracking using
// cryptographic randomness.
func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}

	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError constructs and returns an appropriate error response
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	errorResp := NewErrorResponse(err, message, code)

	ip := ctx.RealIP()

	c.logger.Printf("API Error [%s] from %s: %s: %v", errorResp.CorrelationID, ip, message, err)

	if c.apiLogger != nil {
		var errorStr string
		if err != nil {
			errorStr = err.Error()
		} else {
			errorStr = message
		}

		c.apiLogger.Error("API Error",
			"correlation_id", errorResp.CorrelationID,
			"message", message,
			"error", errorStr,
			"code", code,
			"path", ctx.Request().URL.Path,
			"method", ctx.Request().Method,
			"ip", ip,
		)
	}

	return ctx.JSON(code, errorResp)
}

// mapError translates categorized errors into the HTTP status a client
// should see. Uncategorized errors surface as 500.
func (c *Controller) mapError(ctx echo.Context, err error, message string) error {
	code := http.StatusInternalServerError
	switch {
	case errors.HasCategory(err, errors.CategoryValidation),
		errors.HasCategory(err, errors.CategoryImageDecode):
		code = http.StatusBadRequest
	case errors.HasCategory(err, errors.CategoryNotFound):
		code = http.StatusNotFound
	case errors.HasCategory(err, errors.CategoryConflict):
		code = http.StatusConflict
	case errors.HasCategory(err, errors.CategoryInference),
		errors.HasCategory(err, errors.CategoryTimeout):
		code = http.StatusBadGateway
	}
	return c.HandleError(ctx, err, message, code)
}

// Debug logs debug messages when debug mode is enabled
func (c *Controller) Debug(format string, v ...any) {
	if c.Settings.WebServer.Debug {
		msg := fmt.Sprintf(format, v...)
		c.logger.Printf("[DEBUG] %s", msg)

		if c.apiLogger != nil {
			c.apiLogger.Debug(msg)
		}
	}
}

// logAPIRequest is a helper to log API requests with common context fields.
func (c *Controller) logAPIRequest(ctx echo.Context, level slog.Level, msg string, args ...any) {
	if c.apiLogger == nil {
		return
	}

	baseAttrs := []any{
		"path", ctx.Request().URL.Path,
		"ip", ctx.RealIP(),
	}
	baseAttrs = append(baseAttrs, args...)

	switch level {
	case slog.LevelDebug:
		c.apiLogger.Debug(msg, baseAttrs...)
	case slog.LevelInfo:
		c.apiLogger.Info(msg, baseAttrs...)
	case slog.LevelWarn:
		c.apiLogger.Warn(msg, baseAttrs...)
	case slog.LevelError:
		c.apiLogger.Error(msg, baseAttrs...)
	default:
		c.apiLogger.Log(ctx.Request().Context(), level, msg, baseAttrs...)
	}
}
