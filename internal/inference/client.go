package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/radgrid/radreview-go/internal/errors"
	"github.com/radgrid/radreview-go/internal/logging"
)

// Package-level logger specific to the inference service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "inference.log")
	serviceLevelVar.Set(slog.LevelDebug)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "inference", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize inference file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "inference")
		closeLogger = func() error { return nil }
	}
}

// ClientConfig configures the remote model-server client.
type ClientConfig struct {
	Endpoint string        // base URL of the model server
	Timeout  time.Duration // per-call timeout
}

// DefaultTimeout is used when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Client is a Gateway backed by an HTTP model server exposing a /predict
// endpoint.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
}

// NewClient creates a new model-server client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.Endpoint == "" {
		return nil, errors.Newf("model server endpoint is required").
			Category(errors.CategoryConfiguration).
			Component("inference").
			Build()
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}, nil
}

// predictRequest is the wire format sent to the model server.
type predictRequest struct {
	Image     string  `json:"image"` // base64-encoded image bytes
	Threshold float64 `json:"threshold"`
}

// predictResponse is the wire format returned by the model server.
type predictResponse struct {
	Predictions []Prediction `json:"predictions"`
}

// Predict sends the image to the model server and returns its per-class
// predictions. Timeouts and server errors are surfaced as retryable
// inference failures; the caller retries the whole ingestion unit.
func (c *Client) Predict(ctx context.Context, imageData []byte, threshold float64) ([]Prediction, error) {
	start := time.Now()

	payload, err := json.Marshal(predictRequest{
		Image:     base64.StdEncoding.EncodeToString(imageData),
		Threshold: threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding predict request: %w", err)
	}

	url := c.config.Endpoint + "/predict"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		category := errors.CategoryInference
		if ctx.Err() != nil {
			category = errors.CategoryTimeout
		}
		return nil, errors.Newf("model server request failed: %v", err).
			Component("inference").
			Category(category).
			Context("endpoint", c.config.Endpoint).
			Timing("predict", time.Since(start)).
			Build()
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warn("Failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Newf("model server returned status %d: %s", resp.StatusCode, string(body)).
			Component("inference").
			Category(errors.CategoryInference).
			Context("endpoint", c.config.Endpoint).
			Context("status_code", resp.StatusCode).
			Build()
	}

	var decoded predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.Newf("decoding model server response: %v", err).
			Component("inference").
			Category(errors.CategoryInference).
			Context("endpoint", c.config.Endpoint).
			Build()
	}

	logger.Debug("Prediction completed",
		"classes", len(decoded.Predictions),
		"threshold", threshold,
		"elapsed", time.Since(start))

	return decoded.Predictions, nil
}
