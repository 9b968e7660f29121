// Package inference defines the gateway contract to the pathology detection
// model and its implementations. The model itself is an external capability:
// given raw image bytes and a decision threshold it returns one probability
// per finding class. Everything else about the model is out of scope.
package inference

import (
	"context"
	"fmt"
	"time"

	"github.com/radgrid/radreview-go/internal/conf"
)

// Prediction is one (finding class, probability, thresholded decision)
// tuple returned by the model.
type Prediction struct {
	PathologyCode string  `json:"pathology"`
	Probability   float64 `json:"probability"`
	Decision      bool    `json:"predicted_label"`
}

// Gateway is the inference capability consumed by the ingestion pipeline.
// Predict is called at most once per ingestion; only an explicit re-run
// invokes it again for the same image.
type Gateway interface {
	Predict(ctx context.Context, imageData []byte, threshold float64) ([]Prediction, error)
}

// NewGateway builds the gateway selected by the inference settings.
func NewGateway(settings *conf.Settings) (Gateway, error) {
	switch settings.Inference.Provider {
	case "mock":
		return NewMockGateway(), nil
	case "remote":
		return NewClient(ClientConfig{
			Endpoint: settings.Inference.Endpoint,
			Timeout:  time.Duration(settings.Inference.TimeoutSec) * time.Second,
		})
	default:
		return nil, fmt.Errorf("unknown inference provider %q", settings.Inference.Provider)
	}
}
