package inference

import (
	"context"
	"hash/fnv"
	"math/rand"

	"github.com/radgrid/radreview-go/internal/pathology"
)

// MockGateway is a deterministic stand-in for the model server. It derives
// per-class probabilities from a hash of the image bytes, so the same image
// always yields the same prediction set. Used in tests, seeding and
// deployments without a model server.
type MockGateway struct{}

// NewMockGateway creates a new mock gateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// Predict returns one prediction per vocabulary class. The binary
// ANY_PATHOLOGY probability is the maximum finding probability, and the
// "No Finding" probability is its complement, mirroring how the dual-model
// setup reports a summary decision alongside the per-finding ones.
func (m *MockGateway) Predict(ctx context.Context, imageData []byte, threshold float64) ([]Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := fnv.New64a()
	_, _ = h.Write(imageData)
	rng := rand.New(rand.NewSource(int64(h.Sum64()))) //nolint:gosec // deterministic mock, not crypto

	codes := pathology.MultiLabelCodes()
	predictions := make([]Prediction, 0, len(codes)+1)

	maxFinding := 0.0
	for _, code := range codes {
		if code == pathology.CodeNoFinding {
			continue
		}
		// Skew towards low probabilities; most findings are absent.
		p := rng.Float64() * rng.Float64()
		if p > maxFinding {
			maxFinding = p
		}
		predictions = append(predictions, Prediction{
			PathologyCode: code,
			Probability:   p,
			Decision:      p >= threshold,
		})
	}

	noFinding := 1 - maxFinding
	predictions = append(predictions, Prediction{
		PathologyCode: pathology.CodeNoFinding,
		Probability:   noFinding,
		Decision:      noFinding >= threshold,
	})
	predictions = append(predictions, Prediction{
		PathologyCode: pathology.CodeAnyPathology,
		Probability:   maxFinding,
		Decision:      maxFinding >= threshold,
	})

	return predictions, nil
}
