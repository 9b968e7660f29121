// Package ingest orchestrates artifact creation, inference invocation and
// prediction persistence as one failure-atomic unit.
package ingest

import (
	"context"
	"io"
	"log"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/radgrid/radreview-go/internal/conf"
	"github.com/radgrid/radreview-go/internal/datastore"
	"github.com/radgrid/radreview-go/internal/errors"
	"github.com/radgrid/radreview-go/internal/imaging"
	"github.com/radgrid/radreview-go/internal/inference"
	"github.com/radgrid/radreview-go/internal/logging"
	"github.com/radgrid/radreview-go/internal/observability"
)

var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "ingest.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "ingest", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize ingest file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "ingest")
		closeLogger = func() error { return nil }
	}
}

// Request describes one artifact to ingest. Either ExamID references an
// existing exam, or PatientID plus the exam fields describe a new exam
// created in the same unit.
type Request struct {
	ExamID    uint // existing exam; zero means create a new one
	PatientID uint // required when ExamID is zero
	ExamTime  time.Time
	Reason    string
	CreatedBy *uint

	Filename     string
	Data         []byte
	MimeType     string // derived from filename when empty
	ViewPosition string

	Threshold    *float64 // nil means the configured default; zero is a real threshold
	ModelVersion string   // empty means the configured default
}

// Result is the created artifact together with its full prediction set.
type Result struct {
	Exam         datastore.Exam
	Image        datastore.Image
	ModelVersion datastore.ModelVersion
	Predictions  []datastore.PredictedLabel
}

// Pipeline runs the ingestion unit: validate, infer, persist.
type Pipeline struct {
	ds       datastore.Interface
	gateway  inference.Gateway
	settings *conf.Settings
	metrics  *observability.Metrics
}

// New creates an ingestion pipeline. metrics may be nil.
func New(ds datastore.Interface, gateway inference.Gateway, settings *conf.Settings, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{ds: ds, gateway: gateway, settings: settings, metrics: metrics}
}

// Ingest validates the payload, runs inference and persists the exam (when
// new), the image and its prediction set in a single transaction. On any
// failure the whole unit rolls back: a reader never observes an image
// without predictions, and after a gateway failure no image row exists at
// all — the caller retries the whole ingestion.
func (p *Pipeline) Ingest(ctx context.Context, req *Request) (*Result, error) {
	mimeType := req.MimeType
	if mimeType == "" {
		mimeType = imaging.MediaTypeForFilename(req.Filename)
	}
	if err := imaging.Validate(req.Data, mimeType); err != nil {
		p.countIngestion("rejected")
		return nil, err
	}

	exam, err := p.resolveExam(req)
	if err != nil {
		p.countIngestion("rejected")
		return nil, err
	}

	modelVersionName := req.ModelVersion
	if modelVersionName == "" {
		modelVersionName = p.settings.Inference.ModelVersion
	}
	modelVersion, err := p.ds.GetOrCreateModelVersion(modelVersionName, "")
	if err != nil {
		p.countIngestion("failed")
		return nil, err
	}

	predictions, err := p.predict(ctx, req.Data, p.effectiveThreshold(req.Threshold), modelVersionName)
	if err != nil {
		p.countIngestion("failed")
		return nil, err
	}

	rows, err := p.predictionRows(predictions, modelVersion.ID)
	if err != nil {
		p.countIngestion("failed")
		return nil, err
	}

	image := datastore.Image{
		Filename:     req.Filename,
		StorageName:  uuid.NewString() + path.Ext(req.Filename),
		ImageData:    req.Data,
		MimeType:     mimeType,
		ViewPosition: req.ViewPosition,
		ReviewedAt:   nil, // every new artifact awaits human review, even an all-negative one
	}

	if err := p.ds.SaveIngestion(&exam, &image, rows); err != nil {
		p.countIngestion("failed")
		return nil, err
	}

	p.countIngestion("ok")
	logger.Info("Ingested image",
		"image_id", image.ID,
		"exam_id", exam.ID,
		"model_version", modelVersionName,
		"predictions", len(rows))

	return &Result{
		Exam:         exam,
		Image:        image,
		ModelVersion: modelVersion,
		Predictions:  rows,
	}, nil
}

// Reinfer re-runs inference for a stored image and atomically replaces the
// prediction set for the (image, model version) pair. The review state is
// left untouched; a completed review stays completed.
func (p *Pipeline) Reinfer(ctx context.Context, imageID uint, threshold *float64, modelVersionName string) (*Result, error) {
	image, err := p.ds.GetImage(imageID)
	if err != nil {
		return nil, err
	}

	if modelVersionName == "" {
		modelVersionName = p.settings.Inference.ModelVersion
	}
	modelVersion, err := p.ds.GetOrCreateModelVersion(modelVersionName, "")
	if err != nil {
		return nil, err
	}

	predictions, err := p.predict(ctx, image.ImageData, p.effectiveThreshold(threshold), modelVersionName)
	if err != nil {
		return nil, err
	}
	rows, err := p.predictionRows(predictions, modelVersion.ID)
	if err != nil {
		return nil, err
	}

	if err := p.ds.ReplacePredictions(imageID, modelVersion.ID, rows); err != nil {
		return nil, err
	}

	logger.Info("Re-ran inference",
		"image_id", imageID,
		"model_version", modelVersionName,
		"predictions", len(rows))

	image.ImageData = nil
	return &Result{
		Exam:         datastore.Exam{ID: image.ExamID},
		Image:        image,
		ModelVersion: modelVersion,
		Predictions:  rows,
	}, nil
}

// Preview validates a payload and runs inference without persisting
// anything: no exam, image or prediction rows are written. The class codes
// come straight from the gateway, so no vocabulary lookup happens either.
func (p *Pipeline) Preview(ctx context.Context, data []byte, mimeType string, threshold *float64) ([]inference.Prediction, error) {
	if mimeType == "" {
		mimeType = imaging.MediaTypePNG
	}
	if err := imaging.Validate(data, mimeType); err != nil {
		return nil, err
	}
	return p.predict(ctx, data, p.effectiveThreshold(threshold), p.settings.Inference.ModelVersion)
}

// effectiveThreshold resolves an optional caller threshold against the
// configured default. A present zero is honored as a real threshold.
func (p *Pipeline) effectiveThreshold(threshold *float64) float64 {
	if threshold != nil {
		return *threshold
	}
	return p.settings.Inference.Threshold
}

// resolveExam loads the referenced exam or prepares a new unsaved one.
func (p *Pipeline) resolveExam(req *Request) (datastore.Exam, error) {
	if req.ExamID != 0 {
		return p.ds.GetExam(req.ExamID)
	}
	if req.PatientID == 0 {
		return datastore.Exam{}, errors.Newf("ingestion requires an exam id or a patient id").
			Component("ingest").
			Category(errors.CategoryValidation).
			Build()
	}
	if _, err := p.ds.GetPatient(req.PatientID); err != nil {
		return datastore.Exam{}, err
	}
	examTime := req.ExamTime
	if examTime.IsZero() {
		examTime = time.Now()
	}
	return datastore.Exam{
		PatientID: req.PatientID,
		ExamTime:  examTime,
		Reason:    req.Reason,
		CreatedBy: req.CreatedBy,
	}, nil
}

// predict calls the gateway under the configured timeout and normalizes
// failures into retryable inference errors.
func (p *Pipeline) predict(ctx context.Context, data []byte, threshold float64, modelVersionName string) ([]inference.Prediction, error) {
	timeout := time.Duration(p.settings.Inference.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = inference.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	predictions, err := p.gateway.Predict(ctx, data, threshold)
	elapsed := time.Since(start)
	if p.metrics != nil {
		p.metrics.InferenceDuration.Observe(elapsed.Seconds())
	}
	if err != nil {
		category := errors.CategoryInference
		if errors.Is(err, context.DeadlineExceeded) {
			category = errors.CategoryTimeout
		}
		return nil, errors.Newf("inference failed: %v", err).
			Component("ingest").
			Category(category).
			ModelContext(modelVersionName).
			Timing("predict", elapsed).
			Build()
	}
	return predictions, nil
}

// predictionRows resolves gateway predictions to datastore rows, rejecting
// any class code outside the vocabulary before a write happens.
func (p *Pipeline) predictionRows(predictions []inference.Prediction, modelVersionID uint) ([]datastore.PredictedLabel, error) {
	rows := make([]datastore.PredictedLabel, 0, len(predictions))
	for i := range predictions {
		pathologyRow, err := p.ds.GetPathologyByCode(predictions[i].PathologyCode)
		if err != nil {
			return nil, err
		}
		rows = append(rows, datastore.PredictedLabel{
			ModelVersionID: modelVersionID,
			PathologyID:    pathologyRow.ID,
			Probability:    predictions[i].Probability,
			Decision:       predictions[i].Decision,
		})
	}
	return rows, nil
}

func (p *Pipeline) countIngestion(status string) {
	if p.metrics != nil {
		p.metrics.IngestionsTotal.WithLabelValues(status).Inc()
	}
}
