package review

import (
	"io"
	"log"
	"log/slog"
	"path/filepath"

	"github.com/radgrid/radreview-go/internal/datastore"
	"github.com/radgrid/radreview-go/internal/errors"
	"github.com/radgrid/radreview-go/internal/logging"
	"github.com/radgrid/radreview-go/internal/pathology"
)

// ConfirmComment is the system-supplied comment attached by quick-confirm.
const ConfirmComment = "confirmed"

var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar)
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "review.log")
	serviceLevelVar.Set(slog.LevelInfo)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "review", serviceLevelVar)
	if err != nil {
		log.Printf("Failed to initialize review file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "review")
		closeLogger = func() error { return nil }
	}
}

// Reconciler applies reviewer judgments to the datastore. Both operations
// are idempotent per (image, reviewer): repeating a request upserts the same
// rows and leaves the image completed.
type Reconciler struct {
	ds datastore.Interface
}

// NewReconciler creates a reconciler on top of the datastore.
func NewReconciler(ds datastore.Interface) *Reconciler {
	return &Reconciler{ds: ds}
}

// QuickConfirm copies every machine prediction's thresholded decision for
// the image and model version verbatim into doctor labels for the reviewer
// and marks the image completed. Even an all-negative prediction set needs
// this explicit confirmation; ingestion never completes a review by itself.
func (r *Reconciler) QuickConfirm(imageID, modelVersionID, reviewerID uint) ([]datastore.DoctorLabel, error) {
	if _, err := r.ds.GetImageMeta(imageID); err != nil {
		return nil, err
	}

	predictions, err := r.ds.GetPredictions(imageID, modelVersionID)
	if err != nil {
		return nil, err
	}
	if len(predictions) == 0 {
		return nil, errors.Newf("image %d has no predictions under model version %d to confirm", imageID, modelVersionID).
			Component("review").
			Category(errors.CategoryValidation).
			ImageContext(imageID).
			Build()
	}

	labels := make([]datastore.DoctorLabel, 0, len(predictions))
	for i := range predictions {
		labels = append(labels, datastore.DoctorLabel{
			ModelVersionID: modelVersionID,
			PathologyID:    predictions[i].PathologyID,
			LabeledBy:      reviewerID,
			Present:        predictions[i].Decision,
			Comment:        ConfirmComment,
		})
	}

	if err := r.ds.UpsertDoctorLabels(imageID, labels); err != nil {
		return nil, err
	}

	logger.Info("Quick-confirmed image",
		"image_id", imageID,
		"model_version_id", modelVersionID,
		"reviewer_id", reviewerID,
		"labels", len(labels))

	return r.ds.GetDoctorLabels(imageID, modelVersionID)
}

// Apply upserts one doctor label per supplied pathology code and marks the
// image completed. The map may cover a subset or superset of the predicted
// classes; omitted classes keep their previously recorded labels. Unknown
// codes are rejected before anything is written.
func (r *Reconciler) Apply(imageID, modelVersionID, reviewerID uint, labels map[string]bool, comment string) ([]datastore.DoctorLabel, error) {
	if len(labels) == 0 {
		return nil, errors.Newf("no labels supplied").
			Component("review").
			Category(errors.CategoryValidation).
			ImageContext(imageID).
			Build()
	}

	if _, err := r.ds.GetImageMeta(imageID); err != nil {
		return nil, err
	}

	// Validate the whole map before the first write.
	for code := range labels {
		if !pathology.IsKnown(code) {
			return nil, errors.Newf("unknown pathology code %q", code).
				Component("review").
				Category(errors.CategoryValidation).
				Context("pathology_code", code).
				Build()
		}
	}

	rows := make([]datastore.DoctorLabel, 0, len(labels))
	for code, present := range labels {
		p, err := r.ds.GetPathologyByCode(code)
		if err != nil {
			return nil, err
		}
		rows = append(rows, datastore.DoctorLabel{
			ModelVersionID: modelVersionID,
			PathologyID:    p.ID,
			LabeledBy:      reviewerID,
			Present:        present,
			Comment:        comment,
		})
	}

	if err := r.ds.UpsertDoctorLabels(imageID, rows); err != nil {
		return nil, err
	}

	logger.Info("Applied reviewer labels",
		"image_id", imageID,
		"model_version_id", modelVersionID,
		"reviewer_id", reviewerID,
		"labels", len(rows))

	return r.ds.GetDoctorLabels(imageID, modelVersionID)
}
