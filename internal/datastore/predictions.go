package datastore

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/radgrid/radreview-go/internal/errors"
)

// ReplacePredictions atomically replaces the prediction set for one
// (image, model version) pair. The composite unique index on predicted
// labels makes duplicates impossible; the delete-then-insert inside a single
// transaction is what makes "the latest call's values win" hold even under
// concurrent re-inference.
func (ds *DataStore) ReplacePredictions(imageID, modelVersionID uint, predictions []PredictedLabel) error {
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("image_id = ? AND model_version_id = ?", imageID, modelVersionID).
			Delete(&PredictedLabel{}).Error; err != nil {
			return fmt.Errorf("deleting prior predictions: %w", err)
		}
		for i := range predictions {
			predictions[i].ImageID = imageID
			predictions[i].ModelVersionID = modelVersionID
		}
		if len(predictions) > 0 {
			if err := tx.Create(&predictions).Error; err != nil {
				return fmt.Errorf("saving predictions: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			ImageContext(imageID).
			Context("operation", "replace_predictions").
			Build()
	}
	return nil
}

// GetPredictions retrieves the prediction set for one (image, model version)
// pair.
func (ds *DataStore) GetPredictions(imageID, modelVersionID uint) ([]PredictedLabel, error) {
	var predictions []PredictedLabel
	err := ds.DB.Where("image_id = ? AND model_version_id = ?", imageID, modelVersionID).
		Order("pathology_id").
		Find(&predictions).Error
	if err != nil {
		return nil, fmt.Errorf("getting predictions for image %d: %w", imageID, err)
	}
	return predictions, nil
}

// SaveGroundTruth records the reference label set of a seeded image. Inserts
// are idempotent per (image, pathology).
func (ds *DataStore) SaveGroundTruth(imageID uint, pathologyIDs []uint) error {
	return ds.DB.Transaction(func(tx *gorm.DB) error {
		for _, pid := range pathologyIDs {
			row := ImageGroundTruth{ImageID: imageID, PathologyID: pid}
			err := tx.Where("image_id = ? AND pathology_id = ?", imageID, pid).
				FirstOrCreate(&row).Error
			if err != nil {
				return fmt.Errorf("saving ground truth for image %d: %w", imageID, err)
			}
		}
		return nil
	})
}

// GetGroundTruth retrieves the reference label rows of an image.
func (ds *DataStore) GetGroundTruth(imageID uint) ([]ImageGroundTruth, error) {
	var rows []ImageGroundTruth
	if err := ds.DB.Where("image_id = ?", imageID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("getting ground truth for image %d: %w", imageID, err)
	}
	return rows, nil
}
