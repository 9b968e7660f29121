package datastore

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/radgrid/radreview-go/internal/errors"
)

// UpsertDoctorLabels writes a reviewer's labels and marks the image reviewed
// in the same transaction. The upsert is keyed on the composite unique index
// (image, model version, pathology, reviewer): a reviewer revising their own
// label updates the existing row, while labels from different reviewers
// never conflict. Because the reviewed_at timestamp is only ever written
// here, "reviewed_at set iff at least one doctor label exists" holds by
// construction.
func (ds *DataStore) UpsertDoctorLabels(imageID uint, labels []DoctorLabel) error {
	if len(labels) == 0 {
		return errors.Newf("no labels supplied for image %d", imageID).
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}

	now := time.Now()
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		for i := range labels {
			labels[i].ImageID = imageID
			labels[i].LabeledAt = now
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "image_id"},
				{Name: "model_version_id"},
				{Name: "pathology_id"},
				{Name: "labeled_by"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"present", "comment", "labeled_at"}),
		}).Create(&labels).Error
		if err != nil {
			return fmt.Errorf("upserting doctor labels: %w", err)
		}

		// Monotonic transition: pending -> completed, or refresh of the
		// reviewed timestamp on a later edit. Never cleared.
		if err := tx.Model(&Image{}).Where("id = ?", imageID).
			Update("reviewed_at", now).Error; err != nil {
			return fmt.Errorf("marking image reviewed: %w", err)
		}
		return nil
	})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			ImageContext(imageID).
			Context("operation", "upsert_doctor_labels").
			Build()
	}
	return nil
}

// GetDoctorLabels retrieves all reviewer labels for one (image, model
// version) pair, most recent first so callers applying a last-writer-wins
// display policy can take the first row per pathology.
func (ds *DataStore) GetDoctorLabels(imageID, modelVersionID uint) ([]DoctorLabel, error) {
	var labels []DoctorLabel
	err := ds.DB.Where("image_id = ? AND model_version_id = ?", imageID, modelVersionID).
		Order("labeled_at DESC, id DESC").
		Find(&labels).Error
	if err != nil {
		return nil, fmt.Errorf("getting doctor labels for image %d: %w", imageID, err)
	}
	return labels, nil
}
