package datastore

import (
	"fmt"
	"time"
)

// PatientSummary is one worklist row: a patient with their pending-review
// count and the time of their most recent image.
type PatientSummary struct {
	PatientID         uint       `gorm:"column:patient_id"`
	ExternalPatientID string     `gorm:"column:external_patient_id"`
	FirstName         string     `gorm:"column:first_name"`
	LastName          string     `gorm:"column:last_name"`
	BirthYear         int        `gorm:"column:birth_year"`
	Sex               string     `gorm:"column:sex"`
	PendingCount      int        `gorm:"column:pending_count"`
	LastImageAt       *time.Time `gorm:"column:last_image_at"`
}

// NeedsReview reports whether the patient has any image awaiting review.
func (s *PatientSummary) NeedsReview() bool {
	return s.PendingCount > 0
}

// PatientSummaries computes the triage worklist in a single aggregation:
// per patient, the count of images across all exams with no reviewed_at and
// the most recent image creation time. Ordering is a contract, not a
// default: patients needing review first (descending pending count), then
// fully reviewed patients, ties broken by most recent image time descending.
// NULL last_image_at sorts last under DESC on both SQLite and MySQL.
func (ds *DataStore) PatientSummaries() ([]PatientSummary, error) {
	var summaries []PatientSummary
	err := ds.DB.Table("patients").
		Select(`patients.id AS patient_id,
			patients.external_patient_id,
			patients.first_name,
			patients.last_name,
			patients.birth_year,
			patients.sex,
			COALESCE(SUM(CASE WHEN images.id IS NOT NULL AND images.reviewed_at IS NULL THEN 1 ELSE 0 END), 0) AS pending_count,
			MAX(images.created_at) AS last_image_at`).
		Joins("LEFT JOIN exams ON exams.patient_id = patients.id").
		Joins("LEFT JOIN images ON images.exam_id = exams.id").
		Group("patients.id, patients.external_patient_id, patients.first_name, patients.last_name, patients.birth_year, patients.sex").
		Order("CASE WHEN pending_count > 0 THEN 0 ELSE 1 END, pending_count DESC, last_image_at DESC").
		Scan(&summaries).Error
	if err != nil {
		return nil, fmt.Errorf("computing patient summaries: %w", err)
	}
	return summaries, nil
}
