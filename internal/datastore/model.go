// model.go this code defines the data model for the application
package datastore

import "time"

// User represents a reviewer identity. Authentication is out of scope; the
// row exists so every doctor label is attributable.
type User struct {
	ID        uint   `gorm:"primaryKey"`
	Email     string `gorm:"uniqueIndex;not null"`
	FullName  string
	Role      string `gorm:"type:varchar(20);default:doctor"`
	CreatedAt time.Time
}

// Patient represents a person under care.
type Patient struct {
	ID                uint   `gorm:"primaryKey"`
	ExternalPatientID string `gorm:"index"` // e.g. NIH patient id for seeded data
	FirstName         string
	LastName          string
	BirthYear         int
	Sex               string `gorm:"type:varchar(1)"` // 'M', 'F', 'O'
	CreatedAt         time.Time
	Exams             []Exam `gorm:"foreignKey:PatientID;constraint:OnDelete:CASCADE"`
}

// Exam represents one imaging session for a patient.
type Exam struct {
	ID        uint      `gorm:"primaryKey"`
	PatientID uint      `gorm:"index;not null"`
	ExamTime  time.Time `gorm:"index"`
	Reason    string
	CreatedBy *uint // optional reference to the creating user
	CreatedAt time.Time
	Images    []Image `gorm:"foreignKey:ExamID;constraint:OnDelete:CASCADE"`
}

// Image represents one stored X-ray belonging to an exam. ReviewedAt is the
// review state: nil means pending, non-nil means a reviewer has finalized at
// least one label set. It is only ever written together with doctor labels.
type Image struct {
	ID           uint   `gorm:"primaryKey"`
	ExamID       uint   `gorm:"index;not null"`
	Filename     string `gorm:"not null"`
	StorageName  string `gorm:"uniqueIndex"` // uuid-based name, stable across filename collisions
	ImageData    []byte `gorm:"not null"`
	MimeType     string `gorm:"type:varchar(32);default:image/png"`
	ViewPosition string `gorm:"type:varchar(8)"` // e.g. "PA", "AP"
	ReviewedAt   *time.Time `gorm:"index"`
	CreatedAt    time.Time  `gorm:"index"`

	Predictions  []PredictedLabel   `gorm:"foreignKey:ImageID;constraint:OnDelete:CASCADE"`
	DoctorLabels []DoctorLabel      `gorm:"foreignKey:ImageID;constraint:OnDelete:CASCADE"`
	GroundTruth  []ImageGroundTruth `gorm:"foreignKey:ImageID;constraint:OnDelete:CASCADE"`
}

// ImageGroundTruth carries the reference label set of seeded images. Set
// semantics: membership only, no ordering, one row per (image, pathology).
type ImageGroundTruth struct {
	ID          uint `gorm:"primaryKey"`
	ImageID     uint `gorm:"uniqueIndex:idx_ground_truth_key;not null"`
	PathologyID uint `gorm:"uniqueIndex:idx_ground_truth_key;not null"`
}

// Pathology is one finding class in the fixed vocabulary. Append-only.
type Pathology struct {
	ID          uint   `gorm:"primaryKey"`
	Code        string `gorm:"uniqueIndex;not null"` // e.g. "Cardiomegaly", "No Finding"
	DisplayName string `gorm:"not null"`
	Description string
}

// ModelVersion identifies one inference configuration snapshot. Rows are
// append-only and never mutated, which is what keeps stored predictions
// attributable and reproducible.
type ModelVersion struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"uniqueIndex;not null"`
	Description string
	CreatedAt   time.Time
}

// PredictedLabel is the machine output for one (image, model version,
// pathology) triple. The composite unique index enforces exactly one row per
// triple; re-running inference replaces the prior set, never duplicates it.
type PredictedLabel struct {
	ID             uint    `gorm:"primaryKey"`
	ImageID        uint    `gorm:"uniqueIndex:idx_predicted_key;index;not null"`
	ModelVersionID uint    `gorm:"uniqueIndex:idx_predicted_key;not null"`
	PathologyID    uint    `gorm:"uniqueIndex:idx_predicted_key;not null"`
	Probability    float64 `gorm:"not null"`
	Decision       bool    `gorm:"not null"` // thresholded yes/no
	CreatedAt      time.Time
}

// DoctorLabel is one reviewer's judgment for one (image, model version,
// pathology). The composite unique index allows a reviewer to revise their
// own label via upsert while different reviewers keep separate rows.
type DoctorLabel struct {
	ID             uint `gorm:"primaryKey"`
	ImageID        uint `gorm:"uniqueIndex:idx_doctor_key;index;not null"`
	ModelVersionID uint `gorm:"uniqueIndex:idx_doctor_key;not null"`
	PathologyID    uint `gorm:"uniqueIndex:idx_doctor_key;not null"`
	LabeledBy      uint `gorm:"uniqueIndex:idx_doctor_key;index;not null"`
	Present        bool `gorm:"not null"`
	Comment        string
	LabeledAt      time.Time `gorm:"index"`
}
