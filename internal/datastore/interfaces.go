// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/radgrid/radreview-go/internal/conf"
	"github.com/radgrid/radreview-go/internal/errors"
)

// Interface abstracts the underlying database implementation and defines the
// operations the rest of the application performs against the store.
type Interface interface {
	Open() error
	Close() error
	Ping() error

	// Patients
	CreatePatient(patient *Patient) error
	GetPatient(id uint) (Patient, error)
	GetPatientByExternalID(externalID string) (Patient, error)
	GetPatients() ([]Patient, error)
	DeletePatient(id uint) error
	PatientSummaries() ([]PatientSummary, error)
	GetPatientExams(patientID uint) ([]Exam, error)

	// Exams and images
	CreateExam(exam *Exam) error
	GetExam(id uint) (Exam, error)
	GetExamImages(examID uint) ([]Image, error)
	SaveIngestion(exam *Exam, image *Image, predictions []PredictedLabel) error
	GetImage(id uint) (Image, error)
	GetImageMeta(id uint) (Image, error)

	// Predictions and labels
	ReplacePredictions(imageID, modelVersionID uint, predictions []PredictedLabel) error
	GetPredictions(imageID, modelVersionID uint) ([]PredictedLabel, error)
	UpsertDoctorLabels(imageID uint, labels []DoctorLabel) error
	GetDoctorLabels(imageID, modelVersionID uint) ([]DoctorLabel, error)
	SaveGroundTruth(imageID uint, pathologyIDs []uint) error
	GetGroundTruth(imageID uint) ([]ImageGroundTruth, error)

	// Reference vocabularies
	GetPathologies() ([]Pathology, error)
	GetPathologyByCode(code string) (Pathology, error)
	GetModelVersions() ([]ModelVersion, error)
	GetOrCreateModelVersion(name, description string) (ModelVersion, error)
	GetOrCreateUser(email, fullName string) (User, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore instance based on the provided settings.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{Settings: settings}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{Settings: settings}
	default:
		return nil
	}
}

// Ping verifies the underlying database connection is alive.
func (ds *DataStore) Ping() error {
	if ds.DB == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return fmt.Errorf("getting sql.DB handle: %w", err)
	}
	return sqlDB.Ping()
}

// CreatePatient inserts a new patient record.
func (ds *DataStore) CreatePatient(patient *Patient) error {
	if err := ds.DB.Create(patient).Error; err != nil {
		return errors.Newf("creating patient: %v", err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// GetPatient retrieves a patient by id.
func (ds *DataStore) GetPatient(id uint) (Patient, error) {
	var patient Patient
	if err := ds.DB.First(&patient, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Patient{}, errors.Newf("patient %d not found", id).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return Patient{}, fmt.Errorf("getting patient %d: %w", id, err)
	}
	return patient, nil
}

// GetPatientByExternalID retrieves a patient by their external identifier.
func (ds *DataStore) GetPatientByExternalID(externalID string) (Patient, error) {
	var patient Patient
	err := ds.DB.Where("external_patient_id = ?", externalID).First(&patient).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Patient{}, errors.Newf("patient with external id %q not found", externalID).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return Patient{}, fmt.Errorf("getting patient by external id %q: %w", externalID, err)
	}
	return patient, nil
}

// GetPatients retrieves all patients.
func (ds *DataStore) GetPatients() ([]Patient, error) {
	var patients []Patient
	if err := ds.DB.Order("id").Find(&patients).Error; err != nil {
		return nil, fmt.Errorf("getting patients: %w", err)
	}
	return patients, nil
}

// DeletePatient removes a patient and all dependent exams, images,
// predictions and labels in one transaction.
func (ds *DataStore) DeletePatient(id uint) error {
	return ds.DB.Transaction(func(tx *gorm.DB) error {
		var exams []Exam
		if err := tx.Where("patient_id = ?", id).Find(&exams).Error; err != nil {
			return fmt.Errorf("finding exams for patient %d: %w", id, err)
		}
		for i := range exams {
			var images []Image
			if err := tx.Select("id").Where("exam_id = ?", exams[i].ID).Find(&images).Error; err != nil {
				return fmt.Errorf("finding images for exam %d: %w", exams[i].ID, err)
			}
			for j := range images {
				imageID := images[j].ID
				if err := tx.Where("image_id = ?", imageID).Delete(&PredictedLabel{}).Error; err != nil {
					return fmt.Errorf("deleting predictions for image %d: %w", imageID, err)
				}
				if err := tx.Where("image_id = ?", imageID).Delete(&DoctorLabel{}).Error; err != nil {
					return fmt.Errorf("deleting doctor labels for image %d: %w", imageID, err)
				}
				if err := tx.Where("image_id = ?", imageID).Delete(&ImageGroundTruth{}).Error; err != nil {
					return fmt.Errorf("deleting ground truth for image %d: %w", imageID, err)
				}
			}
			if err := tx.Where("exam_id = ?", exams[i].ID).Delete(&Image{}).Error; err != nil {
				return fmt.Errorf("deleting images for exam %d: %w", exams[i].ID, err)
			}
		}
		if err := tx.Where("patient_id = ?", id).Delete(&Exam{}).Error; err != nil {
			return fmt.Errorf("deleting exams for patient %d: %w", id, err)
		}
		if err := tx.Delete(&Patient{}, id).Error; err != nil {
			return fmt.Errorf("deleting patient %d: %w", id, err)
		}
		return nil
	})
}

// GetPatientExams retrieves all exams for a patient ordered by exam time
// ascending, as presented in the patient detail view.
func (ds *DataStore) GetPatientExams(patientID uint) ([]Exam, error) {
	var exams []Exam
	err := ds.DB.Where("patient_id = ?", patientID).
		Order("exam_time ASC").
		Find(&exams).Error
	if err != nil {
		return nil, fmt.Errorf("getting exams for patient %d: %w", patientID, err)
	}
	return exams, nil
}

// CreateExam inserts a new exam record.
func (ds *DataStore) CreateExam(exam *Exam) error {
	if err := ds.DB.Create(exam).Error; err != nil {
		return errors.Newf("creating exam: %v", err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// GetExam retrieves an exam by id.
func (ds *DataStore) GetExam(id uint) (Exam, error) {
	var exam Exam
	if err := ds.DB.First(&exam, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Exam{}, errors.Newf("exam %d not found", id).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return Exam{}, fmt.Errorf("getting exam %d: %w", id, err)
	}
	return exam, nil
}

// imageMetaColumns lists the image columns loaded for listings; the binary
// payload is only fetched by GetImage.
const imageMetaColumns = "id, exam_id, filename, storage_name, mime_type, view_position, reviewed_at, created_at"

// GetExamImages retrieves the images of an exam without their binary payload.
func (ds *DataStore) GetExamImages(examID uint) ([]Image, error) {
	var images []Image
	err := ds.DB.Select(imageMetaColumns).
		Where("exam_id = ?", examID).
		Order("created_at ASC").
		Find(&images).Error
	if err != nil {
		return nil, fmt.Errorf("getting images for exam %d: %w", examID, err)
	}
	return images, nil
}

// GetImage retrieves a full image row including the binary payload.
func (ds *DataStore) GetImage(id uint) (Image, error) {
	var image Image
	if err := ds.DB.First(&image, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Image{}, errors.Newf("image %d not found", id).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return Image{}, fmt.Errorf("getting image %d: %w", id, err)
	}
	return image, nil
}

// GetImageMeta retrieves an image row without the binary payload.
func (ds *DataStore) GetImageMeta(id uint) (Image, error) {
	var image Image
	err := ds.DB.Select(imageMetaColumns).First(&image, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Image{}, errors.Newf("image %d not found", id).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return Image{}, fmt.Errorf("getting image %d: %w", id, err)
	}
	return image, nil
}

// SaveIngestion stores an exam (created when its ID is zero), its image and
// the prediction set as a single transaction. A reader never observes the
// image without its predictions.
func (ds *DataStore) SaveIngestion(exam *Exam, image *Image, predictions []PredictedLabel) error {
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		if exam.ID == 0 {
			if err := tx.Create(exam).Error; err != nil {
				return fmt.Errorf("saving exam: %w", err)
			}
		}
		image.ExamID = exam.ID
		if err := tx.Create(image).Error; err != nil {
			return fmt.Errorf("saving image: %w", err)
		}
		for i := range predictions {
			predictions[i].ImageID = image.ID
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
			Context("operation", "save_ingestion").
			Build()
	}
	return nil
}

// GetPathologies retrieves the full finding-class vocabulary.
func (ds *DataStore) GetPathologies() ([]Pathology, error) {
	var pathologies []Pathology
	if err := ds.DB.Order("id").Find(&pathologies).Error; err != nil {
		return nil, fmt.Errorf("getting pathologies: %w", err)
	}
	return pathologies, nil
}

// GetPathologyByCode looks up one vocabulary entry by its code.
func (ds *DataStore) GetPathologyByCode(code string) (Pathology, error) {
	var p Pathology
	if err := ds.DB.Where("code = ?", code).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Pathology{}, errors.Newf("unknown pathology code %q", code).
				Component("datastore").
				Category(errors.CategoryValidation).
				Build()
		}
		return Pathology{}, fmt.Errorf("getting pathology %q: %w", code, err)
	}
	return p, nil
}

// GetModelVersions retrieves all model versions.
func (ds *DataStore) GetModelVersions() ([]ModelVersion, error) {
	var versions []ModelVersion
	if err := ds.DB.Order("id").Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("getting model versions: %w", err)
	}
	return versions, nil
}

// GetOrCreateModelVersion returns the model version with the given name,
// creating it if needed. On a concurrent insert race the unique constraint
// fires and the existing row is re-read.
func (ds *DataStore) GetOrCreateModelVersion(name, description string) (ModelVersion, error) {
	var mv ModelVersion
	err := ds.DB.Where("name = ?", name).First(&mv).Error
	if err == nil {
		return mv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return ModelVersion{}, fmt.Errorf("getting model version %q: %w", name, err)
	}

	mv = ModelVersion{Name: name, Description: description}
	if err := ds.DB.Create(&mv).Error; err != nil {
		// Concurrent insert; re-read the winner.
		var existing ModelVersion
		if err2 := ds.DB.Where("name = ?", name).First(&existing).Error; err2 == nil {
			return existing, nil
		}
		return ModelVersion{}, fmt.Errorf("creating model version %q: %w", name, err)
	}
	return mv, nil
}

// GetOrCreateUser returns the user with the given email, creating it if
// needed. Same race handling as GetOrCreateModelVersion.
func (ds *DataStore) GetOrCreateUser(email, fullName string) (User, error) {
	var user User
	err := ds.DB.Where("email = ?", email).First(&user).Error
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, fmt.Errorf("getting user %q: %w", email, err)
	}

	user = User{Email: email, FullName: fullName, Role: "doctor"}
	if err := ds.DB.Create(&user).Error; err != nil {
		var existing User
		if err2 := ds.DB.Where("email = ?", email).First(&existing).Error; err2 == nil {
			return existing, nil
		}
		return User{}, fmt.Errorf("creating user %q: %w", email, err)
	}
	return user, nil
}
