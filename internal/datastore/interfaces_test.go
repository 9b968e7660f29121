package datastore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radgrid/radreview-go/internal/conf"
	"github.com/radgrid/radreview-go/internal/errors"
	"github.com/radgrid/radreview-go/internal/pathology"
)

// createDatabase initializes a temporary database for testing purposes.
// It ensures the database connection is opened and handles potential errors.
func createDatabase(t *testing.T, settings *conf.Settings) Interface {
	t.Helper()
	tempDir := t.TempDir()
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = tempDir + "/test.db"

	dataStore := New(settings)

	require.NoError(t, dataStore.Open(), "Failed to open database")

	t.Cleanup(func() {
		assert.NoError(t, dataStore.Close(), "Failed to close datastore")
	})

	return dataStore
}

// createTestPatient inserts a patient with one exam and returns both.
func createTestPatient(t *testing.T, ds Interface, externalID string) (Patient, Exam) {
	t.Helper()
	patient := Patient{
		ExternalPatientID: externalID,
		FirstName:         "Jane",
		LastName:          "Doe",
		BirthYear:         1965,
		Sex:               "F",
	}
	require.NoError(t, ds.CreatePatient(&patient))

	exam := Exam{
		PatientID: patient.ID,
		ExamTime:  time.Now(),
		Reason:    "routine screening",
	}
	require.NoError(t, ds.CreateExam(&exam))
	return patient, exam
}

// ingestTestImage stores an image with one prediction row per given code.
func ingestTestImage(t *testing.T, ds Interface, examID uint, storageName string, codes map[string]float64, threshold float64) Image {
	t.Helper()
	mv, err := ds.GetOrCreateModelVersion("test_model_v1", "")
	require.NoError(t, err)

	var predictions []PredictedLabel
	for code, probability := range codes {
		row, err := ds.GetPathologyByCode(code)
		require.NoError(t, err)
		predictions = append(predictions, PredictedLabel{
			ModelVersionID: mv.ID,
			PathologyID:    row.ID,
			Probability:    probability,
			Decision:       probability >= threshold,
		})
	}

	exam := Exam{ID: examID}
	image := Image{
		Filename:    storageName + ".png",
		StorageName: storageName,
		ImageData:   []byte{0x89, 0x50, 0x4e, 0x47},
		MimeType:    "image/png",
	}
	require.NoError(t, ds.SaveIngestion(&exam, &image, predictions))
	return image
}

func TestCreateAndGetPatient(t *testing.T) {
	t.Parallel()
	ds := createDatabase(t, &conf.Settings{})

	patient, _ := createTestPatient(t, ds, "NIH-00001")

	got, err := ds.GetPatient(patient.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane", got.FirstName)
	assert.Equal(t, "NIH-00001", got.ExternalPatientID)

	byExternal, err := ds.GetPatientByExternalID("NIH-00001")
	require.NoError(t, err)
	assert.Equal(t, patient.ID, byExternal.ID)
}

func TestGetPatientNotFound(t *testing.T) {
	t.Parallel()
	ds := createDatabase(t, &conf.Settings{})

	_, err := ds.GetPatient(9999)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))

	_, err = ds.GetPatientByExternalID("missing")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}

func TestVocabularySeededOnMigration(t *testing.T) {
	t.Parallel()
	ds := createDatabase(t, &conf.Settings{})

	rows, err := ds.GetPathologies()
	require.NoError(t, err)
	assert.Len(t, rows, len(pathology.Vocabulary()))

	cardiomegaly, err := ds.GetPathologyByCode("Cardiomegaly")
	require.NoError(t, err)
	assert.Equal(t, "Cardiomegaly", cardiomegaly.Code)

	_, err = ds.GetPathologyByCode("NotAClass")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestSaveIngestionCreatesExamAndPredictions(t *testing.T) {
	t.Parallel()
	ds := createDatabase(t, &conf.Settings{})

	patient, _ := createTestPatient(t, ds, "NIH-00002")
	mv, err := ds.GetOrCreateModelVersion("test_model_v1", "")
	require.NoError(t, err)

	cardiomegaly, err := ds.GetPathologyByCode("Cardiomegaly")
	require.NoError(t, err)

	// Exam with zero ID is created inside the same transaction.
	exam := Exam{PatientID: patient.ID, ExamTime: time.Now()}
	image := Image{
		Filename:    "chest.png",
		StorageName: "abc-123.png",
		ImageData:   []byte{0x89, 0x50, 0x4e, 0x47},
		MimeType:    "image/png",
	}
	predictions := []PredictedLabel{
		{ModelVersionID: mv.ID, PathologyID: cardiomegaly.ID, Probability: 0.7, Decision: true},
	}
	require.NoError(t, ds.SaveIngestion(&exam, &image, predictions))
	assert.NotZero(t, exam.ID)
	assert.NotZero(t, image.ID)

	stored, err := ds.GetPredictions(image.ID, mv.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.InDelta(t, 0.7, stored[0].Probability, 1e-9)
	assert.True(t, stored[0].Decision)

	meta, err := ds.GetImageMeta(image.ID)
	require.NoError(t, err)
	assert.Nil(t, meta.ReviewedAt, "new image must await review")
	assert.Empty(t, meta.ImageData, "meta listing must not load the payload")
}

func TestGetImageLoadsPayload(t *testing.T) {
	t.Parallel()
	ds := createDatabase(t, &conf.Settings{})

	_, exam := createTestPatient(t, ds, "NIH-00003")
	image := ingestTestImage(t, ds, exam.ID, "payload-1", map[string]float64{"Effusion": 0.2}, 0.5)

	full, err := ds.GetImage(image.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, full.ImageData)
}

func TestGetOrCreateModelVersionIsIdempotent(t *testing.T) {
	t.Parallel()
	ds := createDatabase(t, &conf.Settings{})

	first, err := ds.GetOrCreateModelVersion("densenet121_v1", "baseline")
	require.NoError(t, err)
	second, err := ds.GetOrCreateModelVersion("densenet121_v1", "ignored on re-get")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "baseline", second.Description)

	versions, err := ds.GetModelVersions()
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestGetOrCreateUserIsIdempotent(t *testing.T) {
	t.Parallel()
	ds := createDatabase(t, &conf.Settings{})

	first, err := ds.GetOrCreateUser("doctor@example.com", "Dr. Demo")
	require.NoError(t, err)
	second, err := ds.GetOrCreateUser("doctor@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestDeletePatientCascades(t *testing.T) {
	t.Parallel()
	ds := createDatabase(t, &conf.Settings{})

	patient, exam := createTestPatient(t, ds, "NIH-00004")
	image := ingestTestImage(t, ds, exam.ID, "cascade-1", map[string]float64{"Mass": 0.9}, 0.5)

	require.NoError(t, ds.DeletePatient(patient.ID))

	_, err := ds.GetPatient(patient.ID)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
	_, err = ds.GetImage(image.ID)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}
