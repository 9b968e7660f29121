package review

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radgrid/radreview-go/internal/conf"
	"github.com/radgrid/radreview-go/internal/datastore"
	"github.com/radgrid/radreview-go/internal/errors"
)

// reviewFixture is a store with one pending image carrying two predictions:
// Cardiomegaly 0.7/true and Effusion 0.2/false.
type reviewFixture struct {
	ds       datastore.Interface
	image    datastore.Image
	mv       datastore.ModelVersion
	reviewer datastore.User
}

func newReviewFixture(t *testing.T) *reviewFixture {
	t.Helper()
	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = t.TempDir() + "/test.db"

	ds := datastore.New(settings)
	require.NoError(t, ds.Open())
	t.Cleanup(func() { assert.NoError(t, ds.Close()) })

	patient := datastore.Patient{FirstName: "Jane", LastName: "Doe", BirthYear: 1965, Sex: "F"}
	require.NoError(t, ds.CreatePatient(&patient))

	mv, err := ds.GetOrCreateModelVersion("test_model_v1", "")
	require.NoError(t, err)
	reviewer, err := ds.GetOrCreateUser("doctor@example.com", "Dr. Demo")
	require.NoError(t, err)

	cardiomegaly, err := ds.GetPathologyByCode("Cardiomegaly")
	require.NoError(t, err)
	effusion, err := ds.GetPathologyByCode("Effusion")
	require.NoError(t, err)

	exam := datastore.Exam{PatientID: patient.ID, ExamTime: time.Now()}
	image := datastore.Image{
		Filename:    "chest.png",
		StorageName: "fixture-1.png",
		ImageData:   []byte{0x89, 0x50, 0x4e, 0x47},
		MimeType:    "image/png",
	}
	predictions := []datastore.PredictedLabel{
		{ModelVersionID: mv.ID, PathologyID: cardiomegaly.ID, Probability: 0.7, Decision: true},
		{ModelVersionID: mv.ID, PathologyID: effusion.ID, Probability: 0.2, Decision: false},
	}
	require.NoError(t, ds.SaveIngestion(&exam, &image, predictions))

	return &reviewFixture{ds: ds, image: image, mv: mv, reviewer: reviewer}
}

func TestQuickConfirmCopiesDecisions(t *testing.T) {
	t.Parallel()
	f := newReviewFixture(t)
	r := NewReconciler(f.ds)

	labels, err := r.QuickConfirm(f.image.ID, f.mv.ID, f.reviewer.ID)
	require.NoError(t, err)
	require.Len(t, labels, 2)

	byPathology := make(map[uint]datastore.DoctorLabel, len(labels))
	for _, l := range labels {
		byPathology[l.PathologyID] = l
		assert.Equal(t, ConfirmComment, l.Comment)
		assert.Equal(t, f.reviewer.ID, l.LabeledBy)
	}

	predictions, err := f.ds.GetPredictions(f.image.ID, f.mv.ID)
	require.NoError(t, err)
	for _, p := range predictions {
		assert.Equal(t, p.Decision, byPathology[p.PathologyID].Present,
			"confirmation must copy the thresholded decision verbatim")
	}

	meta, err := f.ds.GetImageMeta(f.image.ID)
	require.NoError(t, err)
	assert.NotNil(t, meta.ReviewedAt)
}

func TestQuickConfirmIsIdempotent(t *testing.T) {
	t.Parallel()
	f := newReviewFixture(t)
	r := NewReconciler(f.ds)

	_, err := r.QuickConfirm(f.image.ID, f.mv.ID, f.reviewer.ID)
	require.NoError(t, err)
	labels, err := r.QuickConfirm(f.image.ID, f.mv.ID, f.reviewer.ID)
	require.NoError(t, err)
	assert.Len(t, labels, 2, "repeating the confirmation must not duplicate rows")
}

func TestQuickConfirmWithoutPredictionsFails(t *testing.T) {
	t.Parallel()
	f := newReviewFixture(t)
	r := NewReconciler(f.ds)

	other, err := f.ds.GetOrCreateModelVersion("other_model", "")
	require.NoError(t, err)

	_, err = r.QuickConfirm(f.image.ID, other.ID, f.reviewer.ID)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestApplyOverridesAndPreservesOmitted(t *testing.T) {
	t.Parallel()
	f := newReviewFixture(t)
	r := NewReconciler(f.ds)

	// First pass labels both classes.
	_, err := r.Apply(f.image.ID, f.mv.ID, f.reviewer.ID,
		map[string]bool{"Cardiomegaly": true, "Effusion": true}, "visible blunting")
	require.NoError(t, err)

	// Second pass touches only Cardiomegaly; Effusion keeps its label.
	labels, err := r.Apply(f.image.ID, f.mv.ID, f.reviewer.ID,
		map[string]bool{"Cardiomegaly": false}, "borderline CTR")
	require.NoError(t, err)
	require.Len(t, labels, 2)

	effusion, err := f.ds.GetPathologyByCode("Effusion")
	require.NoError(t, err)
	for _, l := range labels {
		if l.PathologyID == effusion.ID {
			assert.True(t, l.Present, "omitted class keeps its prior label")
			assert.Equal(t, "visible blunting", l.Comment)
		} else {
			assert.False(t, l.Present)
			assert.Equal(t, "borderline CTR", l.Comment)
		}
	}
}

func TestApplyRejectsUnknownCodeBeforeWriting(t *testing.T) {
	t.Parallel()
	f := newReviewFixture(t)
	r := NewReconciler(f.ds)

	_, err := r.Apply(f.image.ID, f.mv.ID, f.reviewer.ID,
		map[string]bool{"Cardiomegaly": true, "Bogus": true}, "")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))

	// Nothing may have been written, including the review state.
	stored, err := f.ds.GetDoctorLabels(f.image.ID, f.mv.ID)
	require.NoError(t, err)
	assert.Empty(t, stored)
	meta, err := f.ds.GetImageMeta(f.image.ID)
	require.NoError(t, err)
	assert.Nil(t, meta.ReviewedAt)
}

func TestApplyRejectsEmptyLabelMap(t *testing.T) {
	t.Parallel()
	f := newReviewFixture(t)
	r := NewReconciler(f.ds)

	_, err := r.Apply(f.image.ID, f.mv.ID, f.reviewer.ID, nil, "")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestApplyToMissingImageFails(t *testing.T) {
	t.Parallel()
	f := newReviewFixture(t)
	r := NewReconciler(f.ds)

	_, err := r.Apply(99999, f.mv.ID, f.reviewer.ID, map[string]bool{"Cardiomegaly": true}, "")
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryNotFound))
}
