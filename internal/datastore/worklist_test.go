package datastore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radgrid/radreview-go/internal/conf"
)

// reviewAll marks every image of the patient's exams reviewed.
func reviewAll(t *testing.T, ds Interface, patientID uint) {
	t.Helper()
	mv, err := ds.GetOrCreateModelVersion("test_model_v1", "")
	require.NoError(t, err)
	reviewer, err := ds.GetOrCreateUser("doctor@example.com", "Dr. Demo")
	require.NoError(t, err)
	noFinding, err := ds.GetPathologyByCode("No Finding")
	require.NoError(t, err)

	exams, err := ds.GetPatientExams(patientID)
	require.NoError(t, err)
	for i := range exams {
		images, err := ds.GetExamImages(exams[i].ID)
		require.NoError(t, err)
		for j := range images {
			require.NoError(t, ds.UpsertDoctorLabels(images[j].ID, []DoctorLabel{{
				ModelVersionID: mv.ID,
				PathologyID:    noFinding.ID,
				LabeledBy:      reviewer.ID,
				Present:        true,
			}}))
		}
	}
}

func TestPatientSummariesOrdering(t *testing.T) {
	t.Parallel()
	ds := createDatabase(t, &conf.Settings{})

	// Patient A: two pending images.
	patientA, examA := createTestPatient(t, ds, "WL-A")
	ingestTestImage(t, ds, examA.ID, "wl-a-1", map[string]float64{"Effusion": 0.2}, 0.5)
	ingestTestImage(t, ds, examA.ID, "wl-a-2", map[string]float64{"Edema": 0.1}, 0.5)

	// Patient B: one image, fully reviewed.
	patientB, examB := createTestPatient(t, ds, "WL-B")
	ingestTestImage(t, ds, examB.ID, "wl-b-1", map[string]float64{"Mass": 0.9}, 0.5)
	reviewAll(t, ds, patientB.ID)

	// Patient C: one pending image.
	patientC, examC := createTestPatient(t, ds, "WL-C")
	ingestTestImage(t, ds, examC.ID, "wl-c-1", map[string]float64{"Nodule": 0.4}, 0.5)

	summaries, err := ds.PatientSummaries()
	require.NoError(t, err)
	require.Len(t, summaries, 3)

	// Pending patients first, higher pending count first, reviewed last.
	assert.Equal(t, patientA.ID, summaries[0].PatientID)
	assert.Equal(t, 2, summaries[0].PendingCount)
	assert.True(t, summaries[0].NeedsReview())

	assert.Equal(t, patientC.ID, summaries[1].PatientID)
	assert.Equal(t, 1, summaries[1].PendingCount)

	assert.Equal(t, patientB.ID, summaries[2].PatientID)
	assert.Equal(t, 0, summaries[2].PendingCount)
	assert.False(t, summaries[2].NeedsReview())
}

func TestPatientSummariesIncludesImagelessPatients(t *testing.T) {
	t.Parallel()
	ds := createDatabase(t, &conf.Settings{})

	patient, _ := createTestPatient(t, ds, "WL-EMPTY")

	summaries, err := ds.PatientSummaries()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, patient.ID, summaries[0].PatientID)
	assert.Equal(t, 0, summaries[0].PendingCount)
	assert.Nil(t, summaries[0].LastImageAt)
}

func TestPatientSummariesReviewTransitionMovesPatient(t *testing.T) {
	t.Parallel()
	ds := createDatabase(t, &conf.Settings{})

	patient, exam := createTestPatient(t, ds, "WL-MOVE")
	ingestTestImage(t, ds, exam.ID, "wl-move-1", map[string]float64{"Fibrosis": 0.3}, 0.5)

	summaries, err := ds.PatientSummaries()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, summaries[0].PendingCount)

	reviewAll(t, ds, patient.ID)

	summaries, err = ds.PatientSummaries()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 0, summaries[0].PendingCount)
}
