package datastore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radgrid/radreview-go/internal/conf"
)

func TestReplacePredictionsSwapsTheSet(t *testing.T) {
	t.Parallel()
	ds := createDatabase(t, &conf.Settings{})

	_, exam := createTestPatient(t, ds, "PRED-001")
	image := ingestTestImage(t, ds, exam.ID, "pred-1", map[string]float64{"Cardiomegaly": 0.7, "Effusion": 0.2}, 0.5)

	mv, err := ds.GetOrCreateModelVersion("test_model_v1", "")
	require.NoError(t, err)
	edema, err := ds.GetPathologyByCode("Edema")
	require.NoError(t, err)

	replacement := []PredictedLabel{{
		PathologyID: edema.ID,
		Probability: 0.95,
		Decision:    true,
	}}
	require.NoError(t, ds.ReplacePredictions(image.ID, mv.ID, replacement))

	stored, err := ds.GetPredictions(image.ID, mv.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1, "prior rows must be gone, not merged")
	assert.Equal(t, edema.ID, stored[0].PathologyID)
	assert.InDelta(t, 0.95, stored[0].Probability, 1e-9)
}

func TestReplacePredictionsScopedToModelVersion(t *testing.T) {
	t.Parallel()
	ds := createDatabase(t, &conf.Settings{})

	_, exam := createTestPatient(t, ds, "PRED-002")
	image := ingestTestImage(t, ds, exam.ID, "pred-2", map[string]float64{"Mass": 0.8}, 0.5)

	v1, err := ds.GetOrCreateModelVersion("test_model_v1", "")
	require.NoError(t, err)
	v2, err := ds.GetOrCreateModelVersion("test_model_v2", "")
	require.NoError(t, err)
	nodule, err := ds.GetPathologyByCode("Nodule")
	require.NoError(t, err)

	require.NoError(t, ds.ReplacePredictions(image.ID, v2.ID, []PredictedLabel{{
		PathologyID: nodule.ID,
		Probability: 0.55,
		Decision:    true,
	}}))

	v1Rows, err := ds.GetPredictions(image.ID, v1.ID)
	require.NoError(t, err)
	assert.Len(t, v1Rows, 1, "other model versions keep their rows")

	v2Rows, err := ds.GetPredictions(image.ID, v2.ID)
	require.NoError(t, err)
	assert.Len(t, v2Rows, 1)
}

func TestSaveGroundTruthIsIdempotent(t *testing.T) {
	t.Parallel()
	ds := createDatabase(t, &conf.Settings{})

	_, exam := createTestPatient(t, ds, "GT-001")
	image := ingestTestImage(t, ds, exam.ID, "gt-1", map[string]float64{"Hernia": 0.1}, 0.5)

	hernia, err := ds.GetPathologyByCode("Hernia")
	require.NoError(t, err)
	infiltration, err := ds.GetPathologyByCode("Infiltration")
	require.NoError(t, err)

	require.NoError(t, ds.SaveGroundTruth(image.ID, []uint{hernia.ID, infiltration.ID}))
	require.NoError(t, ds.SaveGroundTruth(image.ID, []uint{hernia.ID, infiltration.ID}))

	rows, err := ds.GetGroundTruth(image.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
