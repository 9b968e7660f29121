package seed

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radgrid/radreview-go/internal/conf"
	"github.com/radgrid/radreview-go/internal/datastore"
	"github.com/radgrid/radreview-go/internal/errors"
	"github.com/radgrid/radreview-go/internal/inference"
	"github.com/radgrid/radreview-go/internal/ingest"
)

const manifestYAML = `
patients:
  - external_id: "NIH-13670"
    first_name: "Jane"
    last_name: "Doe"
    birth_year: 1958
    sex: "F"
    exams:
      - reason: "persistent cough"
        images:
          - file: "chest1.png"
            view_position: "PA"
            ground_truth: ["Cardiomegaly", "Effusion"]
          - file: "chest2.png"
            view_position: "AP"
            ground_truth: ["No Finding"]
`

func writeTestManifest(t *testing.T) (manifestPath, baseDir string) {
	t.Helper()
	dir := t.TempDir()

	img := image.NewGray(image.Rect(0, 0, 8, 8))
	img.SetGray(4, 4, color.Gray{Y: 120})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chest1.png"), buf.Bytes(), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "chest2.png"), buf.Bytes(), 0o644))

	path := filepath.Join(dir, "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifestYAML), 0o644))
	return path, dir
}

func newTestSeeder(t *testing.T) (*Seeder, datastore.Interface) {
	t.Helper()
	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = t.TempDir() + "/test.db"
	settings.Inference.Threshold = 0.5
	settings.Inference.TimeoutSec = 5
	settings.Inference.ModelVersion = "densenet121_v1"

	ds := datastore.New(settings)
	require.NoError(t, ds.Open())
	t.Cleanup(func() { assert.NoError(t, ds.Close()) })

	pipeline := ingest.New(ds, inference.NewMockGateway(), settings, nil)
	return New(ds, pipeline, 2), ds
}

func TestLoadManifest(t *testing.T) {
	t.Parallel()
	path, _ := writeTestManifest(t)

	manifest, err := LoadManifest(path)
	require.NoError(t, err)
	require.Len(t, manifest.Patients, 1)
	assert.Equal(t, "NIH-13670", manifest.Patients[0].ExternalID)
	require.Len(t, manifest.Patients[0].Exams, 1)
	assert.Len(t, manifest.Patients[0].Exams[0].Images, 2)
}

func TestLoadManifestMissingFile(t *testing.T) {
	t.Parallel()
	_, err := LoadManifest(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryFileIO))
}

func TestLoadManifestRejectsEmpty(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("patients: []\n"), 0o644))

	_, err := LoadManifest(path)
	require.Error(t, err)
	assert.True(t, errors.HasCategory(err, errors.CategoryValidation))
}

func TestRunSeedsPatientsWithPredictionsAndGroundTruth(t *testing.T) {
	t.Parallel()
	path, baseDir := writeTestManifest(t)
	seeder, ds := newTestSeeder(t)

	manifest, err := LoadManifest(path)
	require.NoError(t, err)
	require.NoError(t, seeder.Run(context.Background(), manifest, baseDir))

	patient, err := ds.GetPatientByExternalID("NIH-13670")
	require.NoError(t, err)

	exams, err := ds.GetPatientExams(patient.ID)
	require.NoError(t, err)
	require.Len(t, exams, 1)

	images, err := ds.GetExamImages(exams[0].ID)
	require.NoError(t, err)
	require.Len(t, images, 2)

	// Seeded images arrive pending review with real prediction sets.
	mv, err := ds.GetOrCreateModelVersion("densenet121_v1", "")
	require.NoError(t, err)
	for i := range images {
		assert.Nil(t, images[i].ReviewedAt)
		predictions, err := ds.GetPredictions(images[i].ID, mv.ID)
		require.NoError(t, err)
		assert.NotEmpty(t, predictions)
	}

	// Ground truth from the manifest is attached to the first image.
	var first datastore.Image
	for i := range images {
		if images[i].Filename == "chest1.png" {
			first = images[i]
		}
	}
	require.NotZero(t, first.ID)
	truth, err := ds.GetGroundTruth(first.ID)
	require.NoError(t, err)
	assert.Len(t, truth, 2)
}

func TestRunIsIdempotentPerExternalID(t *testing.T) {
	t.Parallel()
	path, baseDir := writeTestManifest(t)
	seeder, ds := newTestSeeder(t)

	manifest, err := LoadManifest(path)
	require.NoError(t, err)
	require.NoError(t, seeder.Run(context.Background(), manifest, baseDir))
	require.NoError(t, seeder.Run(context.Background(), manifest, baseDir))

	patients, err := ds.GetPatients()
	require.NoError(t, err)
	assert.Len(t, patients, 1, "re-running a manifest must not duplicate patients")
}
