// Package seed loads a YAML manifest of patients, exams and images and
// ingests them through the regular pipeline, so seeded data carries real
// predictions and obeys the same atomicity rules as uploads.
package seed

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/radgrid/radreview-go/internal/datastore"
	"github.com/radgrid/radreview-go/internal/errors"
	"github.com/radgrid/radreview-go/internal/imaging"
	"github.com/radgrid/radreview-go/internal/ingest"
	"github.com/radgrid/radreview-go/internal/logging"
)

var logger *slog.Logger

func init() {
	var err error
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelInfo)
	logger, _, err = logging.NewFileLogger(filepath.Join("logs", "seed.log"), "seed", levelVar)
	if err != nil {
		log.Printf("Failed to initialize seed file logger: %v. Service logging disabled.", err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: levelVar})
		logger = slog.New(fbHandler).With("service", "seed")
	}
}

// DefaultConcurrency bounds parallel image ingestions during seeding.
const DefaultConcurrency = 4

// Manifest describes a seed dataset.
type Manifest struct {
	Patients []PatientSpec `yaml:"patients"`
}

// PatientSpec is one patient with their exams.
type PatientSpec struct {
	ExternalID string     `yaml:"external_id"`
	FirstName  string     `yaml:"first_name"`
	LastName   string     `yaml:"last_name"`
	BirthYear  int        `yaml:"birth_year"`
	Sex        string     `yaml:"sex"`
	Exams      []ExamSpec `yaml:"exams"`
}

// ExamSpec is one imaging session.
type ExamSpec struct {
	Time   time.Time   `yaml:"time"`
	Reason string      `yaml:"reason"`
	Images []ImageSpec `yaml:"images"`
}

// ImageSpec is one image file with its reference labels.
type ImageSpec struct {
	File         string   `yaml:"file"` // path relative to the manifest file
	ViewPosition string   `yaml:"view_position"`
	GroundTruth  []string `yaml:"ground_truth"` // vocabulary codes
}

// Seeder ingests a manifest into the store.
type Seeder struct {
	ds          datastore.Interface
	pipeline    *ingest.Pipeline
	concurrency int
}

// New creates a seeder. concurrency <= 0 selects DefaultConcurrency.
func New(ds datastore.Interface, pipeline *ingest.Pipeline, concurrency int) *Seeder {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Seeder{ds: ds, pipeline: pipeline, concurrency: concurrency}
}

// LoadManifest parses a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(fmt.Errorf("reading manifest %s: %w", path, err)).
			Component("seed").
			Category(errors.CategoryFileIO).
			Build()
	}
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, errors.New(fmt.Errorf("parsing manifest %s: %w", path, err)).
			Component("seed").
			Category(errors.CategoryValidation).
			Build()
	}
	if len(manifest.Patients) == 0 {
		return nil, errors.Newf("manifest %s contains no patients", path).
			Component("seed").
			Category(errors.CategoryValidation).
			Build()
	}
	return &manifest, nil
}

// Run ingests every patient in the manifest. Patients already present (by
// external id) are skipped, so re-running a manifest is safe. Image files
// are resolved relative to baseDir.
func (s *Seeder) Run(ctx context.Context, manifest *Manifest, baseDir string) error {
	for i := range manifest.Patients {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.seedPatient(ctx, &manifest.Patients[i], baseDir); err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) seedPatient(ctx context.Context, spec *PatientSpec, baseDir string) error {
	if spec.ExternalID != "" {
		if _, err := s.ds.GetPatientByExternalID(spec.ExternalID); err == nil {
			logger.Info("Skipping existing patient", "external_id", spec.ExternalID)
			return nil
		} else if !errors.HasCategory(err, errors.CategoryNotFound) {
			return err
		}
	}

	patient := datastore.Patient{
		ExternalPatientID: spec.ExternalID,
		FirstName:         spec.FirstName,
		LastName:          spec.LastName,
		BirthYear:         spec.BirthYear,
		Sex:               spec.Sex,
	}
	if err := s.ds.CreatePatient(&patient); err != nil {
		return err
	}
	logger.Info("Seeded patient", "patient_id", patient.ID, "external_id", spec.ExternalID)

	for i := range spec.Exams {
		examSpec := &spec.Exams[i]
		examTime := examSpec.Time
		if examTime.IsZero() {
			examTime = time.Now()
		}
		exam := datastore.Exam{
			PatientID: patient.ID,
			ExamTime:  examTime,
			Reason:    examSpec.Reason,
		}
		if err := s.ds.CreateExam(&exam); err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.concurrency)
		for j := range examSpec.Images {
			imageSpec := &examSpec.Images[j]
			g.Go(func() error {
				return s.seedImage(gctx, exam.ID, imageSpec, baseDir)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) seedImage(ctx context.Context, examID uint, spec *ImageSpec, baseDir string) error {
	path := spec.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.New(fmt.Errorf("reading image %s: %w", path, err)).
			Component("seed").
			Category(errors.CategoryFileIO).
			Build()
	}

	result, err := s.pipeline.Ingest(ctx, &ingest.Request{
		ExamID:       examID,
		Filename:     filepath.Base(path),
		Data:         data,
		MimeType:     imaging.MediaTypeForFilename(path),
		ViewPosition: spec.ViewPosition,
	})
	if err != nil {
		return err
	}

	if len(spec.GroundTruth) > 0 {
		pathologyIDs := make([]uint, 0, len(spec.GroundTruth))
		for _, code := range spec.GroundTruth {
			row, err := s.ds.GetPathologyByCode(code)
			if err != nil {
				return err
			}
			pathologyIDs = append(pathologyIDs, row.ID)
		}
		if err := s.ds.SaveGroundTruth(result.Image.ID, pathologyIDs); err != nil {
			return err
		}
	}

	logger.Info("Seeded image",
		"image_id", result.Image.ID,
		"exam_id", examID,
		"file", spec.File,
		"ground_truth", len(spec.GroundTruth))
	return nil
}
