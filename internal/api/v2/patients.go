// internal/api/v2/patients.go
package api

import (
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/radgrid/radreview-go/internal/datastore"
	"github.com/radgrid/radreview-go/internal/review"
)

// initPatientRoutes registers the worklist and patient detail endpoints.
func (c *Controller) initPatientRoutes() {
	c.Group.GET("/patients", c.GetPatients)
	c.Group.POST("/patients", c.CreatePatient)
	c.Group.GET("/patients/:id", c.GetPatient)
	c.Group.POST("/patients/:id/exams", c.CreateExam)
}

// PatientSummaryResponse is one worklist row.
type PatientSummaryResponse struct {
	ID                uint       `json:"id"`
	ExternalPatientID string     `json:"external_patient_id,omitempty"`
	FirstName         string     `json:"first_name"`
	LastName          string     `json:"last_name"`
	BirthYear         int        `json:"birth_year"`
	Sex               string     `json:"sex"`
	PendingCount      int        `json:"pending_count"`
	NeedsReview       bool       `json:"needs_review"`
	LastImageAt       *time.Time `json:"last_image_at,omitempty"`
}

// GetPatients returns the triage worklist: patients with pending reviews
// first, ordered by pending count and recency. The aggregation is cached
// briefly since repeated polling dominates its traffic.
func (c *Controller) GetPatients(ctx echo.Context) error {
	if cached, found := c.worklistCache.Get(worklistCacheKey); found {
		if rows, ok := cached.([]PatientSummaryResponse); ok {
			return ctx.JSON(http.StatusOK, rows)
		}
	}

	summaries, err := c.DS.PatientSummaries()
	if err != nil {
		return c.mapError(ctx, err, "Failed to compute patient worklist")
	}

	rows := make([]PatientSummaryResponse, 0, len(summaries))
	for i := range summaries {
		s := &summaries[i]
		rows = append(rows, PatientSummaryResponse{
			ID:                s.PatientID,
			ExternalPatientID: s.ExternalPatientID,
			FirstName:         s.FirstName,
			LastName:          s.LastName,
			BirthYear:         s.BirthYear,
			Sex:               s.Sex,
			PendingCount:      s.PendingCount,
			NeedsReview:       s.NeedsReview(),
			LastImageAt:       s.LastImageAt,
		})
	}

	c.worklistCache.Set(worklistCacheKey, rows, 0)
	return ctx.JSON(http.StatusOK, rows)
}

// CreatePatientRequest is the payload for registering a patient.
type CreatePatientRequest struct {
	ExternalPatientID string `json:"external_patient_id"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	BirthYear         int    `json:"birth_year"`
	Sex               string `json:"sex"`
}

// CreatePatient registers a new patient.
func (c *Controller) CreatePatient(ctx echo.Context) error {
	var req CreatePatientRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	if req.FirstName == "" || req.LastName == "" {
		return c.HandleError(ctx, nil, "first_name and last_name are required", http.StatusBadRequest)
	}

	patient := datastore.Patient{
		ExternalPatientID: req.ExternalPatientID,
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		BirthYear:         req.BirthYear,
		Sex:               req.Sex,
	}
	if err := c.DS.CreatePatient(&patient); err != nil {
		return c.mapError(ctx, err, "Failed to create patient")
	}

	c.worklistCache.Delete(worklistCacheKey)
	c.logAPIRequest(ctx, slog.LevelInfo, "Created patient", "patient_id", patient.ID)
	return ctx.JSON(http.StatusCreated, patient)
}

// ImageDetail is one image in the patient detail view, with its review
// state and the per-class diff between predictions and doctor labels.
type ImageDetail struct {
	ID           uint                `json:"id"`
	Filename     string              `json:"filename"`
	MimeType     string              `json:"mime_type"`
	ViewPosition string              `json:"view_position,omitempty"`
	ReviewStatus review.Status       `json:"review_status"`
	ReviewedAt   *time.Time          `json:"reviewed_at,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	HasOverride  bool                `json:"has_override"`
	Comparisons  []review.Comparison `json:"comparisons"`
}

// ExamDetail is one exam and its images.
type ExamDetail struct {
	ID       uint          `json:"id"`
	ExamTime time.Time     `json:"exam_time"`
	Reason   string        `json:"reason,omitempty"`
	Images   []ImageDetail `json:"images"`
}

// PatientDetailResponse is the full review view of one patient.
type PatientDetailResponse struct {
	ID                uint         `json:"id"`
	ExternalPatientID string       `json:"external_patient_id,omitempty"`
	FirstName         string       `json:"first_name"`
	LastName          string       `json:"last_name"`
	BirthYear         int          `json:"birth_year"`
	Sex               string       `json:"sex"`
	Exams             []ExamDetail `json:"exams"`
}

// GetPatient returns one patient with exams, images and per-class diffs.
// The optional model_version query parameter scopes predictions and labels;
// it defaults to the configured version.
func (c *Controller) GetPatient(ctx echo.Context) error {
	id, err := parseID(ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "Invalid patient ID", http.StatusBadRequest)
	}

	patient, err := c.DS.GetPatient(id)
	if err != nil {
		return c.mapError(ctx, err, "Failed to get patient")
	}

	modelVersionName := ctx.QueryParam("model_version")
	if modelVersionName == "" {
		modelVersionName = c.Settings.Inference.ModelVersion
	}
	modelVersion, err := c.DS.GetOrCreateModelVersion(modelVersionName, "")
	if err != nil {
		return c.mapError(ctx, err, "Failed to resolve model version")
	}

	codeByPathology, err := c.pathologyCodes()
	if err != nil {
		return c.mapError(ctx, err, "Failed to load pathology vocabulary")
	}

	exams, err := c.DS.GetPatientExams(patient.ID)
	if err != nil {
		return c.mapError(ctx, err, "Failed to get patient exams")
	}

	resp := PatientDetailResponse{
		ID:                patient.ID,
		ExternalPatientID: patient.ExternalPatientID,
		FirstName:         patient.FirstName,
		LastName:          patient.LastName,
		BirthYear:         patient.BirthYear,
		Sex:               patient.Sex,
		Exams:             make([]ExamDetail, 0, len(exams)),
	}

	for i := range exams {
		images, err := c.DS.GetExamImages(exams[i].ID)
		if err != nil {
			return c.mapError(ctx, err, "Failed to get exam images")
		}

		examDetail := ExamDetail{
			ID:       exams[i].ID,
			ExamTime: exams[i].ExamTime,
			Reason:   exams[i].Reason,
			Images:   make([]ImageDetail, 0, len(images)),
		}
		for j := range images {
			detail, err := c.imageDetail(&images[j], modelVersion.ID, codeByPathology)
			if err != nil {
				return c.mapError(ctx, err, "Failed to build image detail")
			}
			examDetail.Images = append(examDetail.Images, detail)
		}
		resp.Exams = append(resp.Exams, examDetail)
	}

	return ctx.JSON(http.StatusOK, resp)
}

// CreateExamRequest is the payload for opening a new exam.
type CreateExamRequest struct {
	ExamTime *time.Time `json:"exam_time,omitempty"`
	Reason   string     `json:"reason"`
}

// CreateExam opens a new exam for a patient. Images are attached through
// the upload endpoint afterwards.
func (c *Controller) CreateExam(ctx echo.Context) error {
	patientID, err := parseID(ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "Invalid patient ID", http.StatusBadRequest)
	}
	var req CreateExamRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	patient, err := c.DS.GetPatient(patientID)
	if err != nil {
		return c.mapError(ctx, err, "Failed to get patient")
	}

	examTime := time.Now()
	if req.ExamTime != nil {
		examTime = *req.ExamTime
	}
	exam := datastore.Exam{
		PatientID: patient.ID,
		ExamTime:  examTime,
		Reason:    req.Reason,
	}
	if err := c.DS.CreateExam(&exam); err != nil {
		return c.mapError(ctx, err, "Failed to create exam")
	}

	c.logAPIRequest(ctx, slog.LevelInfo, "Created exam", "exam_id", exam.ID, "patient_id", patient.ID)
	return ctx.JSON(http.StatusCreated, exam)
}

// imageDetail assembles one image's review state and diff.
func (c *Controller) imageDetail(image *datastore.Image, modelVersionID uint, codeByPathology map[uint]string) (ImageDetail, error) {
	predictions, err := c.DS.GetPredictions(image.ID, modelVersionID)
	if err != nil {
		return ImageDetail{}, err
	}
	labels, err := c.DS.GetDoctorLabels(image.ID, modelVersionID)
	if err != nil {
		return ImageDetail{}, err
	}

	comparisons := review.Compare(predictions, labels, codeByPathology)
	hasOverride := false
	for i := range comparisons {
		if comparisons[i].Overridden {
			hasOverride = true
			break
		}
	}

	return ImageDetail{
		ID:           image.ID,
		Filename:     image.Filename,
		MimeType:     image.MimeType,
		ViewPosition: image.ViewPosition,
		ReviewStatus: review.StatusOf(image.ReviewedAt),
		ReviewedAt:   image.ReviewedAt,
		CreatedAt:    image.CreatedAt,
		HasOverride:  hasOverride,
		Comparisons:  comparisons,
	}, nil
}

// pathologyCodes loads the id-to-code vocabulary map.
func (c *Controller) pathologyCodes() (map[uint]string, error) {
	rows, err := c.DS.GetPathologies()
	if err != nil {
		return nil, err
	}
	codes := make(map[uint]string, len(rows))
	for i := range rows {
		codes[rows[i].ID] = rows[i].Code
	}
	return codes, nil
}

// parseID parses a positive numeric path parameter.
func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
