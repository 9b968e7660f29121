// internal/api/v2/media.go
package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/radgrid/radreview-go/internal/imaging"
	"github.com/radgrid/radreview-go/internal/inference"
	"github.com/radgrid/radreview-go/internal/ingest"
	"github.com/radgrid/radreview-go/internal/review"
)

// initImageRoutes registers upload, re-inference and content endpoints.
func (c *Controller) initImageRoutes() {
	c.Group.POST("/exams/:id/images", c.UploadImage)
	c.Group.POST("/patients/:id/images", c.UploadImageNewExam)
	c.Group.POST("/predict", c.PredictPreview)
	c.Group.GET("/images/:id", c.GetImageDetail)
	c.Group.GET("/images/:id/content", c.ServeImageContent)
	c.Group.POST("/images/:id/predict", c.RepredictImage)
}

// IngestResponse is returned after a successful upload.
type IngestResponse struct {
	ExamID       uint                `json:"exam_id"`
	ImageID      uint                `json:"image_id"`
	Filename     string              `json:"filename"`
	StorageName  string              `json:"storage_name"`
	ModelVersion string              `json:"model_version"`
	ReviewStatus review.Status       `json:"review_status"`
	Predictions  []PredictionDetail  `json:"predictions"`
}

// PredictionDetail is one machine prediction row with its class code.
type PredictionDetail struct {
	PathologyCode string  `json:"pathology"`
	Probability   float64 `json:"probability"`
	Decision      bool    `json:"predicted_label"`
}

// UploadImage accepts a multipart image upload for an exam, runs inference
// and stores the artifact with its prediction set atomically. A failed
// inference call leaves no trace; the client retries the whole upload.
func (c *Controller) UploadImage(ctx echo.Context) error {
	examID, err := parseID(ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "Invalid exam ID", http.StatusBadRequest)
	}
	req, err := c.buildIngestRequest(ctx)
	if err != nil {
		return err
	}
	req.ExamID = examID
	return c.runIngest(ctx, req)
}

// UploadImageNewExam accepts a multipart image upload for a patient,
// creating a fresh exam in the same transaction that stores the artifact.
// Optional form fields exam_time (RFC 3339) and reason describe the exam.
func (c *Controller) UploadImageNewExam(ctx echo.Context) error {
	patientID, err := parseID(ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "Invalid patient ID", http.StatusBadRequest)
	}
	req, err := c.buildIngestRequest(ctx)
	if err != nil {
		return err
	}
	req.PatientID = patientID
	req.Reason = ctx.FormValue("reason")
	if raw := ctx.FormValue("exam_time"); raw != "" {
		examTime, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.HandleError(ctx, err, "Invalid exam_time", http.StatusBadRequest)
		}
		req.ExamTime = examTime
	}
	return c.runIngest(ctx, req)
}

// buildIngestRequest reads the multipart payload and the shared form fields.
func (c *Controller) buildIngestRequest(ctx echo.Context) (*ingest.Request, error) {
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return nil, c.HandleError(ctx, err, "Missing file upload", http.StatusBadRequest)
	}
	file, err := fileHeader.Open()
	if err != nil {
		return nil, c.HandleError(ctx, err, "Failed to open uploaded file", http.StatusBadRequest)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, c.HandleError(ctx, err, "Failed to read uploaded file", http.StatusBadRequest)
	}

	threshold, err := parseThreshold(ctx.FormValue("threshold"))
	if err != nil {
		return nil, c.HandleError(ctx, err, "Invalid threshold", http.StatusBadRequest)
	}

	return &ingest.Request{
		Filename:     fileHeader.Filename,
		Data:         data,
		MimeType:     imaging.MediaTypeForFilename(fileHeader.Filename),
		ViewPosition: ctx.FormValue("view_position"),
		Threshold:    threshold,
		ModelVersion: ctx.FormValue("model_version"),
	}, nil
}

func (c *Controller) runIngest(ctx echo.Context, req *ingest.Request) error {
	result, err := c.Pipeline.Ingest(ctx.Request().Context(), req)
	if err != nil {
		return c.mapError(ctx, err, "Failed to ingest image")
	}

	c.worklistCache.Delete(worklistCacheKey)
	c.logAPIRequest(ctx, slog.LevelInfo, "Uploaded image",
		"image_id", result.Image.ID,
		"exam_id", result.Exam.ID,
		"filename", result.Image.Filename)

	return ctx.JSON(http.StatusCreated, c.ingestResponse(result))
}

// GetImageDetail returns one image's metadata, review state and per-class
// diff against the requested (or default) model version.
func (c *Controller) GetImageDetail(ctx echo.Context) error {
	id, err := parseID(ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "Invalid image ID", http.StatusBadRequest)
	}

	image, err := c.DS.GetImageMeta(id)
	if err != nil {
		return c.mapError(ctx, err, "Failed to get image")
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

	detail, err := c.imageDetail(&image, modelVersion.ID, codeByPathology)
	if err != nil {
		return c.mapError(ctx, err, "Failed to build image detail")
	}
	return ctx.JSON(http.StatusOK, detail)
}

// ServeImageContent streams the stored image bytes with the stored media
// type. The payload is served verbatim; no transcoding happens on read.
func (c *Controller) ServeImageContent(ctx echo.Context) error {
	id, err := parseID(ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "Invalid image ID", http.StatusBadRequest)
	}

	image, err := c.DS.GetImage(id)
	if err != nil {
		return c.mapError(ctx, err, "Failed to get image")
	}

	mimeType := image.MimeType
	if mimeType == "" {
		mimeType = imaging.MediaTypePNG
	}
	ctx.Response().Header().Set("Cache-Control", "public, max-age=86400")
	return ctx.Blob(http.StatusOK, mimeType, image.ImageData)
}

// RepredictRequest selects the threshold and model version for re-inference.
// A missing threshold falls back to the configured default; an explicit 0 is
// honored.
type RepredictRequest struct {
	Threshold    *float64 `json:"threshold"`
	ModelVersion string   `json:"model_version"`
}

// RepredictImage re-runs inference on a stored image and replaces the
// prediction set for the chosen model version. Review state is untouched.
func (c *Controller) RepredictImage(ctx echo.Context) error {
	id, err := parseID(ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "Invalid image ID", http.StatusBadRequest)
	}
	var req RepredictRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}

	result, err := c.Pipeline.Reinfer(ctx.Request().Context(), id, req.Threshold, req.ModelVersion)
	if err != nil {
		return c.mapError(ctx, err, "Failed to re-run inference")
	}

	c.logAPIRequest(ctx, slog.LevelInfo, "Re-ran inference",
		"image_id", id,
		"model_version", result.ModelVersion.Name)

	return ctx.JSON(http.StatusOK, c.ingestResponse(result))
}

// ingestResponse renders a pipeline result with class codes resolved.
func (c *Controller) ingestResponse(result *ingest.Result) IngestResponse {
	codes, err := c.pathologyCodes()
	if err != nil {
		codes = map[uint]string{}
	}
	predictions := make([]PredictionDetail, 0, len(result.Predictions))
	for i := range result.Predictions {
		p := &result.Predictions[i]
		predictions = append(predictions, PredictionDetail{
			PathologyCode: codes[p.PathologyID],
			Probability:   p.Probability,
			Decision:      p.Decision,
		})
	}
	return IngestResponse{
		ExamID:       result.Exam.ID,
		ImageID:      result.Image.ID,
		Filename:     result.Image.Filename,
		StorageName:  result.Image.StorageName,
		ModelVersion: result.ModelVersion.Name,
		ReviewStatus: review.StatusOf(result.Image.ReviewedAt),
		Predictions:  predictions,
	}
}

// PredictPreviewResponse carries predictions for a payload that was never
// stored.
type PredictPreviewResponse struct {
	ModelVersion string                 `json:"model_version"`
	Predictions  []inference.Prediction `json:"predictions"`
}

// PredictPreview validates an uploaded image and returns its prediction set
// without persisting anything. Useful for trying the model against a file
// before committing it to a patient record.
func (c *Controller) PredictPreview(ctx echo.Context) error {
	req, err := c.buildIngestRequest(ctx)
	if err != nil {
		return err
	}

	predictions, err := c.Pipeline.Preview(ctx.Request().Context(), req.Data, req.MimeType, req.Threshold)
	if err != nil {
		return c.mapError(ctx, err, "Failed to run inference")
	}

	return ctx.JSON(http.StatusOK, PredictPreviewResponse{
		ModelVersion: c.Settings.Inference.ModelVersion,
		Predictions:  predictions,
	})
}

// parseThreshold parses an optional form threshold. nil means the caller
// left it blank; an explicit 0 survives as a real threshold.
func parseThreshold(raw string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
