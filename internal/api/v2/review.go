// internal/api/v2/review.go
package api

import (
	"net/http"
	"time"

	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/radgrid/radreview-go/internal/datastore"
	"github.com/radgrid/radreview-go/internal/review"
)

// initReviewRoutes registers the human review endpoints.
func (c *Controller) initReviewRoutes() {
	c.Group.POST("/images/:id/review", c.ReviewImage)
	c.Group.GET("/images/:id/labels", c.GetImageLabels)
}

// ReviewRequest is the payload for finalizing a review. Either QuickConfirm
// is set, accepting the machine decisions verbatim, or Labels carries the
// reviewer's per-class judgments.
type ReviewRequest struct {
	QuickConfirm  bool            `json:"quick_confirm"`
	Labels        map[string]bool `json:"labels"`
	Comment       string          `json:"comment"`
	ReviewerEmail string          `json:"reviewer_email"`
	ModelVersion  string          `json:"model_version"`
}

// ReviewResponse is the finalized label set.
type ReviewResponse struct {
	ImageID      uint          `json:"image_id"`
	ReviewStatus review.Status `json:"review_status"`
	Labels       []LabelDetail `json:"labels"`
}

// LabelDetail is one stored doctor label with its class code resolved.
type LabelDetail struct {
	PathologyCode string `json:"pathology"`
	Present       bool   `json:"present"`
	Comment       string `json:"comment,omitempty"`
	LabeledBy     uint   `json:"labeled_by"`
	LabeledAt     string `json:"labeled_at"`
}

// ReviewImage finalizes a review for an image. The label upsert and the
// review-state transition commit together; the image can never be marked
// reviewed without labels backing it up.
func (c *Controller) ReviewImage(ctx echo.Context) error {
	id, err := parseID(ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "Invalid image ID", http.StatusBadRequest)
	}
	var req ReviewRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	if !req.QuickConfirm && len(req.Labels) == 0 {
		return c.HandleError(ctx, nil, "Either quick_confirm or labels is required", http.StatusBadRequest)
	}

	reviewer, err := c.resolveReviewer(req.ReviewerEmail)
	if err != nil {
		return c.mapError(ctx, err, "Failed to resolve reviewer")
	}

	modelVersionName := req.ModelVersion
	if modelVersionName == "" {
		modelVersionName = c.Settings.Inference.ModelVersion
	}
	modelVersion, err := c.DS.GetOrCreateModelVersion(modelVersionName, "")
	if err != nil {
		return c.mapError(ctx, err, "Failed to resolve model version")
	}

	var labels []datastore.DoctorLabel
	if req.QuickConfirm {
		labels, err = c.Reconciler.QuickConfirm(id, modelVersion.ID, reviewer.ID)
	} else {
		labels, err = c.Reconciler.Apply(id, modelVersion.ID, reviewer.ID, req.Labels, req.Comment)
	}
	if err != nil {
		return c.mapError(ctx, err, "Failed to apply review")
	}

	if c.metrics != nil {
		action := "edit"
		if req.QuickConfirm {
			action = "quick_confirm"
		}
		c.metrics.ReviewsTotal.WithLabelValues(action).Inc()
		if !req.QuickConfirm {
			c.countOverrides(id, modelVersion.ID, req.Labels)
		}
	}
	c.worklistCache.Delete(worklistCacheKey)
	c.logAPIRequest(ctx, slog.LevelInfo, "Applied review",
		"image_id", id,
		"reviewer_id", reviewer.ID,
		"quick_confirm", req.QuickConfirm,
		"labels", len(labels))

	return ctx.JSON(http.StatusOK, c.reviewResponse(id, labels))
}

// countOverrides bumps the override counter once per submitted class whose
// judgment disagrees with the stored machine decision. Quick-confirm never
// reaches here: it copies the decisions verbatim.
func (c *Controller) countOverrides(imageID, modelVersionID uint, reviewed map[string]bool) {
	predictions, err := c.DS.GetPredictions(imageID, modelVersionID)
	if err != nil {
		return
	}
	codes, err := c.pathologyCodes()
	if err != nil {
		return
	}
	decisions := make(map[string]bool, len(predictions))
	for i := range predictions {
		decisions[codes[predictions[i].PathologyID]] = predictions[i].Decision
	}
	for code, present := range reviewed {
		if decision, ok := decisions[code]; ok && decision != present {
			c.metrics.OverridesTotal.Inc()
		}
	}
}

// GetImageLabels returns the stored doctor labels for an image, most recent
// first.
func (c *Controller) GetImageLabels(ctx echo.Context) error {
	id, err := parseID(ctx.Param("id"))
	if err != nil {
		return c.HandleError(ctx, err, "Invalid image ID", http.StatusBadRequest)
	}
	if _, err := c.DS.GetImageMeta(id); err != nil {
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

	labels, err := c.DS.GetDoctorLabels(id, modelVersion.ID)
	if err != nil {
		return c.mapError(ctx, err, "Failed to get doctor labels")
	}
	return ctx.JSON(http.StatusOK, c.reviewResponse(id, labels))
}

// resolveReviewer maps a reviewer email to a user row, falling back to the
// configured default reviewer when the request carries none.
func (c *Controller) resolveReviewer(email string) (datastore.User, error) {
	name := ""
	if email == "" {
		email = c.Settings.Review.DefaultReviewerEmail
		name = c.Settings.Review.DefaultReviewerName
	}
	return c.DS.GetOrCreateUser(email, name)
}

func (c *Controller) reviewResponse(imageID uint, labels []datastore.DoctorLabel) ReviewResponse {
	codes, err := c.pathologyCodes()
	if err != nil {
		codes = map[uint]string{}
	}

	status := review.StatusPending
	if image, err := c.DS.GetImageMeta(imageID); err == nil {
		status = review.StatusOf(image.ReviewedAt)
	}

	details := make([]LabelDetail, 0, len(labels))
	for i := range labels {
		l := &labels[i]
		details = append(details, LabelDetail{
			PathologyCode: codes[l.PathologyID],
			Present:       l.Present,
			Comment:       l.Comment,
			LabeledBy:     l.LabeledBy,
			LabeledAt:     l.LabeledAt.UTC().Format(time.RFC3339),
		})
	}
	return ReviewResponse{
		ImageID:      imageID,
		ReviewStatus: status,
		Labels:       details,
	}
}
