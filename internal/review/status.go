// Package review implements the review state machine and the label
// reconciliation engine: how machine predictions and reviewer labels
// interact, and when an image counts as reviewed.
package review

import "time"

// Status is the review state of an image. The persisted representation is
// the image's reviewed_at timestamp: nil means pending, non-nil means a
// reviewer has finalized at least one label set. There is no separate
// in-review state; an opened-but-unfinished review is still pending.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// StatusOf derives the review status from an image's reviewed timestamp.
func StatusOf(reviewedAt *time.Time) Status {
	if reviewedAt == nil {
		return StatusPending
	}
	return StatusCompleted
}

// IsPending reports whether the timestamp denotes an unreviewed image.
func IsPending(reviewedAt *time.Time) bool {
	return reviewedAt == nil
}
