package review

import (
	"sort"

	"github.com/radgrid/radreview-go/internal/datastore"
)

// Comparison is the per-class diff between the machine prediction and the
// resolved doctor label. It is derived on read and never persisted; storing
// it would create a second source of truth that can drift from the
// underlying rows.
type Comparison struct {
	PathologyCode   string   `json:"pathology"`
	Probability     *float64 `json:"probability,omitempty"`      // machine probability, nil when not predicted
	MachineDecision *bool    `json:"predicted_label,omitempty"`  // nil when not predicted
	HumanPresent    *bool    `json:"doctor_present,omitempty"`   // nil when not labeled
	Comment         string   `json:"comment,omitempty"`          // reviewer comment, if labeled
	Overridden      bool     `json:"overridden"`                 // both present and disagreeing
}

// ResolveLabels collapses multi-reviewer label rows to one row per
// pathology. Input must be ordered most recent first (as GetDoctorLabels
// returns them); the display policy is last-writer-wins across reviewers.
func ResolveLabels(labels []datastore.DoctorLabel) []datastore.DoctorLabel {
	seen := make(map[uint]struct{}, len(labels))
	resolved := make([]datastore.DoctorLabel, 0, len(labels))
	for i := range labels {
		if _, ok := seen[labels[i].PathologyID]; ok {
			continue
		}
		seen[labels[i].PathologyID] = struct{}{}
		resolved = append(resolved, labels[i])
	}
	return resolved
}

// Compare computes the per-class diff for one image and model version.
// codeByPathology maps pathology ids to vocabulary codes. The result covers
// the union of predicted and labeled classes, sorted by code, and flags
// Overridden exactly when a class appears on both sides with disagreeing
// booleans.
func Compare(predictions []datastore.PredictedLabel, labels []datastore.DoctorLabel, codeByPathology map[uint]string) []Comparison {
	byPathology := make(map[uint]*Comparison, len(predictions)+len(labels))

	for i := range predictions {
		p := predictions[i]
		prob := p.Probability
		decision := p.Decision
		byPathology[p.PathologyID] = &Comparison{
			PathologyCode:   codeByPathology[p.PathologyID],
			Probability:     &prob,
			MachineDecision: &decision,
		}
	}

	resolved := ResolveLabels(labels)
	for i := range resolved {
		l := resolved[i]
		present := l.Present
		c, ok := byPathology[l.PathologyID]
		if !ok {
			c = &Comparison{PathologyCode: codeByPathology[l.PathologyID]}
			byPathology[l.PathologyID] = c
		}
		c.HumanPresent = &present
		c.Comment = l.Comment
		if c.MachineDecision != nil && *c.MachineDecision != present {
			c.Overridden = true
		}
	}

	out := make([]Comparison, 0, len(byPathology))
	for _, c := range byPathology {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PathologyCode < out[j].PathologyCode
	})
	return out
}
