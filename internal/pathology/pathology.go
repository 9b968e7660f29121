// Package pathology defines the fixed finding-class vocabulary. The list is
// append-only reference data: it is loaded into the datastore at migration
// time and never mutated by request handlers.
package pathology

// Class is one diagnostic category in the vocabulary.
type Class struct {
	Code        string
	DisplayName string
	Description string
}

const (
	// CodeNoFinding is the distinguished class meaning no pathology present.
	CodeNoFinding = "No Finding"
	// CodeAnyPathology is the binary summary class: finding vs no finding.
	CodeAnyPathology = "ANY_PATHOLOGY"
)

// Codes matching the NIH ChestX-ray14 label set used by the inference models.
var classes = []Class{
	{Code: "Atelectasis", DisplayName: "Atelectasis"},
	{Code: "Cardiomegaly", DisplayName: "Cardiomegaly"},
	{Code: "Consolidation", DisplayName: "Consolidation"},
	{Code: "Edema", DisplayName: "Edema"},
	{Code: "Effusion", DisplayName: "Effusion"},
	{Code: "Emphysema", DisplayName: "Emphysema"},
	{Code: "Fibrosis", DisplayName: "Fibrosis"},
	{Code: "Hernia", DisplayName: "Hernia"},
	{Code: "Infiltration", DisplayName: "Infiltration"},
	{Code: "Mass", DisplayName: "Mass"},
	{Code: CodeNoFinding, DisplayName: "No Finding"},
	{Code: "Nodule", DisplayName: "Nodule"},
	{Code: "Pleural_Thickening", DisplayName: "Pleural Thickening"},
	{Code: "Pneumonia", DisplayName: "Pneumonia"},
	{Code: "Pneumothorax", DisplayName: "Pneumothorax"},
	{Code: CodeAnyPathology, DisplayName: "Any Pathology",
		Description: "Binary classification: finding vs no finding"},
}

var codeSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(classes))
	for _, c := range classes {
		m[c.Code] = struct{}{}
	}
	return m
}()

// Vocabulary returns a copy of the full class list.
func Vocabulary() []Class {
	out := make([]Class, len(classes))
	copy(out, classes)
	return out
}

// MultiLabelCodes returns the per-finding codes, excluding the binary
// summary class.
func MultiLabelCodes() []string {
	out := make([]string, 0, len(classes)-1)
	for _, c := range classes {
		if c.Code != CodeAnyPathology {
			out = append(out, c.Code)
		}
	}
	return out
}

// IsKnown reports whether code belongs to the vocabulary.
func IsKnown(code string) bool {
	_, ok := codeSet[code]
	return ok
}
