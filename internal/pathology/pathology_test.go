package pathology

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVocabularyIsStable(t *testing.T) {
	t.Parallel()
	classes := Vocabulary()
	assert.Len(t, classes, 16)

	codes := make(map[string]bool, len(classes))
	for _, c := range classes {
		assert.NotEmpty(t, c.Code)
		assert.NotEmpty(t, c.DisplayName)
		assert.False(t, codes[c.Code], "duplicate code %q", c.Code)
		codes[c.Code] = true
	}
	assert.True(t, codes[CodeNoFinding])
	assert.True(t, codes[CodeAnyPathology])
}

func TestMultiLabelCodesExcludeSummaryClass(t *testing.T) {
	t.Parallel()
	for _, code := range MultiLabelCodes() {
		assert.NotEqual(t, CodeAnyPathology, code)
	}
	assert.Contains(t, MultiLabelCodes(), CodeNoFinding)
	assert.Len(t, MultiLabelCodes(), len(Vocabulary())-1)
}

func TestIsKnown(t *testing.T) {
	t.Parallel()
	assert.True(t, IsKnown("Cardiomegaly"))
	assert.True(t, IsKnown(CodeNoFinding))
	assert.False(t, IsKnown("cardiomegaly"), "codes are case sensitive")
	assert.False(t, IsKnown(""))
}
