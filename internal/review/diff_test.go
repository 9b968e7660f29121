package review

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radgrid/radreview-go/internal/datastore"
)

var testCodes = map[uint]string{
	1: "Cardiomegaly",
	2: "Effusion",
	3: "Edema",
}

func TestStatusOf(t *testing.T) {
	t.Parallel()
	assert.Equal(t, StatusPending, StatusOf(nil))
	now := time.Now()
	assert.Equal(t, StatusCompleted, StatusOf(&now))
	assert.True(t, IsPending(nil))
	assert.False(t, IsPending(&now))
}

func TestCompareFlagsDisagreements(t *testing.T) {
	t.Parallel()
	predictions := []datastore.PredictedLabel{
		{PathologyID: 1, Probability: 0.7, Decision: true},
		{PathologyID: 2, Probability: 0.2, Decision: false},
	}
	labels := []datastore.DoctorLabel{
		{PathologyID: 1, Present: false, Comment: "borderline CTR"},
		{PathologyID: 2, Present: false},
	}

	comparisons := Compare(predictions, labels, testCodes)
	require.Len(t, comparisons, 2)

	// Sorted by code: Cardiomegaly before Effusion.
	cardiomegaly := comparisons[0]
	assert.Equal(t, "Cardiomegaly", cardiomegaly.PathologyCode)
	require.NotNil(t, cardiomegaly.MachineDecision)
	require.NotNil(t, cardiomegaly.HumanPresent)
	assert.True(t, *cardiomegaly.MachineDecision)
	assert.False(t, *cardiomegaly.HumanPresent)
	assert.True(t, cardiomegaly.Overridden)
	assert.Equal(t, "borderline CTR", cardiomegaly.Comment)

	effusion := comparisons[1]
	assert.Equal(t, "Effusion", effusion.PathologyCode)
	assert.False(t, effusion.Overridden, "agreement is not an override")
}

func TestCompareCoversUnionOfSides(t *testing.T) {
	t.Parallel()
	predictions := []datastore.PredictedLabel{
		{PathologyID: 1, Probability: 0.7, Decision: true},
	}
	labels := []datastore.DoctorLabel{
		{PathologyID: 3, Present: true},
	}

	comparisons := Compare(predictions, labels, testCodes)
	require.Len(t, comparisons, 2)

	cardiomegaly := comparisons[0]
	assert.Equal(t, "Cardiomegaly", cardiomegaly.PathologyCode)
	assert.Nil(t, cardiomegaly.HumanPresent)
	assert.False(t, cardiomegaly.Overridden, "one-sided classes are never overrides")

	edema := comparisons[1]
	assert.Equal(t, "Edema", edema.PathologyCode)
	assert.Nil(t, edema.MachineDecision)
	assert.Nil(t, edema.Probability)
	assert.False(t, edema.Overridden)
}

func TestCompareEmptyInputs(t *testing.T) {
	t.Parallel()
	assert.Empty(t, Compare(nil, nil, testCodes))
}

func TestResolveLabelsLastWriterWins(t *testing.T) {
	t.Parallel()
	// Most recent first, as GetDoctorLabels returns them.
	labels := []datastore.DoctorLabel{
		{PathologyID: 1, LabeledBy: 2, Present: false},
		{PathologyID: 1, LabeledBy: 1, Present: true},
		{PathologyID: 2, LabeledBy: 1, Present: true},
	}

	resolved := ResolveLabels(labels)
	require.Len(t, resolved, 2)
	assert.Equal(t, uint(2), resolved[0].LabeledBy, "the most recent writer's row wins")
	assert.False(t, resolved[0].Present)
}

func TestCompareUsesLatestReviewerLabel(t *testing.T) {
	t.Parallel()
	predictions := []datastore.PredictedLabel{
		{PathologyID: 1, Probability: 0.7, Decision: true},
	}
	labels := []datastore.DoctorLabel{
		{PathologyID: 1, LabeledBy: 2, Present: true},  // newest
		{PathologyID: 1, LabeledBy: 1, Present: false}, // older, must be ignored
	}

	comparisons := Compare(predictions, labels, testCodes)
	require.Len(t, comparisons, 1)
	require.NotNil(t, comparisons[0].HumanPresent)
	assert.True(t, *comparisons[0].HumanPresent)
	assert.False(t, comparisons[0].Overridden)
}
