package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	s := &Settings{}
	s.Output.SQLite.Enabled = true
	s.Output.SQLite.Path = "test.db"
	s.Inference.Provider = "mock"
	s.Inference.Threshold = 0.5
	return s
}

func TestValidateSettingsAcceptsDefaults(t *testing.T) {
	t.Parallel()
	require.NoError(t, ValidateSettings(validSettings()))
}

func TestValidateSettingsRequiresOneDatabase(t *testing.T) {
	t.Parallel()

	s := validSettings()
	s.Output.SQLite.Enabled = false
	err := ValidateSettings(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database output enabled")

	s = validSettings()
	s.Output.MySQL.Enabled = true
	err = ValidateSettings(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both sqlite and mysql")
}

func TestValidateSettingsThresholdRange(t *testing.T) {
	t.Parallel()

	s := validSettings()
	s.Inference.Threshold = 1.5
	require.Error(t, ValidateSettings(s))

	s.Inference.Threshold = -0.1
	require.Error(t, ValidateSettings(s))

	s.Inference.Threshold = 1.0
	require.NoError(t, ValidateSettings(s))
}

func TestValidateSettingsInferenceProvider(t *testing.T) {
	t.Parallel()

	s := validSettings()
	s.Inference.Provider = "remote"
	err := ValidateSettings(s)
	require.Error(t, err, "remote provider without endpoint must be rejected")

	s.Inference.Endpoint = "http://modelserver:8500"
	require.NoError(t, ValidateSettings(s))

	s.Inference.Provider = "imaginary"
	require.Error(t, ValidateSettings(s))
}
