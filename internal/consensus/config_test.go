package consensus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTuning_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	content := `consensus:
  agreement_bonus_step: 0.1
  clamp_max: 0.9
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	tuning, err := LoadTuning(path)
	require.NoError(t, err)

	assert.InDelta(t, 0.1, tuning.AgreementBonusStep, 1e-9)
	assert.InDelta(t, 0.9, tuning.ClampMax, 1e-9)
	// Unset values fall back to defaults.
	assert.InDelta(t, 0.20, tuning.AgreementBonusCap, 1e-9)
	assert.InDelta(t, 0.60, tuning.LowConfidenceThreshold, 1e-9)
	assert.InDelta(t, 0.10, tuning.ClampMin, 1e-9)
}

func TestLoadTuning_MissingFile(t *testing.T) {
	_, err := LoadTuning(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read tuning")
}

func TestLoadTuning_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("consensus: [not a map"), 0o644))

	_, err := LoadTuning(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse tuning")
}

func TestWithDefaults_ClampMaxMustExceedClampMin(t *testing.T) {
	tuning := Tuning{ClampMin: 0.5, ClampMax: 0.3}.withDefaults()
	assert.InDelta(t, 0.95, tuning.ClampMax, 1e-9)
	assert.InDelta(t, 0.5, tuning.ClampMin, 1e-9)
}
