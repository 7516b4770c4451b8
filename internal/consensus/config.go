package consensus

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Tuning holds the aggregation constants. The shape is the contract
// (bounded agreement bonus, bounded weak-contributor penalty, hard clamp);
// the exact values are tunable.
type Tuning struct {
	// AgreementBonusStep is added per successful source beyond the first.
	AgreementBonusStep float64 `yaml:"agreement_bonus_step"`
	// AgreementBonusCap bounds the total agreement bonus.
	AgreementBonusCap float64 `yaml:"agreement_bonus_cap"`
	// LowConfidenceThreshold marks a contributor as weak.
	LowConfidenceThreshold float64 `yaml:"low_confidence_threshold"`
	// LowConfidencePenalty is subtracted per weak contributor.
	LowConfidencePenalty float64 `yaml:"low_confidence_penalty"`
	// LowConfidencePenaltyCap bounds the total penalty.
	LowConfidencePenaltyCap float64 `yaml:"low_confidence_penalty_cap"`
	// ClampMin and ClampMax bound the final confidence for any non-empty
	// result set: never absolute certainty, never absolute failure.
	ClampMin float64 `yaml:"clamp_min"`
	ClampMax float64 `yaml:"clamp_max"`
}

// DefaultTuning returns the stock constants.
func DefaultTuning() Tuning {
	return Tuning{
		AgreementBonusStep:      0.05,
		AgreementBonusCap:       0.20,
		LowConfidenceThreshold:  0.60,
		LowConfidencePenalty:    0.03,
		LowConfidencePenaltyCap: 0.15,
		ClampMin:                0.10,
		ClampMax:                0.95,
	}
}

// LoadTuning reads tuning constants from a YAML file with a top-level
// "consensus" key. Missing values fall back to the defaults.
func LoadTuning(path string) (Tuning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, eris.Wrapf(err, "consensus: read tuning %s", path)
	}

	var wrapper struct {
		Consensus Tuning `yaml:"consensus"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return Tuning{}, eris.Wrap(err, "consensus: parse tuning")
	}

	return wrapper.Consensus.withDefaults(), nil
}

func (t Tuning) withDefaults() Tuning {
	def := DefaultTuning()
	if t.AgreementBonusStep <= 0 {
		t.AgreementBonusStep = def.AgreementBonusStep
	}
	if t.AgreementBonusCap <= 0 {
		t.AgreementBonusCap = def.AgreementBonusCap
	}
	if t.LowConfidenceThreshold <= 0 {
		t.LowConfidenceThreshold = def.LowConfidenceThreshold
	}
	if t.LowConfidencePenalty <= 0 {
		t.LowConfidencePenalty = def.LowConfidencePenalty
	}
	if t.LowConfidencePenaltyCap <= 0 {
		t.LowConfidencePenaltyCap = def.LowConfidencePenaltyCap
	}
	if t.ClampMin <= 0 {
		t.ClampMin = def.ClampMin
	}
	if t.ClampMax <= 0 || t.ClampMax <= t.ClampMin {
		t.ClampMax = def.ClampMax
	}
	return t
}
