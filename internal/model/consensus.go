package model

import "time"

// Dissent records a source that disagreed with the chosen value for a field.
type Dissent struct {
	SourceID string `json:"source_id"`
	Value    string `json:"value"`
}

// ConsensusResult is the final identification synthesized from all source
// outcomes of one dispatch cycle. Invariant: SourcesSuccessful is never
// greater than SourcesAttempted, and Confidence is 0 exactly when
// NoConsensus is set.
type ConsensusResult struct {
	Record            NormalizedRecord     `json:"record"`
	Confidence        float64              `json:"confidence"`
	SourcesAttempted  int                  `json:"sources_attempted"`
	SourcesSuccessful int                  `json:"sources_successful"`
	NoConsensus       bool                 `json:"no_consensus,omitempty"`
	Disagreements     map[string][]Dissent `json:"disagreements,omitempty"`
	CycleID           string               `json:"cycle_id"`
	CreatedAt         time.Time            `json:"created_at"`
}
