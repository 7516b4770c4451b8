package model

import "time"

// DispatchCycle summarizes one dispatch for persistence and monitoring.
type DispatchCycle struct {
	ID                string    `json:"id"`
	Fingerprint       string    `json:"fingerprint"`
	Category          Category  `json:"category"`
	Depth             Depth     `json:"depth"`
	SourcesAttempted  int       `json:"sources_attempted"`
	SourcesSuccessful int       `json:"sources_successful"`
	Confidence        float64   `json:"confidence"`
	NoConsensus       bool      `json:"no_consensus"`
	DurationMs        int64     `json:"duration_ms"`
	CreatedAt         time.Time `json:"created_at"`
}

// LearningSample is one per-source observation written to the learning
// session log after a dispatch cycle. Used for later human or automated
// correction of source trust.
type LearningSample struct {
	ID         string    `json:"id"`
	CycleID    string    `json:"cycle_id"`
	SourceID   string    `json:"source_id"`
	Success    bool      `json:"success"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Confidence float64   `json:"confidence"`
	LatencyMs  int64     `json:"latency_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
