package store

import (
	"context"
	"time"

	"github.com/collectscope/identify-cli/internal/model"
)

// CycleFilter specifies criteria for listing dispatch cycles.
type CycleFilter struct {
	Fingerprint string         `json:"fingerprint,omitempty"`
	Category    model.Category `json:"category,omitempty"`
	Since       time.Time      `json:"since,omitempty"`
	Limit       int            `json:"limit,omitempty"`
	Offset      int            `json:"offset,omitempty"`
}

// Store defines the persistence interface for the identification engine:
// the source catalog with its running reliability statistics, the dispatch
// cycle history, and the per-source learning samples.
type Store interface {
	// Sources
	UpsertSource(ctx context.Context, src model.Source) error
	ListSources(ctx context.Context, onlyActive bool) ([]model.Source, error)
	UpdateSourceStats(ctx context.Context, sourceID string, reliability, avgLatencyMs float64) error
	DeactivateSource(ctx context.Context, sourceID string) error

	// Dispatch cycles
	InsertCycle(ctx context.Context, cycle model.DispatchCycle) error
	ListCycles(ctx context.Context, filter CycleFilter) ([]model.DispatchCycle, error)

	// Learning samples
	InsertSamples(ctx context.Context, samples []model.LearningSample) error
	CountSamples(ctx context.Context, sourceID string) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
